package query

import (
	"context"
	"errors"
	"sort"

	"github.com/crestline/taskflow/store"
)

// Statuses shown on the my-tasks listing: everything the owner still has
// to act on or watch.
var activeStatuses = []store.TaskStatus{
	store.TaskInProgress, store.TaskSubmitted, store.TaskRejected,
}

// MyTasks lists the viewer's active tasks: the ones they own plus the
// ones waiting for their approval.
func (s *Service) MyTasks(ctx context.Context, jobNumber string, f TaskFilter) (*Page, error) {
	execs, err := s.activeTasks(ctx, jobNumber)
	if err != nil {
		return nil, err
	}
	rows, err := s.buildRows(ctx, execs)
	if err != nil {
		return nil, err
	}
	return paginate(rows, f), nil
}

// MyTaskCategories returns the counters of the my-tasks listing, grouped
// by project, second-level department, and status.
func (s *Service) MyTaskCategories(ctx context.Context, jobNumber string) (*Categories, error) {
	execs, err := s.activeTasks(ctx, jobNumber)
	if err != nil {
		return nil, err
	}
	rows, err := s.buildRows(ctx, execs)
	if err != nil {
		return nil, err
	}
	return categorize(rows), nil
}

// HistoryTasks lists the viewer's completed tasks.
func (s *Service) HistoryTasks(ctx context.Context, jobNumber string, f TaskFilter) (*Page, error) {
	rows, err := s.historyRows(ctx, jobNumber)
	if err != nil {
		return nil, err
	}
	return paginate(rows, f), nil
}

// HistoryCategories returns the counters of the history listing.
func (s *Service) HistoryCategories(ctx context.Context, jobNumber string) (*Categories, error) {
	rows, err := s.historyRows(ctx, jobNumber)
	if err != nil {
		return nil, err
	}
	return categorize(rows), nil
}

// TeamTasks lists every execution owned within the viewer's department
// subtree. Viewers without a department see an empty listing.
func (s *Service) TeamTasks(ctx context.Context, jobNumber string, f TaskFilter) (*Page, error) {
	emp, err := s.viewer(ctx, jobNumber)
	if err != nil {
		return nil, err
	}
	execs, err := s.st.ScopedTaskExecutions(ctx,
		store.Scope{Kind: store.ScopeDeptAndChildren}, emp, nil)
	if err != nil {
		return nil, err
	}
	rows, err := s.buildRows(ctx, execs)
	if err != nil {
		return nil, err
	}
	return paginate(rows, f), nil
}

// WorkbenchStats returns the landing-page counters: tasks the viewer
// still has to submit, applications waiting at their position, and their
// rejected tasks.
func (s *Service) WorkbenchStats(ctx context.Context, jobNumber string) (*WorkbenchStats, error) {
	emp, err := s.viewer(ctx, jobNumber)
	if err != nil {
		return nil, err
	}
	pending, err := s.st.TaskExecutionsByOwner(ctx, jobNumber,
		[]store.TaskStatus{store.TaskInProgress})
	if err != nil {
		return nil, err
	}
	rejected, err := s.st.TaskExecutionsByOwner(ctx, jobNumber,
		[]store.TaskStatus{store.TaskRejected})
	if err != nil {
		return nil, err
	}
	var approvals []store.TaskExecution
	if emp.OrganizationID != nil {
		approvals, err = s.st.TaskExecutionsPendingAtNode(ctx, *emp.OrganizationID)
		if err != nil {
			return nil, err
		}
	}
	return &WorkbenchStats{
		PendingCount:  len(pending),
		ApprovalCount: len(approvals),
		RejectedCount: len(rejected),
	}, nil
}

// activeTasks gathers the owned active executions plus the ones pending
// at the viewer's position, deduplicated by task.
func (s *Service) activeTasks(ctx context.Context, jobNumber string) ([]store.TaskExecution, error) {
	emp, err := s.viewer(ctx, jobNumber)
	if err != nil {
		return nil, err
	}
	owned, err := s.st.TaskExecutionsByOwner(ctx, jobNumber, activeStatuses)
	if err != nil {
		return nil, err
	}
	out := owned
	seen := make(map[int64]bool, len(owned))
	for _, te := range owned {
		seen[te.TaskID] = true
	}
	if emp.OrganizationID != nil {
		pending, err := s.st.TaskExecutionsPendingAtNode(ctx, *emp.OrganizationID)
		if err != nil {
			return nil, err
		}
		for _, te := range pending {
			if !seen[te.TaskID] {
				seen[te.TaskID] = true
				out = append(out, te)
			}
		}
	}
	return out, nil
}

func (s *Service) historyRows(ctx context.Context, jobNumber string) ([]TaskRow, error) {
	if _, err := s.viewer(ctx, jobNumber); err != nil {
		return nil, err
	}
	execs, err := s.st.TaskExecutionsByOwner(ctx, jobNumber,
		[]store.TaskStatus{store.TaskCompleted})
	if err != nil {
		return nil, err
	}
	return s.buildRows(ctx, execs)
}

// buildRows enriches raw executions with owner names, second-level
// departments, and stage names. Directory gaps leave the enrichment
// fields nil instead of failing the listing.
func (s *Service) buildRows(ctx context.Context, execs []store.TaskExecution) ([]TaskRow, error) {
	type ownerInfo struct {
		name     *string
		deptID   *int64
		deptName *string
	}
	owners := make(map[string]ownerInfo)
	stageNames := make(map[int64]*string)

	rows := make([]TaskRow, 0, len(execs))
	for _, te := range execs {
		row := TaskRow{
			TaskID:         te.TaskID,
			TaskName:       te.Name,
			ProjectID:      te.ProjectID,
			ProjectName:    projectName(te.ProjectID),
			TaskStatus:     int(te.Status),
			TaskStatusName: statusName(int(te.Status)),
			JobNumber:      te.JobNumber,
			StageID:        te.StageID,
			CompleteTime:   fmtTimePtr(te.ActualCompleteAt),
		}
		if te.EndDate != nil {
			deadline := te.EndDate.Format("2006-01-02") + deadlineSuffix
			row.Deadline = &deadline
		}
		if te.JobNumber != nil {
			info, ok := owners[*te.JobNumber]
			if !ok {
				info = ownerInfo{}
				emp, err := s.dir.Employee(ctx, *te.JobNumber)
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					return nil, err
				}
				if emp != nil {
					info.name = &emp.Name
					dept, err := s.dir.SecondLevelDepartment(ctx, emp)
					if err != nil {
						return nil, err
					}
					if dept != nil {
						info.deptID = &dept.ID
						info.deptName = &dept.Name
					}
				}
				owners[*te.JobNumber] = info
			}
			row.AssigneeName = info.name
			row.DeptID = info.deptID
			row.DeptName = info.deptName
		}
		if te.StageID != nil {
			name, ok := stageNames[*te.StageID]
			if !ok {
				stage, err := s.st.PlanStage(ctx, *te.StageID)
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					return nil, err
				}
				if stage != nil {
					name = &stage.Name
				}
				stageNames[*te.StageID] = name
			}
			row.StageName = name
		}
		if te.Status == store.TaskRejected {
			rejectTime, err := s.rejectTime(ctx, te.ID)
			if err != nil {
				return nil, err
			}
			row.RejectTime = rejectTime
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// rejectTime finds when the latest application of a rejected task was
// turned down.
func (s *Service) rejectTime(ctx context.Context, taskExecutionID int64) (*string, error) {
	sub, err := s.st.LatestSubmissionForTask(ctx, taskExecutionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	logs, err := s.st.ApprovalLogs(ctx, sub.ApplyID)
	if err != nil {
		return nil, err
	}
	for _, l := range logs {
		if l.Result == store.ResultReject {
			ts := fmtTime(l.EndAt)
			return &ts, nil
		}
	}
	return nil, nil
}

func matchesFilter(row *TaskRow, f TaskFilter) bool {
	if f.ProjectID != nil && row.ProjectID != *f.ProjectID {
		return false
	}
	if f.DeptID != nil && (row.DeptID == nil || *row.DeptID != *f.DeptID) {
		return false
	}
	if f.Status != nil && row.TaskStatus != *f.Status {
		return false
	}
	return true
}

func paginate(rows []TaskRow, f TaskFilter) *Page {
	filtered := make([]TaskRow, 0, len(rows))
	for i := range rows {
		if matchesFilter(&rows[i], f) {
			filtered = append(filtered, rows[i])
		}
	}
	pageNum, pageSize := f.PageNum, f.PageSize
	if pageNum < 1 {
		pageNum = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	start := (pageNum - 1) * pageSize
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + pageSize
	if end > len(filtered) {
		end = len(filtered)
	}
	return &Page{Total: len(filtered), Rows: filtered[start:end]}
}

// categorize counts unfiltered rows along the three listing axes.
func categorize(rows []TaskRow) *Categories {
	c := &Categories{}
	c.Project.Total = len(rows)
	c.Department.Total = len(rows)
	c.Status.Total = len(rows)

	byProject := make(map[int64]*ProjectCount)
	byDept := make(map[int64]*DeptCount)
	byStatus := make(map[int]*StatusCount)
	for i := range rows {
		row := &rows[i]
		if p, ok := byProject[row.ProjectID]; ok {
			p.Count++
		} else {
			byProject[row.ProjectID] = &ProjectCount{
				ProjectID: row.ProjectID, ProjectName: row.ProjectName, Count: 1,
			}
		}
		if row.DeptID != nil {
			if d, ok := byDept[*row.DeptID]; ok {
				d.Count++
			} else {
				name := ""
				if row.DeptName != nil {
					name = *row.DeptName
				}
				byDept[*row.DeptID] = &DeptCount{DeptID: *row.DeptID, DeptName: name, Count: 1}
			}
		}
		if st, ok := byStatus[row.TaskStatus]; ok {
			st.Count++
		} else {
			byStatus[row.TaskStatus] = &StatusCount{
				Status: row.TaskStatus, StatusName: row.TaskStatusName, Count: 1,
			}
		}
	}

	c.Project.Items = make([]ProjectCount, 0, len(byProject))
	for _, p := range byProject {
		c.Project.Items = append(c.Project.Items, *p)
	}
	sort.Slice(c.Project.Items, func(i, j int) bool {
		return c.Project.Items[i].ProjectID < c.Project.Items[j].ProjectID
	})

	c.Department.Items = make([]DeptCount, 0, len(byDept))
	for _, d := range byDept {
		c.Department.Items = append(c.Department.Items, *d)
	}
	sort.Slice(c.Department.Items, func(i, j int) bool {
		return c.Department.Items[i].DeptID < c.Department.Items[j].DeptID
	})

	c.Status.Items = make([]StatusCount, 0, len(byStatus))
	for _, st := range byStatus {
		c.Status.Items = append(c.Status.Items, *st)
	}
	sort.Slice(c.Status.Items, func(i, j int) bool {
		return c.Status.Items[i].Status < c.Status.Items[j].Status
	})
	return c
}
