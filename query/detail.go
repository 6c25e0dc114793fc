package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/crestline/taskflow/store"
	"github.com/crestline/taskflow/svcerr"
)

// TaskDetail returns the full view of one task: the configured or
// snapshotted fields, every submission attempt with its per-node
// approval flow, and the enriched neighbor projections.
func (s *Service) TaskDetail(ctx context.Context, taskID int64) (*TaskDetail, error) {
	pt, err := s.st.PlanTask(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, svcerr.New(fmt.Sprintf("task %d not found", taskID))
	}
	if err != nil {
		return nil, err
	}

	te, err := s.st.TaskExecutionByTaskID(ctx, taskID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	generated := te != nil

	d := &TaskDetail{
		TaskID:          pt.TaskID,
		TaskName:        pt.Name,
		TaskDescription: pt.Description,
		ProjectID:       pt.ProjectID,
		ProjectName:     projectName(pt.ProjectID),
		StageID:         pt.StageID,
		JobNumber:       pt.JobNumber,
		StartTime:       planDate(pt.StartDate),
		EndTime:         planDate(pt.EndDate),
		TaskStatus:      NotGenerated,
		Generated:       generated,
	}
	if generated {
		// The execution snapshot is what the owner and approvers saw.
		d.TaskName = te.Name
		d.TaskDescription = te.Description
		d.StageID = te.StageID
		d.JobNumber = te.JobNumber
		d.StartTime = planDate(te.StartDate)
		d.EndTime = planDate(te.EndDate)
		d.TaskStatus = int(te.Status)
	}
	d.TaskStatusName = statusName(d.TaskStatus)

	if d.StageID != nil {
		stage, err := s.st.PlanStage(ctx, *d.StageID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if stage != nil {
			d.StageName = &stage.Name
		}
	}
	if d.JobNumber != nil {
		emp, err := s.dir.Employee(ctx, *d.JobNumber)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if emp != nil {
			d.AssigneeName = &emp.Name
			dept, err := s.dir.SecondLevelDepartment(ctx, emp)
			if err != nil {
				return nil, err
			}
			if dept != nil {
				d.DeptID = &dept.ID
				d.DeptName = &dept.Name
			}
		}
	}

	if generated {
		d.Applications, err = s.applicationViews(ctx, te.ID)
		if err != nil {
			return nil, err
		}
	}

	d.Predecessors, err = s.relatedTasks(ctx, pt.Predecessors)
	if err != nil {
		return nil, err
	}
	d.Successors, err = s.relatedTasks(ctx, pt.Successors)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// applicationViews builds the per-node approval flow of every submission
// attempt, oldest first.
func (s *Service) applicationViews(ctx context.Context, taskExecutionID int64) ([]ApplicationView, error) {
	subs, err := s.st.SubmissionsForTask(ctx, taskExecutionID)
	if err != nil {
		return nil, err
	}
	applyIDs := make([]string, 0, len(subs))
	for _, sub := range subs {
		applyIDs = append(applyIDs, sub.ApplyID)
	}
	allLogs, err := s.st.ApprovalLogsByApplyIDs(ctx, applyIDs)
	if err != nil {
		return nil, err
	}
	logsByApply := make(map[string][]store.ApprovalLog, len(subs))
	for _, l := range allLogs {
		logsByApply[l.ApplyID] = append(logsByApply[l.ApplyID], l)
	}
	views := make([]ApplicationView, 0, len(subs))
	for _, sub := range subs {
		app, err := s.st.Application(ctx, sub.ApplyID)
		if err != nil {
			return nil, err
		}
		rule, err := s.st.ApprovalRuleByApply(ctx, sub.ApplyID)
		if err != nil {
			return nil, err
		}
		nodes, err := s.nodeViews(ctx, rule, logsByApply[sub.ApplyID])
		if err != nil {
			return nil, err
		}
		views = append(views, ApplicationView{
			ApplyID:      app.ApplyID,
			ApplyStatus:  int(app.ApplyStatus),
			SubmitText:   sub.SubmitText,
			SubmitImages: sub.SubmitImages,
			SubmitTime:   fmtTime(sub.SubmitAt),
			Nodes:        nodes,
		})
	}
	return views, nil
}

// nodeViews renders the rule's node sequence with computed statuses. The
// approved prefix and the cursor are authoritative; logs contribute the
// decision detail per node.
func (s *Service) nodeViews(ctx context.Context, rule *store.ApprovalRule, logs []store.ApprovalLog) ([]NodeView, error) {
	nodeNames, err := s.dir.DepartmentNames(ctx, rule.Nodes)
	if err != nil {
		return nil, err
	}
	logByNode := make(map[int64]*store.ApprovalLog, len(logs))
	approvers := make([]string, 0, len(logs))
	for i := range logs {
		l := &logs[i]
		if l.Result == store.ResultSubmit {
			continue
		}
		// Keep the last decision per node within this application.
		logByNode[l.Node] = l
		approvers = append(approvers, l.ApproverID)
	}
	approverNames, err := s.dir.EmployeeNames(ctx, approvers)
	if err != nil {
		return nil, err
	}

	approved := idSet(rule.ApprovedNodes)
	views := make([]NodeView, 0, len(rule.Nodes))
	for _, node := range rule.Nodes {
		v := NodeView{Node: node, Status: NodePending}
		if name, ok := nodeNames[node]; ok {
			v.NodeName = name
		} else {
			v.NodeName = fmt.Sprintf("Position %d", node)
		}
		switch {
		case approved[node]:
			v.Status = NodeApproved
		case rule.CurrentNode != nil && *rule.CurrentNode == node:
			v.Status = NodeCurrent
		}
		if l, ok := logByNode[node]; ok {
			if l.Result == store.ResultReject {
				v.Status = NodeRejected
			}
			approver := l.ApproverID
			v.ApproverID = &approver
			if name, ok := approverNames[approver]; ok {
				v.ApproverName = &name
			} else {
				v.ApproverName = &approver
			}
			v.Comment = l.Comment
			decidedAt := fmtTime(l.EndAt)
			v.DecidedAt = &decidedAt
		}
		views = append(views, v)
	}
	return views, nil
}

// relatedTasks enriches a neighbor edge list. Neighbors without an
// execution row carry the not-generated pseudo-status.
func (s *Service) relatedTasks(ctx context.Context, ids []int64) ([]RelatedTask, error) {
	tasks, err := s.st.PlanTasksByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*store.Task, len(tasks))
	for i := range tasks {
		byID[tasks[i].TaskID] = &tasks[i]
	}

	out := make([]RelatedTask, 0, len(ids))
	jobs := make([]string, 0, len(ids))
	for _, id := range ids {
		pt, ok := byID[id]
		if !ok {
			continue
		}
		r := RelatedTask{
			TaskID:    pt.TaskID,
			TaskName:  pt.Name,
			JobNumber: pt.JobNumber,
			StartTime: planDate(pt.StartDate),
			EndTime:   planDate(pt.EndDate),
			Status:    NotGenerated,
		}
		te, err := s.st.TaskExecutionByTaskID(ctx, id)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if te != nil {
			r.TaskName = te.Name
			r.JobNumber = te.JobNumber
			r.StartTime = planDate(te.StartDate)
			r.EndTime = planDate(te.EndDate)
			r.Status = int(te.Status)
		}
		r.StatusName = statusName(r.Status)
		if r.JobNumber != nil {
			jobs = append(jobs, *r.JobNumber)
		}
		out = append(out, r)
	}

	names, err := s.dir.EmployeeNames(ctx, jobs)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].JobNumber == nil {
			continue
		}
		if name, ok := names[*out[i].JobNumber]; ok {
			out[i].AssigneeName = &name
		}
	}
	return out, nil
}
