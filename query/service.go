package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crestline/taskflow/directory"
	"github.com/crestline/taskflow/plan"
	"github.com/crestline/taskflow/store"
	"github.com/crestline/taskflow/svcerr"
)

// Store is the read slice of the store the projections are built from.
type Store interface {
	ProjectIDsWithPlan(ctx context.Context) ([]int64, error)
	ListPlanStages(ctx context.Context, projectID int64) ([]store.Stage, error)
	ListPlanTasks(ctx context.Context, projectID int64) ([]store.Task, error)
	PlanStage(ctx context.Context, stageID int64) (*store.Stage, error)
	PlanTask(ctx context.Context, taskID int64) (*store.Task, error)
	PlanTasksByIDs(ctx context.Context, ids []int64) ([]store.Task, error)

	ProjectHasExecutions(ctx context.Context, projectID int64) (bool, error)
	ProjectIDsWithExecutions(ctx context.Context) ([]int64, error)
	MaterializedStageIDs(ctx context.Context, projectID int64) ([]int64, error)
	MaterializedTaskIDs(ctx context.Context, projectID int64) ([]int64, error)
	TaskExecutionByTaskID(ctx context.Context, taskID int64) (*store.TaskExecution, error)
	TaskExecutionsByOwner(ctx context.Context, jobNumber string, statuses []store.TaskStatus) ([]store.TaskExecution, error)
	TaskExecutionsPendingAtNode(ctx context.Context, positionID int64) ([]store.TaskExecution, error)
	ScopedTaskExecutions(ctx context.Context, scope store.Scope, caller *store.Employee, statuses []store.TaskStatus) ([]store.TaskExecution, error)

	Application(ctx context.Context, applyID string) (*store.Application, error)
	ApprovalRuleByApply(ctx context.Context, applyID string) (*store.ApprovalRule, error)
	ApprovalLogs(ctx context.Context, applyID string) ([]store.ApprovalLog, error)
	ApprovalLogsByApplyIDs(ctx context.Context, applyIDs []string) ([]store.ApprovalLog, error)
	SubmissionsForTask(ctx context.Context, taskExecutionID int64) ([]store.TaskSubmission, error)
	LatestSubmissionForTask(ctx context.Context, taskExecutionID int64) (*store.TaskSubmission, error)
}

// Service assembles the read-side views.
type Service struct {
	st     Store
	dir    *directory.Service
	logger *slog.Logger
}

// NewService creates a query service.
func NewService(st Store, dir *directory.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{st: st, dir: dir, logger: logger}
}

// ProjectSummaries lists every configured project with its validation
// counters.
func (s *Service) ProjectSummaries(ctx context.Context) ([]ProjectSummary, error) {
	ids, err := s.st.ProjectIDsWithPlan(ctx)
	if err != nil {
		return nil, err
	}
	generatedIDs, err := s.st.ProjectIDsWithExecutions(ctx)
	if err != nil {
		return nil, err
	}
	generatedSet := idSet(generatedIDs)
	out := make([]ProjectSummary, 0, len(ids))
	for _, id := range ids {
		stages, err := s.st.ListPlanStages(ctx, id)
		if err != nil {
			return nil, err
		}
		tasks, err := s.st.ListPlanTasks(ctx, id)
		if err != nil {
			return nil, err
		}
		h := plan.AnalyzePlan(stages, tasks)
		out = append(out, ProjectSummary{
			ProjectID:              id,
			ProjectName:            projectName(id),
			StageCount:             len(stages),
			TaskCount:              len(tasks),
			ProjectStatus:          h.Status,
			MissingInfoCount:       h.MissingInfoCount,
			TimeRelationErrorCount: h.TimeRelationErrorCount,
			UnassignedStageCount:   h.UnassignedStageCount,
			TasksGenerated:         generatedSet[id],
		})
	}
	return out, nil
}

// Project returns the full plan of one project. Materialized entities are
// flagged non-editable so the UI can lock them.
func (s *Service) Project(ctx context.Context, projectID int64) (*ProjectView, error) {
	stages, err := s.st.ListPlanStages(ctx, projectID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.st.ListPlanTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	generated, err := s.st.ProjectHasExecutions(ctx, projectID)
	if err != nil {
		return nil, err
	}
	matStages, err := s.st.MaterializedStageIDs(ctx, projectID)
	if err != nil {
		return nil, err
	}
	matTasks, err := s.st.MaterializedTaskIDs(ctx, projectID)
	if err != nil {
		return nil, err
	}
	frozenStage := idSet(matStages)
	frozenTask := idSet(matTasks)

	view := &ProjectView{
		ProjectID:      projectID,
		TasksGenerated: generated,
		Stages:         make([]StageView, 0, len(stages)),
		Tasks:          make([]TaskView, 0, len(tasks)),
	}
	for _, st := range stages {
		view.Stages = append(view.Stages, StageView{
			ID:                st.StageID,
			Name:              st.Name,
			StartTime:         planDate(st.StartDate),
			EndTime:           planDate(st.EndDate),
			Duration:          st.DurationDays,
			PredecessorStages: st.Predecessors,
			SuccessorStages:   st.Successors,
			Position:          st.Layout,
			IsEditable:        !frozenStage[st.StageID],
		})
	}
	for _, t := range tasks {
		view.Tasks = append(view.Tasks, TaskView{
			ID:               t.TaskID,
			Name:             t.Name,
			Description:      t.Description,
			StartTime:        planDate(t.StartDate),
			EndTime:          planDate(t.EndDate),
			Duration:         t.DurationDays,
			JobNumber:        t.JobNumber,
			StageID:          t.StageID,
			PredecessorTasks: t.Predecessors,
			SuccessorTasks:   t.Successors,
			Position:         t.Layout,
			ApprovalType:     string(t.ApprovalType),
			ApprovalNodes:    t.ApprovalNodes,
			IsEditable:       !frozenTask[t.TaskID],
		})
	}
	return view, nil
}

// viewer resolves the calling employee, as a business error when the job
// number is unknown.
func (s *Service) viewer(ctx context.Context, jobNumber string) (*store.Employee, error) {
	emp, err := s.dir.Employee(ctx, jobNumber)
	if errors.Is(err, store.ErrNotFound) {
		return nil, svcerr.New(fmt.Sprintf("employee %s not found", jobNumber))
	}
	if err != nil {
		return nil, err
	}
	return emp, nil
}

func idSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func planDate(t *time.Time) *plan.Date {
	if t == nil {
		return nil
	}
	return plan.NewDate(*t)
}

func fmtTime(t time.Time) string {
	return t.Format(timestampLayout)
}

func fmtTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := fmtTime(*t)
	return &s
}
