// Package workflow materializes the plan into execution records. Stages
// and tasks are generated progressively: a fixed-point cascade sweeps the
// project after every event that can satisfy a precondition, bounded by
// one pass per generated entity.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crestline/taskflow/store"
)

// Tx is the transactional slice of the store the engine uses. *store.Tx
// satisfies it.
type Tx interface {
	ListPlanStages(ctx context.Context, projectID int64) ([]store.Stage, error)
	ListPlanTasks(ctx context.Context, projectID int64) ([]store.Task, error)
	ListStageExecutions(ctx context.Context, projectID int64) ([]store.StageExecution, error)
	ListTaskExecutions(ctx context.Context, projectID int64) ([]store.TaskExecution, error)
	InsertStageExecution(ctx context.Context, se *store.StageExecution) error
	InsertTaskExecution(ctx context.Context, te *store.TaskExecution) (int64, error)
	SetStageExecutionStatus(ctx context.Context, stageID int64, status store.StageStatus, completeAt *time.Time) error
	TaskExecutionByTaskID(ctx context.Context, taskID int64) (*store.TaskExecution, error)
}

// Engine runs the materialization cascade and the post-completion hooks.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a materialization engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Cascade sweeps the project until no further stage or task can
// materialize. It runs inside the caller's transaction; a failure rolls
// back the event that triggered it.
func (e *Engine) Cascade(ctx context.Context, tx Tx, projectID int64) error {
	state, err := loadState(ctx, tx, projectID)
	if err != nil {
		return err
	}
	generatedStages, generatedTasks := 0, 0
	for {
		progress := false

		for i := range state.stages {
			s := &state.stages[i]
			if state.stageExecs[s.StageID] != nil || !stageReady(s, state) {
				continue
			}
			if err := e.materializeStage(ctx, tx, s, state); err != nil {
				return err
			}
			generatedStages++
			progress = true
		}

		for i := range state.tasks {
			t := &state.tasks[i]
			if state.taskExecs[t.TaskID] != nil || !taskReady(t, state) {
				continue
			}
			if err := e.materializeTask(ctx, tx, t, state); err != nil {
				return err
			}
			generatedTasks++
			progress = true
		}

		if !progress {
			break
		}
	}
	if generatedStages > 0 || generatedTasks > 0 {
		e.logger.Info("cascade generated executions",
			"project_id", projectID, "stages", generatedStages, "tasks", generatedTasks)
	}
	return nil
}

// OnTaskCompleted runs the post-completion hooks for a task that just
// reached completed: re-run the cascade, then close the task's stage if
// every stage task is done, which may in turn unlock successor stages.
func (e *Engine) OnTaskCompleted(ctx context.Context, tx Tx, taskID int64) error {
	te, err := tx.TaskExecutionByTaskID(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("completed task %d has no execution", taskID)
	}
	if err != nil {
		return err
	}
	if err := e.Cascade(ctx, tx, te.ProjectID); err != nil {
		return err
	}
	if te.StageID == nil {
		return nil
	}
	closed, err := e.maybeCompleteStage(ctx, tx, te.ProjectID, *te.StageID)
	if err != nil {
		return err
	}
	if closed {
		return e.Cascade(ctx, tx, te.ProjectID)
	}
	return nil
}

// maybeCompleteStage closes a stage when every live task assigned to it
// has a completed (or skipped) execution.
func (e *Engine) maybeCompleteStage(ctx context.Context, tx Tx, projectID, stageID int64) (bool, error) {
	state, err := loadState(ctx, tx, projectID)
	if err != nil {
		return false, err
	}
	exec := state.stageExecs[stageID]
	if exec == nil || exec.Status == store.StageCompleted {
		return false, nil
	}
	for i := range state.tasks {
		t := &state.tasks[i]
		if t.StageID == nil || *t.StageID != stageID {
			continue
		}
		te := state.taskExecs[t.TaskID]
		if te == nil || (te.Status != store.TaskCompleted && !te.IsSkipped) {
			return false, nil
		}
	}
	now := time.Now()
	if err := tx.SetStageExecutionStatus(ctx, stageID, store.StageCompleted, &now); err != nil {
		return false, err
	}
	e.logger.Info("stage completed", "project_id", projectID, "stage_id", stageID)
	return true, nil
}

// projectState is one consistent snapshot of the plan and its executions.
type projectState struct {
	stages     []store.Stage
	tasks      []store.Task
	stageByID  map[int64]*store.Stage
	taskByID   map[int64]*store.Task
	stageExecs map[int64]*store.StageExecution
	taskExecs  map[int64]*store.TaskExecution
}

func loadState(ctx context.Context, tx Tx, projectID int64) (*projectState, error) {
	stages, err := tx.ListPlanStages(ctx, projectID)
	if err != nil {
		return nil, err
	}
	tasks, err := tx.ListPlanTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	stageExecs, err := tx.ListStageExecutions(ctx, projectID)
	if err != nil {
		return nil, err
	}
	taskExecs, err := tx.ListTaskExecutions(ctx, projectID)
	if err != nil {
		return nil, err
	}
	st := &projectState{
		stages:     stages,
		tasks:      tasks,
		stageByID:  make(map[int64]*store.Stage, len(stages)),
		taskByID:   make(map[int64]*store.Task, len(tasks)),
		stageExecs: make(map[int64]*store.StageExecution, len(stageExecs)),
		taskExecs:  make(map[int64]*store.TaskExecution, len(taskExecs)),
	}
	for i := range stages {
		st.stageByID[stages[i].StageID] = &st.stages[i]
	}
	for i := range tasks {
		st.taskByID[tasks[i].TaskID] = &st.tasks[i]
	}
	for i := range stageExecs {
		st.stageExecs[stageExecs[i].StageID] = &stageExecs[i]
	}
	for i := range taskExecs {
		st.taskExecs[taskExecs[i].TaskID] = &taskExecs[i]
	}
	return st, nil
}

// stageReady reports whether every predecessor stage is completed. A
// predecessor with no live plan row was soft-deleted and no longer gates.
func stageReady(s *store.Stage, state *projectState) bool {
	for _, id := range s.Predecessors {
		if state.stageByID[id] == nil {
			continue
		}
		exec := state.stageExecs[id]
		if exec == nil || exec.Status != store.StageCompleted {
			return false
		}
	}
	return true
}

// taskReady checks the full set of task preconditions: stage materialized,
// completeness, all predecessors completed, and the stage-envelope check.
func taskReady(t *store.Task, state *projectState) bool {
	if t.StageID == nil || state.stageExecs[*t.StageID] == nil {
		return false
	}
	if !taskComplete(t, state) {
		return false
	}
	for _, id := range t.Predecessors {
		if state.taskByID[id] == nil {
			continue
		}
		exec := state.taskExecs[id]
		if exec == nil || exec.Status != store.TaskCompleted {
			return false
		}
	}
	return stageEnvelopeOK(state.stageByID[*t.StageID], state)
}

// taskComplete is the generation-eligibility validation: owner, dates,
// approval configuration, and no time contradiction against linked tasks.
func taskComplete(t *store.Task, state *projectState) bool {
	if t.JobNumber == nil || *t.JobNumber == "" {
		return false
	}
	if t.StartDate == nil || t.EndDate == nil || t.StartDate.After(*t.EndDate) {
		return false
	}
	if (t.ApprovalType == store.ApprovalSpecified || t.ApprovalType == store.ApprovalSequential) &&
		len(t.ApprovalNodes) == 0 {
		return false
	}
	for _, id := range t.Predecessors {
		pred := state.taskByID[id]
		if pred == nil || pred.EndDate == nil {
			continue
		}
		if !pred.EndDate.Before(*t.StartDate) {
			return false
		}
	}
	for _, id := range t.Successors {
		succ := state.taskByID[id]
		if succ == nil || succ.StartDate == nil {
			continue
		}
		if !succ.StartDate.After(*t.EndDate) {
			return false
		}
	}
	return true
}

// stageEnvelopeOK refuses generation when the stage's committed window
// conflicts with adjacent stages whose work has already advanced.
func stageEnvelopeOK(s *store.Stage, state *projectState) bool {
	if s == nil || s.StartDate == nil || s.EndDate == nil {
		return true
	}
	for _, id := range s.Predecessors {
		pred := state.stageByID[id]
		if pred == nil || state.stageExecs[id] == nil || pred.EndDate == nil {
			continue
		}
		if !pred.EndDate.Before(*s.StartDate) {
			return false
		}
	}
	for _, id := range s.Successors {
		succ := state.stageByID[id]
		if succ == nil || state.stageExecs[id] == nil || succ.StartDate == nil {
			continue
		}
		if !succ.StartDate.After(*s.EndDate) {
			return false
		}
	}
	return true
}

func (e *Engine) materializeStage(ctx context.Context, tx Tx, s *store.Stage, state *projectState) error {
	now := time.Now()
	se := &store.StageExecution{
		StageID:       s.StageID,
		ProjectID:     s.ProjectID,
		Status:        store.StageInProgress,
		Predecessors:  s.Predecessors,
		Successors:    s.Successors,
		ActualStartAt: &now,
		CreateAt:      now,
		UpdateAt:      now,
	}
	if err := tx.InsertStageExecution(ctx, se); err != nil {
		return err
	}
	state.stageExecs[s.StageID] = se
	return nil
}

func (e *Engine) materializeTask(ctx context.Context, tx Tx, t *store.Task, state *projectState) error {
	now := time.Now()
	te := &store.TaskExecution{
		TaskID:        t.TaskID,
		ProjectID:     t.ProjectID,
		StageID:       t.StageID,
		Name:          t.Name,
		Description:   t.Description,
		StartDate:     t.StartDate,
		EndDate:       t.EndDate,
		DurationDays:  t.DurationDays,
		JobNumber:     t.JobNumber,
		Predecessors:  t.Predecessors,
		Successors:    t.Successors,
		ApprovalType:  t.ApprovalType,
		ApprovalNodes: t.ApprovalNodes,
		Status:        store.TaskInProgress,
		ActualStartAt: &now,
		CreateAt:      now,
		UpdateAt:      now,
	}
	id, err := tx.InsertTaskExecution(ctx, te)
	if err != nil {
		return err
	}
	te.ID = id
	state.taskExecs[t.TaskID] = te
	return nil
}
