package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestline/taskflow/store"
)

type fakeTx struct {
	stages     map[int64]*store.Stage
	tasks      map[int64]*store.Task
	stageExecs map[int64]*store.StageExecution
	taskExecs  map[int64]*store.TaskExecution
	nextExecID int64
}

func newFakeTx() *fakeTx {
	return &fakeTx{
		stages:     map[int64]*store.Stage{},
		tasks:      map[int64]*store.Task{},
		stageExecs: map[int64]*store.StageExecution{},
		taskExecs:  map[int64]*store.TaskExecution{},
		nextExecID: 1,
	}
}

func (f *fakeTx) ListPlanStages(_ context.Context, projectID int64) ([]store.Stage, error) {
	var out []store.Stage
	for _, s := range f.stages {
		if s.ProjectID == projectID && s.Enable {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeTx) ListPlanTasks(_ context.Context, projectID int64) ([]store.Task, error) {
	var out []store.Task
	for _, t := range f.tasks {
		if t.ProjectID == projectID && t.Enable {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTx) ListStageExecutions(_ context.Context, projectID int64) ([]store.StageExecution, error) {
	var out []store.StageExecution
	for _, se := range f.stageExecs {
		if se.ProjectID == projectID {
			out = append(out, *se)
		}
	}
	return out, nil
}

func (f *fakeTx) ListTaskExecutions(_ context.Context, projectID int64) ([]store.TaskExecution, error) {
	var out []store.TaskExecution
	for _, te := range f.taskExecs {
		if te.ProjectID == projectID {
			out = append(out, *te)
		}
	}
	return out, nil
}

func (f *fakeTx) InsertStageExecution(_ context.Context, se *store.StageExecution) error {
	cp := *se
	f.stageExecs[se.StageID] = &cp
	return nil
}

func (f *fakeTx) InsertTaskExecution(_ context.Context, te *store.TaskExecution) (int64, error) {
	id := f.nextExecID
	f.nextExecID++
	cp := *te
	cp.ID = id
	f.taskExecs[te.TaskID] = &cp
	return id, nil
}

func (f *fakeTx) SetStageExecutionStatus(_ context.Context, stageID int64, status store.StageStatus, completeAt *time.Time) error {
	f.stageExecs[stageID].Status = status
	if completeAt != nil {
		f.stageExecs[stageID].ActualCompleteAt = completeAt
	}
	return nil
}

func (f *fakeTx) TaskExecutionByTaskID(_ context.Context, taskID int64) (*store.TaskExecution, error) {
	te, ok := f.taskExecs[taskID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *te
	return &cp, nil
}

func day(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

// addStage registers a live stage with dates and edges.
func (f *fakeTx) addStage(id int64, start, end string, preds, succs []int64) {
	f.stages[id] = &store.Stage{
		StageID: id, ProjectID: 100, Name: "stage",
		StartDate: day(start), EndDate: day(end),
		Predecessors: store.Int64List(preds), Successors: store.Int64List(succs),
		Enable: true,
	}
}

// addTask registers a live, generation-eligible task.
func (f *fakeTx) addTask(id, stageID int64, start, end string, preds, succs []int64) {
	f.tasks[id] = &store.Task{
		TaskID: id, ProjectID: 100, StageID: &stageID, Name: "task",
		StartDate: day(start), EndDate: day(end), JobNumber: strPtr("E001"),
		Predecessors: store.Int64List(preds), Successors: store.Int64List(succs),
		ApprovalType: store.ApprovalNone, Enable: true,
	}
}

func TestCascadeMaterializesHeadStageAndTask(t *testing.T) {
	tx := newFakeTx()
	tx.addStage(1, "2025-01-01", "2025-01-05", nil, []int64{2})
	tx.addStage(2, "2025-01-06", "2025-01-10", []int64{1}, nil)
	tx.addTask(10, 1, "2025-01-01", "2025-01-05", nil, nil)
	tx.addTask(20, 2, "2025-01-06", "2025-01-10", nil, nil)

	require.NoError(t, NewEngine(nil).Cascade(context.Background(), tx, 100))

	require.Contains(t, tx.stageExecs, int64(1))
	assert.Equal(t, store.StageInProgress, tx.stageExecs[1].Status)
	assert.NotContains(t, tx.stageExecs, int64(2))

	require.Contains(t, tx.taskExecs, int64(10))
	assert.Equal(t, store.TaskInProgress, tx.taskExecs[10].Status)
	assert.NotContains(t, tx.taskExecs, int64(20))
}

func TestCascadeSkipsIncompleteTasks(t *testing.T) {
	tx := newFakeTx()
	tx.addStage(1, "2025-01-01", "2025-01-05", nil, nil)
	tx.addTask(10, 1, "2025-01-01", "2025-01-05", nil, nil)
	tx.tasks[10].JobNumber = nil // missing owner

	require.NoError(t, NewEngine(nil).Cascade(context.Background(), tx, 100))
	assert.Contains(t, tx.stageExecs, int64(1))
	assert.Empty(t, tx.taskExecs)
}

func TestCascadeRequiresApprovalNodesForSpecified(t *testing.T) {
	tx := newFakeTx()
	tx.addStage(1, "2025-01-01", "2025-01-05", nil, nil)
	tx.addTask(10, 1, "2025-01-01", "2025-01-05", nil, nil)
	tx.tasks[10].ApprovalType = store.ApprovalSpecified

	require.NoError(t, NewEngine(nil).Cascade(context.Background(), tx, 100))
	assert.Empty(t, tx.taskExecs)

	tx.tasks[10].ApprovalNodes = store.Int64List{500}
	require.NoError(t, NewEngine(nil).Cascade(context.Background(), tx, 100))
	assert.Contains(t, tx.taskExecs, int64(10))
}

func TestCascadeHoldsSuccessorUntilPredecessorCompletes(t *testing.T) {
	tx := newFakeTx()
	tx.addStage(1, "2025-01-01", "2025-01-10", nil, nil)
	tx.addTask(10, 1, "2025-01-01", "2025-01-05", nil, []int64{20})
	tx.addTask(20, 1, "2025-01-06", "2025-01-10", []int64{10}, nil)

	eng := NewEngine(nil)
	require.NoError(t, eng.Cascade(context.Background(), tx, 100))
	assert.NotContains(t, tx.taskExecs, int64(20))

	// Complete T10 and fire the hooks: T20 must materialize in the sweep.
	now := time.Now()
	tx.taskExecs[10].Status = store.TaskCompleted
	tx.taskExecs[10].ActualCompleteAt = &now
	require.NoError(t, eng.OnTaskCompleted(context.Background(), tx, 10))
	require.Contains(t, tx.taskExecs, int64(20))
	assert.Equal(t, store.TaskInProgress, tx.taskExecs[20].Status)
}

func TestOnTaskCompletedClosesStageAndUnlocksSuccessorStage(t *testing.T) {
	tx := newFakeTx()
	tx.addStage(1, "2025-01-01", "2025-01-05", nil, []int64{2})
	tx.addStage(2, "2025-01-06", "2025-01-10", []int64{1}, nil)
	tx.addTask(10, 1, "2025-01-01", "2025-01-05", nil, nil)
	tx.addTask(20, 2, "2025-01-06", "2025-01-10", nil, nil)

	eng := NewEngine(nil)
	require.NoError(t, eng.Cascade(context.Background(), tx, 100))

	now := time.Now()
	tx.taskExecs[10].Status = store.TaskCompleted
	tx.taskExecs[10].ActualCompleteAt = &now
	require.NoError(t, eng.OnTaskCompleted(context.Background(), tx, 10))

	assert.Equal(t, store.StageCompleted, tx.stageExecs[1].Status)
	require.Contains(t, tx.stageExecs, int64(2))
	assert.Equal(t, store.StageInProgress, tx.stageExecs[2].Status)
	require.Contains(t, tx.taskExecs, int64(20))
}

func TestStageStaysOpenWhileTasksRemain(t *testing.T) {
	tx := newFakeTx()
	tx.addStage(1, "2025-01-01", "2025-01-10", nil, nil)
	tx.addTask(10, 1, "2025-01-01", "2025-01-05", nil, nil)
	tx.addTask(20, 1, "2025-01-06", "2025-01-10", []int64{10}, nil)
	tx.tasks[20].Predecessors = nil // both are head tasks

	eng := NewEngine(nil)
	require.NoError(t, eng.Cascade(context.Background(), tx, 100))

	now := time.Now()
	tx.taskExecs[10].Status = store.TaskCompleted
	tx.taskExecs[10].ActualCompleteAt = &now
	require.NoError(t, eng.OnTaskCompleted(context.Background(), tx, 10))
	assert.Equal(t, store.StageInProgress, tx.stageExecs[1].Status)
}

func TestStageEnvelopeBlocksLateTask(t *testing.T) {
	tx := newFakeTx()
	// S1 and S2 are both materialized; S1's window now overlaps S2's.
	tx.addStage(1, "2025-01-01", "2025-01-08", nil, []int64{2})
	tx.addStage(2, "2025-01-06", "2025-01-10", []int64{1}, nil)
	now := time.Now()
	tx.stageExecs[1] = &store.StageExecution{StageID: 1, ProjectID: 100, Status: store.StageInProgress, CreateAt: now}
	tx.stageExecs[2] = &store.StageExecution{StageID: 2, ProjectID: 100, Status: store.StageInProgress, CreateAt: now}
	tx.addTask(10, 1, "2025-01-01", "2025-01-08", nil, nil)

	require.NoError(t, NewEngine(nil).Cascade(context.Background(), tx, 100))
	assert.NotContains(t, tx.taskExecs, int64(10))
}

func TestCascadeIgnoresSoftDeletedPredecessorStage(t *testing.T) {
	tx := newFakeTx()
	tx.addStage(2, "2025-01-06", "2025-01-10", []int64{1}, nil) // stage 1 never registered (deleted)
	tx.addTask(20, 2, "2025-01-06", "2025-01-10", nil, nil)

	require.NoError(t, NewEngine(nil).Cascade(context.Background(), tx, 100))
	assert.Contains(t, tx.stageExecs, int64(2))
	assert.Contains(t, tx.taskExecs, int64(20))
}
