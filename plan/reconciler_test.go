package plan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestline/taskflow/store"
	"github.com/crestline/taskflow/svcerr"
)

type fakeTx struct {
	stages      map[int64]*store.Stage
	tasks       map[int64]*store.Task
	matStages   map[int64]bool
	matTasks    map[int64]bool
	nextStageID int64
	nextTaskID  int64

	stageExecSuccs map[int64]store.Int64List
	taskExecSuccs  map[int64]store.Int64List
}

func newFakeTx() *fakeTx {
	return &fakeTx{
		stages:         map[int64]*store.Stage{},
		tasks:          map[int64]*store.Task{},
		matStages:      map[int64]bool{},
		matTasks:       map[int64]bool{},
		nextStageID:    1,
		nextTaskID:     1,
		stageExecSuccs: map[int64]store.Int64List{},
		taskExecSuccs:  map[int64]store.Int64List{},
	}
}

func (f *fakeTx) LoadPlanLocked(_ context.Context, projectID int64) ([]store.Stage, []store.Task, error) {
	var stages []store.Stage
	for _, s := range f.stages {
		if s.ProjectID == projectID {
			stages = append(stages, *s)
		}
	}
	var tasks []store.Task
	for _, t := range f.tasks {
		if t.ProjectID == projectID {
			tasks = append(tasks, *t)
		}
	}
	return stages, tasks, nil
}

func (f *fakeTx) MaterializedStageIDs(context.Context, int64) ([]int64, error) {
	return keys(f.matStages), nil
}

func (f *fakeTx) MaterializedTaskIDs(context.Context, int64) ([]int64, error) {
	return keys(f.matTasks), nil
}

func (f *fakeTx) InsertStage(_ context.Context, s *store.Stage) (int64, error) {
	id := f.nextStageID
	f.nextStageID++
	cp := *s
	cp.StageID = id
	cp.Enable = true
	f.stages[id] = &cp
	return id, nil
}

func (f *fakeTx) UpdateStage(_ context.Context, s *store.Stage) error {
	old := f.stages[s.StageID]
	cp := *s
	cp.Enable = true
	cp.Predecessors, cp.Successors = old.Predecessors, old.Successors
	f.stages[s.StageID] = &cp
	return nil
}

func (f *fakeTx) UpdateStageEdges(_ context.Context, id int64, preds, succs store.Int64List, _ string) error {
	f.stages[id].Predecessors = preds
	f.stages[id].Successors = succs
	return nil
}

func (f *fakeTx) SoftDeleteStage(_ context.Context, id int64, _ string) error {
	f.stages[id].Enable = false
	return nil
}

func (f *fakeTx) UpdateStageExecutionSuccessors(_ context.Context, id int64, succs store.Int64List) error {
	f.stageExecSuccs[id] = succs
	return nil
}

func (f *fakeTx) InsertTask(_ context.Context, t *store.Task) (int64, error) {
	id := f.nextTaskID
	f.nextTaskID++
	cp := *t
	cp.TaskID = id
	cp.Enable = true
	f.tasks[id] = &cp
	return id, nil
}

func (f *fakeTx) UpdateTask(_ context.Context, t *store.Task) error {
	old := f.tasks[t.TaskID]
	cp := *t
	cp.Enable = true
	cp.Predecessors, cp.Successors = old.Predecessors, old.Successors
	f.tasks[t.TaskID] = &cp
	return nil
}

func (f *fakeTx) UpdateTaskEdges(_ context.Context, id int64, preds, succs store.Int64List, _ string) error {
	f.tasks[id].Predecessors = preds
	f.tasks[id].Successors = succs
	return nil
}

func (f *fakeTx) SoftDeleteTask(_ context.Context, id int64, _ string) error {
	f.tasks[id].Enable = false
	return nil
}

func (f *fakeTx) UpdateTaskExecutionSuccessors(_ context.Context, id int64, succs store.Int64List) error {
	f.taskExecSuccs[id] = succs
	return nil
}

func keys(m map[int64]bool) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func strPtr(s string) *string { return &s }

func TestReconcileAllTempIDs(t *testing.T) {
	tx := newFakeTx()
	p := &Payload{
		ProjectID: 100,
		Stages: []StagePayload{
			{ID: -1, Name: "S1", SuccessorStages: []int64{-2}},
			{ID: -2, Name: "S2", PredecessorStages: []int64{-1}},
		},
		Tasks: []TaskPayload{
			{ID: -10, Name: "T1", StageID: int64Ptr(-1), SuccessorTasks: []int64{-20}, ApprovalType: "none"},
			{ID: -20, Name: "T2", StageID: int64Ptr(-1), PredecessorTasks: []int64{-10}, ApprovalType: "none"},
		},
	}

	res, err := NewReconciler(nil).Reconcile(context.Background(), tx, p, nil, "E001")
	require.NoError(t, err)

	s1, s2 := res.StageIDMap[-1], res.StageIDMap[-2]
	require.Positive(t, s1)
	require.Positive(t, s2)
	assert.Equal(t, store.Int64List{s2}, tx.stages[s1].Successors)
	assert.Equal(t, store.Int64List{s1}, tx.stages[s2].Predecessors)

	t1, t2 := res.TaskIDMap[-10], res.TaskIDMap[-20]
	require.Positive(t, t1)
	require.Positive(t, t2)
	assert.Equal(t, s1, *tx.tasks[t1].StageID)
	assert.Equal(t, store.Int64List{t2}, tx.tasks[t1].Successors)
	assert.Equal(t, store.Int64List{t1}, tx.tasks[t2].Predecessors)
	assert.Empty(t, res.Warnings)
}

func TestReconcileSoftDeletesMissingEntities(t *testing.T) {
	tx := newFakeTx()
	tx.stages[5] = &store.Stage{StageID: 5, ProjectID: 100, Name: "Old", Enable: true}
	tx.nextStageID = 6

	p := &Payload{ProjectID: 100, Stages: []StagePayload{{ID: -1, Name: "New"}}}
	_, err := NewReconciler(nil).Reconcile(context.Background(), tx, p, nil, "E001")
	require.NoError(t, err)
	assert.False(t, tx.stages[5].Enable)
}

func TestReconcileRefusesDeletingMaterializedStage(t *testing.T) {
	tx := newFakeTx()
	tx.stages[5] = &store.Stage{StageID: 5, ProjectID: 100, Name: "Build", Enable: true}
	tx.matStages[5] = true

	p := &Payload{ProjectID: 100}
	_, err := NewReconciler(nil).Reconcile(context.Background(), tx, p, nil, "E001")
	require.Error(t, err)
	be, ok := svcerr.As(err)
	require.True(t, ok)
	assert.Contains(t, be.Message, "stage Build already generated, cannot delete")
}

func TestReconcileGuardRejectsRenamingMaterializedTask(t *testing.T) {
	tx := newFakeTx()
	sid := int64(1)
	tx.stages[1] = &store.Stage{StageID: 1, ProjectID: 100, Name: "S1", Enable: true}
	tx.tasks[10] = &store.Task{
		TaskID: 10, ProjectID: 100, StageID: &sid, Name: "T1",
		ApprovalType: store.ApprovalNone, Enable: true,
	}
	tx.matStages[1] = true
	tx.matTasks[10] = true

	p := &Payload{
		ProjectID: 100,
		Stages:    []StagePayload{{ID: 1, Name: "S1"}},
		Tasks: []TaskPayload{
			{ID: 10, Name: "T1 renamed", StageID: &sid, ApprovalType: "none"},
		},
	}
	_, err := NewReconciler(nil).Reconcile(context.Background(), tx, p, nil, "E001")
	require.Error(t, err)
	be, ok := svcerr.As(err)
	require.True(t, ok)
	assert.Contains(t, be.Message, "task T1 already generated, cannot modify basic info")
}

func TestReconcileAllowsNewSuccessorOfMaterializedTask(t *testing.T) {
	tx := newFakeTx()
	sid := int64(1)
	tx.stages[1] = &store.Stage{StageID: 1, ProjectID: 100, Name: "S1", Enable: true}
	tx.tasks[10] = &store.Task{
		TaskID: 10, ProjectID: 100, StageID: &sid, Name: "T1",
		JobNumber: strPtr("E001"), ApprovalType: store.ApprovalNone, Enable: true,
	}
	tx.matStages[1] = true
	tx.matTasks[10] = true
	tx.nextTaskID = 11

	p := &Payload{
		ProjectID: 100,
		Stages:    []StagePayload{{ID: 1, Name: "S1"}},
		Tasks: []TaskPayload{
			{ID: 10, Name: "T1", StageID: &sid, JobNumber: strPtr("E001"),
				SuccessorTasks: []int64{-5}, ApprovalType: "none"},
			{ID: -5, Name: "T2", StageID: &sid, PredecessorTasks: []int64{10}, ApprovalType: "none"},
		},
	}
	res, err := NewReconciler(nil).Reconcile(context.Background(), tx, p, nil, "E001")
	require.NoError(t, err)

	t2 := res.TaskIDMap[-5]
	assert.Equal(t, store.Int64List{t2}, tx.tasks[10].Successors)
	// Augmented successor list must be synced into the execution snapshot.
	assert.Equal(t, store.Int64List{t2}, tx.taskExecSuccs[10])
}

func TestReconcileUnresolvedTempStageLeavesTaskUnassigned(t *testing.T) {
	tx := newFakeTx()
	p := &Payload{
		ProjectID: 100,
		Tasks: []TaskPayload{
			{ID: -1, Name: "Orphan", StageID: int64Ptr(-99), ApprovalType: "none"},
		},
	}
	res, err := NewReconciler(nil).Reconcile(context.Background(), tx, p, nil, "E001")
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "Orphan")
	assert.Nil(t, tx.tasks[res.TaskIDMap[-1]].StageID)
}

func int64Ptr(v int64) *int64 { return &v }

func TestGuardStageSuccessorRules(t *testing.T) {
	old := &store.Stage{Name: "S1", Successors: store.Int64List{2}}
	mat := map[int64]bool{1: true, 2: true, 3: true}

	t.Run("removal refused", func(t *testing.T) {
		err := guardStage(&StagePayload{ID: 1, Name: "S1"}, old, mat)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot remove successors")
	})

	t.Run("materialized addition refused", func(t *testing.T) {
		err := guardStage(&StagePayload{ID: 1, Name: "S1", SuccessorStages: []int64{2, 3}}, old, mat)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must not be generated yet")
	})

	t.Run("fresh addition allowed", func(t *testing.T) {
		err := guardStage(&StagePayload{ID: 1, Name: "S1", SuccessorStages: []int64{2, -7}}, old, mat)
		assert.NoError(t, err)
	})
}

func TestGuardStageDatesStayEditable(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	old := &store.Stage{Name: "S1", StartDate: &start}
	err := guardStage(&StagePayload{ID: 1, Name: "S1", StartTime: date("2025-02-01")}, old, map[int64]bool{1: true})
	assert.NoError(t, err)
}
