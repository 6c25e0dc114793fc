package plan

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/crestline/taskflow/store"
	"github.com/crestline/taskflow/svcerr"
)

// Tx is the transactional slice of the store the reconciler writes
// through. *store.Tx satisfies it.
type Tx interface {
	LoadPlanLocked(ctx context.Context, projectID int64) ([]store.Stage, []store.Task, error)
	MaterializedStageIDs(ctx context.Context, projectID int64) ([]int64, error)
	MaterializedTaskIDs(ctx context.Context, projectID int64) ([]int64, error)

	InsertStage(ctx context.Context, s *store.Stage) (int64, error)
	UpdateStage(ctx context.Context, s *store.Stage) error
	UpdateStageEdges(ctx context.Context, stageID int64, preds, succs store.Int64List, by string) error
	SoftDeleteStage(ctx context.Context, stageID int64, by string) error
	UpdateStageExecutionSuccessors(ctx context.Context, stageID int64, succs store.Int64List) error

	InsertTask(ctx context.Context, t *store.Task) (int64, error)
	UpdateTask(ctx context.Context, t *store.Task) error
	UpdateTaskEdges(ctx context.Context, taskID int64, preds, succs store.Int64List, by string) error
	SoftDeleteTask(ctx context.Context, taskID int64, by string) error
	UpdateTaskExecutionSuccessors(ctx context.Context, taskID int64, succs store.Int64List) error
}

// SaveResult reports the identity maps of one reconciled save plus the
// warnings collected along the way.
type SaveResult struct {
	ProjectID  int64
	StageIDMap map[int64]int64
	TaskIDMap  map[int64]int64
	Warnings   []string
}

// Reconciler persists a validated payload in two passes per entity type:
// nodes first, then edges rewritten through the identity maps. Edges may
// reference entities created in the same save; only after all node
// inserts are the maps complete.
type Reconciler struct {
	logger *slog.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{logger: logger}
}

// Reconcile applies the payload inside the caller's transaction. The plan
// rows are row-locked up front so concurrent saves of one project
// serialize.
func (r *Reconciler) Reconcile(ctx context.Context, tx Tx, p *Payload, warnings []string, user string) (*SaveResult, error) {
	projectID := int64(p.ProjectID)
	now := time.Now()

	existingStages, existingTasks, err := loadExisting(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	matStages, matTasks, err := loadMaterialized(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}

	if err := r.runGuards(p, existingStages, existingTasks, matStages, matTasks); err != nil {
		return nil, err
	}

	res := &SaveResult{
		ProjectID:  projectID,
		StageIDMap: make(map[int64]int64),
		TaskIDMap:  make(map[int64]int64),
		Warnings:   warnings,
	}

	if err := r.stagePassOne(ctx, tx, p, existingStages, matStages, res, user, now); err != nil {
		return nil, err
	}
	if err := r.stagePassTwo(ctx, tx, p, existingStages, matStages, res, user); err != nil {
		return nil, err
	}
	if err := r.taskPassOne(ctx, tx, p, existingTasks, matTasks, res, user, now); err != nil {
		return nil, err
	}
	if err := r.taskPassTwo(ctx, tx, p, existingTasks, matTasks, res, user); err != nil {
		return nil, err
	}

	r.logger.Info("plan reconciled",
		"project_id", projectID,
		"stages", len(p.Stages),
		"tasks", len(p.Tasks),
		"warnings", len(res.Warnings))
	return res, nil
}

func loadExisting(ctx context.Context, tx Tx, projectID int64) (map[int64]*store.Stage, map[int64]*store.Task, error) {
	stages, tasks, err := tx.LoadPlanLocked(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	stageByID := make(map[int64]*store.Stage, len(stages))
	for i := range stages {
		stageByID[stages[i].StageID] = &stages[i]
	}
	taskByID := make(map[int64]*store.Task, len(tasks))
	for i := range tasks {
		taskByID[tasks[i].TaskID] = &tasks[i]
	}
	return stageByID, taskByID, nil
}

func loadMaterialized(ctx context.Context, tx Tx, projectID int64) (map[int64]bool, map[int64]bool, error) {
	stageIDs, err := tx.MaterializedStageIDs(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	taskIDs, err := tx.MaterializedTaskIDs(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	stages := make(map[int64]bool, len(stageIDs))
	for _, id := range stageIDs {
		stages[id] = true
	}
	tasks := make(map[int64]bool, len(taskIDs))
	for _, id := range taskIDs {
		tasks[id] = true
	}
	return stages, tasks, nil
}

func (r *Reconciler) runGuards(p *Payload,
	existingStages map[int64]*store.Stage, existingTasks map[int64]*store.Task,
	matStages, matTasks map[int64]bool) error {
	for i := range p.Stages {
		s := &p.Stages[i]
		if s.ID <= 0 || !matStages[s.ID] {
			continue
		}
		old, ok := existingStages[s.ID]
		if !ok {
			return svcerr.New(fmt.Sprintf("stage %s not found in project", s.Name))
		}
		if err := guardStage(s, old, matStages); err != nil {
			return err
		}
	}
	for i := range p.Tasks {
		t := &p.Tasks[i]
		if t.ID <= 0 || !matTasks[t.ID] {
			continue
		}
		old, ok := existingTasks[t.ID]
		if !ok {
			return svcerr.New(fmt.Sprintf("task %s not found in project", t.Name))
		}
		if err := guardTask(t, old, matTasks); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) stagePassOne(ctx context.Context, tx Tx, p *Payload,
	existing map[int64]*store.Stage, materialized map[int64]bool,
	res *SaveResult, user string, now time.Time) error {
	seen := make(map[int64]bool, len(p.Stages))
	for i := range p.Stages {
		s := &p.Stages[i]
		row := stageRow(s, res.ProjectID, user, now)
		if s.ID <= 0 {
			id, err := tx.InsertStage(ctx, row)
			if err != nil {
				return err
			}
			res.StageIDMap[s.ID] = id
			seen[id] = true
			continue
		}
		if _, ok := existing[s.ID]; !ok {
			return svcerr.New(fmt.Sprintf("stage %s not found in project", s.Name))
		}
		row.StageID = s.ID
		if err := tx.UpdateStage(ctx, row); err != nil {
			return err
		}
		seen[s.ID] = true
	}
	for id, old := range existing {
		if seen[id] || !old.Enable {
			continue
		}
		if materialized[id] {
			return svcerr.New(fmt.Sprintf("stage %s already generated, cannot delete", old.Name))
		}
		if err := tx.SoftDeleteStage(ctx, id, user); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) stagePassTwo(ctx context.Context, tx Tx, p *Payload,
	existing map[int64]*store.Stage, materialized map[int64]bool,
	res *SaveResult, user string) error {
	for i := range p.Stages {
		s := &p.Stages[i]
		realID := resolveID(s.ID, res.StageIDMap)
		preds := rewriteIDs(s.PredecessorStages, res.StageIDMap)
		succs := rewriteIDs(s.SuccessorStages, res.StageIDMap)

		var oldPreds, oldSuccs store.Int64List
		if old, ok := existing[s.ID]; ok {
			oldPreds, oldSuccs = old.Predecessors, old.Successors
		}
		if sortedEqual(preds, oldPreds) && sortedEqual(succs, oldSuccs) {
			continue
		}
		if err := tx.UpdateStageEdges(ctx, realID, preds, succs, user); err != nil {
			return err
		}
		if materialized[realID] {
			if err := tx.UpdateStageExecutionSuccessors(ctx, realID, succs); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Reconciler) taskPassOne(ctx context.Context, tx Tx, p *Payload,
	existing map[int64]*store.Task, materialized map[int64]bool,
	res *SaveResult, user string, now time.Time) error {
	seen := make(map[int64]bool, len(p.Tasks))
	for i := range p.Tasks {
		t := &p.Tasks[i]
		stageID, warn := resolveStageID(t, res.StageIDMap)
		if warn != "" {
			res.Warnings = append(res.Warnings, warn)
		}
		row := taskRow(t, res.ProjectID, stageID, user, now)
		if t.ID <= 0 {
			id, err := tx.InsertTask(ctx, row)
			if err != nil {
				return err
			}
			res.TaskIDMap[t.ID] = id
			seen[id] = true
			continue
		}
		if _, ok := existing[t.ID]; !ok {
			return svcerr.New(fmt.Sprintf("task %s not found in project", t.Name))
		}
		row.TaskID = t.ID
		if err := tx.UpdateTask(ctx, row); err != nil {
			return err
		}
		seen[t.ID] = true
	}
	for id, old := range existing {
		if seen[id] || !old.Enable {
			continue
		}
		if materialized[id] {
			return svcerr.New(fmt.Sprintf("task %s already generated, cannot delete", old.Name))
		}
		if err := tx.SoftDeleteTask(ctx, id, user); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) taskPassTwo(ctx context.Context, tx Tx, p *Payload,
	existing map[int64]*store.Task, materialized map[int64]bool,
	res *SaveResult, user string) error {
	for i := range p.Tasks {
		t := &p.Tasks[i]
		realID := resolveID(t.ID, res.TaskIDMap)
		preds := rewriteIDs(t.PredecessorTasks, res.TaskIDMap)
		succs := rewriteIDs(t.SuccessorTasks, res.TaskIDMap)

		var oldPreds, oldSuccs store.Int64List
		if old, ok := existing[t.ID]; ok {
			oldPreds, oldSuccs = old.Predecessors, old.Successors
		}
		if sortedEqual(preds, oldPreds) && sortedEqual(succs, oldSuccs) {
			continue
		}
		if err := tx.UpdateTaskEdges(ctx, realID, preds, succs, user); err != nil {
			return err
		}
		if materialized[realID] {
			if err := tx.UpdateTaskExecutionSuccessors(ctx, realID, succs); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveID maps a temp ID through the identity map; positive IDs pass
// through unchanged.
func resolveID(id int64, idMap map[int64]int64) int64 {
	if id > 0 {
		return id
	}
	return idMap[id]
}

// resolveStageID rewrites a task's stage reference. A temp stage ID with
// no mapping leaves the task unassigned with a warning.
func resolveStageID(t *TaskPayload, stageIDMap map[int64]int64) (*int64, string) {
	if t.StageID == nil {
		return nil, ""
	}
	if *t.StageID > 0 {
		id := *t.StageID
		return &id, ""
	}
	if mapped, ok := stageIDMap[*t.StageID]; ok {
		return &mapped, ""
	}
	return nil, fmt.Sprintf("task %q references unknown stage %d, left unassigned", t.Name, *t.StageID)
}

// rewriteIDs maps every temp ID through the identity map and returns the
// list sorted, matching the stored order.
func rewriteIDs(ids []int64, idMap map[int64]int64) store.Int64List {
	if len(ids) == 0 {
		return nil
	}
	out := make(store.Int64List, 0, len(ids))
	for _, id := range ids {
		out = append(out, resolveID(id, idMap))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedEqual(a, b store.Int64List) bool {
	if len(a) != len(b) {
		return false
	}
	as := append(store.Int64List{}, a...)
	bs := append(store.Int64List{}, b...)
	sort.Slice(as, func(i, j int) bool { return as[i] < as[j] })
	sort.Slice(bs, func(i, j int) bool { return bs[i] < bs[j] })
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func stageRow(s *StagePayload, projectID int64, user string, now time.Time) *store.Stage {
	return &store.Stage{
		ProjectID:    projectID,
		Name:         s.Name,
		StartDate:    dateToTime(s.StartTime),
		EndDate:      dateToTime(s.EndTime),
		DurationDays: s.Duration,
		Layout:       store.JSONBlob(s.Position),
		CreateBy:     user,
		CreateAt:     now,
		UpdateBy:     user,
		UpdateAt:     now,
	}
}

func taskRow(t *TaskPayload, projectID int64, stageID *int64, user string, now time.Time) *store.Task {
	return &store.Task{
		ProjectID:     projectID,
		StageID:       stageID,
		Name:          t.Name,
		Description:   t.Description,
		StartDate:     dateToTime(t.StartTime),
		EndDate:       dateToTime(t.EndTime),
		DurationDays:  t.Duration,
		JobNumber:     t.JobNumber,
		Layout:        store.JSONBlob(t.Position),
		ApprovalType:  store.ApprovalType(t.ApprovalType),
		ApprovalNodes: store.Int64List(t.ApprovalNodes),
		CreateBy:      user,
		CreateAt:      now,
		UpdateBy:      user,
		UpdateAt:      now,
	}
}

func dateToTime(d *Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}
