package store

import (
	"context"
	"fmt"
	"time"
)

const stageColumns = `stage_id, project_id, name, start_date, end_date, duration_days,
	predecessor_ids, successor_ids, layout, enable, create_by, create_at, update_by, update_at`

const taskColumns = `task_id, project_id, stage_id, name, description, start_date, end_date,
	duration_days, job_number, predecessor_ids, successor_ids, layout, approval_type,
	approval_nodes, enable, create_by, create_at, update_by, update_at`

// LoadPlanLocked reads every plan row of the project, live and
// soft-deleted, taking a row lock on each. Two concurrent saves of the
// same project therefore serialize on the first lock acquired.
func (t *Tx) LoadPlanLocked(ctx context.Context, projectID int64) ([]Stage, []Task, error) {
	var stages []Stage
	if err := t.selectAll(ctx, &stages,
		`SELECT `+stageColumns+` FROM plan_stage WHERE project_id = $1 ORDER BY stage_id FOR UPDATE`,
		projectID); err != nil {
		return nil, nil, fmt.Errorf("lock plan stages: %w", err)
	}
	var tasks []Task
	if err := t.selectAll(ctx, &tasks,
		`SELECT `+taskColumns+` FROM plan_task WHERE project_id = $1 ORDER BY task_id FOR UPDATE`,
		projectID); err != nil {
		return nil, nil, fmt.Errorf("lock plan tasks: %w", err)
	}
	return stages, tasks, nil
}

// ListPlanStages returns the live stages of a project, unlocked.
func (q *queries) ListPlanStages(ctx context.Context, projectID int64) ([]Stage, error) {
	var stages []Stage
	err := q.selectAll(ctx, &stages,
		`SELECT `+stageColumns+` FROM plan_stage WHERE project_id = $1 AND enable ORDER BY stage_id`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list plan stages: %w", err)
	}
	return stages, nil
}

// ListPlanTasks returns the live tasks of a project, unlocked.
func (q *queries) ListPlanTasks(ctx context.Context, projectID int64) ([]Task, error) {
	var tasks []Task
	err := q.selectAll(ctx, &tasks,
		`SELECT `+taskColumns+` FROM plan_task WHERE project_id = $1 AND enable ORDER BY task_id`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list plan tasks: %w", err)
	}
	return tasks, nil
}

// PlanStage returns one live stage.
func (q *queries) PlanStage(ctx context.Context, stageID int64) (*Stage, error) {
	var s Stage
	if err := q.get(ctx, &s,
		`SELECT `+stageColumns+` FROM plan_stage WHERE stage_id = $1 AND enable`, stageID); err != nil {
		return nil, err
	}
	return &s, nil
}

// PlanTask returns one live task.
func (q *queries) PlanTask(ctx context.Context, taskID int64) (*Task, error) {
	var t Task
	if err := q.get(ctx, &t,
		`SELECT `+taskColumns+` FROM plan_task WHERE task_id = $1 AND enable`, taskID); err != nil {
		return nil, err
	}
	return &t, nil
}

// PlanTasksByIDs returns the live tasks with the given IDs.
func (q *queries) PlanTasksByIDs(ctx context.Context, ids []int64) ([]Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := q.in(
		`SELECT `+taskColumns+` FROM plan_task WHERE enable AND task_id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var tasks []Task
	if err := q.selectAll(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("list plan tasks by ids: %w", err)
	}
	return tasks, nil
}

// InsertStage inserts a plan stage and returns the assigned ID.
func (q *queries) InsertStage(ctx context.Context, s *Stage) (int64, error) {
	var id int64
	err := q.get(ctx, &id, `
		INSERT INTO plan_stage (project_id, name, start_date, end_date, duration_days,
			predecessor_ids, successor_ids, layout, enable, create_by, create_at, update_by, update_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9, $10, $9, $10)
		RETURNING stage_id`,
		s.ProjectID, s.Name, s.StartDate, s.EndDate, s.DurationDays,
		s.Predecessors, s.Successors, s.Layout, s.CreateBy, s.CreateAt)
	if err != nil {
		return 0, fmt.Errorf("insert stage %q: %w", s.Name, err)
	}
	return id, nil
}

// UpdateStage rewrites the scalar fields of a stage. Edge lists are
// written separately by UpdateStageEdges after the identity map is known.
func (q *queries) UpdateStage(ctx context.Context, s *Stage) error {
	if err := q.exec(ctx, `
		UPDATE plan_stage
		SET name = $2, start_date = $3, end_date = $4, duration_days = $5,
			layout = $6, enable = TRUE, update_by = $7, update_at = $8
		WHERE stage_id = $1`,
		s.StageID, s.Name, s.StartDate, s.EndDate, s.DurationDays,
		s.Layout, s.UpdateBy, s.UpdateAt); err != nil {
		return fmt.Errorf("update stage %d: %w", s.StageID, err)
	}
	return nil
}

// UpdateStageEdges writes the rewritten edge lists of a stage.
func (q *queries) UpdateStageEdges(ctx context.Context, stageID int64, preds, succs Int64List, by string) error {
	if err := q.exec(ctx, `
		UPDATE plan_stage
		SET predecessor_ids = $2, successor_ids = $3, update_by = $4, update_at = $5
		WHERE stage_id = $1`,
		stageID, preds, succs, by, time.Now()); err != nil {
		return fmt.Errorf("update stage %d edges: %w", stageID, err)
	}
	return nil
}

// SoftDeleteStage flips a stage to enable=false.
func (q *queries) SoftDeleteStage(ctx context.Context, stageID int64, by string) error {
	if err := q.exec(ctx, `
		UPDATE plan_stage SET enable = FALSE, update_by = $2, update_at = $3 WHERE stage_id = $1`,
		stageID, by, time.Now()); err != nil {
		return fmt.Errorf("soft-delete stage %d: %w", stageID, err)
	}
	return nil
}

// InsertTask inserts a plan task and returns the assigned ID.
func (q *queries) InsertTask(ctx context.Context, t *Task) (int64, error) {
	var id int64
	err := q.get(ctx, &id, `
		INSERT INTO plan_task (project_id, stage_id, name, description, start_date, end_date,
			duration_days, job_number, predecessor_ids, successor_ids, layout, approval_type,
			approval_nodes, enable, create_by, create_at, update_by, update_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, TRUE, $14, $15, $14, $15)
		RETURNING task_id`,
		t.ProjectID, t.StageID, t.Name, t.Description, t.StartDate, t.EndDate,
		t.DurationDays, t.JobNumber, t.Predecessors, t.Successors, t.Layout, t.ApprovalType,
		t.ApprovalNodes, t.CreateBy, t.CreateAt)
	if err != nil {
		return 0, fmt.Errorf("insert task %q: %w", t.Name, err)
	}
	return id, nil
}

// UpdateTask rewrites the scalar fields of a task; edges are handled by
// UpdateTaskEdges.
func (q *queries) UpdateTask(ctx context.Context, t *Task) error {
	if err := q.exec(ctx, `
		UPDATE plan_task
		SET stage_id = $2, name = $3, description = $4, start_date = $5, end_date = $6,
			duration_days = $7, job_number = $8, layout = $9, approval_type = $10,
			approval_nodes = $11, enable = TRUE, update_by = $12, update_at = $13
		WHERE task_id = $1`,
		t.TaskID, t.StageID, t.Name, t.Description, t.StartDate, t.EndDate,
		t.DurationDays, t.JobNumber, t.Layout, t.ApprovalType,
		t.ApprovalNodes, t.UpdateBy, t.UpdateAt); err != nil {
		return fmt.Errorf("update task %d: %w", t.TaskID, err)
	}
	return nil
}

// UpdateTaskEdges writes the rewritten edge lists of a task.
func (q *queries) UpdateTaskEdges(ctx context.Context, taskID int64, preds, succs Int64List, by string) error {
	if err := q.exec(ctx, `
		UPDATE plan_task
		SET predecessor_ids = $2, successor_ids = $3, update_by = $4, update_at = $5
		WHERE task_id = $1`,
		taskID, preds, succs, by, time.Now()); err != nil {
		return fmt.Errorf("update task %d edges: %w", taskID, err)
	}
	return nil
}

// SoftDeleteTask flips a task to enable=false.
func (q *queries) SoftDeleteTask(ctx context.Context, taskID int64, by string) error {
	if err := q.exec(ctx, `
		UPDATE plan_task SET enable = FALSE, update_by = $2, update_at = $3 WHERE task_id = $1`,
		taskID, by, time.Now()); err != nil {
		return fmt.Errorf("soft-delete task %d: %w", taskID, err)
	}
	return nil
}

// ProjectIDsWithPlan returns the distinct project IDs having any plan row.
func (q *queries) ProjectIDsWithPlan(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := q.selectAll(ctx, &ids, `
		SELECT DISTINCT project_id FROM plan_stage WHERE enable
		UNION
		SELECT DISTINCT project_id FROM plan_task WHERE enable
		ORDER BY project_id`)
	if err != nil {
		return nil, fmt.Errorf("list project ids: %w", err)
	}
	return ids, nil
}
