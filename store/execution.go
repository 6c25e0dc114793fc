package store

import (
	"context"
	"fmt"
	"time"
)

const stageExecColumns = `stage_id, project_id, status, predecessor_ids, successor_ids,
	actual_start_at, actual_complete_at, create_at, update_at`

const taskExecColumns = `id, task_id, project_id, stage_id, name, description, start_date,
	end_date, duration_days, job_number, predecessor_ids, successor_ids, approval_type,
	approval_nodes, status, is_skipped, actual_start_at, actual_complete_at, create_at, update_at`

// ListStageExecutions returns all execution stages of a project.
func (q *queries) ListStageExecutions(ctx context.Context, projectID int64) ([]StageExecution, error) {
	var out []StageExecution
	err := q.selectAll(ctx, &out,
		`SELECT `+stageExecColumns+` FROM stage_execution WHERE project_id = $1 ORDER BY stage_id`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list stage executions: %w", err)
	}
	return out, nil
}

// InsertStageExecution materializes a stage.
func (q *queries) InsertStageExecution(ctx context.Context, se *StageExecution) error {
	if err := q.exec(ctx, `
		INSERT INTO stage_execution (stage_id, project_id, status, predecessor_ids, successor_ids,
			actual_start_at, create_at, update_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		se.StageID, se.ProjectID, se.Status, se.Predecessors, se.Successors,
		se.ActualStartAt, se.CreateAt); err != nil {
		return fmt.Errorf("insert stage execution %d: %w", se.StageID, err)
	}
	return nil
}

// SetStageExecutionStatus transitions a stage execution, stamping the
// completion time when it reaches StageCompleted.
func (q *queries) SetStageExecutionStatus(ctx context.Context, stageID int64, status StageStatus, completeAt *time.Time) error {
	if err := q.exec(ctx, `
		UPDATE stage_execution
		SET status = $2, actual_complete_at = COALESCE($3, actual_complete_at), update_at = $4
		WHERE stage_id = $1`,
		stageID, status, completeAt, time.Now()); err != nil {
		return fmt.Errorf("set stage execution %d status: %w", stageID, err)
	}
	return nil
}

// UpdateStageExecutionSuccessors syncs augmented successor edges into a
// materialized stage. Predecessor snapshots are immutable after
// materialization.
func (q *queries) UpdateStageExecutionSuccessors(ctx context.Context, stageID int64, succs Int64List) error {
	if err := q.exec(ctx, `
		UPDATE stage_execution SET successor_ids = $2, update_at = $3 WHERE stage_id = $1`,
		stageID, succs, time.Now()); err != nil {
		return fmt.Errorf("update stage execution %d successors: %w", stageID, err)
	}
	return nil
}

// TaskExecutionByTaskID returns the execution record of a plan task.
func (q *queries) TaskExecutionByTaskID(ctx context.Context, taskID int64) (*TaskExecution, error) {
	var te TaskExecution
	if err := q.get(ctx, &te,
		`SELECT `+taskExecColumns+` FROM task_execution WHERE task_id = $1`, taskID); err != nil {
		return nil, err
	}
	return &te, nil
}

// TaskExecutionByID returns the execution record by surrogate ID.
func (q *queries) TaskExecutionByID(ctx context.Context, id int64) (*TaskExecution, error) {
	var te TaskExecution
	if err := q.get(ctx, &te,
		`SELECT `+taskExecColumns+` FROM task_execution WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &te, nil
}

// ListTaskExecutions returns all execution tasks of a project.
func (q *queries) ListTaskExecutions(ctx context.Context, projectID int64) ([]TaskExecution, error) {
	var out []TaskExecution
	err := q.selectAll(ctx, &out,
		`SELECT `+taskExecColumns+` FROM task_execution WHERE project_id = $1 ORDER BY task_id`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list task executions: %w", err)
	}
	return out, nil
}

// InsertTaskExecution materializes a task and returns the surrogate ID.
func (q *queries) InsertTaskExecution(ctx context.Context, te *TaskExecution) (int64, error) {
	var id int64
	err := q.get(ctx, &id, `
		INSERT INTO task_execution (task_id, project_id, stage_id, name, description, start_date,
			end_date, duration_days, job_number, predecessor_ids, successor_ids, approval_type,
			approval_nodes, status, is_skipped, actual_start_at, create_at, update_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)
		RETURNING id`,
		te.TaskID, te.ProjectID, te.StageID, te.Name, te.Description, te.StartDate,
		te.EndDate, te.DurationDays, te.JobNumber, te.Predecessors, te.Successors, te.ApprovalType,
		te.ApprovalNodes, te.Status, te.IsSkipped, te.ActualStartAt, te.CreateAt)
	if err != nil {
		return 0, fmt.Errorf("insert task execution %d: %w", te.TaskID, err)
	}
	return id, nil
}

// SetTaskExecutionStatus transitions a task execution. completeAt stamps
// the completion time; it is left untouched when nil.
func (q *queries) SetTaskExecutionStatus(ctx context.Context, taskID int64, status TaskStatus, completeAt *time.Time) error {
	if err := q.exec(ctx, `
		UPDATE task_execution
		SET status = $2, actual_complete_at = COALESCE($3, actual_complete_at), update_at = $4
		WHERE task_id = $1`,
		taskID, status, completeAt, time.Now()); err != nil {
		return fmt.Errorf("set task execution %d status: %w", taskID, err)
	}
	return nil
}

// UpdateTaskExecutionSuccessors syncs augmented successor edges into a
// materialized task.
func (q *queries) UpdateTaskExecutionSuccessors(ctx context.Context, taskID int64, succs Int64List) error {
	if err := q.exec(ctx, `
		UPDATE task_execution SET successor_ids = $2, update_at = $3 WHERE task_id = $1`,
		taskID, succs, time.Now()); err != nil {
		return fmt.Errorf("update task execution %d successors: %w", taskID, err)
	}
	return nil
}

// TaskExecutionsByOwner returns the owner's executions restricted to the
// given statuses.
func (q *queries) TaskExecutionsByOwner(ctx context.Context, jobNumber string, statuses []TaskStatus) ([]TaskExecution, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query, args, err := q.in(
		`SELECT `+taskExecColumns+` FROM task_execution
		WHERE job_number = ? AND status IN (?) ORDER BY id`, jobNumber, statuses)
	if err != nil {
		return nil, err
	}
	var out []TaskExecution
	if err := q.selectAll(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list task executions by owner: %w", err)
	}
	return out, nil
}

// TaskExecutionsPendingAtNode returns the executions whose open
// Application is currently waiting at the given organization position.
func (q *queries) TaskExecutionsPendingAtNode(ctx context.Context, positionID int64) ([]TaskExecution, error) {
	var out []TaskExecution
	err := q.selectAll(ctx, &out, `
		SELECT `+prefixColumns("te.", taskExecColumns)+`
		FROM task_execution te
		JOIN task_submission ts ON ts.task_execution_id = te.id
		JOIN application a ON a.apply_id = ts.apply_id
		JOIN approval_rule r ON r.apply_id = a.apply_id
		WHERE a.apply_status = 0 AND r.current_node = $1
		ORDER BY te.id`, positionID)
	if err != nil {
		return nil, fmt.Errorf("list pending task executions: %w", err)
	}
	return out, nil
}

// MaterializedStageIDs returns the IDs of the project's materialized
// stages.
func (q *queries) MaterializedStageIDs(ctx context.Context, projectID int64) ([]int64, error) {
	var ids []int64
	err := q.selectAll(ctx, &ids,
		`SELECT stage_id FROM stage_execution WHERE project_id = $1 ORDER BY stage_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list materialized stages: %w", err)
	}
	return ids, nil
}

// MaterializedTaskIDs returns the plan task IDs of the project's
// materialized tasks.
func (q *queries) MaterializedTaskIDs(ctx context.Context, projectID int64) ([]int64, error) {
	var ids []int64
	err := q.selectAll(ctx, &ids,
		`SELECT task_id FROM task_execution WHERE project_id = $1 ORDER BY task_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list materialized tasks: %w", err)
	}
	return ids, nil
}

// ProjectHasExecutions reports whether any task of the project has
// materialized. Drives the tasksGenerated flag of the project views.
func (q *queries) ProjectHasExecutions(ctx context.Context, projectID int64) (bool, error) {
	var n int
	if err := q.get(ctx, &n,
		`SELECT COUNT(*) FROM task_execution WHERE project_id = $1`, projectID); err != nil {
		return false, fmt.Errorf("check project %d executions: %w", projectID, err)
	}
	return n > 0, nil
}

// ProjectIDsWithExecutions returns the projects having at least one
// materialized task.
func (q *queries) ProjectIDsWithExecutions(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := q.selectAll(ctx, &ids,
		`SELECT DISTINCT project_id FROM task_execution ORDER BY project_id`); err != nil {
		return nil, fmt.Errorf("list projects with executions: %w", err)
	}
	return ids, nil
}
