package store

import (
	"context"
	"fmt"
	"time"
)

const applicationColumns = `apply_id, apply_type, apply_status, create_at, update_at`

const approvalRuleColumns = `apply_id, nodes, approved_nodes, current_node, create_at, update_at`

const approvalLogColumns = `id, apply_id, node, approver_id, result, comment, images, start_at, end_at`

const taskSubmissionColumns = `id, apply_id, task_execution_id, submit_text, submit_images, submit_at`

// Application returns one application by its apply ID.
func (q *queries) Application(ctx context.Context, applyID string) (*Application, error) {
	var a Application
	if err := q.get(ctx, &a,
		`SELECT `+applicationColumns+` FROM application WHERE apply_id = $1`, applyID); err != nil {
		return nil, err
	}
	return &a, nil
}

// InsertApplication opens a new application.
func (q *queries) InsertApplication(ctx context.Context, a *Application) error {
	if err := q.exec(ctx, `
		INSERT INTO application (apply_id, apply_type, apply_status, create_at, update_at)
		VALUES ($1, $2, $3, $4, $4)`,
		a.ApplyID, a.ApplyType, a.ApplyStatus, a.CreateAt); err != nil {
		return fmt.Errorf("insert application %s: %w", a.ApplyID, err)
	}
	return nil
}

// SetApplicationStatus transitions an application.
func (q *queries) SetApplicationStatus(ctx context.Context, applyID string, status ApplyStatus) error {
	if err := q.exec(ctx, `
		UPDATE application SET apply_status = $2, update_at = $3 WHERE apply_id = $1`,
		applyID, status, time.Now()); err != nil {
		return fmt.Errorf("set application %s status: %w", applyID, err)
	}
	return nil
}

// ApprovalRuleByApply returns the rule of an application.
func (q *queries) ApprovalRuleByApply(ctx context.Context, applyID string) (*ApprovalRule, error) {
	var r ApprovalRule
	if err := q.get(ctx, &r,
		`SELECT `+approvalRuleColumns+` FROM approval_rule WHERE apply_id = $1`, applyID); err != nil {
		return nil, err
	}
	return &r, nil
}

// InsertApprovalRule creates the rule snapshot for an application. Nodes
// are immutable once written; only the approved prefix and cursor move.
func (q *queries) InsertApprovalRule(ctx context.Context, r *ApprovalRule) error {
	if err := q.exec(ctx, `
		INSERT INTO approval_rule (apply_id, nodes, approved_nodes, current_node, create_at, update_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		r.ApplyID, r.Nodes, r.ApprovedNodes, r.CurrentNode, r.CreateAt); err != nil {
		return fmt.Errorf("insert approval rule %s: %w", r.ApplyID, err)
	}
	return nil
}

// AdvanceApprovalRule writes the grown approved prefix and the new cursor.
// A nil cursor marks the sequence exhausted or the application rejected.
func (q *queries) AdvanceApprovalRule(ctx context.Context, applyID string, approved Int64List, current *int64) error {
	if err := q.exec(ctx, `
		UPDATE approval_rule
		SET approved_nodes = $2, current_node = $3, update_at = $4
		WHERE apply_id = $1`,
		applyID, approved, current, time.Now()); err != nil {
		return fmt.Errorf("advance approval rule %s: %w", applyID, err)
	}
	return nil
}

// AppendApprovalLog writes one decision record and returns its ID.
func (q *queries) AppendApprovalLog(ctx context.Context, l *ApprovalLog) (int64, error) {
	var id int64
	err := q.get(ctx, &id, `
		INSERT INTO approval_log (apply_id, node, approver_id, result, comment, images, start_at, end_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		l.ApplyID, l.Node, l.ApproverID, l.Result, l.Comment, l.Images, l.StartAt, l.EndAt)
	if err != nil {
		return 0, fmt.Errorf("append approval log %s: %w", l.ApplyID, err)
	}
	return id, nil
}

// ApprovalLogs returns the decision history of an application in
// chronological order.
func (q *queries) ApprovalLogs(ctx context.Context, applyID string) ([]ApprovalLog, error) {
	var logs []ApprovalLog
	err := q.selectAll(ctx, &logs,
		`SELECT `+approvalLogColumns+` FROM approval_log WHERE apply_id = $1 ORDER BY id`, applyID)
	if err != nil {
		return nil, fmt.Errorf("list approval logs %s: %w", applyID, err)
	}
	return logs, nil
}

// ApprovalLogsByApplyIDs returns the histories of several applications in
// one query, chronological within each application.
func (q *queries) ApprovalLogsByApplyIDs(ctx context.Context, applyIDs []string) ([]ApprovalLog, error) {
	if len(applyIDs) == 0 {
		return nil, nil
	}
	query, args, err := q.in(
		`SELECT `+approvalLogColumns+` FROM approval_log WHERE apply_id IN (?) ORDER BY apply_id, id`,
		applyIDs)
	if err != nil {
		return nil, err
	}
	var logs []ApprovalLog
	if err := q.selectAll(ctx, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("list approval logs: %w", err)
	}
	return logs, nil
}

// InsertTaskSubmission stores the payload attached at submit time.
func (q *queries) InsertTaskSubmission(ctx context.Context, s *TaskSubmission) (int64, error) {
	var id int64
	err := q.get(ctx, &id, `
		INSERT INTO task_submission (apply_id, task_execution_id, submit_text, submit_images, submit_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		s.ApplyID, s.TaskExecutionID, s.SubmitText, s.SubmitImages, s.SubmitAt)
	if err != nil {
		return 0, fmt.Errorf("insert task submission %s: %w", s.ApplyID, err)
	}
	return id, nil
}

// TaskSubmissionByApply returns the submission payload of an application.
func (q *queries) TaskSubmissionByApply(ctx context.Context, applyID string) (*TaskSubmission, error) {
	var s TaskSubmission
	if err := q.get(ctx, &s,
		`SELECT `+taskSubmissionColumns+` FROM task_submission WHERE apply_id = $1`, applyID); err != nil {
		return nil, err
	}
	return &s, nil
}

// LatestSubmissionForTask returns the most recent submission of a task
// execution, or ErrNotFound when the task was never submitted.
func (q *queries) LatestSubmissionForTask(ctx context.Context, taskExecutionID int64) (*TaskSubmission, error) {
	var s TaskSubmission
	if err := q.get(ctx, &s, `
		SELECT `+taskSubmissionColumns+` FROM task_submission
		WHERE task_execution_id = $1 ORDER BY id DESC LIMIT 1`, taskExecutionID); err != nil {
		return nil, err
	}
	return &s, nil
}

// SubmissionsForTask returns every submission of a task execution, oldest
// first. Each rejected-and-resubmitted cycle contributes one row.
func (q *queries) SubmissionsForTask(ctx context.Context, taskExecutionID int64) ([]TaskSubmission, error) {
	var out []TaskSubmission
	err := q.selectAll(ctx, &out, `
		SELECT `+taskSubmissionColumns+` FROM task_submission
		WHERE task_execution_id = $1 ORDER BY id`, taskExecutionID)
	if err != nil {
		return nil, fmt.Errorf("list submissions for task %d: %w", taskExecutionID, err)
	}
	return out, nil
}
