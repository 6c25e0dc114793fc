// Package approval implements the sequential approval state machine: one
// Application per submission attempt, an immutable ordered node list, a
// growing approved prefix, and a cursor that advances one organization
// position at a time.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crestline/taskflow/store"
	"github.com/crestline/taskflow/svcerr"
)

// Tx is the transactional slice of the store the engine uses. *store.Tx
// satisfies it.
type Tx interface {
	TaskExecutionByTaskID(ctx context.Context, taskID int64) (*store.TaskExecution, error)
	TaskExecutionByID(ctx context.Context, id int64) (*store.TaskExecution, error)
	SetTaskExecutionStatus(ctx context.Context, taskID int64, status store.TaskStatus, completeAt *time.Time) error

	Application(ctx context.Context, applyID string) (*store.Application, error)
	InsertApplication(ctx context.Context, a *store.Application) error
	SetApplicationStatus(ctx context.Context, applyID string, status store.ApplyStatus) error
	ApprovalRuleByApply(ctx context.Context, applyID string) (*store.ApprovalRule, error)
	InsertApprovalRule(ctx context.Context, r *store.ApprovalRule) error
	AdvanceApprovalRule(ctx context.Context, applyID string, approved store.Int64List, current *int64) error
	AppendApprovalLog(ctx context.Context, l *store.ApprovalLog) (int64, error)
	InsertTaskSubmission(ctx context.Context, s *store.TaskSubmission) (int64, error)
	TaskSubmissionByApply(ctx context.Context, applyID string) (*store.TaskSubmission, error)

	EmployeeByJobNumber(ctx context.Context, jobNumber string) (*store.Employee, error)
	PositionHasActiveEmployee(ctx context.Context, positionID int64) (bool, error)
}

// Hooks are the completion callbacks, run inside the same transaction as
// the decision. A failing TaskApproved hook fails the approve; the whole
// transaction rolls back rather than leaving a closed Application with an
// unfinished task.
type Hooks struct {
	TaskApproved func(ctx context.Context, taskID int64) error
	TaskRejected func(ctx context.Context, taskID int64) error
}

const (
	systemApprover   = "system"
	autoApproveNote  = "empty post auto-approved"
	submitLogNode    = 0
)

// Engine drives Applications through submit, approve and reject.
type Engine struct {
	gen    *IDGenerator
	logger *slog.Logger
}

// NewEngine creates an approval engine.
func NewEngine(gen *IDGenerator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{gen: gen, logger: logger}
}

// Submit opens an Application for an in-progress task. Tasks with
// approval type "none" bypass the engine entirely: they complete directly
// and no Application row is created, so the returned apply ID is empty.
func (e *Engine) Submit(ctx context.Context, tx Tx, taskID int64, submitter string, text *string, images []string, hooks Hooks) (string, error) {
	te, err := e.ownedExecution(ctx, tx, taskID, submitter, "submit")
	if err != nil {
		return "", err
	}
	if te.Status != store.TaskInProgress {
		return "", svcerr.New(fmt.Sprintf("task %s is not in progress", te.Name))
	}

	now := time.Now()
	if te.ApprovalType == store.ApprovalNone {
		if err := tx.SetTaskExecutionStatus(ctx, taskID, store.TaskCompleted, &now); err != nil {
			return "", err
		}
		if hooks.TaskApproved != nil {
			if err := hooks.TaskApproved(ctx, taskID); err != nil {
				return "", fmt.Errorf("completion callback: %w", err)
			}
		}
		e.logger.Info("task completed without approval", "task_id", taskID, "submitter", submitter)
		return "", nil
	}

	nodes := te.ApprovalNodes
	if len(nodes) == 0 {
		return "", svcerr.New(fmt.Sprintf("task %s has no approval nodes configured", te.Name))
	}

	applyID, err := e.gen.Next()
	if err != nil {
		return "", err
	}
	if err := tx.InsertApplication(ctx, &store.Application{
		ApplyID:     applyID,
		ApplyType:   store.ApplyTypeTask,
		ApplyStatus: store.ApplyInApproval,
		CreateAt:    now,
	}); err != nil {
		return "", err
	}
	cursor := nodes[0]
	if err := tx.InsertApprovalRule(ctx, &store.ApprovalRule{
		ApplyID:     applyID,
		Nodes:       nodes,
		CurrentNode: &cursor,
		CreateAt:    now,
	}); err != nil {
		return "", err
	}
	if _, err := tx.AppendApprovalLog(ctx, &store.ApprovalLog{
		ApplyID:    applyID,
		Node:       submitLogNode,
		ApproverID: submitter,
		Result:     store.ResultSubmit,
		StartAt:    now,
		EndAt:      now,
	}); err != nil {
		return "", err
	}
	if _, err := tx.InsertTaskSubmission(ctx, &store.TaskSubmission{
		ApplyID:         applyID,
		TaskExecutionID: te.ID,
		SubmitText:      text,
		SubmitImages:    store.StringList(images),
		SubmitAt:        now,
	}); err != nil {
		return "", err
	}
	if err := tx.SetTaskExecutionStatus(ctx, taskID, store.TaskSubmitted, nil); err != nil {
		return "", err
	}

	if _, err := e.settle(ctx, tx, applyID, nodes, nil, &cursor, te, hooks); err != nil {
		return "", err
	}
	e.logger.Info("task submitted", "task_id", taskID, "apply_id", applyID, "nodes", len(nodes))
	return applyID, nil
}

// Approve records the current approver's decision and advances the
// cursor. Returns true when the node sequence is exhausted and the
// Application closed.
func (e *Engine) Approve(ctx context.Context, tx Tx, applyID, approver string, comment *string, images []string, hooks Hooks) (bool, error) {
	rule, cursor, err := e.pendingRule(ctx, tx, applyID, approver)
	if err != nil {
		return false, err
	}
	now := time.Now()
	if _, err := tx.AppendApprovalLog(ctx, &store.ApprovalLog{
		ApplyID:    applyID,
		Node:       cursor,
		ApproverID: approver,
		Result:     store.ResultApprove,
		Comment:    comment,
		Images:     store.StringList(images),
		StartAt:    now,
		EndAt:      now,
	}); err != nil {
		return false, err
	}

	approved := append(append(store.Int64List{}, rule.ApprovedNodes...), cursor)
	next := nextCursor(rule.Nodes, approved)

	te, err := e.executionForApply(ctx, tx, applyID)
	if err != nil {
		return false, err
	}
	completed, err := e.settle(ctx, tx, applyID, rule.Nodes, approved, next, te, hooks)
	if err != nil {
		return false, err
	}
	e.logger.Info("application approved at node",
		"apply_id", applyID, "node", cursor, "approver", approver, "completed", completed)
	return completed, nil
}

// Reject closes the Application and flips the task to rejected. A
// non-empty comment is required.
func (e *Engine) Reject(ctx context.Context, tx Tx, applyID, approver, comment string, images []string, hooks Hooks) error {
	if comment == "" {
		return svcerr.New("rejection requires a comment")
	}
	rule, cursor, err := e.pendingRule(ctx, tx, applyID, approver)
	if err != nil {
		return err
	}
	now := time.Now()
	if _, err := tx.AppendApprovalLog(ctx, &store.ApprovalLog{
		ApplyID:    applyID,
		Node:       cursor,
		ApproverID: approver,
		Result:     store.ResultReject,
		Comment:    &comment,
		Images:     store.StringList(images),
		StartAt:    now,
		EndAt:      now,
	}); err != nil {
		return err
	}
	if err := tx.AdvanceApprovalRule(ctx, applyID, rule.ApprovedNodes, nil); err != nil {
		return err
	}
	if err := tx.SetApplicationStatus(ctx, applyID, store.ApplyRejected); err != nil {
		return err
	}
	te, err := e.executionForApply(ctx, tx, applyID)
	if err != nil {
		return err
	}
	if err := tx.SetTaskExecutionStatus(ctx, te.TaskID, store.TaskRejected, nil); err != nil {
		return err
	}
	if hooks.TaskRejected != nil {
		if err := hooks.TaskRejected(ctx, te.TaskID); err != nil {
			return fmt.Errorf("rejection callback: %w", err)
		}
	}
	e.logger.Info("application rejected", "apply_id", applyID, "node", cursor, "approver", approver)
	return nil
}

// Resubmit reopens a rejected task for its owner. The prior Application
// and its logs stay intact for history; the next submit opens a fresh
// one.
func (e *Engine) Resubmit(ctx context.Context, tx Tx, taskID int64, caller string) error {
	te, err := e.ownedExecution(ctx, tx, taskID, caller, "resubmit")
	if err != nil {
		return err
	}
	if te.Status != store.TaskRejected {
		return svcerr.New(fmt.Sprintf("task %s is not rejected", te.Name))
	}
	if err := tx.SetTaskExecutionStatus(ctx, taskID, store.TaskInProgress, nil); err != nil {
		return err
	}
	e.logger.Info("task reopened for resubmission", "task_id", taskID)
	return nil
}

// settle resolves chains of unstaffed positions and closes the
// Application when the cursor runs off the end of the node list.
func (e *Engine) settle(ctx context.Context, tx Tx, applyID string, nodes, approved store.Int64List, cursor *int64, te *store.TaskExecution, hooks Hooks) (bool, error) {
	for cursor != nil {
		occupied, err := tx.PositionHasActiveEmployee(ctx, *cursor)
		if err != nil {
			return false, err
		}
		if occupied {
			break
		}
		now := time.Now()
		note := autoApproveNote
		if _, err := tx.AppendApprovalLog(ctx, &store.ApprovalLog{
			ApplyID:    applyID,
			Node:       *cursor,
			ApproverID: systemApprover,
			Result:     store.ResultApprove,
			Comment:    &note,
			StartAt:    now,
			EndAt:      now,
		}); err != nil {
			return false, err
		}
		approved = append(approved, *cursor)
		cursor = nextCursor(nodes, approved)
	}

	if err := tx.AdvanceApprovalRule(ctx, applyID, approved, cursor); err != nil {
		return false, err
	}
	if cursor != nil {
		return false, nil
	}

	now := time.Now()
	if err := tx.SetApplicationStatus(ctx, applyID, store.ApplyCompleted); err != nil {
		return false, err
	}
	if err := tx.SetTaskExecutionStatus(ctx, te.TaskID, store.TaskCompleted, &now); err != nil {
		return false, err
	}
	if hooks.TaskApproved != nil {
		if err := hooks.TaskApproved(ctx, te.TaskID); err != nil {
			return false, fmt.Errorf("completion callback: %w", err)
		}
	}
	return true, nil
}

// pendingRule loads an in-approval Application and verifies the caller's
// organization position matches the cursor.
func (e *Engine) pendingRule(ctx context.Context, tx Tx, applyID, approver string) (*store.ApprovalRule, int64, error) {
	app, err := tx.Application(ctx, applyID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, 0, svcerr.New("application not found")
	}
	if err != nil {
		return nil, 0, err
	}
	if app.ApplyStatus != store.ApplyInApproval {
		return nil, 0, svcerr.New("application is not in approval")
	}
	rule, err := tx.ApprovalRuleByApply(ctx, applyID)
	if err != nil {
		return nil, 0, err
	}
	if rule.CurrentNode == nil {
		return nil, 0, svcerr.New("application has no pending node")
	}
	emp, err := tx.EmployeeByJobNumber(ctx, approver)
	if errors.Is(err, store.ErrNotFound) {
		return nil, 0, svcerr.New("unknown approver")
	}
	if err != nil {
		return nil, 0, err
	}
	if emp.OrganizationID == nil || *emp.OrganizationID != *rule.CurrentNode {
		return nil, 0, svcerr.New("you are not the current approver of this application")
	}
	return rule, *rule.CurrentNode, nil
}

func (e *Engine) ownedExecution(ctx context.Context, tx Tx, taskID int64, caller, action string) (*store.TaskExecution, error) {
	te, err := tx.TaskExecutionByTaskID(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, svcerr.New("task has not been generated yet")
	}
	if err != nil {
		return nil, err
	}
	if te.JobNumber == nil || *te.JobNumber != caller {
		return nil, svcerr.New(fmt.Sprintf("only the task owner can %s", action))
	}
	return te, nil
}

func (e *Engine) executionForApply(ctx context.Context, tx Tx, applyID string) (*store.TaskExecution, error) {
	sub, err := tx.TaskSubmissionByApply(ctx, applyID)
	if err != nil {
		return nil, err
	}
	return tx.TaskExecutionByID(ctx, sub.TaskExecutionID)
}

// nextCursor is nodes[len(approved)] or nil once the prefix is complete.
func nextCursor(nodes, approved store.Int64List) *int64 {
	if len(approved) >= len(nodes) {
		return nil
	}
	next := nodes[len(approved)]
	return &next
}
