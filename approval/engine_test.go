package approval

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
	execs       map[int64]*store.TaskExecution // by task_id
	apps        map[string]*store.Application
	rules       map[string]*store.ApprovalRule
	logs        []store.ApprovalLog
	submissions map[string]*store.TaskSubmission
	employees   map[string]*store.Employee
	staffed     map[int64]bool
	nextSubID   int64
}

func newFakeTx() *fakeTx {
	return &fakeTx{
		execs:       map[int64]*store.TaskExecution{},
		apps:        map[string]*store.Application{},
		rules:       map[string]*store.ApprovalRule{},
		submissions: map[string]*store.TaskSubmission{},
		employees:   map[string]*store.Employee{},
		staffed:     map[int64]bool{},
		nextSubID:   1,
	}
}

func (f *fakeTx) TaskExecutionByTaskID(_ context.Context, taskID int64) (*store.TaskExecution, error) {
	te, ok := f.execs[taskID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *te
	return &cp, nil
}

func (f *fakeTx) TaskExecutionByID(_ context.Context, id int64) (*store.TaskExecution, error) {
	for _, te := range f.execs {
		if te.ID == id {
			cp := *te
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeTx) SetTaskExecutionStatus(_ context.Context, taskID int64, status store.TaskStatus, completeAt *time.Time) error {
	f.execs[taskID].Status = status
	if completeAt != nil {
		f.execs[taskID].ActualCompleteAt = completeAt
	}
	return nil
}

func (f *fakeTx) Application(_ context.Context, applyID string) (*store.Application, error) {
	a, ok := f.apps[applyID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeTx) InsertApplication(_ context.Context, a *store.Application) error {
	cp := *a
	f.apps[a.ApplyID] = &cp
	return nil
}

func (f *fakeTx) SetApplicationStatus(_ context.Context, applyID string, status store.ApplyStatus) error {
	f.apps[applyID].ApplyStatus = status
	return nil
}

func (f *fakeTx) ApprovalRuleByApply(_ context.Context, applyID string) (*store.ApprovalRule, error) {
	r, ok := f.rules[applyID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeTx) InsertApprovalRule(_ context.Context, r *store.ApprovalRule) error {
	cp := *r
	f.rules[r.ApplyID] = &cp
	return nil
}

func (f *fakeTx) AdvanceApprovalRule(_ context.Context, applyID string, approved store.Int64List, current *int64) error {
	f.rules[applyID].ApprovedNodes = approved
	f.rules[applyID].CurrentNode = current
	return nil
}

func (f *fakeTx) AppendApprovalLog(_ context.Context, l *store.ApprovalLog) (int64, error) {
	l.ID = int64(len(f.logs) + 1)
	f.logs = append(f.logs, *l)
	return l.ID, nil
}

func (f *fakeTx) InsertTaskSubmission(_ context.Context, s *store.TaskSubmission) (int64, error) {
	s.ID = f.nextSubID
	f.nextSubID++
	cp := *s
	f.submissions[s.ApplyID] = &cp
	return s.ID, nil
}

func (f *fakeTx) TaskSubmissionByApply(_ context.Context, applyID string) (*store.TaskSubmission, error) {
	s, ok := f.submissions[applyID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeTx) EmployeeByJobNumber(_ context.Context, jobNumber string) (*store.Employee, error) {
	e, ok := f.employees[jobNumber]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeTx) PositionHasActiveEmployee(_ context.Context, positionID int64) (bool, error) {
	return f.staffed[positionID], nil
}

func (f *fakeTx) addEmployee(job string, position int64) {
	f.employees[job] = &store.Employee{JobNumber: job, OrganizationID: &position, Enable: true}
	f.staffed[position] = true
}

func (f *fakeTx) addExec(taskID int64, owner string, approvalType store.ApprovalType, nodes ...int64) {
	f.execs[taskID] = &store.TaskExecution{
		ID:            taskID + 1000,
		TaskID:        taskID,
		ProjectID:     100,
		Name:          "task",
		JobNumber:     &owner,
		ApprovalType:  approvalType,
		ApprovalNodes: store.Int64List(nodes),
		Status:        store.TaskInProgress,
	}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	gen, err := NewIDGenerator(1, 1)
	require.NoError(t, err)
	return NewEngine(gen, nil)
}

func TestSubmitNoneTypeCompletesDirectly(t *testing.T) {
	tx := newFakeTx()
	tx.addExec(10, "E001", store.ApprovalNone)

	var cascaded []int64
	hooks := Hooks{TaskApproved: func(_ context.Context, taskID int64) error {
		cascaded = append(cascaded, taskID)
		return nil
	}}

	applyID, err := newEngine(t).Submit(context.Background(), tx, 10, "E001", nil, nil, hooks)
	require.NoError(t, err)
	assert.Empty(t, applyID)
	assert.Equal(t, store.TaskCompleted, tx.execs[10].Status)
	assert.Empty(t, tx.apps)
	assert.Equal(t, []int64{10}, cascaded)
}

func TestSubmitOpensApplication(t *testing.T) {
	tx := newFakeTx()
	tx.addExec(10, "E001", store.ApprovalSpecified, 500, 501)
	tx.addEmployee("A500", 500)
	tx.addEmployee("A501", 501)

	applyID, err := newEngine(t).Submit(context.Background(), tx, 10, "E001", nil, nil, Hooks{})
	require.NoError(t, err)
	require.NotEmpty(t, applyID)

	assert.Equal(t, store.TaskSubmitted, tx.execs[10].Status)
	assert.Equal(t, store.ApplyInApproval, tx.apps[applyID].ApplyStatus)
	require.NotNil(t, tx.rules[applyID].CurrentNode)
	assert.Equal(t, int64(500), *tx.rules[applyID].CurrentNode)
	require.Len(t, tx.logs, 1)
	assert.Equal(t, store.ResultSubmit, tx.logs[0].Result)
	assert.Equal(t, "E001", tx.logs[0].ApproverID)
}

func TestSubmitGuards(t *testing.T) {
	tx := newFakeTx()
	tx.addExec(10, "E001", store.ApprovalSpecified, 500)
	tx.execs[10].Status = store.TaskSubmitted

	eng := newEngine(t)

	_, err := eng.Submit(context.Background(), tx, 10, "E001", nil, nil, Hooks{})
	requireBizError(t, err, "not in progress")

	tx.execs[10].Status = store.TaskInProgress
	_, err = eng.Submit(context.Background(), tx, 10, "E999", nil, nil, Hooks{})
	requireBizError(t, err, "only the task owner")

	_, err = eng.Submit(context.Background(), tx, 77, "E001", nil, nil, Hooks{})
	requireBizError(t, err, "not been generated")
}

func TestApproveAdvancesAndCompletes(t *testing.T) {
	tx := newFakeTx()
	tx.addExec(10, "E001", store.ApprovalSequential, 500, 501)
	tx.addEmployee("A500", 500)
	tx.addEmployee("A501", 501)

	eng := newEngine(t)
	applyID, err := eng.Submit(context.Background(), tx, 10, "E001", nil, nil, Hooks{})
	require.NoError(t, err)

	done, err := eng.Approve(context.Background(), tx, applyID, "A500", nil, nil, Hooks{})
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, store.Int64List{500}, tx.rules[applyID].ApprovedNodes)
	assert.Equal(t, int64(501), *tx.rules[applyID].CurrentNode)

	var cascaded bool
	done, err = eng.Approve(context.Background(), tx, applyID, "A501", nil, nil,
		Hooks{TaskApproved: func(context.Context, int64) error { cascaded = true; return nil }})
	require.NoError(t, err)
	assert.True(t, done)
	assert.True(t, cascaded)
	assert.Equal(t, store.ApplyCompleted, tx.apps[applyID].ApplyStatus)
	assert.Equal(t, store.TaskCompleted, tx.execs[10].Status)
	assert.Nil(t, tx.rules[applyID].CurrentNode)
}

func TestApproveCursorGuard(t *testing.T) {
	tx := newFakeTx()
	tx.addExec(10, "E001", store.ApprovalSpecified, 500, 501)
	tx.addEmployee("A500", 500)
	tx.addEmployee("A501", 501)

	eng := newEngine(t)
	applyID, err := eng.Submit(context.Background(), tx, 10, "E001", nil, nil, Hooks{})
	require.NoError(t, err)

	_, err = eng.Approve(context.Background(), tx, applyID, "A501", nil, nil, Hooks{})
	requireBizError(t, err, "not the current approver")
}

func TestEmptyPositionAutoAdvance(t *testing.T) {
	tx := newFakeTx()
	tx.addExec(10, "E001", store.ApprovalSpecified, 700, 701, 702)
	tx.addEmployee("A700", 700)
	tx.addEmployee("A702", 702)
	// Position 701 has nobody.

	eng := newEngine(t)
	applyID, err := eng.Submit(context.Background(), tx, 10, "E001", nil, nil, Hooks{})
	require.NoError(t, err)

	done, err := eng.Approve(context.Background(), tx, applyID, "A700", nil, nil, Hooks{})
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, store.ApplyInApproval, tx.apps[applyID].ApplyStatus)
	assert.Equal(t, store.Int64List{700, 701}, tx.rules[applyID].ApprovedNodes)
	assert.Equal(t, int64(702), *tx.rules[applyID].CurrentNode)

	var sawSystem bool
	for _, l := range tx.logs {
		if l.Node == 701 && l.ApproverID == "system" && l.Result == store.ResultApprove {
			sawSystem = true
			require.NotNil(t, l.Comment)
			assert.Equal(t, "empty post auto-approved", *l.Comment)
		}
	}
	assert.True(t, sawSystem)
}

func TestEmptyPositionChainCompletesOnSubmit(t *testing.T) {
	tx := newFakeTx()
	tx.addExec(10, "E001", store.ApprovalSpecified, 800, 801)
	// Neither position is staffed: the whole chain auto-approves at submit.

	applyID, err := newEngine(t).Submit(context.Background(), tx, 10, "E001", nil, nil, Hooks{})
	require.NoError(t, err)
	assert.Equal(t, store.ApplyCompleted, tx.apps[applyID].ApplyStatus)
	assert.Equal(t, store.TaskCompleted, tx.execs[10].Status)
	assert.Equal(t, store.Int64List{800, 801}, tx.rules[applyID].ApprovedNodes)
}

func TestRejectRequiresCommentAndFlipsTask(t *testing.T) {
	tx := newFakeTx()
	tx.addExec(10, "E001", store.ApprovalSpecified, 500)
	tx.addEmployee("A500", 500)

	eng := newEngine(t)
	applyID, err := eng.Submit(context.Background(), tx, 10, "E001", nil, nil, Hooks{})
	require.NoError(t, err)

	err = eng.Reject(context.Background(), tx, applyID, "A500", "", nil, Hooks{})
	requireBizError(t, err, "requires a comment")

	err = eng.Reject(context.Background(), tx, applyID, "A500", "missing doc", nil, Hooks{})
	require.NoError(t, err)
	assert.Equal(t, store.ApplyRejected, tx.apps[applyID].ApplyStatus)
	assert.Equal(t, store.TaskRejected, tx.execs[10].Status)
	assert.Nil(t, tx.rules[applyID].CurrentNode)
}

func TestResubmitReopensRejectedTask(t *testing.T) {
	tx := newFakeTx()
	tx.addExec(10, "E001", store.ApprovalSpecified, 500)
	tx.execs[10].Status = store.TaskRejected

	eng := newEngine(t)
	err := eng.Resubmit(context.Background(), tx, 10, "E999")
	requireBizError(t, err, "only the task owner")

	require.NoError(t, eng.Resubmit(context.Background(), tx, 10, "E001"))
	assert.Equal(t, store.TaskInProgress, tx.execs[10].Status)

	err = eng.Resubmit(context.Background(), tx, 10, "E001")
	requireBizError(t, err, "not rejected")
}

func TestFailingCompletionCallbackFailsApprove(t *testing.T) {
	tx := newFakeTx()
	tx.addExec(10, "E001", store.ApprovalSpecified, 500)
	tx.addEmployee("A500", 500)

	eng := newEngine(t)
	applyID, err := eng.Submit(context.Background(), tx, 10, "E001", nil, nil, Hooks{})
	require.NoError(t, err)

	_, err = eng.Approve(context.Background(), tx, applyID, "A500", nil, nil,
		Hooks{TaskApproved: func(context.Context, int64) error {
			return assert.AnError
		}})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func requireBizError(t *testing.T, err error, contains string) {
	t.Helper()
	require.Error(t, err)
	be, ok := svcerr.As(err)
	require.True(t, ok, "expected business error, got %v", err)
	assert.Contains(t, be.Message, contains)
}
