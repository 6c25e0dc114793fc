package workflow

import (
	"context"
	"log/slog"

	"github.com/crestline/taskflow/approval"
	"github.com/crestline/taskflow/metrics"
	"github.com/crestline/taskflow/plan"
	"github.com/crestline/taskflow/store"
	"github.com/crestline/taskflow/svcerr"
)

// Service is the transactional entry point for every mutation: plan
// saves, explicit generation, and the task lifecycle. Each method runs in
// one transaction that begins and ends within the request.
type Service struct {
	store      *store.Store
	reconciler *plan.Reconciler
	approvals  *approval.Engine
	engine     *Engine
	metrics    *metrics.Registry
	logger     *slog.Logger
}

// NewService wires the engines over one store.
func NewService(st *store.Store, approvals *approval.Engine, m *metrics.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      st,
		reconciler: plan.NewReconciler(logger),
		approvals:  approvals,
		engine:     NewEngine(logger),
		metrics:    m,
		logger:     logger,
	}
}

// SaveProject validates and persists a payload; with generate set it runs
// the cascade in the same transaction, so a generation failure rolls the
// save back.
func (s *Service) SaveProject(ctx context.Context, p *plan.Payload, user string, generate bool) (*plan.SaveResult, error) {
	warnings, err := plan.Validate(p)
	if err != nil {
		return nil, err
	}
	var res *plan.SaveResult
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		r, err := s.reconciler.Reconcile(ctx, tx, p, warnings, user)
		if err != nil {
			return err
		}
		res = r
		if generate {
			return s.engine.Cascade(ctx, tx, r.ProjectID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.SaveCompleted(generate)
	return res, nil
}

// Generate runs the cascade for an already-saved project. Abnormal and
// unconfigured projects are refused; their plans cannot produce a
// consistent execution graph yet.
func (s *Service) Generate(ctx context.Context, projectID int64) error {
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		stages, err := tx.ListPlanStages(ctx, projectID)
		if err != nil {
			return err
		}
		tasks, err := tx.ListPlanTasks(ctx, projectID)
		if err != nil {
			return err
		}
		switch plan.AnalyzePlan(stages, tasks).Status {
		case plan.StatusUnconfigured:
			return svcerr.New("project is not configured yet, cannot generate tasks")
		case plan.StatusAbnormal:
			return svcerr.New("project configuration is abnormal, cannot generate tasks")
		}
		return s.engine.Cascade(ctx, tx, projectID)
	})
	if err != nil {
		return err
	}
	s.metrics.GenerationCompleted()
	return nil
}

// Submit runs the submit flow of the approval engine, with the cascade as
// its completion callback for approval type "none".
func (s *Service) Submit(ctx context.Context, taskID int64, caller string, text *string, images []string) (string, error) {
	var applyID string
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		id, err := s.approvals.Submit(ctx, tx, taskID, caller, text, images, s.hooks(tx))
		if err != nil {
			return err
		}
		applyID = id
		return nil
	})
	if err != nil {
		return "", err
	}
	s.metrics.TaskSubmitted()
	return applyID, nil
}

// Approve records one approval decision. The completion callback runs the
// downstream cascade inside the same transaction; its failure fails the
// approve.
func (s *Service) Approve(ctx context.Context, applyID, caller string, comment *string, images []string) (bool, error) {
	var completed bool
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		done, err := s.approvals.Approve(ctx, tx, applyID, caller, comment, images, s.hooks(tx))
		if err != nil {
			return err
		}
		completed = done
		return nil
	})
	if err != nil {
		return false, err
	}
	s.metrics.ApprovalDecided(true)
	return completed, nil
}

// Reject closes the application and flips the task to rejected.
func (s *Service) Reject(ctx context.Context, applyID, caller, comment string, images []string) error {
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		return s.approvals.Reject(ctx, tx, applyID, caller, comment, images, s.hooks(tx))
	})
	if err != nil {
		return err
	}
	s.metrics.ApprovalDecided(false)
	return nil
}

// Resubmit reopens a rejected task for its owner.
func (s *Service) Resubmit(ctx context.Context, taskID int64, caller string) error {
	return s.store.WithTx(ctx, func(tx *store.Tx) error {
		return s.approvals.Resubmit(ctx, tx, taskID, caller)
	})
}

func (s *Service) hooks(tx *store.Tx) approval.Hooks {
	return approval.Hooks{
		TaskApproved: func(ctx context.Context, taskID int64) error {
			return s.engine.OnTaskCompleted(ctx, tx, taskID)
		},
		TaskRejected: func(ctx context.Context, taskID int64) error {
			s.logger.Info("task rejected", "task_id", taskID)
			return nil
		},
	}
}
