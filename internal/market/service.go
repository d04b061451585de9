// Package market is the application layer over the registry: it attaches
// value to create calls through the custody ledger, runs acceptance checks
// and publishes every transition to the feed.
package market

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/zerverless/jobmarket/internal/check"
	"github.com/zerverless/jobmarket/internal/custody"
	"github.com/zerverless/jobmarket/internal/feed"
	"github.com/zerverless/jobmarket/internal/job"
	"github.com/zerverless/jobmarket/internal/logging"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNoCheck        = errors.New("job has no check")
	// ErrCheckError marks a check script that failed to produce a verdict.
	ErrCheckError = errors.New("check script error")
)

type Service struct {
	registry *job.Registry
	ledger   *custody.Ledger
	checks   *check.Runner
	bus      *feed.Bus
	logger   *zap.SugaredLogger
}

func NewService(registry *job.Registry, ledger *custody.Ledger, checks *check.Runner, bus *feed.Bus) *Service {
	return &Service{
		registry: registry,
		ledger:   ledger,
		checks:   checks,
		bus:      bus,
		logger:   logging.ComponentLogger("market"),
	}
}

// Create records the job with budget attached. The registry moves the budget
// from the caller's balance into escrow in the same commit as the job.
func (s *Service) Create(ctx context.Context, caller job.Identity, budget job.Amount, req job.CreateRequest) (*job.Job, error) {
	if err := s.checks.Validate(req.Check); err != nil {
		return nil, errors.Mark(err, ErrInvalidRequest)
	}

	j, err := s.registry.Create(ctx, job.Call{Caller: caller, Value: budget}, req)
	if err != nil {
		s.logger.Debugw("create refused",
			logging.FieldIdentity, caller,
			logging.FieldAmount, budget,
			logging.FieldError, err)
		return nil, err
	}

	s.bus.Publish(feed.JobEvent(feed.EventJobCreated, j, caller))
	return j, nil
}

func (s *Service) Get(ctx context.Context, id job.JobID) (*job.Job, error) {
	return s.registry.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, status job.Status, owner *job.Identity) ([]*job.Job, error) {
	return s.registry.ListByStatus(ctx, status, owner)
}

// publish announces a committed transition with the record its transaction
// wrote.
func (s *Service) publish(t feed.EventType, actor job.Identity, j *job.Job, err error) (*job.Job, error) {
	if err != nil {
		return nil, err
	}
	s.bus.Publish(feed.JobEvent(t, j, actor))
	return j, nil
}

func (s *Service) Obtain(ctx context.Context, caller job.Identity, id job.JobID) (*job.Job, error) {
	j, err := s.registry.ObtainJob(ctx, caller, id)
	return s.publish(feed.EventJobObtained, caller, j, err)
}

func (s *Service) Submit(ctx context.Context, caller job.Identity, id job.JobID, result string) (*job.Job, error) {
	j, err := s.registry.SubmitJob(ctx, caller, id, result)
	return s.publish(feed.EventJobSubmitted, caller, j, err)
}

func (s *Service) Reject(ctx context.Context, caller job.Identity, id job.JobID, role job.Role) (*job.Job, error) {
	j, err := s.registry.RejectJob(ctx, caller, id, role)
	return s.publish(feed.EventJobRejected, caller, j, err)
}

func (s *Service) Approve(ctx context.Context, caller job.Identity, id job.JobID, role job.Role) (*job.Job, error) {
	j, err := s.registry.ApproveJob(ctx, caller, id, role)
	return s.publish(feed.EventJobApproved, caller, j, err)
}

// Check evaluates the job's acceptance script against its current result.
// It never changes the job.
func (s *Service) Check(ctx context.Context, id job.JobID) (*check.Verdict, error) {
	j, err := s.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.Check == nil {
		return nil, errors.Wrapf(ErrNoCheck, "job %d", id)
	}
	v, err := s.checks.EvaluateJob(ctx, j)
	if err != nil && !errors.Is(err, job.ErrNoResult) {
		return nil, errors.Mark(err, ErrCheckError)
	}
	return v, err
}

type Account struct {
	Identity job.Identity  `json:"identity"`
	Balance  job.Amount    `json:"balance"`
	Activity *job.Activity `json:"activity"`
}

func (s *Service) Account(ctx context.Context, id job.Identity) (*Account, error) {
	bal, err := s.ledger.Balance(ctx, id)
	if err != nil {
		return nil, err
	}
	act, err := s.registry.ActivityOf(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Account{Identity: id, Balance: bal, Activity: act}, nil
}

// Fund mints value into an account.
func (s *Service) Fund(ctx context.Context, to job.Identity, amount job.Amount) (*Account, error) {
	if amount == 0 {
		return nil, errors.Wrap(ErrInvalidRequest, "amount must be positive")
	}
	if err := s.ledger.Credit(ctx, to, amount); err != nil {
		return nil, err
	}
	s.bus.Publish(feed.AccountEvent(feed.EventAccountFunded, to, amount))
	return s.Account(ctx, to)
}

type Stats struct {
	Jobs     map[job.Status]int `json:"jobs"`
	NextID   job.JobID          `json:"next_id"`
	Escrowed job.Amount         `json:"escrowed"`
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.registry.Stats(ctx)
	if err != nil {
		return nil, err
	}
	next, err := s.registry.NextJobID(ctx)
	if err != nil {
		return nil, err
	}
	escrowed, err := s.ledger.Escrowed(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{Jobs: counts, NextID: next, Escrowed: escrowed}, nil
}
