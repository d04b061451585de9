package job

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/zerverless/jobmarket/internal/db"
	"github.com/zerverless/jobmarket/internal/logging"
)

// Custody holds the value attached to a create call in escrow and pays it out
// to the worker on approval. Both run inside the registry's transaction, so a
// refused hold or transfer, or a failed commit, discards the value movement
// together with the job and index changes.
type Custody interface {
	Hold(ctx context.Context, txn db.Txn, from Identity, amount Amount) error
	Transfer(ctx context.Context, txn db.Txn, to Identity, amount Amount) error
}

// Registry is the job state machine. It owns the jobs, the owner, assignment
// and worker indices, and the id counter, all kept in one KV. Every operation
// runs under a single lock inside one KV transaction: guards are evaluated
// first and a failing guard leaves the store untouched.
type Registry struct {
	mu      sync.Mutex
	kv      db.KV
	custody Custody
	logger  *zap.SugaredLogger
	now     func() time.Time
}

func NewRegistry(kv db.KV, custody Custody) *Registry {
	return &Registry{
		kv:      kv,
		custody: custody,
		logger:  logging.ComponentLogger("registry"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *Registry) update(fn func(txn db.Txn) error) error {
	err := r.kv.Update(fn)
	if err == nil || IsDomain(err) || errors.IsAny(err, ErrStorage, ErrTransferFailed, ErrHoldFailed) {
		return err
	}
	return errors.Mark(errors.Wrap(err, "commit"), ErrStorage)
}

func (r *Registry) view(fn func(txn db.Txn) error) error {
	err := r.kv.View(fn)
	if err == nil || IsDomain(err) || errors.Is(err, ErrStorage) {
		return err
	}
	return errors.Mark(errors.Wrap(err, "read"), ErrStorage)
}

// loadInRange returns the job or ErrNotFound when id has not been allocated.
func loadInRange(txn db.Txn, id JobID) (*Job, error) {
	next, err := nextJobID(txn)
	if err != nil {
		return nil, err
	}
	if id >= next {
		return nil, errors.Wrapf(ErrNotFound, "job %d", id)
	}
	return getJob(txn, id)
}

// Create stores a new OPEN job whose budget is the value attached to call.
// The value moves from the caller's account into escrow in the same commit.
func (r *Registry) Create(ctx context.Context, call Call, req CreateRequest) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var created *Job
	err := r.update(func(txn db.Txn) error {
		okey := ownerKey(call.Caller, req.Role)
		if existing, found, err := getID(txn, okey); err != nil {
			return err
		} else if found {
			return errors.Wrapf(ErrAlreadyHasActiveJob, "%s holds job %d as %s", call.Caller, existing, req.Role)
		}

		id, err := nextJobID(txn)
		if err != nil {
			return err
		}

		if err := r.custody.Hold(ctx, txn, call.Caller, call.Value); err != nil {
			return errors.Mark(errors.Wrapf(err, "hold %d from %s", call.Value, call.Caller), ErrHoldFailed)
		}

		now := r.now()
		j := &Job{
			ID:          id,
			Name:        req.Name,
			Description: req.Description,
			Owner:       call.Caller,
			Role:        req.Role,
			Budget:      call.Value,
			Status:      StatusOpen,
			Check:       req.Check,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := putJob(txn, j); err != nil {
			return err
		}
		if err := set(txn, okey, formatID(id)); err != nil {
			return err
		}
		if err := set(txn, keyNextJobID, formatID(id+1)); err != nil {
			return err
		}
		created = j
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debugw("job created",
		logging.FieldJobID, created.ID,
		logging.FieldIdentity, call.Caller,
		logging.FieldRole, created.Role.String(),
		logging.FieldAmount, created.Budget)
	return created, nil
}

// Get returns a single job record.
func (r *Registry) Get(ctx context.Context, id JobID) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var j *Job
	err := r.view(func(txn db.Txn) error {
		var err error
		j, err = loadInRange(txn, id)
		return err
	})
	return j, err
}

// ListByStatus scans ids 0..next-1 and returns matching jobs in ascending id
// order. A nil owner keeps every match; otherwise only jobs whose owner of
// record is *owner are returned.
func (r *Registry) ListByStatus(ctx context.Context, status Status, owner *Identity) ([]*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := []*Job{}
	err := r.view(func(txn db.Txn) error {
		next, err := nextJobID(txn)
		if err != nil {
			return err
		}
		for id := JobID(0); id < next; id++ {
			j, err := getJob(txn, id)
			if err != nil {
				return err
			}
			if j.Status != status {
				continue
			}
			if owner != nil && j.Owner != *owner {
				continue
			}
			jobs = append(jobs, j)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// Obtain assigns an OPEN or REOPEN job to the caller. The incumbent worker of
// a rejected job may re-obtain it to start the rework.
func (r *Registry) Obtain(ctx context.Context, caller Identity, id JobID) error {
	_, err := r.ObtainJob(ctx, caller, id)
	return err
}

// ObtainJob is Obtain returning the record it committed.
func (r *Registry) ObtainJob(ctx context.Context, caller Identity, id JobID) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var obtained *Job
	err := r.update(func(txn db.Txn) error {
		j, err := loadInRange(txn, id)
		if err != nil {
			return err
		}

		assigned, isAssigned, err := getIdentity(txn, assignmentKey(id))
		if err != nil {
			return err
		}
		rework := isAssigned && assigned == caller && j.Status == StatusReopen
		if isAssigned && !rework {
			return errors.Wrapf(ErrAlreadyAssigned, "job %d", id)
		}

		held, busy, err := getID(txn, workerKey(caller))
		if err != nil {
			return err
		}
		if busy && held != id {
			return errors.Wrapf(ErrWorkerBusy, "%s holds job %d", caller, held)
		}

		if j.Status != StatusOpen && j.Status != StatusReopen {
			return errors.Wrapf(ErrInvalidState, "job %d is %s", id, j.Status)
		}

		j.Status = StatusDoing
		j.Worker = caller
		j.UpdatedAt = r.now()
		if err := putJob(txn, j); err != nil {
			return err
		}
		if err := set(txn, assignmentKey(id), []byte(caller)); err != nil {
			return err
		}
		if err := set(txn, workerKey(caller), formatID(id)); err != nil {
			return err
		}
		obtained = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return obtained, nil
}

// Submit stores the worker's result and moves the job to REVIEW.
func (r *Registry) Submit(ctx context.Context, caller Identity, id JobID, result string) error {
	_, err := r.SubmitJob(ctx, caller, id, result)
	return err
}

// SubmitJob is Submit returning the record it committed.
func (r *Registry) SubmitJob(ctx context.Context, caller Identity, id JobID, result string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var submitted *Job
	err := r.update(func(txn db.Txn) error {
		j, err := loadInRange(txn, id)
		if err != nil {
			return err
		}

		worker, err := assignedWorker(txn, j)
		if err != nil {
			return err
		}
		if worker == "" || worker != caller {
			return errors.Wrapf(ErrNotAssignedWorker, "job %d", id)
		}

		switch j.Status {
		case StatusDoing, StatusReopen:
			j.Result = &result
			j.Status = StatusReview
			j.UpdatedAt = r.now()
			submitted = j
			return putJob(txn, j)
		case StatusReview:
			return errors.Wrapf(ErrAlreadySubmitted, "job %d", id)
		default:
			return errors.Wrapf(ErrJobFinished, "job %d", id)
		}
	})
	if err != nil {
		return nil, err
	}
	return submitted, nil
}

// Reject clears the submitted result and reopens the job for rework.
func (r *Registry) Reject(ctx context.Context, caller Identity, id JobID, role Role) error {
	_, err := r.RejectJob(ctx, caller, id, role)
	return err
}

// RejectJob is Reject returning the record it committed.
func (r *Registry) RejectJob(ctx context.Context, caller Identity, id JobID, role Role) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var reopened *Job
	err := r.update(func(txn db.Txn) error {
		j, err := r.ownedJob(txn, caller, id, role)
		if err != nil {
			return err
		}

		switch j.Status {
		case StatusReview:
			j.Result = nil
			j.Status = StatusReopen
			j.UpdatedAt = r.now()
			reopened = j
			return putJob(txn, j)
		case StatusDoing, StatusReopen:
			return errors.Wrapf(ErrStillProcessing, "job %d has no submission to reject", id)
		default:
			return errors.Wrapf(ErrJobFinished, "job %d", id)
		}
	})
	if err != nil {
		return nil, err
	}
	return reopened, nil
}

// Approve finishes the job, frees the owner and worker slots and pays the
// budget to the worker. The transfer is the last effect of the transaction.
func (r *Registry) Approve(ctx context.Context, caller Identity, id JobID, role Role) error {
	_, err := r.ApproveJob(ctx, caller, id, role)
	return err
}

// ApproveJob is Approve returning the record it committed.
func (r *Registry) ApproveJob(ctx context.Context, caller Identity, id JobID, role Role) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var paid *Job
	err := r.update(func(txn db.Txn) error {
		j, err := r.ownedJob(txn, caller, id, role)
		if err != nil {
			return err
		}

		switch j.Status {
		case StatusReview:
		case StatusDoing, StatusReopen:
			return errors.Wrapf(ErrStillProcessing, "job %d", id)
		default:
			return errors.Wrapf(ErrJobFinished, "job %d", id)
		}

		worker, found, err := getIdentity(txn, assignmentKey(id))
		if err != nil {
			return err
		}
		if !found {
			return errors.Mark(errors.Newf("job %d in review without assignment", id), ErrStorage)
		}

		j.Status = StatusFinish
		j.Worker = worker
		j.UpdatedAt = r.now()
		if err := putJob(txn, j); err != nil {
			return err
		}
		if err := del(txn, ownerKey(caller, role)); err != nil {
			return err
		}
		if err := del(txn, workerKey(worker)); err != nil {
			return err
		}
		if err := del(txn, assignmentKey(id)); err != nil {
			return err
		}

		if err := r.custody.Transfer(ctx, txn, worker, j.Budget); err != nil {
			return errors.Mark(errors.Wrapf(err, "pay %d to %s", j.Budget, worker), ErrTransferFailed)
		}
		paid = j
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Infow("job approved",
		logging.FieldJobID, id,
		logging.FieldIdentity, paid.Worker,
		logging.FieldAmount, paid.Budget)
	return paid, nil
}

// ownedJob loads the job and checks that caller is its owner of record under
// role. While the job is active that is the owner index entry; once finished
// the entry is gone and the record itself is authoritative.
func (r *Registry) ownedJob(txn db.Txn, caller Identity, id JobID, role Role) (*Job, error) {
	j, err := loadInRange(txn, id)
	if err != nil {
		return nil, err
	}

	if j.Status == StatusFinish {
		if j.Owner != caller || j.Role != role {
			return nil, errors.Wrapf(ErrNotOwnerOfRecord, "job %d", id)
		}
		return j, nil
	}

	owned, found, err := getID(txn, ownerKey(caller, role))
	if err != nil {
		return nil, err
	}
	if !found || owned != id {
		return nil, errors.Wrapf(ErrNotOwnerOfRecord, "job %d as %s", id, role)
	}
	return j, nil
}

// assignedWorker resolves who may submit for j: the assignment index while the
// job is active, the paid worker once it is finished.
func assignedWorker(txn db.Txn, j *Job) (Identity, error) {
	if j.Status == StatusFinish {
		return j.Worker, nil
	}
	worker, _, err := getIdentity(txn, assignmentKey(j.ID))
	return worker, err
}

// Activity is what an identity currently holds in the registry.
type Activity struct {
	Owned map[string]JobID `json:"owned"`
	Held  *JobID           `json:"held,omitempty"`
}

// ActivityOf reports the active owner slots and the held job of identity.
func (r *Registry) ActivityOf(ctx context.Context, identity Identity) (*Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	act := &Activity{Owned: make(map[string]JobID)}
	err := r.view(func(txn db.Txn) error {
		for _, role := range Roles() {
			id, found, err := getID(txn, ownerKey(identity, role))
			if err != nil {
				return err
			}
			if found {
				act.Owned[role.String()] = id
			}
		}
		id, found, err := getID(txn, workerKey(identity))
		if err != nil {
			return err
		}
		if found {
			act.Held = &id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return act, nil
}

// Stats counts jobs per status.
func (r *Registry) Stats(ctx context.Context) (map[Status]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[Status]int, len(Statuses))
	for _, s := range Statuses {
		counts[s] = 0
	}
	err := r.view(func(txn db.Txn) error {
		next, err := nextJobID(txn)
		if err != nil {
			return err
		}
		for id := JobID(0); id < next; id++ {
			j, err := getJob(txn, id)
			if err != nil {
				return err
			}
			counts[j.Status]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// NextJobID returns the id the next successful Create will allocate.
func (r *Registry) NextJobID(ctx context.Context) (JobID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var next JobID
	err := r.view(func(txn db.Txn) error {
		var err error
		next, err = nextJobID(txn)
		return err
	})
	return next, err
}
