package job

import (
	"github.com/cockroachdb/errors"
)

// Expected failures of registry operations. Check them with errors.Is.
var (
	ErrAlreadyHasActiveJob = errors.New("caller already has an active job under this role")
	ErrNotFound            = errors.New("job not found")
	ErrAlreadyAssigned     = errors.New("job already assigned")
	ErrWorkerBusy          = errors.New("worker already holds a job")
	ErrInvalidState        = errors.New("job is not open for obtaining")
	ErrNotAssignedWorker   = errors.New("caller is not the assigned worker")
	ErrAlreadySubmitted    = errors.New("result already submitted")
	ErrJobFinished         = errors.New("job finished")
	ErrStillProcessing     = errors.New("job still processing")
	ErrNotOwnerOfRecord    = errors.New("caller is not the owner of record")
	ErrNoResult            = errors.New("job has no result")
)

// Hard failures. They are marks, so errors.Is matches any error tagged with
// them regardless of the underlying cause.
var (
	ErrStorage        = errors.New("storage failure")
	ErrTransferFailed = errors.New("budget transfer failed")
	ErrHoldFailed     = errors.New("budget hold failed")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrAlreadyHasActiveJob, "already_has_active_job"},
	{ErrNotFound, "not_found"},
	{ErrAlreadyAssigned, "already_assigned"},
	{ErrWorkerBusy, "worker_busy"},
	{ErrInvalidState, "invalid_state"},
	{ErrNotAssignedWorker, "not_assigned_worker"},
	{ErrAlreadySubmitted, "already_submitted"},
	{ErrJobFinished, "job_finished"},
	{ErrStillProcessing, "still_processing"},
	{ErrNotOwnerOfRecord, "not_owner_of_record"},
	{ErrNoResult, "no_result"},
	{ErrTransferFailed, "transfer_failed"},
	{ErrHoldFailed, "hold_failed"},
	{ErrStorage, "storage_failure"},
}

// Code returns the stable machine-readable code for err, or "" when err is
// not part of the registry taxonomy.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

// FromCode maps a code produced by Code back to its sentinel.
func FromCode(code string) (error, bool) {
	for _, c := range codes {
		if c.code == code {
			return c.err, true
		}
	}
	return nil, false
}

// IsDomain reports whether err is an expected outcome of a guard rather than
// a hard failure.
func IsDomain(err error) bool {
	return errors.IsAny(err,
		ErrAlreadyHasActiveJob, ErrNotFound, ErrAlreadyAssigned, ErrWorkerBusy,
		ErrInvalidState, ErrNotAssignedWorker, ErrAlreadySubmitted, ErrJobFinished,
		ErrStillProcessing, ErrNotOwnerOfRecord, ErrNoResult)
}

func storageErr(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrStorage)
}
