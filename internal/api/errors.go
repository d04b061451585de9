package api

import (
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/zerverless/jobmarket/internal/custody"
	"github.com/zerverless/jobmarket/internal/job"
	"github.com/zerverless/jobmarket/internal/logging"
	"github.com/zerverless/jobmarket/internal/market"
)

var ErrUnauthorized = errors.New("caller identity required")

// Failures outside the registry taxonomy that still have a stable code.
var extraCodes = []struct {
	err  error
	code string
}{
	{ErrUnauthorized, "unauthorized"},
	{custody.ErrInsufficientFunds, "insufficient_funds"},
	{market.ErrInvalidRequest, "invalid_request"},
	{market.ErrNoCheck, "no_check"},
	{market.ErrCheckError, "check_error"},
}

var codeStatus = map[string]int{
	"unauthorized":           http.StatusUnauthorized,
	"insufficient_funds":     http.StatusPaymentRequired,
	"invalid_request":        http.StatusBadRequest,
	"no_check":               http.StatusNotFound,
	"check_error":            http.StatusUnprocessableEntity,
	"not_found":              http.StatusNotFound,
	"already_has_active_job": http.StatusConflict,
	"already_assigned":       http.StatusConflict,
	"worker_busy":            http.StatusConflict,
	"invalid_state":          http.StatusConflict,
	"already_submitted":      http.StatusConflict,
	"job_finished":           http.StatusConflict,
	"still_processing":       http.StatusConflict,
	"no_result":              http.StatusConflict,
	"not_assigned_worker":    http.StatusForbidden,
	"not_owner_of_record":    http.StatusForbidden,
	"transfer_failed":        http.StatusInternalServerError,
	"hold_failed":            http.StatusInternalServerError,
	"storage_failure":        http.StatusInternalServerError,
}

// ErrorCode returns the wire code for err, "internal" when it has none.
func ErrorCode(err error) string {
	for _, c := range extraCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	if code := job.Code(err); code != "" {
		return code
	}
	return "internal"
}

// SentinelFor maps a wire code back to the error it was produced from.
func SentinelFor(code string) (error, bool) {
	if err, ok := job.FromCode(code); ok {
		return err, true
	}
	for _, c := range extraCodes {
		if c.code == code {
			return c.err, true
		}
	}
	return nil, false
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := ErrorCode(err)
	status, ok := codeStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		logging.ComponentLogger("api").Errorw("request failed",
			logging.FieldMethod, r.Method,
			logging.FieldPath, r.URL.Path,
			logging.FieldErrorCode, code,
			logging.FieldError, err)
	}

	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}
