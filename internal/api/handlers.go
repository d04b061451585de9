package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"

	"github.com/zerverless/jobmarket/internal/config"
	"github.com/zerverless/jobmarket/internal/feed"
	"github.com/zerverless/jobmarket/internal/identity"
	"github.com/zerverless/jobmarket/internal/job"
	"github.com/zerverless/jobmarket/internal/market"
)

var startTime = time.Now()

const Version = "0.1.0"

type Handlers struct {
	cfg         *config.Config
	svc         *market.Service
	subscribers *feed.Manager
}

func NewHandlers(cfg *config.Config, svc *market.Service, subscribers *feed.Manager) *Handlers {
	return &Handlers{cfg: cfg, svc: svc, subscribers: subscribers}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handlers) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"node_id":        h.cfg.NodeID,
		"version":        Version,
		"uptime_seconds": int(time.Since(startTime).Seconds()),
		"storage":        h.cfg.Storage.Driver,
		"faucet":         h.cfg.Ledger.Faucet,
	})
}

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"node_id":        h.cfg.NodeID,
		"uptime_seconds": int(time.Since(startTime).Seconds()),
		"jobs":           st.Jobs,
		"next_job_id":    st.NextID,
		"escrowed":       st.Escrowed,
		"subscribers":    h.subscribers.Stats(),
	})
}

type CheckRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

type CreateJobRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Role        string        `json:"role,omitempty"`
	Budget      job.Amount    `json:"budget"`
	Check       *CheckRequest `json:"check,omitempty"`
}

type SubmitRequest struct {
	Result string `json:"result"`
}

// RoleRequest is the body of reject and approve; an empty role is INDIVIDUAL.
type RoleRequest struct {
	Role string `json:"role,omitempty"`
}

type FundRequest struct {
	Amount job.Amount `json:"amount"`
}

func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req CreateJobRequest
	if !decodeBody(w, r, &req) {
		return
	}
	role, err := job.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, errors.Mark(err, market.ErrInvalidRequest))
		return
	}

	cr := job.CreateRequest{Name: req.Name, Description: req.Description, Role: role}
	if req.Check != nil {
		cr.Check = &job.Check{Language: req.Check.Language, Code: req.Check.Code}
	}

	j, err := h.svc.Create(r.Context(), caller, req.Budget, cr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	j, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// ListJobs requires status. owner narrows to one owner of record; the value
// "me" means the caller.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	status, err := job.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, r, errors.Mark(err, market.ErrInvalidRequest))
		return
	}

	var owner *job.Identity
	if o := r.URL.Query().Get("owner"); o != "" {
		id := job.Identity(o)
		if o == "me" {
			caller, ok := requireCaller(w, r)
			if !ok {
				return
			}
			id = caller
		}
		owner = &id
	}

	jobs, err := h.svc.List(r.Context(), status, owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":   jobs,
		"total":  len(jobs),
		"status": status,
	})
}

func (h *Handlers) ObtainJob(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := callerAndJob(w, r)
	if !ok {
		return
	}
	j, err := h.svc.Obtain(r.Context(), caller, id)
	respond(w, r, j, err)
}

func (h *Handlers) SubmitJob(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := callerAndJob(w, r)
	if !ok {
		return
	}
	var req SubmitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	j, err := h.svc.Submit(r.Context(), caller, id, req.Result)
	respond(w, r, j, err)
}

func (h *Handlers) RejectJob(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := callerAndJob(w, r)
	if !ok {
		return
	}
	role, ok := decodeRole(w, r)
	if !ok {
		return
	}
	j, err := h.svc.Reject(r.Context(), caller, id, role)
	respond(w, r, j, err)
}

func (h *Handlers) ApproveJob(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := callerAndJob(w, r)
	if !ok {
		return
	}
	role, ok := decodeRole(w, r)
	if !ok {
		return
	}
	j, err := h.svc.Approve(r.Context(), caller, id, role)
	respond(w, r, j, err)
}

func (h *Handlers) CheckJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	v, err := h.svc.Check(r.Context(), id)
	respond(w, r, v, err)
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	acct, err := h.svc.Account(r.Context(), caller)
	respond(w, r, acct, err)
}

func (h *Handlers) Fund(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireCaller(w, r); !ok {
		return
	}
	var req FundRequest
	if !decodeBody(w, r, &req) {
		return
	}
	to := job.Identity(chi.URLParam(r, "identity"))
	acct, err := h.svc.Fund(r.Context(), to, req.Amount)
	respond(w, r, acct, err)
}

func respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func requireCaller(w http.ResponseWriter, r *http.Request) (job.Identity, bool) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, r, ErrUnauthorized)
		return "", false
	}
	return caller, true
}

func jobID(w http.ResponseWriter, r *http.Request) (job.JobID, bool) {
	n, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, errors.Wrap(market.ErrInvalidRequest, "job id must be a non-negative integer"))
		return 0, false
	}
	return job.JobID(n), true
}

func callerAndJob(w http.ResponseWriter, r *http.Request) (job.Identity, job.JobID, bool) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return "", 0, false
	}
	id, ok := jobID(w, r)
	return caller, id, ok
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, errors.Wrap(market.ErrInvalidRequest, "invalid request body"))
		return false
	}
	return true
}

// decodeRole reads an optional RoleRequest body.
func decodeRole(w http.ResponseWriter, r *http.Request) (job.Role, bool) {
	var req RoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, errors.Wrap(market.ErrInvalidRequest, "invalid request body"))
		return job.Role{}, false
	}
	role, err := job.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, errors.Mark(err, market.ErrInvalidRequest))
		return job.Role{}, false
	}
	return role, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
