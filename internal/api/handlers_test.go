package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerverless/jobmarket/internal/check"
	"github.com/zerverless/jobmarket/internal/config"
	"github.com/zerverless/jobmarket/internal/custody"
	"github.com/zerverless/jobmarket/internal/db"
	"github.com/zerverless/jobmarket/internal/feed"
	"github.com/zerverless/jobmarket/internal/identity"
	"github.com/zerverless/jobmarket/internal/job"
	"github.com/zerverless/jobmarket/internal/market"
)

func testConfig() *config.Config {
	return &config.Config{
		NodeID:   "test-node",
		HTTP:     config.HTTPConfig{Port: 8000, CORSOrigins: []string{"*"}},
		Storage:  config.StorageConfig{Driver: db.DriverMemory},
		Identity: config.IdentityConfig{Header: identity.DefaultHeader},
		Ledger:   config.LedgerConfig{Faucet: true},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	kv := db.NewMemoryStore()
	t.Cleanup(func() { _ = kv.Close() })

	ledger := custody.NewLedger(kv)
	bus := feed.NewBus()
	svc := market.NewService(job.NewRegistry(kv, ledger), ledger, check.NewRunner(time.Second), bus)
	return NewRouter(cfg, svc, bus, feed.NewManager())
}

func do(t *testing.T, h http.Handler, method, path string, caller job.Identity, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if caller != "" {
		req.Header.Set(identity.DefaultHeader, string(caller))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, testConfig())

	w := do(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, w)["status"])
}

func TestInfo(t *testing.T) {
	router := newTestRouter(t, testConfig())

	w := do(t, router, http.MethodGet, "/info", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode[map[string]any](t, w)
	assert.Equal(t, "test-node", resp["node_id"])
	assert.Equal(t, Version, resp["version"])
}

func TestStats(t *testing.T) {
	router := newTestRouter(t, testConfig())

	w := do(t, router, http.MethodGet, "/stats", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	resp := decode[map[string]any](t, w)
	subscribers := resp["subscribers"].(map[string]any)
	assert.Equal(t, float64(0), subscribers["connected"])
	jobs := resp["jobs"].(map[string]any)
	assert.Equal(t, float64(0), jobs["OPEN"])
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t, testConfig())

	w := do(t, router, http.MethodPost, "/api/accounts/alice/fund", "alice", FundRequest{Amount: 100})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, http.MethodPost, "/api/jobs", "alice", CreateJobRequest{
		Name:   "write docs",
		Role:   "ENTERPRISE(TEAMLEAD)",
		Budget: 40,
		Check:  &CheckRequest{Language: "js", Code: `function check(r) { return r.length > 3 }`},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[job.Job](t, w)
	assert.Equal(t, job.JobID(0), created.ID)
	assert.Equal(t, job.StatusOpen, created.Status)
	assert.Equal(t, job.Enterprise(job.TeamLead), created.Role)

	w = do(t, router, http.MethodPost, "/api/jobs/0/obtain", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, job.StatusDoing, decode[job.Job](t, w).Status)

	w = do(t, router, http.MethodPost, "/api/jobs/0/submit", "bob", SubmitRequest{Result: "the docs"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, http.MethodGet, "/api/jobs/0/check", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[check.Verdict](t, w).Passed)

	// Approve needs the role the job was created under.
	w = do(t, router, http.MethodPost, "/api/jobs/0/approve", "alice", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "not_owner_of_record", decode[errorResponse](t, w).Code)

	w = do(t, router, http.MethodPost, "/api/jobs/0/approve", "alice", RoleRequest{Role: "enterprise:teamlead"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, job.StatusFinish, decode[job.Job](t, w).Status)

	w = do(t, router, http.MethodGet, "/api/accounts/me", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	acct := decode[market.Account](t, w)
	assert.Equal(t, job.Amount(40), acct.Balance)

	w = do(t, router, http.MethodGet, "/api/jobs?status=FINISH&owner=alice", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Jobs  []job.Job `json:"jobs"`
		Total int       `json:"total"`
	}](t, w)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, job.Identity("bob"), list.Jobs[0].Worker)
}

func TestErrorMapping(t *testing.T) {
	router := newTestRouter(t, testConfig())

	tests := []struct {
		name   string
		method string
		path   string
		caller job.Identity
		body   any
		status int
		code   string
	}{
		{"anonymous create", http.MethodPost, "/api/jobs", "", CreateJobRequest{Name: "x"}, http.StatusUnauthorized, "unauthorized"},
		{"missing job", http.MethodGet, "/api/jobs/9", "", nil, http.StatusNotFound, "not_found"},
		{"bad id", http.MethodGet, "/api/jobs/abc", "", nil, http.StatusBadRequest, "invalid_request"},
		{"bad status", http.MethodGet, "/api/jobs?status=DONE", "", nil, http.StatusBadRequest, "invalid_request"},
		{"no funds", http.MethodPost, "/api/jobs", "carol", CreateJobRequest{Name: "x", Budget: 5}, http.StatusPaymentRequired, "insufficient_funds"},
		{"bad role", http.MethodPost, "/api/jobs", "carol", CreateJobRequest{Name: "x", Role: "boss"}, http.StatusBadRequest, "invalid_request"},
		{"bad check", http.MethodPost, "/api/jobs", "carol", CreateJobRequest{Name: "x", Check: &CheckRequest{Language: "lua", Code: "function ("}}, http.StatusBadRequest, "invalid_request"},
		{"submit unassigned", http.MethodPost, "/api/jobs/9/submit", "bob", SubmitRequest{Result: "r"}, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, tt.method, tt.path, tt.caller, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			resp := decode[errorResponse](t, w)
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestCreateAcceptsEmptyName(t *testing.T) {
	router := newTestRouter(t, testConfig())

	w := do(t, router, http.MethodPost, "/api/jobs", "alice", CreateJobRequest{Description: "untitled"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	j := decode[job.Job](t, w)
	assert.Equal(t, "", j.Name)
	assert.Equal(t, "untitled", j.Description)
	assert.Equal(t, job.StatusOpen, j.Status)
}

func TestConflictCodes(t *testing.T) {
	router := newTestRouter(t, testConfig())

	w := do(t, router, http.MethodPost, "/api/jobs", "alice", CreateJobRequest{Name: "first"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, router, http.MethodPost, "/api/jobs", "alice", CreateJobRequest{Name: "second"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_has_active_job", decode[errorResponse](t, w).Code)

	w = do(t, router, http.MethodPost, "/api/jobs/0/reject", "alice", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "still_processing", decode[errorResponse](t, w).Code)

	w = do(t, router, http.MethodGet, "/api/jobs/0/check", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "no_check", decode[errorResponse](t, w).Code)

	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/jobs/0/obtain", "bob", nil).Code)
	w = do(t, router, http.MethodPost, "/api/jobs/0/obtain", "carol", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_assigned", decode[errorResponse](t, w).Code)
}

func TestListOwnerMe(t *testing.T) {
	router := newTestRouter(t, testConfig())

	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/jobs", "alice", CreateJobRequest{Name: "a"}).Code)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/jobs", "bob", CreateJobRequest{Name: "b"}).Code)

	w := do(t, router, http.MethodGet, "/api/jobs?status=open&owner=me", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Jobs []job.Job `json:"jobs"`
	}](t, w)
	require.Len(t, list.Jobs, 1)
	assert.Equal(t, job.Identity("bob"), list.Jobs[0].Owner)

	w = do(t, router, http.MethodGet, "/api/jobs?status=OPEN&owner=me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFaucetDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Ledger.Faucet = false
	router := newTestRouter(t, cfg)

	w := do(t, router, http.MethodPost, "/api/accounts/alice/fund", "alice", FundRequest{Amount: 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBearerToken(t *testing.T) {
	cfg := testConfig()
	cfg.Identity.Tokens = []config.TokenIdentity{{Token: "tok", Identity: "dave"}}
	router := newTestRouter(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/accounts/me", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, job.Identity("dave"), decode[market.Account](t, w).Identity)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.HTTP.RateLimit = 1
	cfg.HTTP.RateBurst = 2
	router := newTestRouter(t, cfg)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/accounts/me", "alice", nil).Code)
	}
	w := do(t, router, http.MethodGet, "/api/accounts/me", "alice", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", decode[errorResponse](t, w).Code)

	// Other callers have their own bucket; health is not limited.
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/accounts/me", "bob", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/health", "alice", nil).Code)
}

func TestCORS(t *testing.T) {
	h := WithCORS(newTestRouter(t, testConfig()), []string{"https://market.example"})

	req := httptest.NewRequest(http.MethodOptions, "/api/jobs", nil)
	req.Header.Set("Origin", "https://market.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "https://market.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSentinelFor(t *testing.T) {
	err, ok := SentinelFor("worker_busy")
	require.True(t, ok)
	assert.Equal(t, job.ErrWorkerBusy, err)

	err, ok = SentinelFor("insufficient_funds")
	require.True(t, ok)
	assert.Equal(t, custody.ErrInsufficientFunds, err)

	_, ok = SentinelFor("nope")
	assert.False(t, ok)
}
