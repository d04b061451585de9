// Package check evaluates the acceptance scripts attached to jobs against a
// submitted result. A script defines check(result) and returns either a
// boolean or a {passed, message} value.
package check

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/zerverless/jobmarket/internal/job"
)

var (
	ErrUnsupportedLanguage = errors.New("unsupported check language")
	ErrNoCheckFunction     = errors.New("check function not defined")
	ErrBadVerdict          = errors.New("check must return a boolean or {passed, message}")
)

// Verdict is the outcome of one evaluation. Output holds anything the script
// printed.
type Verdict struct {
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
	Output  string `json:"output,omitempty"`
}

type Runtime interface {
	Compile(code string) error
	Evaluate(ctx context.Context, code, result string, timeout time.Duration) (*Verdict, error)
}

// Runner dispatches checks to the runtime for their language.
type Runner struct {
	runtimes map[string]Runtime
	timeout  time.Duration
}

func NewRunner(timeout time.Duration) *Runner {
	lua := NewLuaRuntime()
	js := NewJSRuntime()
	return &Runner{
		runtimes: map[string]Runtime{
			"lua":        lua,
			"js":         js,
			"javascript": js,
		},
		timeout: timeout,
	}
}

func (r *Runner) runtime(language string) (Runtime, error) {
	rt, ok := r.runtimes[strings.ToLower(language)]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedLanguage, "%q", language)
	}
	return rt, nil
}

// Validate rejects checks that could never run: unknown languages and code
// that does not compile.
func (r *Runner) Validate(c *job.Check) error {
	if c == nil {
		return nil
	}
	rt, err := r.runtime(c.Language)
	if err != nil {
		return err
	}
	if strings.TrimSpace(c.Code) == "" {
		return errors.New("check code is empty")
	}
	return errors.Wrap(rt.Compile(c.Code), "compile check")
}

func (r *Runner) Evaluate(ctx context.Context, c *job.Check, result string) (*Verdict, error) {
	rt, err := r.runtime(c.Language)
	if err != nil {
		return nil, err
	}
	return rt.Evaluate(ctx, c.Code, result, r.timeout)
}

// EvaluateJob runs the job's check against its current result.
func (r *Runner) EvaluateJob(ctx context.Context, j *job.Job) (*Verdict, error) {
	if j.Check == nil {
		return nil, errors.Newf("job %d has no check", j.ID)
	}
	if !j.HasResult() {
		return nil, errors.Wrapf(job.ErrNoResult, "job %d", j.ID)
	}
	return r.Evaluate(ctx, j.Check, *j.Result)
}
