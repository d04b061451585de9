package job

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Identity is the opaque caller token supplied by the identity provider.
type Identity string

// Amount is a quantity of value held in custody.
type Amount uint64

type JobID uint64

type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusDoing  Status = "DOING"
	StatusReview Status = "REVIEW"
	StatusReopen Status = "REOPEN"
	StatusFinish Status = "FINISH"
)

var Statuses = []Status{StatusOpen, StatusDoing, StatusReview, StatusReopen, StatusFinish}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Statuses {
		if st == known {
			return st, nil
		}
	}
	return "", errors.Newf("unknown status %q", s)
}

// Check is an optional acceptance script attached to a job at creation.
type Check struct {
	Language string `json:"language" yaml:"language"`
	Code     string `json:"code" yaml:"code"`
}

type Job struct {
	ID          JobID     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Owner       Identity  `json:"owner"`
	Role        Role      `json:"role"`
	Budget      Amount    `json:"budget"`
	Status      Status    `json:"status"`
	Result      *string   `json:"result,omitempty"`
	Worker      Identity  `json:"worker,omitempty"`
	Check       *Check    `json:"check,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasResult reports whether a worker submission is currently stored.
func (j *Job) HasResult() bool {
	return j.Result != nil
}

// Call carries what the execution environment knows about the current
// invocation: who is calling and how much value is attached.
type Call struct {
	Caller Identity
	Value  Amount
}

type CreateRequest struct {
	Name        string
	Description string
	Role        Role
	Check       *Check
}
