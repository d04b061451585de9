package job

import (
	"strings"

	"github.com/cockroachdb/errors"
)

type roleKind uint8

const (
	roleIndividual roleKind = iota
	roleEnterprise
)

type EnterpriseRole uint8

const (
	TeamLead EnterpriseRole = iota
	Accountant
)

func (e EnterpriseRole) String() string {
	switch e {
	case TeamLead:
		return "TEAMLEAD"
	case Accountant:
		return "ACCOUNTANT"
	default:
		return "UNKNOWN"
	}
}

// Role is the capacity an owner acts in. Values compare with ==: two
// enterprise roles are equal only when their sub-roles match.
type Role struct {
	kind roleKind
	sub  EnterpriseRole
}

// Individual is the default role.
var Individual = Role{}

func Enterprise(sub EnterpriseRole) Role {
	return Role{kind: roleEnterprise, sub: sub}
}

// Roles lists every role an owner can hold a job under.
func Roles() []Role {
	return []Role{Individual, Enterprise(TeamLead), Enterprise(Accountant)}
}

func (r Role) IsEnterprise() bool {
	return r.kind == roleEnterprise
}

// Sub returns the enterprise sub-role; ok is false for Individual.
func (r Role) Sub() (EnterpriseRole, bool) {
	return r.sub, r.kind == roleEnterprise
}

func (r Role) String() string {
	if r.kind == roleEnterprise {
		return "ENTERPRISE(" + r.sub.String() + ")"
	}
	return "INDIVIDUAL"
}

// ParseRole accepts INDIVIDUAL, ENTERPRISE(TEAMLEAD) and the shorthand
// ENTERPRISE:ACCOUNTANT, case-insensitively. An empty string is Individual.
func ParseRole(s string) (Role, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == "" || v == "INDIVIDUAL" {
		return Individual, nil
	}

	var sub string
	switch {
	case strings.HasPrefix(v, "ENTERPRISE(") && strings.HasSuffix(v, ")"):
		sub = v[len("ENTERPRISE(") : len(v)-1]
	case strings.HasPrefix(v, "ENTERPRISE:"):
		sub = v[len("ENTERPRISE:"):]
	default:
		return Role{}, errors.Newf("unknown role %q", s)
	}

	switch strings.TrimSpace(sub) {
	case "TEAMLEAD":
		return Enterprise(TeamLead), nil
	case "ACCOUNTANT":
		return Enterprise(Accountant), nil
	default:
		return Role{}, errors.Newf("unknown enterprise role %q", sub)
	}
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
