// Package manifest reads JobPosting documents, the declarative form of a
// create call used by the CLI.
package manifest

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/zerverless/jobmarket/internal/job"
)

const (
	APIVersion = "jobmarket.zerverless.io/v1"
	Kind       = "JobPosting"
)

type Posting struct {
	APIVersion string      `yaml:"apiVersion"`
	Kind       string      `yaml:"kind"`
	Metadata   PostingMeta `yaml:"metadata"`
	Spec       PostingSpec `yaml:"spec"`
}

type PostingMeta struct {
	Name string `yaml:"name"`
}

type PostingSpec struct {
	Description string     `yaml:"description"`
	Role        string     `yaml:"role,omitempty"`
	Budget      uint64     `yaml:"budget"`
	Check       *CheckSpec `yaml:"check,omitempty"`
}

type CheckSpec struct {
	Language string `yaml:"language"`
	Code     string `yaml:"code,omitempty"`
	CodeFile string `yaml:"codeFile,omitempty"` // relative to the manifest
}

func ParsePosting(data []byte) (*Posting, error) {
	var p Posting
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, "yaml parse")
	}

	if p.APIVersion != APIVersion {
		return nil, errors.Newf("invalid apiVersion: %s", p.APIVersion)
	}
	if p.Kind != Kind {
		return nil, errors.Newf("invalid kind: %s", p.Kind)
	}
	if p.Metadata.Name == "" {
		return nil, errors.New("metadata.name is required")
	}
	if _, err := job.ParseRole(p.Spec.Role); err != nil {
		return nil, err
	}
	if c := p.Spec.Check; c != nil {
		if c.Language == "" {
			return nil, errors.New("spec.check.language is required")
		}
		if (c.Code == "") == (c.CodeFile == "") {
			return nil, errors.New("spec.check needs exactly one of code or codeFile")
		}
	}

	return &p, nil
}

// LoadFile parses the manifest at path and inlines a check codeFile.
func LoadFile(path string) (*Posting, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read manifest")
	}
	p, err := ParsePosting(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}

	if c := p.Spec.Check; c != nil && c.CodeFile != "" {
		codePath := c.CodeFile
		if !filepath.IsAbs(codePath) {
			codePath = filepath.Join(filepath.Dir(path), codePath)
		}
		code, err := os.ReadFile(codePath)
		if err != nil {
			return nil, errors.Wrap(err, "read check codeFile")
		}
		c.Code = string(code)
		c.CodeFile = ""
	}
	return p, nil
}

// Request converts the posting into a create request and the budget to
// attach to the call.
func (p *Posting) Request() (job.CreateRequest, job.Amount, error) {
	role, err := job.ParseRole(p.Spec.Role)
	if err != nil {
		return job.CreateRequest{}, 0, err
	}

	req := job.CreateRequest{
		Name:        p.Metadata.Name,
		Description: p.Spec.Description,
		Role:        role,
	}
	if c := p.Spec.Check; c != nil {
		if c.Code == "" {
			return job.CreateRequest{}, 0, errors.New("check codeFile was not loaded")
		}
		req.Check = &job.Check{Language: c.Language, Code: c.Code}
	}
	return req, job.Amount(p.Spec.Budget), nil
}
