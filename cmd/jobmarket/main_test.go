package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerverless/jobmarket/internal/feed"
	"github.com/zerverless/jobmarket/internal/job"
)

func sampleJob() *job.Job {
	result := "done"
	return &job.Job{
		ID:     7,
		Name:   "paint fence",
		Owner:  "alice",
		Role:   job.Enterprise(job.Accountant),
		Budget: 40,
		Status: job.StatusReview,
		Worker: "bob",
		Result: &result,
	}
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	j := sampleJob()
	require.NoError(t, render(&buf, "json", j, jobTable(j)))

	assert.Contains(t, buf.String(), `"name": "paint fence"`)
	assert.Contains(t, buf.String(), `"role": "ENTERPRISE(ACCOUNTANT)"`)
}

func TestRender_YAMLUsesAPIFieldNames(t *testing.T) {
	var buf bytes.Buffer
	j := sampleJob()
	require.NoError(t, render(&buf, "yaml", j, jobTable(j)))

	assert.Contains(t, buf.String(), "name: paint fence")
	assert.Contains(t, buf.String(), "status: REVIEW")
	assert.Contains(t, buf.String(), "created_at:")
}

func TestRender_Table(t *testing.T) {
	var buf bytes.Buffer
	j := sampleJob()
	require.NoError(t, render(&buf, "table", []*job.Job{j}, jobsTable([]*job.Job{j})))

	out := buf.String()
	assert.Contains(t, out, "paint fence")
	assert.Contains(t, out, "REVIEW")
	assert.Contains(t, out, "bob")
}

func TestRender_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, render(&buf, "xml", nil, nil))
}

func TestParseJobID(t *testing.T) {
	id, err := parseJobID("12")
	require.NoError(t, err)
	assert.Equal(t, job.JobID(12), id)

	_, err = parseJobID("-1")
	assert.Error(t, err)
}

func TestCreateRequest_FromManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "check.lua"), []byte("function check(r) return true end"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "posting.yaml"), []byte(`
apiVersion: jobmarket.zerverless.io/v1
kind: JobPosting
metadata:
  name: proofread
spec:
  description: proofread chapter one
  role: enterprise(teamlead)
  budget: 90
  check:
    language: lua
    codeFile: check.lua
`), 0644))

	createFile = filepath.Join(dir, "posting.yaml")
	t.Cleanup(func() { createFile = "" })

	req, err := createRequest()
	require.NoError(t, err)
	assert.Equal(t, "proofread", req.Name)
	assert.Equal(t, "ENTERPRISE(TEAMLEAD)", req.Role)
	assert.Equal(t, job.Amount(90), req.Budget)
	require.NotNil(t, req.Check)
	assert.Equal(t, "lua", req.Check.Language)
	assert.Contains(t, req.Check.Code, "function check")
}

func TestCreateRequest_RequiresName(t *testing.T) {
	_, err := createRequest()
	assert.Error(t, err)
}

func TestEventLine(t *testing.T) {
	line := eventLine(feed.JobEvent(feed.EventJobSubmitted, sampleJob(), "bob"))
	assert.Contains(t, line, "job.submitted")
	assert.Contains(t, line, "job=7")
	assert.Contains(t, line, "status=REVIEW")
	assert.Contains(t, line, "actor=bob")
}
