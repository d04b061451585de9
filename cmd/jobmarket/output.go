package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"

	"github.com/zerverless/jobmarket/internal/check"
	"github.com/zerverless/jobmarket/internal/feed"
	"github.com/zerverless/jobmarket/internal/job"
	"github.com/zerverless/jobmarket/internal/market"
)

// render writes v as json or yaml, or calls table for the default format.
func render(w io.Writer, format string, v any, table func() [][]string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		// Round-trip through json so yaml keys follow the API field names.
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		out, err := yaml.Marshal(generic)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	case "table", "":
		s, err := pterm.DefaultTable.WithHasHeader().WithData(table()).Srender()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, s)
		return err
	default:
		return errors.Newf("unknown output format %q", format)
	}
}

var jobHeader = []string{"ID", "NAME", "STATUS", "OWNER", "ROLE", "BUDGET", "WORKER"}

func jobRow(j *job.Job) []string {
	worker := string(j.Worker)
	if worker == "" {
		worker = "-"
	}
	return []string{
		strconv.FormatUint(uint64(j.ID), 10),
		j.Name,
		string(j.Status),
		string(j.Owner),
		j.Role.String(),
		strconv.FormatUint(uint64(j.Budget), 10),
		worker,
	}
}

func jobsTable(jobs []*job.Job) func() [][]string {
	return func() [][]string {
		data := [][]string{jobHeader}
		for _, j := range jobs {
			data = append(data, jobRow(j))
		}
		return data
	}
}

func jobTable(j *job.Job) func() [][]string {
	return func() [][]string {
		data := [][]string{{"FIELD", "VALUE"}}
		for i, h := range jobHeader {
			data = append(data, []string{h, jobRow(j)[i]})
		}
		if j.Description != "" {
			data = append(data, []string{"DESCRIPTION", j.Description})
		}
		if j.Result != nil {
			data = append(data, []string{"RESULT", *j.Result})
		}
		if j.Check != nil {
			data = append(data, []string{"CHECK", j.Check.Language})
		}
		return data
	}
}

func accountTable(a *market.Account) func() [][]string {
	return func() [][]string {
		data := [][]string{
			{"FIELD", "VALUE"},
			{"IDENTITY", string(a.Identity)},
			{"BALANCE", strconv.FormatUint(uint64(a.Balance), 10)},
		}
		if a.Activity == nil {
			return data
		}
		for role, id := range a.Activity.Owned {
			data = append(data, []string{"OWNS " + role, strconv.FormatUint(uint64(id), 10)})
		}
		if a.Activity.Held != nil {
			data = append(data, []string{"HOLDS", strconv.FormatUint(uint64(*a.Activity.Held), 10)})
		}
		return data
	}
}

func verdictTable(v *check.Verdict) func() [][]string {
	return func() [][]string {
		data := [][]string{
			{"FIELD", "VALUE"},
			{"PASSED", strconv.FormatBool(v.Passed)},
		}
		if v.Message != "" {
			data = append(data, []string{"MESSAGE", v.Message})
		}
		if v.Output != "" {
			data = append(data, []string{"OUTPUT", strings.TrimRight(v.Output, "\n")})
		}
		return data
	}
}

func statsTable(stats map[string]any) func() [][]string {
	return func() [][]string {
		data := [][]string{{"KEY", "VALUE"}}
		for k, v := range stats {
			data = append(data, []string{k, fmt.Sprint(v)})
		}
		return data
	}
}

// eventLine formats a feed event for streaming output.
func eventLine(e feed.Event) string {
	var b strings.Builder
	b.WriteString(e.At.Format("15:04:05"))
	b.WriteString(" ")
	b.WriteString(string(e.Type))
	if e.JobID != nil {
		fmt.Fprintf(&b, " job=%d", *e.JobID)
	}
	if e.Status != "" {
		fmt.Fprintf(&b, " status=%s", e.Status)
	}
	if e.Actor != "" {
		fmt.Fprintf(&b, " actor=%s", e.Actor)
	}
	if e.Amount > 0 {
		fmt.Fprintf(&b, " amount=%d", e.Amount)
	}
	return b.String()
}
