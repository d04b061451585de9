package main

import (
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/zerverless/jobmarket/internal/api"
	"github.com/zerverless/jobmarket/internal/job"
	"github.com/zerverless/jobmarket/internal/manifest"
)

var (
	createFile        string
	createName        string
	createDescription string
	createRole        string
	createBudget      uint64
	createCheckLang   string
	createCheckFile   string

	listStatus string
	listOwner  string

	submitResult     string
	submitResultFile string

	reviewRole string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Post a job, holding its budget in escrow",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := createRequest()
		if err != nil {
			return err
		}
		j, err := newClient().CreateJob(cmd.Context(), req)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat, j, jobTable(j))
	},
}

// createRequest builds the request from a posting manifest when -f is given,
// otherwise from flags.
func createRequest() (api.CreateJobRequest, error) {
	if createFile != "" {
		posting, err := manifest.LoadFile(createFile)
		if err != nil {
			return api.CreateJobRequest{}, err
		}
		req, budget, err := posting.Request()
		if err != nil {
			return api.CreateJobRequest{}, err
		}
		out := api.CreateJobRequest{
			Name:        req.Name,
			Description: req.Description,
			Role:        req.Role.String(),
			Budget:      budget,
		}
		if req.Check != nil {
			out.Check = &api.CheckRequest{Language: req.Check.Language, Code: req.Check.Code}
		}
		return out, nil
	}

	if createName == "" {
		return api.CreateJobRequest{}, errors.New("--name or -f is required")
	}
	out := api.CreateJobRequest{
		Name:        createName,
		Description: createDescription,
		Role:        createRole,
		Budget:      job.Amount(createBudget),
	}
	if createCheckFile != "" {
		code, err := os.ReadFile(createCheckFile)
		if err != nil {
			return api.CreateJobRequest{}, errors.Wrap(err, "read check file")
		}
		out.Check = &api.CheckRequest{Language: createCheckLang, Code: string(code)}
	}
	return out, nil
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs in a status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := job.ParseStatus(listStatus)
		if err != nil {
			return err
		}
		jobs, err := newClient().ListJobs(cmd.Context(), status, listOwner)
		if err != nil {
			return err
		}
		if len(jobs) == 0 && outputFormat == "table" {
			pterm.Info.Printfln("No %s jobs", status)
			return nil
		}
		return render(cmd.OutOrStdout(), outputFormat, jobs, jobsTable(jobs))
	},
}

var getCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show a job record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseJobID(args[0])
		if err != nil {
			return err
		}
		j, err := newClient().GetJob(cmd.Context(), id)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat, j, jobTable(j))
	},
}

var obtainCmd = &cobra.Command{
	Use:   "obtain <job-id>",
	Short: "Take an open or reopened job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseJobID(args[0])
		if err != nil {
			return err
		}
		j, err := newClient().Obtain(cmd.Context(), id)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat, j, jobTable(j))
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit <job-id>",
	Short: "Submit a result for review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseJobID(args[0])
		if err != nil {
			return err
		}
		result := submitResult
		if submitResultFile != "" {
			data, err := os.ReadFile(submitResultFile)
			if err != nil {
				return errors.Wrap(err, "read result file")
			}
			result = string(data)
		}
		j, err := newClient().Submit(cmd.Context(), id, result)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat, j, jobTable(j))
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <job-id>",
	Short: "Send a submitted result back for rework",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, role, err := reviewArgs(args)
		if err != nil {
			return err
		}
		j, err := newClient().Reject(cmd.Context(), id, role)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat, j, jobTable(j))
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <job-id>",
	Short: "Accept a submitted result and pay the worker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, role, err := reviewArgs(args)
		if err != nil {
			return err
		}
		j, err := newClient().Approve(cmd.Context(), id, role)
		if err != nil {
			return err
		}
		pterm.Success.Printfln("Job %d approved, %d paid to %s", j.ID, j.Budget, j.Worker)
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <job-id>",
	Short: "Run the job's acceptance check against its submitted result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseJobID(args[0])
		if err != nil {
			return err
		}
		v, err := newClient().Check(cmd.Context(), id)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat, v, verdictTable(v))
	},
}

func init() {
	createCmd.Flags().StringVarP(&createFile, "file", "f", "", "JobPosting manifest")
	createCmd.Flags().StringVar(&createName, "name", "", "job name")
	createCmd.Flags().StringVar(&createDescription, "description", "", "job description")
	createCmd.Flags().StringVar(&createRole, "role", "", "owner role, INDIVIDUAL or ENTERPRISE(TEAMLEAD|ACCOUNTANT)")
	createCmd.Flags().Uint64Var(&createBudget, "budget", 0, "budget held in escrow")
	createCmd.Flags().StringVar(&createCheckLang, "check-lang", "lua", "acceptance check language: lua or js")
	createCmd.Flags().StringVar(&createCheckFile, "check-file", "", "acceptance check source file")

	listCmd.Flags().StringVar(&listStatus, "status", string(job.StatusOpen), "job status")
	listCmd.Flags().StringVar(&listOwner, "owner", "", "owner identity, or \"me\"")

	submitCmd.Flags().StringVar(&submitResult, "result", "", "result text")
	submitCmd.Flags().StringVar(&submitResultFile, "result-file", "", "read the result from a file")

	for _, c := range []*cobra.Command{rejectCmd, approveCmd} {
		c.Flags().StringVar(&reviewRole, "role", "", "role the job was created under")
	}
}

func parseJobID(s string) (job.JobID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Newf("invalid job id %q", s)
	}
	return job.JobID(n), nil
}

func reviewArgs(args []string) (job.JobID, job.Role, error) {
	id, err := parseJobID(args[0])
	if err != nil {
		return 0, job.Role{}, err
	}
	role, err := job.ParseRole(reviewRole)
	if err != nil {
		return 0, job.Role{}, err
	}
	return id, role, nil
}
