package main

import (
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/zerverless/jobmarket/internal/job"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the caller's balance and active jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		acct, err := newClient().Me(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat, acct, accountTable(acct))
	},
}

var fundCmd = &cobra.Command{
	Use:   "fund <identity> <amount>",
	Short: "Mint value into an account (faucet nodes only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return errors.Newf("invalid amount %q", args[1])
		}
		acct, err := newClient().Fund(cmd.Context(), job.Identity(args[0]), job.Amount(amount))
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat, acct, accountTable(acct))
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show node statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := newClient().Stats(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat, stats, statsTable(stats))
	},
}
