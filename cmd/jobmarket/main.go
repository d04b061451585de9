package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zerverless/jobmarket/internal/client"
	"github.com/zerverless/jobmarket/internal/identity"
	"github.com/zerverless/jobmarket/internal/logging"
)

var (
	configPath   string
	serverURL    string
	asIdentity   string
	identityHdr  string
	bearerToken  string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "jobmarket",
	Short: "Escrowed peer-to-peer job marketplace",
	Long: `jobmarket runs and drives an escrowed job marketplace node.

Owners post jobs with a budget held in escrow, workers obtain and submit
them, and owners approve (paying the worker) or reject for rework.

Examples:
  jobmarket serve --config jobmarket.yaml
  jobmarket create --as alice --name "translate docs" --budget 100
  jobmarket list --status OPEN
  jobmarket obtain 0 --as bob
  jobmarket submit 0 --as bob --result "done"
  jobmarket approve 0 --as alice
  jobmarket watch --status REVIEW`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Initialize(logLevel, "console"); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&serverURL, "server", envOr("JOBMARKET_SERVER", "http://localhost:8000"), "node base URL")
	flags.StringVar(&asIdentity, "as", os.Getenv("JOBMARKET_IDENTITY"), "identity to act as")
	flags.StringVar(&identityHdr, "identity-header", identity.DefaultHeader, "header carrying the identity")
	flags.StringVar(&bearerToken, "token", os.Getenv("JOBMARKET_TOKEN"), "bearer token instead of an identity header")
	flags.StringVarP(&outputFormat, "output", "o", "table", "output format: table, json or yaml")
	flags.StringVar(&logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(createCmd, listCmd, getCmd)
	rootCmd.AddCommand(obtainCmd, submitCmd, rejectCmd, approveCmd, checkCmd)
	rootCmd.AddCommand(balanceCmd, fundCmd, statsCmd, watchCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newClient() *client.Client {
	var opts []client.Option
	if asIdentity != "" {
		opts = append(opts, client.WithIdentity(asIdentity, identityHdr))
	}
	if bearerToken != "" {
		opts = append(opts, client.WithToken(bearerToken))
	}
	return client.New(serverURL, opts...)
}

func main() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
