// Package cmd implements the legalctl command tree.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/uk-legal-assistant/internal/bootstrap"
	"github.com/kirillkom/uk-legal-assistant/internal/config"
	"github.com/kirillkom/uk-legal-assistant/internal/observability/logging"
)

// coreFactory is replaced in tests.
var coreFactory = bootstrap.NewCore

func NewRootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "legalctl",
		Short: "Operate the UK legal assistant from the command line",
		Long: `legalctl ingests UK legislation into the vector index, checks whether a
document is a UK employment or legal document, and answers questions
against the indexed corpus.

Configuration comes from the same environment variables as the API.
Set VECTOR_BACKEND=hnsw to work without a Qdrant server.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := logLevel
			if level == "" {
				level = config.Load().LogLevel
			}
			slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "legalctl", level))
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from LOG_LEVEL)")

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newClassifyCmd())
	cmd.AddCommand(newAskCmd())
	return cmd
}
