// Package cli implements cwctl, the operator tool for covenantwatch: offline
// predictions, model parameter inspection and calls against a running service.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/covenantwatch/internal/config"
	"github.com/turtacn/covenantwatch/internal/infrastructure/monitoring"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

// NewRootCmd builds the cwctl command tree.
// NewRootCmd 构建 cwctl 命令树。
func NewRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "cwctl",
		Short:         "Operator CLI for the covenantwatch service",
		Long:          `cwctl scores loans offline with a local parameter file, inspects model parameters and queries a running covenantwatch service.`,
		Version:       constants.ServiceVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level written to stderr")

	newLogger := func() logger.Logger {
		log, err := monitoring.NewZapLogger(&config.LogConfig{Level: logLevel, Format: "console", OutputPath: "stderr"})
		if err != nil {
			return logger.NewNoopLogger()
		}
		return log
	}

	root.AddCommand(newPredictCmd(newLogger), newModelCmd(), newAssessCmd(newLogger))
	return root
}

// Execute runs cwctl and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
