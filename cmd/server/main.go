package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/turtacn/covenantwatch/internal/config"
	"github.com/turtacn/covenantwatch/internal/infrastructure/monitoring"
	"github.com/turtacn/covenantwatch/pkg/constants"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:           "covenantwatch",
		Short:         "Covenant and ESG breach-risk prediction service",
		Version:       constants.ServiceVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			log, err := monitoring.NewZapLogger(&cfg.Log)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				log.Error(context.Background(), "Failed to initialise service", err)
				return err
			}
			return a.run(ctx)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "path to config file (default: ./config.yaml or /etc/covenantwatch/config.yaml)")
	return cmd
}
