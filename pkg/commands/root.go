package commands

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/beam-cloud/fct/pkg/fct"
	"github.com/beam-cloud/fct/pkg/metrics"
)

var (
	verbose  bool
	logLevel string
)

var RootCmd = &cobra.Command{
	Use:           "fct",
	Short:         "Fixed-chunk archive tool",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		if verbose {
			return fct.SetLogLevel("debug")
		}
		return fct.SetLogLevel(logLevel)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			metrics.LogMetricsSummary()
		}
	},
}

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", getEnvString("FCT_LOG_LEVEL", "info"), "Log level (debug, info, warn, error, disabled)")

	RootCmd.AddCommand(CreateCmd)
	RootCmd.AddCommand(AppendCmd)
	RootCmd.AddCommand(ListCmd)
	RootCmd.AddCommand(ExtractCmd)
	RootCmd.AddCommand(RemoveCmd)
	RootCmd.AddCommand(StoreCmd)
	RootCmd.AddCommand(FetchCmd)
	RootCmd.AddCommand(MountCmd)
	RootCmd.AddCommand(UmountCmd)
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := RootCmd.ExecuteContext(ctx); err != nil {
		stop()
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}
