package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/beam-cloud/fct/pkg/fct"
	"github.com/beam-cloud/fct/pkg/metrics"
)

var (
	mountDebug       bool
	mountMetricsPort int
)

var MountCmd = &cobra.Command{
	Use:   "mount <archive> <mountpoint>",
	Short: "Mount an archive read-only at the specified mount point",
	Args:  cobra.ExactArgs(2),
	RunE:  runMount,
}

var UmountCmd = &cobra.Command{
	Use:     "umount <mountpoint>",
	Aliases: []string{"unmount"},
	Short:   "Unmount an archive mounted with fct mount",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return fct.UnmountArchive(args[0])
	},
}

func init() {
	MountCmd.Flags().BoolVar(&mountDebug, "debug", false, "Log FUSE requests")
	MountCmd.Flags().IntVar(&mountMetricsPort, "metrics-port", getEnvInt("FCT_METRICS_PORT", 0), "Serve /metrics and /health on this port (0 disables)")
}

func runMount(cmd *cobra.Command, args []string) error {
	startServer, serverError, server, err := fct.MountArchive(fct.MountOptions{
		ArchivePath: args[0],
		MountPoint:  args[1],
		Debug:       mountDebug,
	})
	if err != nil {
		return err
	}

	if err := startServer(); err != nil {
		return err
	}

	if mountMetricsPort > 0 {
		metricsServer := newMetricsServer(mountMetricsPort)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsServer.Shutdown(ctx)
		}()
	}

	log.Info().Msgf("mounted %s at %s", args[0], args[1])

	select {
	case err, ok := <-serverError:
		if ok && err != nil {
			return fmt.Errorf("mount failed: %w", err)
		}
		return nil
	case <-cmd.Context().Done():
		log.Info().Msg("shutting down")
		if err := server.Unmount(); err != nil {
			return fmt.Errorf("could not unmount %s: %w", args[1], err)
		}
		for range serverError {
		}
		return nil
	}
}

func newMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metricsData := metrics.GlobalMetrics.Snapshot()

		switch r.URL.Query().Get("format") {
		case "prometheus":
			w.Header().Set("Content-Type", "text/plain")
			for key, value := range metricsData {
				fmt.Fprintf(w, "%s %v\n", key, value)
			}
		default:
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(metricsData)
		}
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})

	log.Info().Msgf("starting metrics server on port %d", port)
	return &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
}
