package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tidbyt.dev/transit/downloader"
	"tidbyt.dev/transit/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Keeps static and realtime data fresh, serving metrics",
	Args:  cobra.NoArgs,
	RunE:  run,
}

var metricsAddr string

func init() {
	runCmd.Flags().StringVarP(&metricsAddr, "metrics-addr", "", "", "Address to serve Prometheus metrics on, e.g. :9090")
	rootCmd.AddCommand(runCmd)
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Metrics.Addr = metricsAddr
	}

	s, err := cfg.OpenStorage()
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	m := cfg.NewManager(s)
	m.Logger = newLogger(cfg)
	m.Metrics = collector
	m.Downloader = &localDownloader{remote: downloader.NewMemoryDownloader()}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		go func() {
			m.Logger.Info("serving metrics", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				m.Logger.Error("metrics server failed", "error", err)
				stop()
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	err = m.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
