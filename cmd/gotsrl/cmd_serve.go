package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/evdnx/gotsrl/logger"
)

func newServeMetricsCmd(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Expose Prometheus metrics over HTTP",
		Long: `Serve this process's collectors on /metrics until interrupted.
Counters recorded by other gotsrl invocations live in those processes;
use simulate --metrics-addr to scrape a training run.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, log, err := root.configure()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serveMetrics(ctx, addr, log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9090", "Listen address")
	return cmd
}

func serveMetrics(ctx context.Context, addr string, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics_server_started", logger.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Info("metrics_server_stopping")
	return srv.Shutdown(shutdownCtx)
}
