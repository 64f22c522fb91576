package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/openvital/vitalstore/internal/engine"
	"github.com/openvital/vitalstore/internal/metrics"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr              string
	RetentionInterval time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the metrics endpoint and periodic retention",
		Long: `Run the long-lived maintenance process: a Prometheus metrics
endpoint plus a periodic retention pass.

Example:
  vitalstore serve --db ./health.db --addr :9090
  vitalstore serve --config ./config.yaml --retention-interval 1h`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "metrics listen address (overrides config)")
	cmd.Flags().DurationVar(&opts.RetentionInterval, "retention-interval", 24*time.Hour, "time between retention passes")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	env, err := openEnv(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer env.close()

	addr := env.cfg.MetricsAddr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	if addr == "" {
		return WrapExitError(ExitCommandError, "no metrics address configured", nil)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	eng := engine.New(env.store, env.engine.Registry(),
		engine.WithLogger(env.log),
		engine.WithMetrics(m),
		engine.WithPageSize(env.cfg.PageSize),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HandlerFor(reg))
	srv := &http.Server{Addr: addr, Handler: mux}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			env.log.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	go func() {
		ticker := time.NewTicker(opts.RetentionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := eng.AutoDelete(ctx); err != nil {
					env.log.Error("retention pass failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			env.log.Error("metrics server shutdown", "error", err)
		}
	}()

	env.log.Info("serving metrics", "addr", addr)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving metrics on %s. Press Ctrl-C to stop.\n", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return WrapExitError(ExitFailure, "metrics server error", err)
	}
	env.log.Info("stopped gracefully")
	return nil
}
