package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fedaidash/internal/adapters/web"
	"fedaidash/internal/auth"
	"fedaidash/internal/core"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.HTTP.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

// buildServer wires storage, blobs, auth and metrics into an HTTP server.
// The returned close function releases the store.
func (a *app) buildServer(ctx context.Context) (*web.Server, func() error, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	fail := func(err error) (*web.Server, func() error, error) {
		return nil, nil, errors.Join(err, closeStore())
	}
	blobs, err := a.openBlobs(ctx)
	if err != nil {
		return fail(err)
	}
	manager, err := auth.NewManager(a.cfg.Auth)
	if err != nil {
		return fail(err)
	}
	if a.cfg.Auth.PasswordHash == "" {
		a.logger.Warn("admin password hash not set; admin login disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return fail(err)
	}

	logger := core.NewZapLogger(a.logger)
	svc := core.NewService(store,
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics),
		core.WithAuditRecorder(core.LoggingAuditRecorder{Logger: logger}),
		core.WithAuthorizer(manager),
		core.WithArchiveStore(blobs),
		core.WithCacheSize(a.cfg.CacheSize),
	)
	srv, err := web.NewServer(svc,
		web.WithAuth(manager),
		web.WithLogger(logger),
		web.WithRegistry(reg),
		web.WithSecureCookies(a.cfg.HTTP.SecureCookies),
	)
	if err != nil {
		return fail(err)
	}
	return srv, closeStore, nil
}

func (a *app) serve(ctx context.Context) error {
	srv, closeStore, err := a.buildServer(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			a.logger.Error("close store", zap.Error(err))
		}
	}()
	return srv.ListenAndServe(ctx, a.cfg.HTTP.Addr, a.cfg.HTTP.ReadTimeout, a.cfg.HTTP.ShutdownTimeout)
}
