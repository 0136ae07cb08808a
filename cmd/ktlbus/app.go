package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	ktl "github.com/cortexrd/Knack-Toolkit-Library-sub001"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/natsbus"
)

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Run the main app window",
	Long: `Runs the main app window runtime. It opens a worker window through any
worker-host on the same NATS cluster, supervises it with heartbeats and keeps
accumulating log entries until interrupted.`,
	RunE: runApp,
}

func runApp(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := connect(ctx, cfg.Namespace)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	collector, srv := newMetrics()
	hooks := &ktl.Hooks{
		OnVersionMismatch: func(_ context.Context, d ktl.ReloadDirective) error {
			logger.Warn("worker runs a different version", "app_version", d.LocalVersion, "worker_version", d.RemoteVersion)
			return nil
		},
		OnWorkerUnresponsive: func(_ context.Context, windowID string) error {
			logger.Warn("worker window unresponsive", "window_id", windowID)
			return nil
		},
		OnMessageFailed: func(_ context.Context, f ktl.MessageFailure) error {
			logger.Warn("request gave up", "type", f.Type, "id", f.ID, "destination", f.Destination)
			return nil
		},
	}

	app, err := ktl.NewApp(cfg, ktl.AppDeps{
		Store:   b.store,
		Windows: natsbus.NewWindowFactory(b.nc, cfg.Namespace),
		Records: b.records,
	},
		ktl.WithLogger(logger),
		ktl.WithMetrics(collector),
		ktl.WithHooks(hooks),
		ktl.WithFallbackChannel(natsbus.NewEndpointChannel(b.nc, cfg.Namespace)),
	)
	if err != nil {
		return err
	}

	sub, err := natsbus.Subscribe(b.nc, natsbus.Subject(cfg.Namespace, ktl.EndpointApp, ""), app, logger)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("start app: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serveMetrics(gctx, srv) })
	g.Go(func() error {
		<-gctx.Done()
		return app.Stop()
	})

	logger.Info("app window running", "namespace", cfg.Namespace, "version", cfg.AppVersion)

	return g.Wait()
}
