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
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

var workerHostCmd = &cobra.Command{
	Use:   "worker-host",
	Short: "Serve worker windows",
	Long: `Serves window-open requests from app windows. Every opened window runs a
worker runtime that answers heartbeats, writes the liveness record and uploads
log batches. Several hosts may serve the same namespace.`,
	RunE: runWorkerHost,
}

func runWorkerHost(cmd *cobra.Command, _ []string) error {
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

	factory := func(win natsbus.WindowInfo, parent types.Channel) (natsbus.Runtime, error) {
		hooks := &ktl.Hooks{
			OnReloadRequired: func(_ context.Context, d ktl.ReloadDirective) error {
				logger.Warn("worker window must reload",
					"window_id", win.ID, "local_version", d.LocalVersion, "app_version", d.RemoteVersion)
				return nil
			},
		}

		w, err := ktl.NewWorker(cfg, ktl.WorkerDeps{Store: b.store, Parent: parent, Records: b.records},
			ktl.WithLogger(logger),
			ktl.WithMetrics(collector),
			ktl.WithHooks(hooks),
			ktl.WithFallbackChannel(natsbus.NewEndpointChannel(b.nc, cfg.Namespace)),
		)
		if err != nil {
			return nil, err
		}

		return w, nil
	}

	host := natsbus.NewHost(b.nc, cfg.Namespace, factory, logger)
	if err := host.Start(ctx); err != nil {
		return fmt.Errorf("start worker host: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serveMetrics(gctx, srv) })
	g.Go(func() error {
		<-gctx.Done()
		return host.Stop()
	})

	logger.Info("worker host running", "namespace", cfg.Namespace, "version", cfg.AppVersion)

	return g.Wait()
}
