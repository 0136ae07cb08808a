package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ktl "github.com/cortexrd/Knack-Toolkit-Library-sub001"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/kvstore"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/metrics"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/records"
)

const (
	storeNATS   = "nats"
	storeSQLite = "sqlite"
	storeMemory = "memory"

	bucketAttempts = 3
)

// backend bundles the NATS-side dependencies shared by every command.
type backend struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	store   ktl.KVStore
	records *records.Store

	closeStore func() error
}

// connect dials NATS, ensures the buckets of namespace and opens the selected store.
func connect(ctx context.Context, namespace string) (*backend, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("ktlbus"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream: %w", err)
	}

	b := &backend{nc: nc, js: js, closeStore: func() error { return nil }}

	recordsKV, err := kvstore.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      namespace + "-records",
		Description: "ktl liveness records and uploaded log batches",
	}, bucketAttempts)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("records bucket: %w", err)
	}
	b.records = records.NewStore(recordsKV, logger)

	if err := b.openStore(ctx, namespace); err != nil {
		nc.Close()
		return nil, err
	}

	return b, nil
}

func (b *backend) openStore(ctx context.Context, namespace string) error {
	switch storeKind {
	case storeNATS:
		kv, err := kvstore.EnsureBucket(ctx, b.js, jetstream.KeyValueConfig{
			Bucket:      namespace + "-store",
			Description: "ktl log batches",
		}, bucketAttempts)
		if err != nil {
			return fmt.Errorf("store bucket: %w", err)
		}
		b.store = kvstore.NewNATS(kv)
	case storeSQLite:
		db, err := kvstore.OpenSQLite(ctx, sqlitePath)
		if err != nil {
			return err
		}
		b.store = db
		b.closeStore = db.Close
	case storeMemory:
		logger.Warn("memory store is private to this process, log batches are not shared")
		b.store = kvstore.NewMemory()
	default:
		return fmt.Errorf("unknown store %q (want %s, %s or %s)", storeKind, storeNATS, storeSQLite, storeMemory)
	}

	return nil
}

func (b *backend) Close() error {
	err := b.closeStore()
	if drainErr := b.nc.Drain(); drainErr != nil && !errors.Is(drainErr, nats.ErrConnectionClosed) {
		err = errors.Join(err, drainErr)
	}

	return err
}

// newMetrics returns the Prometheus collector and, when --metrics-addr is set, the
// server exposing it.
func newMetrics() (ktl.MetricsCollector, *http.Server) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewPrometheus(reg, "ktl")
	if metricsAddr == "" {
		return collector, nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return collector, &http.Server{
		Addr:              metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// serveMetrics runs srv until ctx is done. A nil server returns immediately.
func serveMetrics(ctx context.Context, srv *http.Server) error {
	if srv == nil {
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
