package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// NATS is a KVStore backed by a JetStream KV bucket.
type NATS struct {
	kv jetstream.KeyValue
}

var _ types.KVStore = (*NATS)(nil)

// NewNATS wraps an open JetStream KV bucket.
func NewNATS(kv jetstream.KeyValue) *NATS {
	return &NATS{kv: kv}
}

// Get returns the latest value for key or types.ErrKeyNotFound.
func (n *NATS) Get(ctx context.Context, key string) (string, error) {
	entry, err := n.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return "", types.ErrKeyNotFound
		}

		return "", fmt.Errorf("kv get %s: %w", key, err)
	}

	return string(entry.Value()), nil
}

// Set stores value under key.
func (n *NATS) Set(ctx context.Context, key, value string) error {
	if _, err := n.kv.PutString(ctx, key, value); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}

	return nil
}

// Remove places a delete marker for key.
func (n *NATS) Remove(ctx context.Context, key string) error {
	if err := n.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}

	return nil
}

// EnsureBucket creates or opens a KV bucket, retrying with exponential backoff.
//
// Several windows may start at once and race to create the same bucket; a
// jetstream.ErrBucketExists from the loser is resolved by opening the bucket.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - config: KV bucket configuration
//   - maxRetries: Maximum number of attempts (3 if <= 0)
//
// Example:
//
//	kv, err := kvstore.EnsureBucket(ctx, js, jetstream.KeyValueConfig{Bucket: "ktl-store"}, 3)
func EnsureBucket(
	ctx context.Context,
	js jetstream.JetStream,
	config jetstream.KeyValueConfig,
	maxRetries int,
) (jetstream.KeyValue, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		kv, err := js.CreateKeyValue(ctx, config)
		if err == nil {
			return kv, nil
		}

		if errors.Is(err, jetstream.ErrBucketExists) {
			kv, err := js.KeyValue(ctx, config.Bucket)
			if err == nil {
				return kv, nil
			}
			lastErr = fmt.Errorf("bucket exists but failed to open: %w", err)
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("context cancelled during KV bucket creation: %w", ctx.Err())
		}

		// 10ms, 20ms, 40ms...
		if attempt < maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * 10 * time.Millisecond //nolint:gosec // attempt is bounded by maxRetries
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("failed to create/open KV bucket %s after %d attempts: %w",
		config.Bucket, maxRetries, lastErr)
}
