// Package records implements the host record API on a JetStream KV bucket.
//
// A record is a JSON object stored under "<collection>.<recordID>". POST creates a
// record, generating a UUID when no id is given. PUT merges fields into an existing
// record, creating it if missing; concurrent PUTs are resolved with revision checks.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/logging"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/natsutil"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// maxUpdateAttempts bounds the revision-conflict retries of one PUT.
const maxUpdateAttempts = 5

// ErrRecordNotFound is returned by Get for a missing record.
var ErrRecordNotFound = errors.New("record not found")

// Store is a types.RecordAPI backed by JetStream KV.
type Store struct {
	kv     jetstream.KeyValue
	logger types.Logger
}

var _ types.RecordAPI = (*Store)(nil)

// NewStore wraps an open KV bucket. A nil logger discards output.
func NewStore(kv jetstream.KeyValue, logger types.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Store{kv: kv, logger: logger}
}

// Upsert implements types.RecordAPI.
//
// Errors are wrapped with types.ErrSubmitFailed.
func (s *Store) Upsert(ctx context.Context, collection, recordID string, fields map[string]any, method types.UpsertMethod) (string, error) {
	if err := validToken(collection); err != nil {
		return "", fmt.Errorf("%w: collection: %w", types.ErrSubmitFailed, err)
	}
	if recordID == "" {
		recordID = uuid.NewString()
	} else if err := validToken(recordID); err != nil {
		return "", fmt.Errorf("%w: record id: %w", types.ErrSubmitFailed, err)
	}

	var err error
	switch method {
	case types.MethodPost:
		err = s.create(ctx, key(collection, recordID), fields)
	case types.MethodPut:
		err = s.merge(ctx, key(collection, recordID), fields)
	default:
		err = fmt.Errorf("unsupported method %q", method)
	}

	if err != nil {
		if natsutil.IsConnectivityError(err) {
			s.logger.Debug("record store unreachable", "collection", collection, "error", err)
		}

		return "", fmt.Errorf("%w: %s/%s: %w", types.ErrSubmitFailed, collection, recordID, err)
	}

	return recordID, nil
}

// Get returns the fields of a record.
func (s *Store) Get(ctx context.Context, collection, recordID string) (map[string]any, error) {
	fields, _, err := s.load(ctx, key(collection, recordID))
	return fields, err
}

func (s *Store) create(ctx context.Context, k string, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	_, err = s.kv.Create(ctx, k, raw)

	return err
}

func (s *Store) merge(ctx context.Context, k string, fields map[string]any) error {
	for range maxUpdateAttempts {
		current, rev, err := s.load(ctx, k)
		if errors.Is(err, ErrRecordNotFound) {
			err = s.create(ctx, k, fields)
			if errors.Is(err, jetstream.ErrKeyExists) {
				continue
			}

			return err
		}
		if err != nil {
			return err
		}

		maps.Copy(current, fields)
		raw, err := json.Marshal(current)
		if err != nil {
			return err
		}

		_, err = s.kv.Update(ctx, k, raw, rev)
		if err == nil {
			return nil
		}
		if !isRevisionConflict(err) {
			return err
		}
	}

	return fmt.Errorf("record %s kept changing after %d attempts", k, maxUpdateAttempts)
}

func (s *Store) load(ctx context.Context, k string) (map[string]any, uint64, error) {
	entry, err := s.kv.Get(ctx, k)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, 0, ErrRecordNotFound
	}
	if err != nil {
		return nil, 0, err
	}

	fields := make(map[string]any)
	if err := json.Unmarshal(entry.Value(), &fields); err != nil {
		return nil, 0, fmt.Errorf("decode record %s: %w", k, err)
	}

	return fields, entry.Revision(), nil
}

func isRevisionConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}

	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}

	return false
}

func key(collection, recordID string) string {
	return collection + "." + recordID
}

func validToken(s string) error {
	if s == "" {
		return errors.New("must not be empty")
	}
	if strings.ContainsAny(s, ". *>") {
		return fmt.Errorf("%q must not contain '.', ' ', '*' or '>'", s)
	}

	return nil
}
