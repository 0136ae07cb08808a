package types

import "errors"

// Sentinel errors for the ktl window bus.
//
// Components return these for known conditions and wrap external errors with
// fmt.Errorf("...: %w", err) so callers can match with errors.Is.

// Runtime errors - returned by the App and Worker runtimes.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrAlreadyStarted is returned when Start is called on a running component.
	ErrAlreadyStarted = errors.New("already started")

	// ErrNotStarted is returned when Stop is called on a component that is not running.
	ErrNotStarted = errors.New("not started")

	// ErrStoreRequired is returned when no key-value store is supplied.
	ErrStoreRequired = errors.New("key-value store is required")

	// ErrRecordAPIRequired is returned when no record API is supplied.
	ErrRecordAPIRequired = errors.New("record API is required")

	// ErrChannelRequired is returned when the worker runtime has no parent channel.
	ErrChannelRequired = errors.New("parent channel is required")

	// ErrWindowFactoryRequired is returned when the app runtime has no window factory
	// while the worker window is enabled.
	ErrWindowFactoryRequired = errors.New("window factory is required")
)

// Message errors - message bus and transport.
var (
	// ErrNoRoute is returned when no channel exists for a source/destination pair.
	ErrNoRoute = errors.New("no route for message")

	// ErrMissingID is returned when an acknowledge is sent without a correlation id.
	ErrMissingID = errors.New("acknowledge requires a message id")

	// ErrMalformedMessage is returned when a wire payload cannot be decoded.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnknownBody is returned when a message carries a body outside the known kinds.
	ErrUnknownBody = errors.New("unknown message body")
)

// Storage errors - key-value store and record API.
var (
	// ErrKeyNotFound is returned by KVStore.Get when the key does not exist.
	ErrKeyNotFound = errors.New("key not found")

	// ErrSubmitFailed is returned when a record upsert fails.
	ErrSubmitFailed = errors.New("record submission failed")
)

// Log errors - log accumulator input validation.
var (
	// ErrEmptyLog is returned when a log entry has an empty category or details.
	ErrEmptyLog = errors.New("log category and details are required")

	// ErrDuplicateLog is returned when a log entry repeats the previous call exactly.
	ErrDuplicateLog = errors.New("duplicate of previous log entry")
)
