package types

// Logger is the structured logger used by every component.
//
// The method set matches zap.SugaredLogger, so a sugared zap logger can be passed
// directly. Arguments after the message are alternating keys and values.
type Logger interface {
	// Debug logs a message at debug level.
	Debug(msg string, keysAndValues ...any)

	// Info logs a message at info level.
	Info(msg string, keysAndValues ...any)

	// Warn logs a message at warn level.
	Warn(msg string, keysAndValues ...any)

	// Error logs a message at error level.
	Error(msg string, keysAndValues ...any)

	// Fatal logs a message and terminates the process.
	//
	// Test and no-op implementations may choose not to exit.
	Fatal(msg string, keysAndValues ...any)
}
