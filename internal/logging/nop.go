package logging

import "github.com/cortexrd/Knack-Toolkit-Library-sub001/types"

// NopLogger discards all messages. Fatal does not exit.
type NopLogger struct{}

var _ types.Logger = (*NopLogger)(nil)

// NewNop creates a logger that discards everything.
func NewNop() *NopLogger {
	return &NopLogger{}
}

func (n *NopLogger) Debug(_ string, _ ...any) {}
func (n *NopLogger) Info(_ string, _ ...any)  {}
func (n *NopLogger) Warn(_ string, _ ...any)  {}
func (n *NopLogger) Error(_ string, _ ...any) {}
func (n *NopLogger) Fatal(_ string, _ ...any) {}
