package ktl

import "github.com/cortexrd/Knack-Toolkit-Library-sub001/types"

// Sentinel errors re-exported from the types package.
var (
	ErrInvalidConfig         = types.ErrInvalidConfig
	ErrAlreadyStarted        = types.ErrAlreadyStarted
	ErrNotStarted            = types.ErrNotStarted
	ErrStoreRequired         = types.ErrStoreRequired
	ErrRecordAPIRequired     = types.ErrRecordAPIRequired
	ErrChannelRequired       = types.ErrChannelRequired
	ErrWindowFactoryRequired = types.ErrWindowFactoryRequired

	ErrNoRoute          = types.ErrNoRoute
	ErrMissingID        = types.ErrMissingID
	ErrMalformedMessage = types.ErrMalformedMessage
	ErrUnknownBody      = types.ErrUnknownBody

	ErrKeyNotFound  = types.ErrKeyNotFound
	ErrSubmitFailed = types.ErrSubmitFailed

	ErrEmptyLog     = types.ErrEmptyLog
	ErrDuplicateLog = types.ErrDuplicateLog
)
