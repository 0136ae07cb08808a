package ktl

import "github.com/cortexrd/Knack-Toolkit-Library-sub001/types"

// Re-export types from the types package.
//
// Internal packages depend on types rather than on the root package, which
// avoids import cycles while users still write ktl.Message, ktl.Logger, etc.
type (
	Message          = types.Message
	MessageFailure   = types.MessageFailure
	MessageType      = types.MessageType
	Subtype          = types.Subtype
	Endpoint         = types.Endpoint
	Body             = types.Body
	Heartbeat        = types.Heartbeat
	Ready            = types.Ready
	ReloadRequired   = types.ReloadRequired
	PreferenceChange = types.PreferenceChange
	Custom           = types.Custom
	ReloadDirective  = types.ReloadDirective

	Category = types.Category
	LogEntry = types.LogEntry
	LogBatch = types.LogBatch

	MonitorState = types.MonitorState
	WorkerState  = types.WorkerState
)

// Re-export interfaces from the types package for convenience.
type (
	KVStore          = types.KVStore
	Channel          = types.Channel
	ChannelFunc      = types.ChannelFunc
	Receiver         = types.Receiver
	ReceiverFunc     = types.ReceiverFunc
	Window           = types.Window
	WindowFactory    = types.WindowFactory
	RecordAPI        = types.RecordAPI
	UpsertMethod     = types.UpsertMethod
	MetricsCollector = types.MetricsCollector
	Logger           = types.Logger
	Hooks            = types.Hooks
)

// Re-export constants from the types package.
const (
	SubtypeRequest     = types.SubtypeRequest
	SubtypeAcknowledge = types.SubtypeAcknowledge

	EndpointApp    = types.EndpointApp
	EndpointWorker = types.EndpointWorker

	TypeHeartbeat        = types.TypeHeartbeat
	TypeReady            = types.TypeReady
	TypeReloadRequired   = types.TypeReloadRequired
	TypePreferenceChange = types.TypePreferenceChange
	TypeCustom           = types.TypeCustom

	CategoryCritical    = types.CategoryCritical
	CategoryAppError    = types.CategoryAppError
	CategoryWarning     = types.CategoryWarning
	CategoryInfo        = types.CategoryInfo
	CategoryDebug       = types.CategoryDebug
	CategoryLogin       = types.CategoryLogin
	CategoryActivity    = types.CategoryActivity
	CategoryNavigation  = types.CategoryNavigation
	CategoryServerError = types.CategoryServerError

	MethodPost = types.MethodPost
	MethodPut  = types.MethodPut

	MonitorIdle    = types.MonitorIdle
	MonitorRunning = types.MonitorRunning

	WorkerAbsent   = types.WorkerAbsent
	WorkerCreating = types.WorkerCreating
	WorkerReady    = types.WorkerReady
)
