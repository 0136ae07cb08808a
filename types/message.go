package types

import "time"

// Subtype distinguishes a request from the acknowledge that answers it.
type Subtype string

const (
	// SubtypeRequest is a message that expects an acknowledge and is retried until one arrives.
	SubtypeRequest Subtype = "request"

	// SubtypeAcknowledge answers a request with the same id. It is never queued or retried.
	SubtypeAcknowledge Subtype = "acknowledge"
)

// Endpoint is an opaque identifier of a message source or destination.
type Endpoint string

const (
	// EndpointApp is the main application window.
	EndpointApp Endpoint = "main-app"

	// EndpointWorker is the embedded worker window hosting background views.
	EndpointWorker Endpoint = "worker-window"
)

// MessageType is the tag that identifies the semantics of a message.
type MessageType string

const (
	TypeHeartbeat        MessageType = "heartbeat"
	TypeReady            MessageType = "ready"
	TypeReloadRequired   MessageType = "reload-required"
	TypePreferenceChange MessageType = "preference-change"
	TypeCustom           MessageType = "custom"
)

// Body is the payload of a message.
//
// The set of bodies is closed: only the variants declared in this package implement it.
// Application-specific messages use Custom. Consumers dispatch with a type switch.
type Body interface {
	// MessageType returns the tag carried on the wire.
	MessageType() MessageType

	isBody()
}

// Heartbeat is the liveness probe sent from the app to the worker window.
type Heartbeat struct {
	// SentAt is the sender's clock when the request was created, in unix milliseconds.
	SentAt int64 `msgpack:"sentAt"`
}

// Ready announces that a window finished loading, together with its software version.
// The app acknowledges with its own version.
type Ready struct {
	Version string `msgpack:"version"`
}

// ReloadRequired instructs the receiver to reload because its code is stale.
type ReloadRequired struct {
	Version string `msgpack:"version"`
	Reason  string `msgpack:"reason,omitempty"`
}

// PreferenceChange carries user preference updates between windows.
type PreferenceChange struct {
	Preferences map[string]string `msgpack:"prefs"`
}

// Custom carries an application-specific message with a free-form payload.
type Custom struct {
	// Kind is the application's own tag. It is sent as the message type.
	Kind    string `msgpack:"-"`
	Payload []byte `msgpack:"payload"`
}

func (Heartbeat) MessageType() MessageType        { return TypeHeartbeat }
func (Ready) MessageType() MessageType            { return TypeReady }
func (ReloadRequired) MessageType() MessageType   { return TypeReloadRequired }
func (PreferenceChange) MessageType() MessageType { return TypePreferenceChange }

// MessageType returns the application tag, or TypeCustom when the kind is empty.
func (c Custom) MessageType() MessageType {
	if c.Kind == "" {
		return TypeCustom
	}

	return MessageType(c.Kind)
}

func (Heartbeat) isBody()        {}
func (Ready) isBody()            {}
func (ReloadRequired) isBody()   {}
func (PreferenceChange) isBody() {}
func (Custom) isBody()           {}

// Message is the unit of communication between windows.
type Message struct {
	Subtype     Subtype
	Source      Endpoint
	Destination Endpoint

	// ID is unique among pending requests and correlates a request with its acknowledge.
	ID int64

	Body Body

	// ExpiresAt is when the current delivery attempt is considered failed.
	ExpiresAt time.Time

	// RetriesRemaining counts down to zero, at which point the request has permanently failed.
	RetriesRemaining int
}

// Type returns the message's type tag.
func (m Message) Type() MessageType {
	if m.Body == nil {
		return ""
	}

	return m.Body.MessageType()
}

// IsRequest reports whether the message is a request.
func (m Message) IsRequest() bool {
	return m.Subtype == SubtypeRequest
}

// MessageFailure describes a request whose retries were exhausted.
type MessageFailure struct {
	Type        MessageType
	ID          int64
	Destination Endpoint
	Body        Body
}
