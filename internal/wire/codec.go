// Package wire encodes bus messages for transports that carry bytes.
//
// Messages travel as a msgpack envelope. The body is encoded separately and
// embedded as a raw payload, so a receiver can decode the envelope even when it
// does not know the body's type; such bodies decode to types.Custom.
package wire

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// envelope is the on-the-wire form of types.Message.
type envelope struct {
	Type      string             `msgpack:"type"`
	Subtype   string             `msgpack:"subtype"`
	Source    string             `msgpack:"src"`
	Dest      string             `msgpack:"dst"`
	ID        int64              `msgpack:"id"`
	ExpiresAt int64              `msgpack:"expiresAt,omitempty"`
	Retries   int                `msgpack:"retries,omitempty"`
	Body      msgpack.RawMessage `msgpack:"body,omitempty"`
}

// Encode serializes msg.
//
// Returns types.ErrUnknownBody if the body is nil.
func Encode(msg types.Message) ([]byte, error) {
	if msg.Body == nil {
		return nil, fmt.Errorf("encode message %d: %w", msg.ID, types.ErrUnknownBody)
	}

	body, err := msgpack.Marshal(msg.Body)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", msg.Type(), err)
	}

	env := envelope{
		Type:    string(msg.Type()),
		Subtype: string(msg.Subtype),
		Source:  string(msg.Source),
		Dest:    string(msg.Destination),
		ID:      msg.ID,
		Retries: msg.RetriesRemaining,
		Body:    body,
	}
	if !msg.ExpiresAt.IsZero() {
		env.ExpiresAt = msg.ExpiresAt.UnixMilli()
	}

	out, err := msgpack.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	return out, nil
}

// Decode parses data produced by Encode.
//
// Returns types.ErrMalformedMessage if the envelope or a known body cannot be decoded.
func Decode(data []byte) (types.Message, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return types.Message{}, fmt.Errorf("%w: %v", types.ErrMalformedMessage, err)
	}

	subtype := types.Subtype(env.Subtype)
	if env.Type == "" || (subtype != types.SubtypeRequest && subtype != types.SubtypeAcknowledge) {
		return types.Message{}, fmt.Errorf("%w: type %q subtype %q", types.ErrMalformedMessage, env.Type, env.Subtype)
	}

	body, err := decodeBody(types.MessageType(env.Type), env.Body)
	if err != nil {
		return types.Message{}, fmt.Errorf("%w: %s body: %v", types.ErrMalformedMessage, env.Type, err)
	}

	msg := types.Message{
		Subtype:          subtype,
		Source:           types.Endpoint(env.Source),
		Destination:      types.Endpoint(env.Dest),
		ID:               env.ID,
		Body:             body,
		RetriesRemaining: env.Retries,
	}
	if env.ExpiresAt != 0 {
		msg.ExpiresAt = time.UnixMilli(env.ExpiresAt)
	}

	return msg, nil
}

func decodeBody(t types.MessageType, raw []byte) (types.Body, error) {
	switch t {
	case types.TypeHeartbeat:
		return unmarshal[types.Heartbeat](raw)
	case types.TypeReady:
		return unmarshal[types.Ready](raw)
	case types.TypeReloadRequired:
		return unmarshal[types.ReloadRequired](raw)
	case types.TypePreferenceChange:
		return unmarshal[types.PreferenceChange](raw)
	default:
		body, err := unmarshal[types.Custom](raw)
		if err != nil {
			return nil, err
		}
		if t != types.TypeCustom {
			body.Kind = string(t)
		}

		return body, nil
	}
}

func unmarshal[T types.Body](raw []byte) (T, error) {
	var body T
	if len(raw) == 0 {
		return body, nil
	}
	if err := msgpack.Unmarshal(raw, &body); err != nil {
		return body, err
	}

	return body, nil
}
