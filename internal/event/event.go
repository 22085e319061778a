// Package event defines the named-event envelope exchanged over the event
// channel and the payloads of every command and notification.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope is one websocket text frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ErrNoEvent is returned by Decode when the frame carries no event name.
var ErrNoEvent = errors.New("event: missing event name")

// Encode marshals data and wraps it into an envelope frame. A nil data
// produces an envelope without payload.
func Encode(name string, data any) ([]byte, error) {
	env := Envelope{Event: name}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// Decode parses a frame into its envelope.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, ErrNoEvent
	}
	return env, nil
}

// Bind decodes the envelope payload into v. An absent or null payload
// leaves v untouched so that callers can pre-fill defaults.
func (e Envelope) Bind(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%s payload: %w", e.Event, err)
	}
	return nil
}

// Message is an outbound event before encoding.
type Message struct {
	Name string
	Data any
}

// New builds a Message.
func New(name string, data any) Message { return Message{Name: name, Data: data} }

// Frame encodes the message.
func (m Message) Frame() ([]byte, error) { return Encode(m.Name, m.Data) }
