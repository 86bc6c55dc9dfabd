// Package protocol implements the gateway wire format: one JSON payload per
// text WebSocket message, strictly validated event data, and the handshake
// metadata encoding.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const maxPayloadSize = 10 * 1024 * 1024 // 10MB max payload size

// Operation identifies the kind of gateway payload.
type Operation int

const (
	// OpDispatch carries one named domain event.
	OpDispatch Operation = 0
	// OpHello is sent by the server once the session is established.
	OpHello Operation = 1
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpDispatch:
		return "Dispatch"
	case OpHello:
		return "Hello"
	default:
		return fmt.Sprintf("Operation(%d)", int(o))
	}
}

// ErrInvalidPayload is wrapped by every decoding failure.
var ErrInvalidPayload = errors.New("invalid payload")

// Payload is the envelope of every gateway message.
type Payload struct {
	Operation Operation       `json:"operation"`
	Event     EventName       `json:"event,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type wirePayload struct {
	Operation *Operation      `json:"operation"`
	Event     EventName       `json:"event,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewDispatch builds a Dispatch payload carrying data for event.
func NewDispatch(event EventName, data any) (Payload, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Payload{}, fmt.Errorf("marshaling %s data: %w", event, err)
	}
	return Payload{Operation: OpDispatch, Event: event, Data: raw}, nil
}

// Encode serializes a payload to its JSON text form.
func Encode(p Payload) ([]byte, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	out, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(out) > maxPayloadSize {
		return nil, fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrInvalidPayload, len(out), maxPayloadSize)
	}
	return out, nil
}

// Decode parses one gateway message. Unknown fields, a missing operation,
// unknown operations and trailing data are all rejected. The event data is
// left raw; use DecodeData to validate it against its schema.
func Decode(data []byte) (*Payload, error) {
	if len(data) > maxPayloadSize {
		return nil, fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrInvalidPayload, len(data), maxPayloadSize)
	}

	var wire wirePayload
	if err := strictUnmarshal(data, &wire); err != nil {
		return nil, err
	}
	if wire.Operation == nil {
		return nil, fmt.Errorf("%w: missing operation", ErrInvalidPayload)
	}

	p := &Payload{Operation: *wire.Operation, Event: wire.Event, Data: wire.Data}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p Payload) validate() error {
	switch p.Operation {
	case OpDispatch:
		if p.Event == "" {
			return fmt.Errorf("%w: dispatch without event", ErrInvalidPayload)
		}
	case OpHello:
	default:
		return fmt.Errorf("%w: unknown operation %d", ErrInvalidPayload, int(p.Operation))
	}
	return nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("%w: trailing data", ErrInvalidPayload)
	}
	return nil
}
