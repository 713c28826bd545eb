// Package telemetry defines the typed events that flow over the WebSocket
// channel between earshotd and its clients. Every frame is a {type, payload}
// envelope; Decode turns a raw frame into one of the concrete event structs
// and Encode builds a frame from one.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType identifies the kind of WebSocket event.
type EventType string

const (
	EventRecordingStatus EventType = "recording_status"
	EventEarlyGuess      EventType = "early_guess"
	EventResult          EventType = "result"
	EventError           EventType = "error"
)

// Status values carried by RecordingStatus.
const (
	StatusRecording  = "recording"
	StatusProcessing = "processing"
)

var (
	// ErrMalformed is returned for frames that are not a JSON envelope.
	ErrMalformed = errors.New("malformed frame")
	// ErrUnknownType is returned for envelopes whose type is absent or not
	// one of the known event types.
	ErrUnknownType = errors.New("unknown event type")
)

// Envelope is the wire shape shared by every frame.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is implemented by every concrete inbound event.
type Event interface {
	Kind() EventType
}

// RecordingStatus reports progress of the server-side recording. It is also
// synthesized locally when the client countdown finishes.
type RecordingStatus struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Progress int    `json:"progress"`
}

// EarlyGuess is a provisional, low-confidence identification.
type EarlyGuess struct {
	Name string `json:"name"`
}

// Song is the catalog entry attached to a match.
type Song struct {
	ID     int64  `json:"id,omitempty"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album,omitempty"`
}

// Result is the terminal outcome of a recording. Song is only meaningful
// when IsMatch is true.
type Result struct {
	IsMatch    bool    `json:"is_match"`
	Confidence float64 `json:"confidence"`
	Song       *Song   `json:"song,omitempty"`
}

// ErrorReport is a server-pushed failure of the current recording.
type ErrorReport struct {
	Message string `json:"message"`
}

func (RecordingStatus) Kind() EventType { return EventRecordingStatus }
func (EarlyGuess) Kind() EventType      { return EventEarlyGuess }
func (Result) Kind() EventType          { return EventResult }
func (ErrorReport) Kind() EventType     { return EventError }

// Matched reports whether the result should be rendered as a success.
func (r Result) Matched() bool {
	return r.IsMatch && r.Song != nil
}

// Decode parses a raw frame into a typed event. Frames that fail to parse
// wrap ErrMalformed; frames with an absent or unrecognized type wrap
// ErrUnknownType.
func Decode(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var ev Event
	switch env.Type {
	case EventRecordingStatus:
		var p RecordingStatus
		if err := decodePayload(env.Payload, &p); err != nil {
			return nil, err
		}
		ev = p
	case EventEarlyGuess:
		var p EarlyGuess
		if err := decodePayload(env.Payload, &p); err != nil {
			return nil, err
		}
		ev = p
	case EventResult:
		var p Result
		if err := decodePayload(env.Payload, &p); err != nil {
			return nil, err
		}
		ev = p
	case EventError:
		var p ErrorReport
		if err := decodePayload(env.Payload, &p); err != nil {
			return nil, err
		}
		ev = p
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrUnknownType)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	return ev, nil
}

// decodePayload tolerates a missing payload so that an envelope like
// {"type":"error"} still yields a zero-valued event.
func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}
	return nil
}

// Encode wraps ev in an envelope and marshals it.
func Encode(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: ev.Kind(), Payload: payload})
}
