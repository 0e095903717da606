package value

import "encoding/json"

// Event is an immutable record produced by a collector and matched by the
// engine. Events are passed by value into the matcher and never mutated.
type Event struct {
	Type      string
	CreatedMs uint64
	Payload   Value // Object
	Metadata  Value // Object
}

// NewEvent builds an Event, defaulting Payload/Metadata to empty Objects
// when nil values are given.
func NewEvent(typ string, createdMs uint64, payload, metadata Value) Event {
	if payload.kind != KindObject {
		payload = Object(nil, nil)
	}
	if metadata.kind != KindObject {
		metadata = Object(nil, nil)
	}
	return Event{Type: typ, CreatedMs: createdMs, Payload: payload, Metadata: metadata}
}

// eventJSON is the wire shape used by the reference collector and tests.
type eventJSON struct {
	Type      string `json:"type"`
	CreatedMs uint64 `json:"created_ms"`
	Payload   Value  `json:"payload"`
	Metadata  Value  `json:"metadata"`
}

// MarshalJSON implements json.Marshaler for Event, using the collector wire shape.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		Type:      e.Type,
		CreatedMs: e.CreatedMs,
		Payload:   e.Payload,
		Metadata:  e.Metadata,
	})
}

// UnmarshalJSON implements json.Unmarshaler for Event.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = NewEvent(raw.Type, raw.CreatedMs, raw.Payload, raw.Metadata)
	return nil
}
