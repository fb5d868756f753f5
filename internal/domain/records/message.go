package records

import (
	"bytes"
	"encoding/json"
	"io"
	"unicode"
)

// MaxCorrelationIDLen bounds the caller-supplied correlation identifier.
const MaxCorrelationIDLen = 128

// Envelope is a validated probe message. Payload holds the compacted
// JSON bytes of the scan content; these are the bytes that get digested
// and persisted (byte-identity invariant).
type Envelope struct {
	CorrelationID string
	Probe         string
	Payload       []byte
}

// wire shape as sent by probes
type wireEnvelope struct {
	CorrelationID string          `json:"correlationId"`
	Probe         string          `json:"probe"`
	Payload       json.RawMessage `json:"payload"`
}

// ParseEnvelope converts an opaque message body into a typed Envelope.
// Input is only ever read through the strict JSON decoder, never
// evaluated; unknown top-level fields are rejected.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var w wireEnvelope
	if err := dec.Decode(&w); err != nil {
		return nil, &ValidationError{Field: "body", Reason: err.Error()}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &ValidationError{Field: "body", Reason: "trailing data after message"}
	}

	if w.CorrelationID == "" {
		return nil, &ValidationError{Field: "correlationId", Reason: "required"}
	}
	if len(w.CorrelationID) > MaxCorrelationIDLen {
		return nil, &ValidationError{Field: "correlationId", Reason: "too long"}
	}
	for _, r := range w.CorrelationID {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return nil, &ValidationError{Field: "correlationId", Reason: "contains non-printable or whitespace characters"}
		}
	}

	if len(w.Payload) == 0 {
		return nil, &ValidationError{Field: "payload", Reason: "required"}
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(w.Payload, &body); err != nil {
		return nil, &ValidationError{Field: "payload", Reason: "must be a JSON object"}
	}
	if len(body) == 0 {
		return nil, &ValidationError{Field: "payload", Reason: "must not be empty"}
	}

	var canonical bytes.Buffer
	if err := json.Compact(&canonical, w.Payload); err != nil {
		return nil, &ValidationError{Field: "payload", Reason: err.Error()}
	}

	return &Envelope{
		CorrelationID: w.CorrelationID,
		Probe:         w.Probe,
		Payload:       canonical.Bytes(),
	}, nil
}
