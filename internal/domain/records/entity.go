package records

import (
	"time"
)

// ID tipe untuk ScanRecord
type RecordID string

// Aggregate Root: ScanRecord, one ingested probe result.
// Payload holds the canonical JSON bytes exactly as they were digested
// for the timestamp request; they must never be re-encoded after creation.
type ScanRecord struct {
	ID            RecordID  `json:"id"`
	CorrelationID string    `json:"correlation_id"`
	Probe         string    `json:"probe,omitempty"`
	Payload       []byte    `json:"payload"`
	CreatedAt     time.Time `json:"created_at"`
}

// TimestampToken is the RFC 3161 proof of existence for the ScanRecord
// sharing its correlation id. Token holds the DER TimeStampToken bytes.
type TimestampToken struct {
	CorrelationID string    `json:"correlation_id"`
	Token         []byte    `json:"token"`
	CreatedAt     time.Time `json:"created_at"`
}
