package records

import (
	"context"
	"time"
)

// RecordRepository port (interface untuk persistence). Append-only:
// no update or delete is ever exposed.
type RecordRepository interface {
	Create(ctx context.Context, rec *ScanRecord) error
	Get(ctx context.Context, id RecordID) (*ScanRecord, error)
	GetByCorrelation(ctx context.Context, correlationID string) (*ScanRecord, error)
	List(ctx context.Context, offset, limit int, textFilter string) ([]*ScanRecord, error)
	Count(ctx context.Context) (int64, error)
}

// TokenRepository port, append-only like RecordRepository.
type TokenRepository interface {
	Create(ctx context.Context, tok *TimestampToken) error
	GetByCorrelation(ctx context.Context, correlationID string) (*TimestampToken, error)
	List(ctx context.Context, offset, limit int) ([]*TimestampToken, error)
}

// Timestamper port (interface untuk TSA round trips).
type Timestamper interface {
	// Timestamp obtains a signed timestamp token for the given payload bytes.
	Timestamp(ctx context.Context, payload []byte) ([]byte, error)
	// Check reports whether token attests to payload. A mismatch is a
	// normal false, not an error.
	Check(ctx context.Context, token, payload []byte) (bool, error)
}

// Source port for the transport adapter delivering probe messages.
// Receive returns one opaque message body, or nil when no message
// arrived within timeout.
type Source interface {
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// EvidenceStore port for the optional raw-evidence archive.
type EvidenceStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
