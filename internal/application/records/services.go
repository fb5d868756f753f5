package records

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bryanwahyu/scanproof/internal/application"
	domain "github.com/bryanwahyu/scanproof/internal/domain/records"
)

// Service implements use-cases over the correlation store plus proof
// verification. Safe for concurrent use: all state lives in the store.
type Service struct {
	Records domain.RecordRepository
	Tokens  domain.TokenRepository
	TSA     domain.Timestamper
	Clock   application.Clock
}

// CreateRecord persists a validated envelope as a new ScanRecord. The
// surrogate ID is assigned here; the payload bytes go in untouched.
func (s *Service) CreateRecord(ctx context.Context, env *domain.Envelope) (*domain.ScanRecord, error) {
	rec := &domain.ScanRecord{
		ID:            domain.RecordID(uuid.New().String()),
		CorrelationID: env.CorrelationID,
		Probe:         env.Probe,
		Payload:       env.Payload,
		CreatedAt:     s.Clock.Now(),
	}
	if err := s.Records.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CreateToken persists a timestamp token. Creation is rejected with
// ErrNoScanRecord unless the matching record already exists: a proof
// without data to prove is meaningless.
func (s *Service) CreateToken(ctx context.Context, correlationID string, token []byte) (*domain.TimestampToken, error) {
	if len(token) == 0 {
		return nil, &domain.ValidationError{Field: "token", Reason: "required"}
	}
	if _, err := s.Records.GetByCorrelation(ctx, correlationID); err != nil {
		if err == domain.ErrNotFound {
			return nil, domain.ErrNoScanRecord
		}
		return nil, err
	}

	tok := &domain.TimestampToken{
		CorrelationID: correlationID,
		Token:         token,
		CreatedAt:     s.Clock.Now(),
	}
	if err := s.Tokens.Create(ctx, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// GetRecord by surrogate ID
func (s *Service) GetRecord(ctx context.Context, id domain.RecordID) (*domain.ScanRecord, error) {
	return s.Records.Get(ctx, id)
}

// GetRecordByCorrelation by correlation id
func (s *Service) GetRecordByCorrelation(ctx context.Context, correlationID string) (*domain.ScanRecord, error) {
	return s.Records.GetByCorrelation(ctx, correlationID)
}

// ListRecords with offset/limit and optional payload substring filter
func (s *Service) ListRecords(ctx context.Context, offset, limit int, textFilter string) ([]*domain.ScanRecord, error) {
	return s.Records.List(ctx, offset, limit, textFilter)
}

// GetToken by correlation id
func (s *Service) GetToken(ctx context.Context, correlationID string) (*domain.TimestampToken, error) {
	return s.Tokens.GetByCorrelation(ctx, correlationID)
}

// ListTokens with offset/limit
func (s *Service) ListTokens(ctx context.Context, offset, limit int) ([]*domain.TimestampToken, error) {
	return s.Tokens.List(ctx, offset, limit)
}

// CountRecords basic instance statistic
func (s *Service) CountRecords(ctx context.Context) (int64, error) {
	return s.Records.Count(ctx)
}

// Verify re-derives the digest over the exact stored payload bytes and
// checks the stored token against it. Either half missing is
// ErrNotFound, distinct from a negative verification, which is a
// normal false.
func (s *Service) Verify(ctx context.Context, correlationID string) (bool, error) {
	rec, err := s.Records.GetByCorrelation(ctx, correlationID)
	if err != nil {
		return false, err
	}
	tok, err := s.Tokens.GetByCorrelation(ctx, correlationID)
	if err != nil {
		return false, err
	}

	ok, err := s.TSA.Check(ctx, tok.Token, rec.Payload)
	if err != nil {
		return false, fmt.Errorf("checking token for %s: %w", correlationID, err)
	}
	return ok, nil
}
