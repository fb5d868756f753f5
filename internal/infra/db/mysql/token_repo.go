package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "github.com/bryanwahyu/scanproof/internal/domain/records"
)

type TokenRepository struct {
	db *sql.DB
}

func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create inserts one TimestampToken. The schema carries a foreign key to
// scan_records(correlation_id), so a token can never precede its record.
func (r *TokenRepository) Create(ctx context.Context, tok *domain.TimestampToken) error {
	const q = `
INSERT INTO timestamp_tokens (correlation_id, token, created_at)
VALUES (?,?,?);
`
	_, err := r.db.ExecContext(ctx, q, tok.CorrelationID, tok.Token, tok.CreatedAt)
	if isDuplicateKey(err) {
		return domain.ErrDuplicateCorrelation
	}
	if isForeignKeyViolation(err) {
		return domain.ErrNoScanRecord
	}
	return err
}

// GetByCorrelation looks a token up by its correlation id
func (r *TokenRepository) GetByCorrelation(ctx context.Context, correlationID string) (*domain.TimestampToken, error) {
	const q = `
SELECT correlation_id, token, created_at
FROM timestamp_tokens
WHERE correlation_id=? LIMIT 1;
`
	var tok domain.TimestampToken
	err := r.db.QueryRowContext(ctx, q, correlationID).Scan(&tok.CorrelationID, &tok.Token, &tok.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &tok, nil
}

// List returns tokens in creation order
func (r *TokenRepository) List(ctx context.Context, offset, limit int) ([]*domain.TimestampToken, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	const q = `
SELECT correlation_id, token, created_at
FROM timestamp_tokens
ORDER BY created_at ASC, correlation_id ASC
LIMIT ? OFFSET ?;
`
	rows, err := r.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying timestamp tokens: %w", err)
	}
	defer rows.Close()

	var out []*domain.TimestampToken
	for rows.Next() {
		var tok domain.TimestampToken
		if err := rows.Scan(&tok.CorrelationID, &tok.Token, &tok.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, &tok)
	}
	return out, rows.Err()
}
