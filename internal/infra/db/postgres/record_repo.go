package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "github.com/bryanwahyu/scanproof/internal/domain/records"
)

type RecordRepository struct{ db *sql.DB }

func NewRecordRepository(db *sql.DB) *RecordRepository { return &RecordRepository{db: db} }

// Create inserts one ScanRecord; duplicates are rejected, never overwritten
func (r *RecordRepository) Create(ctx context.Context, rec *domain.ScanRecord) error {
	const q = `
INSERT INTO scan_records (id, correlation_id, probe, payload, created_at)
VALUES ($1,$2,$3,$4,$5);`

	_, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.CorrelationID, rec.Probe, rec.Payload, rec.CreatedAt,
	)
	if isDuplicateKey(err) {
		return domain.ErrDuplicateCorrelation
	}
	return err
}

func (r *RecordRepository) Get(ctx context.Context, id domain.RecordID) (*domain.ScanRecord, error) {
	const q = `
SELECT id, correlation_id, probe, payload, created_at
FROM scan_records
WHERE id=$1 LIMIT 1;`
	return scanOne(r.db.QueryRowContext(ctx, q, id))
}

func (r *RecordRepository) GetByCorrelation(ctx context.Context, correlationID string) (*domain.ScanRecord, error) {
	const q = `
SELECT id, correlation_id, probe, payload, created_at
FROM scan_records
WHERE correlation_id=$1 LIMIT 1;`
	return scanOne(r.db.QueryRowContext(ctx, q, correlationID))
}

func (r *RecordRepository) List(ctx context.Context, offset, limit int, textFilter string) ([]*domain.ScanRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `
SELECT id, correlation_id, probe, payload, created_at
FROM scan_records`
	args := []interface{}{}

	if textFilter != "" {
		query += "\nWHERE convert_from(payload, 'UTF8') LIKE $1"
		args = append(args, "%"+escapeLikePattern(textFilter)+"%")
	}

	query += fmt.Sprintf("\nORDER BY created_at ASC, id ASC LIMIT $%d OFFSET $%d;", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying scan records: %w", err)
	}
	defer rows.Close()

	var out []*domain.ScanRecord
	for rows.Next() {
		var rec domain.ScanRecord
		if err := rows.Scan(&rec.ID, &rec.CorrelationID, &rec.Probe, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (r *RecordRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scan_records;`).Scan(&count)
	return count, err
}

func scanOne(row *sql.Row) (*domain.ScanRecord, error) {
	var rec domain.ScanRecord
	if err := row.Scan(&rec.ID, &rec.CorrelationID, &rec.Probe, &rec.Payload, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}
