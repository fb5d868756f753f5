package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/bryanwahyu/scanproof/internal/domain/analysis"
)

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository { return &AnalysisRepository{db: db} }

func (r *AnalysisRepository) Save(ctx context.Context, a *domain.Analysis) error {
	const q = `
INSERT INTO payload_analyses (id, correlation_id, model, result, created_at)
VALUES (?,?,?,?,?);
`
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q, a.ID, a.CorrelationID, a.Model, a.Result, created)
	return err
}

func (r *AnalysisRepository) Paginate(ctx context.Context, offset, limit int) ([]*domain.Analysis, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const q = `
SELECT id, correlation_id, model, result, created_at
FROM payload_analyses
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?;
`
	rows, err := r.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Analysis
	for rows.Next() {
		var a domain.Analysis
		if err := rows.Scan(&a.ID, &a.CorrelationID, &a.Model, &a.Result, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (r *AnalysisRepository) LatestByCorrelation(ctx context.Context, correlationID string) (*domain.Analysis, error) {
	const q = `
SELECT id, correlation_id, model, result, created_at
FROM payload_analyses
WHERE correlation_id = ?
ORDER BY created_at DESC, id DESC
LIMIT 1;
`
	var a domain.Analysis
	err := r.db.QueryRowContext(ctx, q, correlationID).Scan(&a.ID, &a.CorrelationID, &a.Model, &a.Result, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}
