package analysis

import "context"

// Repository port for persisting and querying analyses
type Repository interface {
	Save(ctx context.Context, a *Analysis) error
	Paginate(ctx context.Context, offset, limit int) ([]*Analysis, error)
	LatestByCorrelation(ctx context.Context, correlationID string) (*Analysis, error)
}
