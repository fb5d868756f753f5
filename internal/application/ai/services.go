package ai

import (
	"context"

	"github.com/google/uuid"

	"github.com/bryanwahyu/scanproof/internal/application"
	approrecords "github.com/bryanwahyu/scanproof/internal/application/records"
	domai "github.com/bryanwahyu/scanproof/internal/domain/ai"
	domanalysis "github.com/bryanwahyu/scanproof/internal/domain/analysis"
)

type Service struct {
	Client   domai.Client
	Model    string
	Records  *approrecords.Service
	Analyses domanalysis.Repository
	Clock    application.Clock
}

func NewService(client domai.Client, model string, recs *approrecords.Service, analyses domanalysis.Repository, clock application.Clock) *Service {
	return &Service{Client: client, Model: model, Records: recs, Analyses: analyses, Clock: clock}
}

// AnalyzeAndStore loads the stored payload for correlationID, asks the
// AI provider for a risk summary, and persists the result.
func (s *Service) AnalyzeAndStore(ctx context.Context, correlationID string) (*domanalysis.Analysis, error) {
	rec, err := s.Records.GetRecordByCorrelation(ctx, correlationID)
	if err != nil {
		return nil, err
	}

	result, err := s.Client.Analyze(ctx, string(rec.Payload))
	if err != nil {
		return nil, err
	}

	a := &domanalysis.Analysis{
		ID:            domanalysis.AnalysisID(uuid.New().String()),
		CorrelationID: correlationID,
		Model:         s.Model,
		Result:        result,
		CreatedAt:     s.Clock.Now(),
	}
	if err := s.Analyses.Save(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListAnalyses with offset/limit
func (s *Service) ListAnalyses(ctx context.Context, offset, limit int) ([]*domanalysis.Analysis, error) {
	return s.Analyses.Paginate(ctx, offset, limit)
}

// LatestAnalysis returns the most recent analysis for a correlation id,
// or nil when none has been run yet.
func (s *Service) LatestAnalysis(ctx context.Context, correlationID string) (*domanalysis.Analysis, error) {
	return s.Analyses.LatestByCorrelation(ctx, correlationID)
}
