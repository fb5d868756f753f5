package analysis

import "time"

// AnalysisID identifier type
type AnalysisID string

// Analysis represents an AI analysis of a stored scan payload, kept for
// auditing and retrieval
type Analysis struct {
	ID            AnalysisID `json:"id"`
	CorrelationID string     `json:"correlation_id"`
	Model         string     `json:"model"`
	Result        string     `json:"result"` // JSON string from AI
	CreatedAt     time.Time  `json:"created_at"`
}
