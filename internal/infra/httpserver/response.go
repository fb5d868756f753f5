package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	domain "github.com/bryanwahyu/scanproof/internal/domain/records"
)

const maxBodyBytes = 1 << 20 // 1 MiB request body cap

func readBody(req *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
	if err != nil {
		return nil, &domain.ValidationError{Field: "body", Reason: "unreadable"}
	}
	return body, nil
}

// recordResponse keeps the payload as raw JSON so the stored bytes go
// out exactly as they went in.
type recordResponse struct {
	ID            string          `json:"id"`
	CorrelationID string          `json:"correlation_id"`
	Probe         string          `json:"probe,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toRecordResponse(rec *domain.ScanRecord) recordResponse {
	return recordResponse{
		ID:            string(rec.ID),
		CorrelationID: rec.CorrelationID,
		Probe:         rec.Probe,
		Payload:       json.RawMessage(rec.Payload),
		CreatedAt:     rec.CreatedAt,
	}
}

func writeRecord(w http.ResponseWriter, rec *domain.ScanRecord) error {
	return writeJSON(w, toRecordResponse(rec))
}

// tokenResponse carries the DER token base64-encoded, which is what
// encoding/json does with []byte.
type tokenResponse struct {
	CorrelationID string    `json:"correlation_id"`
	Token         []byte    `json:"token"`
	CreatedAt     time.Time `json:"created_at"`
}

func toTokenResponse(tok *domain.TimestampToken) tokenResponse {
	return tokenResponse{
		CorrelationID: tok.CorrelationID,
		Token:         tok.Token,
		CreatedAt:     tok.CreatedAt,
	}
}
