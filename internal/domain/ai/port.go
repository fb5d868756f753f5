package ai

import "context"

type Client interface {
	// Analyze asks the provider for a risk summary of one scan payload
	// (canonical JSON) and returns the raw JSON answer.
	Analyze(ctx context.Context, payload string) (string, error)
}
