// Package oracle wraps the external generative service that proposes results
// for combinations the catalog has never seen.
package oracle

import (
	"context"

	"dailyalchemy/internal/models"
)

// Request asks for the result of combining A and B. Context holds popular
// catalog entries so the model stays consistent with existing results.
type Request struct {
	A       models.Element
	B       models.Element
	Context []models.CombinationRecord
}

// Result is a validated oracle answer.
type Result struct {
	ResultName  string `json:"resultName"`
	ResultEmoji string `json:"resultEmoji"`
	Rationale   string `json:"rationale,omitempty"`
}

// Element returns the result as an element.
func (r Result) Element() models.Element {
	return models.Element{Name: r.ResultName, Emoji: r.ResultEmoji}
}

// BridgeRequest asks for steps that connect Available names to Target.
type BridgeRequest struct {
	Target    models.Element
	Available []string
	MaxSteps  int
}

// Provider is one generative backend. Implementations perform a single
// attempt; timeouts, retries and validation belong to the Adapter.
type Provider interface {
	Generate(ctx context.Context, req Request) (Result, error)
	ProposeBridge(ctx context.Context, req BridgeRequest) ([]models.Step, error)
}
