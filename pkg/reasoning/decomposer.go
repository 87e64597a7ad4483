// Package reasoning invokes a large-language-model decomposer to break
// compound or ambiguous customer messages into atomic intents with
// constraints and evidence.
package reasoning

import (
	"context"
	"errors"
	"fmt"

	"github.com/commercekit/intent-engine/pkg/models"
)

// ErrInvalidOutput marks a decomposer response that failed schema or
// taxonomy validation. Callers must not retry it; the pipeline falls
// back to the matcher's candidates instead.
var ErrInvalidOutput = errors.New("decomposer returned invalid output")

// OrderSummary is the result of the order_lookup tool callback.
type OrderSummary struct {
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	Carrier   string `json:"carrier,omitempty"`
	ETA       string `json:"eta,omitempty"`
	Total     string `json:"total,omitempty"`
	PlacedAt  string `json:"placed_at,omitempty"`
	ShippedAt string `json:"shipped_at,omitempty"`
}

// EligibilityDecision is the result of the return_eligibility_check tool
// callback.
type EligibilityDecision struct {
	OrderID  string `json:"order_id"`
	ItemID   string `json:"item_id,omitempty"`
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// ToolCallbacks are the side-effect-free lookups the model may invoke
// during decomposition. Either may be nil, in which case the matching
// tool is not offered to the model.
type ToolCallbacks struct {
	OrderLookup            func(ctx context.Context, orderID string) (OrderSummary, error)
	ReturnEligibilityCheck func(ctx context.Context, orderID, itemID string) (EligibilityDecision, error)
}

// Input is the decomposition request.
type Input struct {
	RawText         string
	Entities        []models.Entity
	MatchHints      []models.MatchResult
	CustomerTier    string
	PreviousIntents []string
	Tools           *ToolCallbacks
}

// DecomposedIntent is one atomic intent in the model's answer.
type DecomposedIntent struct {
	IntentCode  string   `json:"intent_code"`
	Confidence  float64  `json:"confidence"`
	Evidence    []string `json:"evidence"`
	Constraints []string `json:"constraints"`
}

// Output is the validated decomposition result.
type Output struct {
	Intents               []DecomposedIntent `json:"intents"`
	IsCompound            bool               `json:"is_compound"`
	Reasoning             string             `json:"reasoning"`
	RequiresClarification bool               `json:"requires_clarification"`
	ClarificationQuestion string             `json:"clarification_question,omitempty"`
}

// Decomposer is the LLM capability the pipeline consumes. The production
// variant calls a hosted model; the testing variant returns canned
// outputs by prompt prefix.
type Decomposer interface {
	Decompose(ctx context.Context, input Input) (Output, error)
}

// ValidateOutput checks the schema-level invariants of a decomposition:
// every intent code must be in the closed taxonomy and every confidence
// in [0,1]. Violations wrap ErrInvalidOutput.
func ValidateOutput(out Output) error {
	for _, intent := range out.Intents {
		if !models.IsCoreIntent(intent.IntentCode) {
			return fmt.Errorf("%w: unknown intent code %q", ErrInvalidOutput, intent.IntentCode)
		}
		if intent.Confidence < 0 || intent.Confidence > 1 {
			return fmt.Errorf("%w: confidence %v out of range for %s",
				ErrInvalidOutput, intent.Confidence, intent.IntentCode)
		}
	}
	if out.RequiresClarification && out.ClarificationQuestion == "" {
		return fmt.Errorf("%w: clarification requested without a question", ErrInvalidOutput)
	}
	return nil
}
