package models

import (
	"strings"
	"time"
)

// Path identifies which pipeline branch produced a ResolveOutput.
type Path string

// Pipeline branches.
const (
	PathFast      Path = "fast_path"
	PathReasoning Path = "reasoning_path"
)

// MaxRawTextBytes is the maximum accepted input size. Longer inputs are
// rejected with a validation error before any processing.
const MaxRawTextBytes = 4096

// ResolveInput is the unified input to the resolution pipeline. Channel
// adapters produce this; the pipeline only consumes a validated tenant id.
type ResolveInput struct {
	RequestID string `json:"request_id" validate:"required"`
	TenantID  string `json:"tenant_id" validate:"required"`
	RawText   string `json:"raw_text" validate:"required"`

	// Conversation context
	ConversationID  string   `json:"conversation_id,omitempty"`
	PreviousIntents []string `json:"previous_intents,omitempty"`

	// Customer context (populated by enrichment, optional)
	CustomerID   string `json:"customer_id,omitempty"`
	CustomerTier string `json:"customer_tier,omitempty"`
}

// ConstraintType classifies a constraint on intent fulfilment.
type ConstraintType string

// Constraint types.
const (
	ConstraintDeadline    ConstraintType = "deadline"
	ConstraintPreference  ConstraintType = "preference"
	ConstraintRequirement ConstraintType = "requirement"
	ConstraintPolicy      ConstraintType = "policy"
)

// Constraint is a condition on how an intent should be fulfilled.
// Hard constraints must be satisfied; soft ones are preferences.
type Constraint struct {
	Type        ConstraintType `json:"constraint_type"`
	Description string         `json:"description"`
	Hard        bool           `json:"hard"`
}

// ClassifyConstraint maps a free-form constraint string to a typed
// Constraint: deadline words make it a hard deadline, obligation words a
// requirement, anything else a preference.
func ClassifyConstraint(description string) Constraint {
	lower := strings.ToLower(description)
	ctype := ConstraintPreference
	switch {
	case containsAny(lower, "by ", "before ", "deadline"):
		ctype = ConstraintDeadline
	case containsAny(lower, "must", "require", "need"):
		ctype = ConstraintRequirement
	}
	return Constraint{
		Type:        ctype,
		Description: description,
		Hard:        ctype == ConstraintDeadline,
	}
}

// MatchResult is one similarity-match candidate from the intent catalog.
type MatchResult struct {
	IntentCode     string  `json:"intent_code"`
	Similarity     float64 `json:"similarity"`
	MatchedExample string  `json:"matched_example"`
}

// ResolveOutput is the complete result of one pipeline run.
type ResolveOutput struct {
	RequestID       string           `json:"request_id"`
	ResolvedIntents []ResolvedIntent `json:"resolved_intents"`
	IsCompound      bool             `json:"is_compound"`
	Entities        []Entity         `json:"entities"`
	Constraints     []Constraint     `json:"constraints,omitempty"`

	Sentiment *ExtractionResult `json:"sentiment,omitempty"`

	// ConfidenceSummary is the minimum of the individual intent
	// confidences, or 0 when no intents were resolved.
	ConfidenceSummary     float64 `json:"confidence_summary"`
	RequiresHuman         bool    `json:"requires_human"`
	HumanHandoffReason    string  `json:"human_handoff_reason,omitempty"`
	ClarificationQuestion string  `json:"clarification_question,omitempty"`

	ReasoningTrace   []string `json:"reasoning_trace"`
	ProcessingTimeMS int64    `json:"processing_time_ms"`
	PathTaken        Path     `json:"path_taken"`
}

// SummarizeConfidence recomputes ConfidenceSummary from the resolved
// intents. Low overall confidence or an empty intent list sets
// RequiresHuman; a RequiresHuman already set is never cleared here.
func (o *ResolveOutput) SummarizeConfidence() {
	if len(o.ResolvedIntents) == 0 {
		o.ConfidenceSummary = 0
		o.RequiresHuman = true
		if o.HumanHandoffReason == "" {
			o.HumanHandoffReason = "no intents resolved"
		}
		return
	}
	min := o.ResolvedIntents[0].Confidence
	for _, ri := range o.ResolvedIntents[1:] {
		if ri.Confidence < min {
			min = ri.Confidence
		}
	}
	o.ConfidenceSummary = min
	if min < 0.60 {
		o.RequiresHuman = true
		if o.HumanHandoffReason == "" {
			o.HumanHandoffReason = "low overall confidence"
		}
	}
}

// Stamp records the elapsed processing time from a monotonic start point.
func (o *ResolveOutput) Stamp(start time.Time) {
	o.ProcessingTimeMS = time.Since(start).Milliseconds()
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
