package reasoning

import (
	"context"
	"strings"
	"sync"
)

// StaticDecomposer returns canned outputs keyed by message prefix. It is
// the testing variant of the Decomposer capability: deterministic, no
// network, no model.
type StaticDecomposer struct {
	mu       sync.RWMutex
	byPrefix map[string]Output
	fallback *Output
	err      error

	// Calls records the inputs seen, for assertions.
	Calls []Input
}

// NewStaticDecomposer creates an empty static decomposer. With no
// registrations it asks for clarification on every input.
func NewStaticDecomposer() *StaticDecomposer {
	return &StaticDecomposer{byPrefix: make(map[string]Output)}
}

// Register returns out for any message starting with prefix.
func (d *StaticDecomposer) Register(prefix string, out Output) *StaticDecomposer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byPrefix[prefix] = out
	return d
}

// RegisterFallback returns out for any message with no prefix match.
func (d *StaticDecomposer) RegisterFallback(out Output) *StaticDecomposer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = &out
	return d
}

// FailWith makes every call return err.
func (d *StaticDecomposer) FailWith(err error) *StaticDecomposer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
	return d
}

// Decompose returns the registered output for the longest matching
// prefix of the raw text.
func (d *StaticDecomposer) Decompose(_ context.Context, input Input) (Output, error) {
	d.mu.Lock()
	d.Calls = append(d.Calls, input)
	err := d.err
	d.mu.Unlock()
	if err != nil {
		return Output{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var bestPrefix string
	found := false
	for prefix := range d.byPrefix {
		if strings.HasPrefix(input.RawText, prefix) && len(prefix) >= len(bestPrefix) {
			bestPrefix = prefix
			found = true
		}
	}
	if found {
		return d.byPrefix[bestPrefix], nil
	}
	if d.fallback != nil {
		return *d.fallback, nil
	}
	return Output{
		Intents:               []DecomposedIntent{},
		RequiresClarification: true,
		ClarificationQuestion: "Could you tell me more about what you need help with?",
		Reasoning:             "no canned decomposition registered for this input",
	}, nil
}
