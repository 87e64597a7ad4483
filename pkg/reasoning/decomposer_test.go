package reasoning

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/intent-engine/pkg/models"
)

func TestValidateOutput(t *testing.T) {
	valid := Output{
		Intents: []DecomposedIntent{
			{IntentCode: models.IntentWISMO, Confidence: 0.9},
			{IntentCode: models.IntentReturnInitiate, Confidence: 0.8},
		},
		IsCompound: true,
	}
	assert.NoError(t, ValidateOutput(valid))

	t.Run("unknown intent code", func(t *testing.T) {
		out := Output{Intents: []DecomposedIntent{{IntentCode: "ORDER_STATUS.BOGUS", Confidence: 0.9}}}
		err := ValidateOutput(out)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidOutput)
	})

	t.Run("confidence out of range", func(t *testing.T) {
		out := Output{Intents: []DecomposedIntent{{IntentCode: models.IntentWISMO, Confidence: 1.5}}}
		assert.ErrorIs(t, ValidateOutput(out), ErrInvalidOutput)
	})

	t.Run("clarification without question", func(t *testing.T) {
		out := Output{RequiresClarification: true}
		assert.ErrorIs(t, ValidateOutput(out), ErrInvalidOutput)
	})

	t.Run("empty output is valid", func(t *testing.T) {
		assert.NoError(t, ValidateOutput(Output{}))
	})
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"fenced", "Here you go:\n```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"nested braces", `{"a": {"b": 2}}`, `{"a": {"b": 2}}`},
		{"brace inside string", `{"a": "}"}`, `{"a": "}"}`},
		{"prose around", `The answer is {"x": true} as requested`, `{"x": true}`},
		{"no object", "no json here", ""},
		{"unclosed", `{"a": 1`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.input))
		})
	}
}

func TestStaticDecomposerPrefixMatch(t *testing.T) {
	d := NewStaticDecomposer().
		Register("I want to return", Output{
			Intents: []DecomposedIntent{
				{IntentCode: models.IntentReturnInitiate, Confidence: 0.9, Evidence: []string{"return"}},
				{IntentCode: models.IntentWISMO, Confidence: 0.85, Evidence: []string{"where is"}},
			},
			IsCompound: true,
			Reasoning:  "two distinct requests",
		})

	out, err := d.Decompose(context.Background(), Input{RawText: "I want to return ORD-1 and where is ORD-2?"})
	require.NoError(t, err)
	assert.True(t, out.IsCompound)
	require.Len(t, out.Intents, 2)
	assert.Equal(t, models.IntentReturnInitiate, out.Intents[0].IntentCode)

	require.Len(t, d.Calls, 1)
	assert.Equal(t, "I want to return ORD-1 and where is ORD-2?", d.Calls[0].RawText)
}

func TestStaticDecomposerLongestPrefixWins(t *testing.T) {
	d := NewStaticDecomposer().
		Register("I want", Output{Reasoning: "short"}).
		Register("I want to return", Output{Reasoning: "long"})

	out, err := d.Decompose(context.Background(), Input{RawText: "I want to return this"})
	require.NoError(t, err)
	assert.Equal(t, "long", out.Reasoning)
}

func TestStaticDecomposerDefaultClarifies(t *testing.T) {
	d := NewStaticDecomposer()
	out, err := d.Decompose(context.Background(), Input{RawText: "please help"})
	require.NoError(t, err)
	assert.True(t, out.RequiresClarification)
	assert.NotEmpty(t, out.ClarificationQuestion)
	assert.Empty(t, out.Intents)
}

func TestStaticDecomposerFailWith(t *testing.T) {
	boom := errors.New("model unavailable")
	d := NewStaticDecomposer().FailWith(boom)
	_, err := d.Decompose(context.Background(), Input{RawText: "anything"})
	assert.ErrorIs(t, err, boom)
}
