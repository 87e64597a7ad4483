package matching

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/intent-engine/pkg/catalog"
	"github.com/commercekit/intent-engine/pkg/embedding"
	"github.com/commercekit/intent-engine/pkg/models"
)

// stubSearcher returns a fixed hit list regardless of the query vector.
type stubSearcher struct {
	hits []catalog.Match
	err  error
}

func (s *stubSearcher) Search(_ context.Context, _ []float32, topK int, _ float64) ([]catalog.Match, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.hits) > topK {
		return s.hits[:topK], nil
	}
	return s.hits, nil
}

func hit(code string, similarity float64, example string) catalog.Match {
	category, _, _ := strings.Cut(code, ".")
	return catalog.Match{IntentCode: code, Category: category, ExampleText: example, Similarity: similarity}
}

func newTestMatcher(hits ...catalog.Match) *Matcher {
	return NewMatcher(embedding.NewLocalEmbedder(64), &stubSearcher{hits: hits})
}

func TestMatchMaxPoolsPerIntent(t *testing.T) {
	m := newTestMatcher(
		hit(models.IntentWISMO, 0.93, "where is my order"),
		hit(models.IntentWISMO, 0.88, "track my package"),
		hit(models.IntentDeliveryEstimate, 0.71, "when will it arrive"),
	)

	out, err := m.Match(context.Background(), "where is my order?")
	require.NoError(t, err)

	require.Len(t, out.Results, 2)
	assert.Equal(t, models.IntentWISMO, out.Results[0].IntentCode)
	assert.Equal(t, 0.93, out.Results[0].Similarity)
	assert.Equal(t, "where is my order", out.Results[0].MatchedExample)
	assert.Equal(t, models.IntentDeliveryEstimate, out.Results[1].IntentCode)
}

func TestMatchDecisionTiers(t *testing.T) {
	tests := []struct {
		name string
		hits []catalog.Match
		want models.ConfidenceTier
	}{
		{
			name: "exactly 0.85 with clear gap is high",
			hits: []catalog.Match{
				hit(models.IntentWISMO, 0.85, "a"),
				hit(models.IntentCancelOrder, 0.79, "b"),
			},
			want: models.TierHigh,
		},
		{
			name: "gap exactly 0.05 is high",
			hits: []catalog.Match{
				hit(models.IntentWISMO, 0.90, "a"),
				hit(models.IntentCancelOrder, 0.85, "b"),
			},
			want: models.TierHigh,
		},
		{
			name: "high top1 with narrow gap demotes to medium",
			hits: []catalog.Match{
				hit(models.IntentWISMO, 0.90, "a"),
				hit(models.IntentCancelOrder, 0.87, "b"),
			},
			want: models.TierMedium,
		},
		{
			name: "exactly 0.60 is medium",
			hits: []catalog.Match{
				hit(models.IntentWISMO, 0.60, "a"),
				hit(models.IntentCancelOrder, 0.30, "b"),
			},
			want: models.TierMedium,
		},
		{
			name: "below 0.60 is low",
			hits: []catalog.Match{
				hit(models.IntentWISMO, 0.59, "a"),
			},
			want: models.TierLow,
		},
		{
			name: "no candidates is low",
			hits: nil,
			want: models.TierLow,
		},
		{
			name: "single high candidate is high",
			hits: []catalog.Match{
				hit(models.IntentWISMO, 0.95, "a"),
			},
			want: models.TierHigh,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMatcher(tt.hits...)
			out, err := m.Match(context.Background(), "anything")
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Decision)
		})
	}
}

func TestMatchTopKLimit(t *testing.T) {
	var hits []catalog.Match
	for i := 0; i < 10; i++ {
		hits = append(hits, hit(models.IntentWISMO, 0.9-float64(i)*0.01, "example"))
	}
	m := newTestMatcher(hits...)

	out, err := m.Match(context.Background(), "query")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out.Hits), DefaultTopK)
}
