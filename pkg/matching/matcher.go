// Package matching implements fast-path intent classification: top-k
// similarity retrieval against the catalog with a tiered decision, and
// signals-based compound-intent detection.
package matching

import (
	"context"
	"fmt"
	"sort"

	"github.com/commercekit/intent-engine/pkg/catalog"
	"github.com/commercekit/intent-engine/pkg/embedding"
	"github.com/commercekit/intent-engine/pkg/models"
)

// DefaultTopK is the number of nearest catalog examples retrieved per
// query.
const DefaultTopK = 5

// Decision thresholds. Exactly 0.85 is HIGH; exactly 0.60 is MEDIUM.
const (
	HighThreshold   = 0.85
	MediumThreshold = 0.60
	// MinGap is the required top-1/top-2 separation for a HIGH decision.
	MinGap = 0.05
)

// Searcher is the catalog capability the matcher needs.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, topK int, minSimilarity float64) ([]catalog.Match, error)
}

// Outcome is the matcher's aggregated view of one query.
type Outcome struct {
	// Results is ordered by similarity descending, one entry per intent
	// code (max-pooled over that intent's example hits).
	Results []models.MatchResult
	// Hits is the raw top-k retrieval, for compound detection.
	Hits []catalog.Match
	// Decision is the confidence tier of the classification.
	Decision models.ConfidenceTier
	// Top1 and Top2 are the best and second-best pooled similarities
	// (Top2 is 0 when only one intent matched).
	Top1, Top2 float64
}

// Gap returns the top-1/top-2 separation.
func (o Outcome) Gap() float64 { return o.Top1 - o.Top2 }

// Matcher classifies text against the intent catalog.
type Matcher struct {
	embedder embedding.Embedder
	searcher Searcher
	topK     int
}

// NewMatcher creates a matcher with the default top-k.
func NewMatcher(embedder embedding.Embedder, searcher Searcher) *Matcher {
	return &Matcher{embedder: embedder, searcher: searcher, topK: DefaultTopK}
}

// Embed exposes the matcher's embedder for callers that want to reuse
// the query vector across stages.
func (m *Matcher) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.embedder.Embed(ctx, text)
}

// Match embeds text, retrieves the top-k catalog hits, max-pools per
// intent code, and classifies the result into a confidence tier.
//
// Max-pooling is deliberate: with short catalog examples the best single
// example is a stronger signal than the mean over k.
func (m *Matcher) Match(ctx context.Context, text string) (Outcome, error) {
	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return Outcome{}, fmt.Errorf("embedding query: %w", err)
	}
	return m.MatchVector(ctx, vec)
}

// MatchVector is Match for a pre-computed query vector.
func (m *Matcher) MatchVector(ctx context.Context, vec []float32) (Outcome, error) {
	hits, err := m.searcher.Search(ctx, vec, m.topK, 0.0)
	if err != nil {
		return Outcome{}, err
	}

	best := make(map[string]catalog.Match)
	order := make([]string, 0, len(hits))
	for _, h := range hits {
		prev, seen := best[h.IntentCode]
		if !seen {
			order = append(order, h.IntentCode)
		}
		if !seen || h.Similarity > prev.Similarity {
			best[h.IntentCode] = h
		}
	}

	results := make([]models.MatchResult, 0, len(best))
	for _, code := range order {
		h := best[code]
		results = append(results, models.MatchResult{
			IntentCode:     code,
			Similarity:     h.Similarity,
			MatchedExample: h.ExampleText,
		})
	}
	// Hits arrive ordered by similarity, and max-pooling preserves that
	// order for the pooled winners; sort defensively all the same.
	sortBySimilarity(results)

	out := Outcome{Results: results, Hits: hits}
	if len(results) > 0 {
		out.Top1 = results[0].Similarity
	}
	if len(results) > 1 {
		out.Top2 = results[1].Similarity
	}
	out.Decision = decide(out.Top1, out.Top2, len(results))
	return out, nil
}

// decide applies the tier rule: HIGH needs top1 >= 0.85 and a clear gap;
// MEDIUM covers top1 >= 0.60 and any ambiguous top-2 gap; LOW otherwise.
func decide(top1, top2 float64, n int) models.ConfidenceTier {
	if n == 0 {
		return models.TierLow
	}
	gap := top1 - top2
	switch {
	case top1 >= HighThreshold && (n == 1 || gap >= MinGap):
		return models.TierHigh
	case top1 >= MediumThreshold || (n > 1 && gap < MinGap):
		return models.TierMedium
	default:
		return models.TierLow
	}
}

func sortBySimilarity(results []models.MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
}
