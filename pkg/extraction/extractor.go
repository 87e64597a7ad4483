// Package extraction pulls typed entities and sentiment signals out of
// raw customer text using regular-expression families and small lexicons.
// It never calls external services and never fails: malformed input
// yields empty results with zeroed scores.
package extraction

import (
	"regexp"
	"sort"
	"strings"

	"github.com/commercekit/intent-engine/pkg/models"
)

// Extractor detects the closed set of entity types plus sentiment
// signals. It is immutable after construction and safe for concurrent
// use.
type Extractor struct {
	patterns  []typedPattern
	sentiment *sentimentLexicon
}

// typedPattern ties one compiled regex to an entity type, a confidence,
// and an optional value normalizer. Group selects the capture group that
// carries the value (0 = whole match).
type typedPattern struct {
	entityType models.EntityType
	re         *regexp.Regexp
	confidence float64
	group      int
	normalize  func(string) string
}

// New creates an extractor with all pattern families compiled.
func New() *Extractor {
	return &Extractor{
		patterns:  compilePatterns(),
		sentiment: newSentimentLexicon(),
	}
}

// Extract runs every pattern family over text and returns entities with
// non-overlapping spans per type, plus sentiment scores.
func (x *Extractor) Extract(text string) models.ExtractionResult {
	if strings.TrimSpace(text) == "" {
		return models.ExtractionResult{Entities: []models.Entity{}, SentimentSignals: []string{}}
	}

	byType := make(map[models.EntityType][]models.Entity)
	for _, p := range x.patterns {
		for _, idx := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := idx[0], idx[1]
			vStart, vEnd := start, end
			if p.group > 0 && 2*p.group+1 < len(idx) && idx[2*p.group] >= 0 {
				vStart, vEnd = idx[2*p.group], idx[2*p.group+1]
			}
			value := text[vStart:vEnd]
			if p.normalize != nil {
				value = p.normalize(value)
			}
			if value == "" {
				continue
			}
			byType[p.entityType] = append(byType[p.entityType], models.Entity{
				Type:       p.entityType,
				Value:      value,
				RawSpan:    text[start:end],
				StartPos:   start,
				EndPos:     end,
				Confidence: p.confidence,
			})
		}
	}

	entities := make([]models.Entity, 0, len(byType))
	for _, spans := range byType {
		entities = append(entities, dedupeSpans(spans)...)
	}
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].StartPos != entities[j].StartPos {
			return entities[i].StartPos < entities[j].StartPos
		}
		return entities[i].Type < entities[j].Type
	})

	result := x.sentiment.score(text)
	result.Entities = entities
	return result
}

// dedupeSpans drops overlapping spans of the same type, preferring the
// longer span and, on equal length, the earlier start.
func dedupeSpans(spans []models.Entity) []models.Entity {
	sort.Slice(spans, func(i, j int) bool {
		li := spans[i].EndPos - spans[i].StartPos
		lj := spans[j].EndPos - spans[j].StartPos
		if li != lj {
			return li > lj
		}
		return spans[i].StartPos < spans[j].StartPos
	})
	var kept []models.Entity
	for _, s := range spans {
		overlaps := false
		for _, k := range kept {
			if s.StartPos < k.EndPos && k.StartPos < s.EndPos {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, s)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].StartPos < kept[j].StartPos })
	return kept
}
