package matching

import (
	"regexp"
	"strings"

	"github.com/commercekit/intent-engine/pkg/catalog"
	"github.com/commercekit/intent-engine/pkg/models"
)

// CompoundMinSimilarity is the similarity floor for a match to count as a
// category-mix signal.
const CompoundMinSimilarity = 0.70

// CompoundResult is the detector's verdict plus the signals that fired,
// in detection order, for the reasoning trace.
type CompoundResult struct {
	IsCompound bool
	Signals    []string
}

var conjunctionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\band\s+also\b`),
	regexp.MustCompile(`(?i)\bplus\b`),
	regexp.MustCompile(`(?i)\bas\s+well\s+as\b`),
	regexp.MustCompile(`(?i)\bin\s+addition\b`),
	regexp.MustCompile(`(?i)\balso\s+(?:need|want|would like)\b`),
	regexp.MustCompile(`(?i)\bon\s+top\s+of\s+that\b`),
	regexp.MustCompile(`(?i)\bwhile\s+(?:you're|you are)\s+at\s+it\b`),
}

// Common abbreviations that end with a period but do not terminate a
// sentence.
var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "st": {}, "no": {},
	"vs": {}, "etc": {}, "e.g": {}, "i.e": {}, "approx": {}, "dept": {},
}

// CompoundDetector decides whether a message carries more than one
// atomic intent. It is purely signals-based and never consults an LLM.
type CompoundDetector struct{}

// NewCompoundDetector creates a detector.
func NewCompoundDetector() *CompoundDetector {
	return &CompoundDetector{}
}

// Detect evaluates the compound signals over the raw text, the matcher's
// raw hits, and the extracted entities:
//
//	compound := categoryMix OR (conjunction AND multiSentence)
//	            OR two high-similarity intents from different categories
func (d *CompoundDetector) Detect(text string, hits []catalog.Match, extraction models.ExtractionResult) CompoundResult {
	var signals []string

	multiSentence := len(SplitSentences(text)) >= 2
	if multiSentence {
		signals = append(signals, "multi_sentence")
	}

	conjunction := false
	for _, re := range conjunctionPatterns {
		if loc := re.FindString(text); loc != "" {
			conjunction = true
			signals = append(signals, "conjunction:"+strings.ToLower(strings.Join(strings.Fields(loc), " ")))
			break
		}
	}

	categoryMix := false
	highIntents := make(map[string]string) // intent code -> category
	categories := make(map[string]struct{})
	for _, h := range hits {
		if h.Similarity < CompoundMinSimilarity {
			continue
		}
		categories[h.Category] = struct{}{}
		highIntents[h.IntentCode] = h.Category
	}
	if len(categories) >= 2 {
		categoryMix = true
		signals = append(signals, "category_mix")
	}

	multiIntent := false
	if len(highIntents) >= 2 {
		distinct := make(map[string]struct{})
		for _, cat := range highIntents {
			distinct[cat] = struct{}{}
		}
		if len(distinct) >= 2 {
			multiIntent = true
			signals = append(signals, "multi_intent_categories")
		}
	}

	orderIDs := extraction.EntitiesOfType(models.EntityOrderID)
	if len(orderIDs) >= 2 {
		signals = append(signals, "multiple_order_ids")
	}

	isCompound := categoryMix || (conjunction && multiSentence) || multiIntent
	if signals == nil {
		signals = []string{}
	}
	return CompoundResult{IsCompound: isCompound, Signals: signals}
}

// SplitSentences segments text on sentence terminators, skipping periods
// that belong to common abbreviations or decimal numbers. Empty segments
// are dropped.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if r == '.' {
			if isAbbreviation(current.String()) {
				continue
			}
			// Decimal point: digit on both sides.
			if i > 0 && i+1 < len(runes) && isDigit(runes[i-1]) && isDigit(runes[i+1]) {
				continue
			}
		}
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// isAbbreviation reports whether the text ends in a known abbreviation
// followed by the period just written.
func isAbbreviation(s string) bool {
	s = strings.TrimSuffix(s, ".")
	idx := strings.LastIndexFunc(s, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' })
	word := strings.ToLower(s[idx+1:])
	_, ok := abbreviations[word]
	return ok
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
