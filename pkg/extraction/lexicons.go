package extraction

import (
	"regexp"
	"sort"
	"strings"

	"github.com/commercekit/intent-engine/pkg/models"
)

// Lexicon families. Each lexicon compiles to a single alternation regex;
// the matched surface form is normalized to a canonical value.

var colorLexicon = []string{
	"black", "white", "red", "blue", "green", "yellow", "orange", "purple",
	"pink", "brown", "grey", "gray", "navy", "beige", "teal", "maroon",
	"olive", "turquoise", "gold", "silver", "cream", "burgundy", "khaki",
}

var carrierLexicon = map[string]string{
	"ups":         "UPS",
	"fedex":       "FedEx",
	"fed ex":      "FedEx",
	"usps":        "USPS",
	"dhl":         "DHL",
	"amazon logistics": "Amazon Logistics",
	"ontrac":      "OnTrac",
	"lasership":   "LaserShip",
	"royal mail":  "Royal Mail",
	"canada post": "Canada Post",
}

// reasonLexicon maps surface phrases to canonical reason keywords.
var reasonLexicon = map[string]string{
	"damaged":         "damaged",
	"broken":          "damaged",
	"shattered":       "damaged",
	"cracked":         "damaged",
	"defective":       "defective",
	"doesn't work":    "defective",
	"does not work":   "defective",
	"stopped working": "defective",
	"wrong size":      "wrong_size",
	"doesn't fit":     "wrong_size",
	"does not fit":    "wrong_size",
	"too small":       "wrong_size",
	"too big":         "wrong_size",
	"too large":       "wrong_size",
	"wrong item":      "wrong_item",
	"wrong color":     "wrong_item",
	"not as described": "not_as_described",
	"changed my mind":  "changed_mind",
	"no longer need":   "changed_mind",
	"don't need":       "changed_mind",
	"arrived late":     "late_delivery",
	"never arrived":    "not_received",
	"missing":          "not_received",
}

var damageSeverityLexicon = map[string]string{
	"slight scratch":     "minor",
	"small scratch":      "minor",
	"scratched":          "minor",
	"scuffed":            "minor",
	"dented":             "moderate",
	"cracked":            "moderate",
	"chipped":            "moderate",
	"torn":               "moderate",
	"broken":             "severe",
	"shattered":          "severe",
	"smashed":            "severe",
	"crushed":            "severe",
	"completely broken":  "destroyed",
	"completely destroyed": "destroyed",
	"in pieces":          "destroyed",
	"unusable":           "severe",
}

var defectCategoryLexicon = map[string]string{
	"wrong color":     "color_mismatch",
	"different color": "color_mismatch",
	"wrong size":      "size_wrong",
	"broken":          "broken",
	"shattered":       "broken",
	"missing parts":   "missing_parts",
	"missing pieces":  "missing_parts",
	"manufacturing defect": "manufacturing_defect",
	"damaged in shipping":  "shipping_damage",
	"damaged in transit":   "shipping_damage",
	"not as described":     "not_as_described",
	"doesn't work":         "functionality_issue",
	"does not work":        "functionality_issue",
}

var brandLexicon = []string{
	"nike", "adidas", "apple", "samsung", "sony", "levi's", "levis",
	"zara", "h&m", "ikea", "dyson", "lego", "patagonia", "north face",
}

func lexiconPatterns() []typedPattern {
	return []typedPattern{
		{
			entityType: models.EntityColor,
			re:         alternation(colorLexicon),
			confidence: 0.85,
			normalize:  normalizeColor,
		},
		{
			entityType: models.EntityCarrier,
			re:         alternation(keysOf(carrierLexicon)),
			confidence: 0.90,
			normalize:  canonicalizer(carrierLexicon),
		},
		{
			entityType: models.EntityReason,
			re:         alternation(keysOf(reasonLexicon)),
			confidence: 0.82,
			normalize:  canonicalizer(reasonLexicon),
		},
		{
			entityType: models.EntityDamageSeverity,
			re:         alternation(keysOf(damageSeverityLexicon)),
			confidence: 0.80,
			normalize:  canonicalizer(damageSeverityLexicon),
		},
		{
			entityType: models.EntityDefectCategory,
			re:         alternation(keysOf(defectCategoryLexicon)),
			confidence: 0.80,
			normalize:  canonicalizer(defectCategoryLexicon),
		},
		{
			entityType: models.EntityBrand,
			re:         alternation(brandLexicon),
			confidence: 0.83,
			normalize:  strings.ToLower,
		},
	}
}

// alternation builds a case-insensitive word-boundary regex matching any
// phrase in the lexicon. Longer phrases are listed first so the regexp
// engine prefers them over embedded shorter ones.
func alternation(phrases []string) *regexp.Regexp {
	sorted := make([]string, len(phrases))
	copy(sorted, phrases)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	escaped := make([]string, len(sorted))
	for i, p := range sorted {
		escaped[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(escaped, "|") + `)\b`)
}

func keysOf(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// canonicalizer maps a matched surface form to its canonical value.
func canonicalizer(m map[string]string) func(string) string {
	return func(s string) string {
		if canonical, ok := m[strings.ToLower(s)]; ok {
			return canonical
		}
		return strings.ToLower(s)
	}
}

func normalizeColor(s string) string {
	s = strings.ToLower(s)
	if s == "gray" {
		return "grey"
	}
	return s
}
