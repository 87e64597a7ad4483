package extraction

import (
	"regexp"
	"strings"

	"github.com/commercekit/intent-engine/pkg/models"
)

// Confidence bands: strict regex hits score 0.95-0.99, lexicon hits
// 0.80-0.90, soft cues 0.60-0.75.

func compilePatterns() []typedPattern {
	var patterns []typedPattern

	// Order IDs: "#ORD-98765", "ORD-1", "order #12345", "order 12345".
	patterns = append(patterns,
		typedPattern{
			entityType: models.EntityOrderID,
			re:         regexp.MustCompile(`#?\b([A-Za-z]{2,5}-\d{1,10})\b`),
			confidence: 0.97,
			group:      1,
			normalize:  strings.ToUpper,
		},
		typedPattern{
			entityType: models.EntityOrderID,
			re:         regexp.MustCompile(`(?i)\border\s*(?:number|no\.?|#)?\s*#?(\d{4,12})\b`),
			confidence: 0.95,
			group:      1,
			normalize:  strings.ToUpper,
		},
	)

	// Tracking numbers: UPS 1Z..., long digit runs with carrier context.
	patterns = append(patterns,
		typedPattern{
			entityType: models.EntityTrackingNumber,
			re:         regexp.MustCompile(`\b(1Z[0-9A-Za-z]{16})\b`),
			confidence: 0.99,
			group:      1,
			normalize:  strings.ToUpper,
		},
		typedPattern{
			entityType: models.EntityTrackingNumber,
			re:         regexp.MustCompile(`(?i)\btracking\s*(?:number|no\.?|#)?\s*:?\s*([0-9]{10,26})\b`),
			confidence: 0.96,
			group:      1,
			normalize:  strings.ToUpper,
		},
	)

	// Email and phone. Strict formats, high confidence.
	patterns = append(patterns,
		typedPattern{
			entityType: models.EntityEmail,
			re:         regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
			confidence: 0.99,
			normalize:  strings.ToLower,
		},
		typedPattern{
			entityType: models.EntityPhone,
			re:         regexp.MustCompile(`(?:\+?1[\s.\-]?)?\(?\d{3}\)?[\s.\-]\d{3}[\s.\-]\d{4}\b`),
			confidence: 0.95,
			normalize:  normalizePhone,
		},
	)

	// Money: "$12.34", "USD 99", "12.99 dollars".
	patterns = append(patterns,
		typedPattern{
			entityType: models.EntityMoney,
			re:         regexp.MustCompile(`(?i)(?:\$|usd\s?)\s?(\d+(?:,\d{3})*(?:\.\d{1,2})?)`),
			confidence: 0.97,
			normalize:  normalizeMoney,
		},
		typedPattern{
			entityType: models.EntityMoney,
			re:         regexp.MustCompile(`(?i)\b(\d+(?:\.\d{1,2})?)\s?(?:dollars|bucks)\b`),
			confidence: 0.90,
			normalize:  normalizeMoney,
		},
	)

	// Dates: ISO, US slash, and month-name forms.
	patterns = append(patterns,
		typedPattern{
			entityType: models.EntityDate,
			re:         regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`),
			confidence: 0.99,
			group:      1,
		},
		typedPattern{
			entityType: models.EntityDate,
			re:         regexp.MustCompile(`\b(\d{1,2}/\d{1,2}(?:/\d{2,4})?)\b`),
			confidence: 0.95,
			group:      1,
		},
		typedPattern{
			entityType: models.EntityDate,
			re: regexp.MustCompile(`(?i)\b((?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?)\b`),
			confidence: 0.93,
			group:      1,
			normalize:  strings.ToLower,
		},
	)

	// Deadlines: "by Friday", "before the 5th", "within 2 days", "asap".
	patterns = append(patterns,
		typedPattern{
			entityType: models.EntityDeadline,
			re: regexp.MustCompile(`(?i)\b((?:by|before)\s+(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday|tomorrow|tonight|next\s+week|end\s+of\s+(?:day|week|month)|the\s+\d{1,2}(?:st|nd|rd|th)?|\d{1,2}/\d{1,2}))\b`),
			confidence: 0.90,
			group:      1,
			normalize:  strings.ToLower,
		},
		typedPattern{
			entityType: models.EntityDeadline,
			re:         regexp.MustCompile(`(?i)\b(within\s+\d+\s+(?:hours?|days?|weeks?))\b`),
			confidence: 0.92,
			group:      1,
			normalize:  strings.ToLower,
		},
		typedPattern{
			entityType: models.EntityDeadline,
			re:         regexp.MustCompile(`(?i)\b(asap|as soon as possible|right away|immediately)\b`),
			confidence: 0.70,
			group:      1,
			normalize:  strings.ToLower,
		},
	)

	// Sizes: letter sizes and numeric sizes with context.
	patterns = append(patterns,
		typedPattern{
			entityType: models.EntitySize,
			re:         regexp.MustCompile(`(?i)\bsize\s+(\d{1,2}(?:\.\d)?|xxs|xs|s|m|l|xl|xxl|xxxl|small|medium|large)\b`),
			confidence: 0.95,
			group:      1,
			normalize:  normalizeSize,
		},
		typedPattern{
			entityType: models.EntitySize,
			re:         regexp.MustCompile(`\b(XXS|XS|S|M|L|XL|XXL|XXXL)\b`),
			confidence: 0.75,
			group:      1,
			normalize:  normalizeSize,
		},
	)

	// Quantities: digits or number words followed by a countable noun.
	patterns = append(patterns,
		typedPattern{
			entityType: models.EntityQuantity,
			re: regexp.MustCompile(`(?i)\b(\d{1,4}|one|two|three|four|five|six|seven|eight|nine|ten)\s+(?:items?|units?|pairs?|pieces?|boxes?|orders?)\b`),
			confidence: 0.85,
			group:      1,
			normalize:  normalizeQuantity,
		},
	)

	// Street addresses: number + name + suffix.
	patterns = append(patterns,
		typedPattern{
			entityType: models.EntityAddress,
			re: regexp.MustCompile(`(?i)\b\d{1,5}\s+[A-Za-z0-9.\s]{2,40}?\s(?:street|st\.?|avenue|ave\.?|road|rd\.?|boulevard|blvd\.?|lane|ln\.?|drive|dr\.?|court|ct\.?|way|place|pl\.?)\b(?:,?\s*(?:apt|unit|suite|#)\s*\w+)?`),
			confidence: 0.88,
			normalize:  strings.TrimSpace,
		},
	)

	// Person names: only behind an explicit introduction cue.
	patterns = append(patterns,
		typedPattern{
			entityType: models.EntityPersonName,
			re:         regexp.MustCompile(`(?i)\b(?:my name is|this is|i am|i'm)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`),
			confidence: 0.72,
			group:      1,
		},
	)

	// Lexicon families.
	patterns = append(patterns, lexiconPatterns()...)

	return patterns
}

func normalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	return digits
}

func normalizeMoney(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("$", "", "usd", "", "dollars", "", "bucks", "", ",", "", " ", "").Replace(s)
	return s
}

func normalizeSize(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "SMALL":
		return "S"
	case "MEDIUM":
		return "M"
	case "LARGE":
		return "L"
	}
	return s
}

var numberWords = map[string]string{
	"one": "1", "two": "2", "three": "3", "four": "4", "five": "5",
	"six": "6", "seven": "7", "eight": "8", "nine": "9", "ten": "10",
}

func normalizeQuantity(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	if n, ok := numberWords[lower]; ok {
		return n
	}
	return lower
}
