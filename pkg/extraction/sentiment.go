package extraction

import (
	"strings"

	"github.com/commercekit/intent-engine/pkg/models"
)

// sentimentLexicon scores urgency and frustration from weighted word
// lists. Scores are clamped to [0,1]; sentiment runs negative when
// frustration dominates.
type sentimentLexicon struct {
	urgency     map[string]float64
	frustration map[string]float64
	positive    map[string]float64
	negations   []string
}

// PriorityThreshold is the urgency/frustration score at or above which a
// message is flagged for priority routing.
const PriorityThreshold = 0.7

func newSentimentLexicon() *sentimentLexicon {
	return &sentimentLexicon{
		urgency: map[string]float64{
			"urgent": 0.5, "urgently": 0.5, "asap": 0.5, "immediately": 0.45,
			"right away": 0.45, "right now": 0.4, "today": 0.25,
			"as soon as possible": 0.5, "emergency": 0.6, "quickly": 0.3,
			"hurry": 0.4, "time sensitive": 0.45,
		},
		frustration: map[string]float64{
			"furious": 0.6, "terrible": 0.45, "awful": 0.45, "horrible": 0.5,
			"disappointed": 0.4, "frustrated": 0.45, "frustrating": 0.45,
			"unacceptable": 0.55, "ridiculous": 0.5, "angry": 0.5,
			"worst": 0.5, "fed up": 0.55, "never again": 0.5,
			"disgusted": 0.55, "outraged": 0.6, "sick of": 0.5,
		},
		positive: map[string]float64{
			"thanks": 0.3, "thank you": 0.35, "great": 0.3, "love": 0.35,
			"appreciate": 0.3, "wonderful": 0.35, "perfect": 0.3,
		},
		negations: []string{"not ", "no ", "never ", "n't "},
	}
}

// score computes the sentiment portion of an ExtractionResult; entities
// are filled in by the caller.
func (l *sentimentLexicon) score(text string) models.ExtractionResult {
	lower := strings.ToLower(text)
	signals := []string{}

	var urgency float64
	for phrase, weight := range l.urgency {
		if strings.Contains(lower, phrase) {
			urgency += weight
			signals = append(signals, "urgency:"+phrase)
		}
	}

	var frustration float64
	for phrase, weight := range l.frustration {
		if strings.Contains(lower, phrase) {
			frustration += weight
			signals = append(signals, "frustration:"+phrase)
		}
	}

	var positive float64
	for phrase, weight := range l.positive {
		if strings.Contains(lower, phrase) {
			positive += weight
			signals = append(signals, "positive:"+phrase)
		}
	}

	// Exclamation runs and all-caps words are soft frustration cues.
	if strings.Contains(text, "!!") {
		frustration += 0.15
		signals = append(signals, "frustration:exclamations")
	}
	if hasShoutingWord(text) {
		frustration += 0.15
		signals = append(signals, "frustration:all_caps")
	}

	// A negation cue anywhere in the text drops the positive score and
	// adds half of it to frustration.
	if positive > 0 {
		for _, neg := range l.negations {
			if strings.Contains(lower, neg) {
				frustration += positive * 0.5
				positive = 0
				signals = append(signals, "negated_positive")
				break
			}
		}
	}

	urgency = clamp01(urgency)
	frustration = clamp01(frustration)
	sentiment := clampSigned(positive - frustration)

	return models.ExtractionResult{
		SentimentScore:   sentiment,
		UrgencyScore:     urgency,
		FrustrationScore: frustration,
		PriorityFlag:     urgency >= PriorityThreshold || frustration >= PriorityThreshold,
		SentimentSignals: signals,
	}
}

func hasShoutingWord(text string) bool {
	for _, word := range strings.Fields(text) {
		letters := 0
		upper := 0
		for _, r := range word {
			if r >= 'a' && r <= 'z' {
				letters++
			}
			if r >= 'A' && r <= 'Z' {
				letters++
				upper++
			}
		}
		if letters >= 4 && upper == letters {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampSigned(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
