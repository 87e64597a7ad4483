package models

// EntityType identifies the kind of a span extracted from customer text.
type EntityType string

// The closed set of entity types the extractor can emit.
const (
	EntityOrderID        EntityType = "order_id"
	EntityTrackingNumber EntityType = "tracking_number"
	EntityDate           EntityType = "date"
	EntityDeadline       EntityType = "deadline"
	EntityMoney          EntityType = "money"
	EntitySize           EntityType = "size"
	EntityColor          EntityType = "color"
	EntityQuantity       EntityType = "quantity"
	EntityAddress        EntityType = "address"
	EntityPersonName     EntityType = "person_name"
	EntityReason         EntityType = "reason"
	EntityEmail          EntityType = "email"
	EntityPhone          EntityType = "phone"
	EntityDamageSeverity EntityType = "damage_severity"
	EntityDefectCategory EntityType = "defect_category"
	EntityBrand          EntityType = "brand"
	EntityCarrier        EntityType = "carrier"
)

// Entity is a typed span extracted from the input text.
// Positions are byte offsets into the original string, half-open
// [StartPos, EndPos).
type Entity struct {
	Type       EntityType `json:"entity_type"`
	Value      string     `json:"value"`
	RawSpan    string     `json:"raw_span"`
	StartPos   int        `json:"start_pos"`
	EndPos     int        `json:"end_pos"`
	Confidence float64    `json:"confidence"`
}

// ExtractionResult is the complete output of entity extraction over one
// message: the typed spans plus lexicon-derived sentiment signals.
type ExtractionResult struct {
	Entities         []Entity `json:"entities"`
	SentimentScore   float64  `json:"sentiment_score"`
	UrgencyScore     float64  `json:"urgency_score"`
	FrustrationScore float64  `json:"frustration_score"`
	// PriorityFlag is set when urgency or frustration crosses 0.7,
	// marking the message for priority routing.
	PriorityFlag     bool     `json:"priority_flag"`
	SentimentSignals []string `json:"sentiment_signals"`
}

// EntitiesOfType returns the extracted entities of the given type,
// preserving extraction order.
func (r ExtractionResult) EntitiesOfType(t EntityType) []Entity {
	var out []Entity
	for _, e := range r.Entities {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
