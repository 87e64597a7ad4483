// Package models contains the shared value types of the intent engine:
// the intent taxonomy, extracted entities, and the resolve input/output
// contract consumed by transport layers.
package models

import (
	"fmt"
	"strings"
)

// IntentCategory is the top-level grouping of an intent code.
type IntentCategory string

// Intent categories. The first four are mandatory for the MVP catalog;
// the rest exist for routing only.
const (
	CategoryOrderStatus    IntentCategory = "ORDER_STATUS"
	CategoryOrderModify    IntentCategory = "ORDER_MODIFY"
	CategoryReturnExchange IntentCategory = "RETURN_EXCHANGE"
	CategoryComplaint      IntentCategory = "COMPLAINT"
	CategoryProductInquiry IntentCategory = "PRODUCT_INQUIRY"
	CategoryDiscovery      IntentCategory = "DISCOVERY"
	CategoryAccountBilling IntentCategory = "ACCOUNT_BILLING"
	CategoryMeta           IntentCategory = "META"
)

// The eight core MVP intent codes. Codes are stable external identifiers;
// clients depend on exact spelling.
const (
	IntentWISMO            = "ORDER_STATUS.WISMO"
	IntentDeliveryEstimate = "ORDER_STATUS.DELIVERY_ESTIMATE"
	IntentCancelOrder      = "ORDER_MODIFY.CANCEL_ORDER"
	IntentChangeAddress    = "ORDER_MODIFY.CHANGE_ADDRESS"
	IntentReturnInitiate   = "RETURN_EXCHANGE.RETURN_INITIATE"
	IntentExchangeRequest  = "RETURN_EXCHANGE.EXCHANGE_REQUEST"
	IntentRefundStatus     = "RETURN_EXCHANGE.REFUND_STATUS"
	IntentDamagedItem      = "COMPLAINT.DAMAGED_ITEM"
)

// CoreIntents lists the closed MVP taxonomy in a stable order.
var CoreIntents = []string{
	IntentWISMO,
	IntentDeliveryEstimate,
	IntentCancelOrder,
	IntentChangeAddress,
	IntentReturnInitiate,
	IntentExchangeRequest,
	IntentRefundStatus,
	IntentDamagedItem,
}

// CoreIntentDescriptions maps each MVP intent code to a short description
// used by catalog metadata listings.
var CoreIntentDescriptions = map[string]string{
	IntentWISMO:            "Where is my order / order tracking",
	IntentDeliveryEstimate: "When will my order arrive",
	IntentCancelOrder:      "Cancel my order",
	IntentChangeAddress:    "Change shipping address",
	IntentReturnInitiate:   "Start a return",
	IntentExchangeRequest:  "Exchange for different item",
	IntentRefundStatus:     "Check refund status",
	IntentDamagedItem:      "Item arrived damaged",
}

var coreIntentSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(CoreIntents))
	for _, code := range CoreIntents {
		m[code] = struct{}{}
	}
	return m
}()

// IsCoreIntent reports whether code is one of the eight MVP intent codes.
func IsCoreIntent(code string) bool {
	_, ok := coreIntentSet[code]
	return ok
}

// SplitIntentCode splits "CATEGORY.INTENT" into its parts.
// Returns an error if the code does not contain exactly one dot.
func SplitIntentCode(code string) (category, intent string, err error) {
	parts := strings.Split(code, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid intent code %q", code)
	}
	return parts[0], parts[1], nil
}

// ConfidenceTier buckets a confidence score for routing decisions.
type ConfidenceTier string

// Confidence tiers. HIGH auto-resolves on the fast path, MEDIUM goes to
// the reasoning path, LOW needs clarification or human handoff.
const (
	TierHigh   ConfidenceTier = "high"
	TierMedium ConfidenceTier = "medium"
	TierLow    ConfidenceTier = "low"
)

// TierFor maps a confidence score to its tier:
// HIGH >= 0.85, MEDIUM in [0.60, 0.85), LOW < 0.60.
func TierFor(confidence float64) ConfidenceTier {
	switch {
	case confidence >= 0.85:
		return TierHigh
	case confidence >= 0.60:
		return TierMedium
	default:
		return TierLow
	}
}

// ResolvedIntent is a single atomic intent with confidence and evidence.
type ResolvedIntent struct {
	Category       string         `json:"category"`
	Intent         string         `json:"intent"`
	SubIntent      string         `json:"sub_intent,omitempty"`
	Confidence     float64        `json:"confidence"`
	ConfidenceTier ConfidenceTier `json:"confidence_tier"`
	// Evidence holds the text spans or signals that support this
	// classification, in the order they were collected.
	Evidence []string `json:"evidence"`
}

// IntentCode returns the full CATEGORY.INTENT code.
func (r ResolvedIntent) IntentCode() string {
	return r.Category + "." + r.Intent
}

// NewResolvedIntent builds a ResolvedIntent from a full intent code,
// deriving the confidence tier from the score.
func NewResolvedIntent(code string, confidence float64, evidence []string) (ResolvedIntent, error) {
	category, intent, err := SplitIntentCode(code)
	if err != nil {
		return ResolvedIntent{}, err
	}
	if evidence == nil {
		evidence = []string{}
	}
	return ResolvedIntent{
		Category:       category,
		Intent:         intent,
		Confidence:     confidence,
		ConfidenceTier: TierFor(confidence),
		Evidence:       evidence,
	}, nil
}
