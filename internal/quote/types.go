// Package quote builds priced, itemized quotes from the current catalog
// snapshot, resolved delivery distance, and seasonal pricing rules.
package quote

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Usage types.
const (
	UsageEvent      = "event"
	UsageCommercial = "commercial"
)

// Error kinds.
const (
	KindInvalidRequest      = "invalid_request"
	KindUndeliverable       = "undeliverable"
	KindCatalogUnavailable  = "catalog_unavailable"
	KindFallbackUnavailable = "fallback_unavailable"
	KindDeadline            = "deadline"
	KindInternal            = "internal"
)

// Error is a quote failure. Field is set for validation errors.
type Error struct {
	Kind    string
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("quote: %s: field %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("quote: %s: %s", e.Kind, e.Message)
}

// ExtraRequest is one requested add-on.
type ExtraRequest struct {
	ID  string `json:"id"`
	Qty int    `json:"qty"`
}

// Request is the quote input.
type Request struct {
	DeliveryLocation string         `json:"delivery_location"`
	TrailerTypeID    string         `json:"trailer_type_id"`
	RentalStartDate  string         `json:"rental_start_date"`
	RentalDays       int            `json:"rental_days"`
	UsageType        string         `json:"usage_type"`
	Extras           []ExtraRequest `json:"extras"`
}

// LineItem is one priced row of the quote.
type LineItem struct {
	Label       string          `json:"label"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Qty         int             `json:"qty"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	RuleApplied string          `json:"rule_applied"`
}

// Delivery is the delivery cost breakdown. Never scaled by the seasonal
// factor. Local marks deliveries strictly below the configured local
// distance threshold.
type Delivery struct {
	Miles    decimal.Decimal `json:"miles"`
	Tier     string          `json:"tier"`
	PerMile  decimal.Decimal `json:"per_mile"`
	Base     decimal.Decimal `json:"base"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Local    bool            `json:"local"`
}

// Seasonal echoes the applied multiplier.
type Seasonal struct {
	Multiplier  decimal.Decimal `json:"multiplier"`
	WindowLabel string          `json:"window_label,omitempty"`
}

// Totals holds the rolled-up amounts.
type Totals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

// Result is a successful quote.
type Result struct {
	RequestEcho    Request    `json:"request_echo"`
	LineItems      []LineItem `json:"line_items"`
	Delivery       Delivery   `json:"delivery"`
	Seasonal       Seasonal   `json:"seasonal"`
	Totals         Totals     `json:"totals"`
	CatalogVersion int64      `json:"catalog_version"`
	ComputedAt     time.Time  `json:"computed_at"`
	LatencyMs      int64      `json:"latency_ms"`
	Notes          []string   `json:"notes"`
}
