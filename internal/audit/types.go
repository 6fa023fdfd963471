// Package audit persists location-lookup audit records: authoritative copies
// in the cache for status polling, plus an async-batched SQLite store for
// operational review.
package audit

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lookup statuses. Transitions are monotonic: pending, processing, then
// exactly one terminal status.
const (
	StatusPending            = "pending"
	StatusProcessing         = "processing"
	StatusSuccess            = "success"
	StatusFailed             = "failed"
	StatusFallbackUsed       = "fallback_used"
	StatusGeocodingFailed    = "geocoding_failed"
	StatusDistanceCalcFailed = "distance_calc_failed"
)

// Terminal reports whether a status ends the lookup lifecycle.
func Terminal(status string) bool {
	switch status {
	case StatusSuccess, StatusFailed, StatusFallbackUsed, StatusGeocodingFailed, StatusDistanceCalcFailed:
		return true
	}
	return false
}

// Record is one location-lookup audit trail.
type Record struct {
	ID              string          `json:"id"`
	QueryRaw        string          `json:"query_raw"`
	QueryNormalized string          `json:"query_normalized"`
	NearestBranchID string          `json:"nearest_branch_id,omitempty"`
	Miles           decimal.Decimal `json:"miles"`
	Seconds         int64           `json:"seconds"`
	Status          string          `json:"status"`
	ProcessingMs    int64           `json:"processing_ms"`
	APICallsMade    int             `json:"api_calls_made"`
	CacheHit        bool            `json:"cache_hit"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
}

// CacheKey is the cache location of a record.
func CacheKey(id string) string { return "audit:location:" + id }

// KeyPrefix is the key family for cached audit records.
const KeyPrefix = "audit:location:"
