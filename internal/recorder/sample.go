// Package recorder measures latency of cache operations and outbound calls,
// fanning samples to cache-backed percentile sets, counters, and streams
// without blocking the request path.
package recorder

import "time"

// Services with dedicated latency series.
const (
	ServiceQuote    = "quote"
	ServiceLocation = "location"
	ServiceMaps     = "maps"
	ServiceCRM      = "crm"
	ServiceVoice    = "voice"
	ServiceCache    = "cache"
)

// Statuses attached to a completed measurement.
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

var knownServices = []string{
	ServiceQuote, ServiceLocation, ServiceMaps, ServiceCRM, ServiceVoice, ServiceCache,
}

// KnownServices returns the services with latency series, in stable order.
func KnownServices() []string {
	out := make([]string, len(knownServices))
	copy(out, knownServices)
	return out
}

// ValidService reports whether s is a known latency service.
func ValidService(s string) bool {
	for _, k := range knownServices {
		if s == k {
			return true
		}
	}
	return false
}

// ValidPercentile reports whether p is a supported percentile.
func ValidPercentile(p int) bool {
	switch p {
	case 50, 90, 95, 99:
		return true
	}
	return false
}

// Sample is one completed scoped measurement.
type Sample struct {
	Service    string
	Operation  string
	Status     string
	Ms         int64
	TS         time.Time
	enqueuedAt time.Time
}

func sortedKey(service string) string { return "latency:" + service + ":sorted" }
func sumKey(service string) string    { return "latency:" + service + ":sum" }
func countKey(service string) string  { return "latency:" + service + ":count" }
func streamKey(service string) string { return "latency:" + service + ":stream" }

// KeyPrefix is the key-family prefix for all latency series.
const KeyPrefix = "latency:"
