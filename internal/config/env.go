// Package config handles environment-based configuration loading and runtime config models.
package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// EnvConfig holds all environment-variable-driven settings (not hot-updatable).
type EnvConfig struct {
	// Network
	ListenAddress   string
	Port            int
	APIMaxBodyBytes int
	AppBaseURL      string

	// Auth
	PricingAPIKey string
	AdminToken    string

	// Cache store
	CacheURL       string
	CacheOpTimeout time.Duration

	// Maps provider
	MapsBaseURL string
	MapsAPIKey  string
	MapsTimeout time.Duration

	// Spreadsheet source
	SheetBaseURL         string
	SheetID              string
	SheetAPIKey          string
	SheetRangeProducts   string
	SheetRangeGenerators string
	SheetRangeBranches   string
	SheetRangeConfig     string
	CatalogSeedFile      string
	CatalogFetchTimeout  time.Duration
	CatalogSyncInterval  time.Duration
	CatalogSyncSchedule  string

	// Quoting
	QuoteDeadline               time.Duration
	LocationBGTimeout           time.Duration
	LocalDistanceThresholdMiles float64
	DistanceTTL                 time.Duration
	DistanceFallbackTTL         time.Duration
	RoadFactor                  float64

	// Latency recorder
	LatencySampleCapacity int
	LatencySortedSetCap   int
	LatencySampleMaxAge   time.Duration
	MetricsMinSamples     int

	// Audit store
	AuditDir           string
	AuditQueueSize     int
	AuditFlushBatch    int
	AuditFlushInterval time.Duration
}

// envPrefix is the prefix for every recognized environment variable.
const envPrefix = "STAHLA_"

// knownEnvKeys enumerates the recognized variables. Unknown STAHLA_* keys are
// ignored with a warning at load time.
var knownEnvKeys = map[string]bool{
	"STAHLA_LISTEN_ADDRESS":                 true,
	"STAHLA_PORT":                           true,
	"STAHLA_API_MAX_BODY_BYTES":             true,
	"STAHLA_APP_BASE_URL":                   true,
	"STAHLA_PRICING_WEBHOOK_API_KEY":        true,
	"STAHLA_ADMIN_TOKEN":                    true,
	"STAHLA_CACHE_URL":                      true,
	"STAHLA_CACHE_OP_TIMEOUT":               true,
	"STAHLA_MAPS_BASE_URL":                  true,
	"STAHLA_MAPS_API_KEY":                   true,
	"STAHLA_MAPS_TIMEOUT":                   true,
	"STAHLA_SHEET_BASE_URL":                 true,
	"STAHLA_SHEET_ID":                       true,
	"STAHLA_SHEET_API_KEY":                  true,
	"STAHLA_SHEET_RANGE_PRODUCTS":           true,
	"STAHLA_SHEET_RANGE_GENERATORS":         true,
	"STAHLA_SHEET_RANGE_BRANCHES":           true,
	"STAHLA_SHEET_RANGE_CONFIG":             true,
	"STAHLA_CATALOG_SEED_FILE":              true,
	"STAHLA_CATALOG_FETCH_TIMEOUT":          true,
	"STAHLA_CATALOG_SYNC_INTERVAL":          true,
	"STAHLA_CATALOG_SYNC_SCHEDULE":          true,
	"STAHLA_QUOTE_DEADLINE":                 true,
	"STAHLA_LOCATION_BG_TIMEOUT":            true,
	"STAHLA_LOCAL_DISTANCE_THRESHOLD_MILES": true,
	"STAHLA_DISTANCE_TTL":                   true,
	"STAHLA_DISTANCE_FALLBACK_TTL":          true,
	"STAHLA_ROAD_FACTOR":                    true,
	"STAHLA_LATENCY_SAMPLE_CAPACITY":        true,
	"STAHLA_LATENCY_SORTED_SET_CAP":         true,
	"STAHLA_LATENCY_SAMPLE_MAX_AGE":         true,
	"STAHLA_METRICS_MIN_SAMPLES":            true,
	"STAHLA_AUDIT_DIR":                      true,
	"STAHLA_AUDIT_QUEUE_SIZE":               true,
	"STAHLA_AUDIT_FLUSH_BATCH":              true,
	"STAHLA_AUDIT_FLUSH_INTERVAL":           true,
}

// LoadEnvConfig reads environment variables and returns a validated EnvConfig.
// Returns an error if any required variable is missing or any value is invalid.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	warnUnknownEnvKeys(os.Environ())

	// --- Network ---
	cfg.ListenAddress = strings.TrimSpace(envStr("STAHLA_LISTEN_ADDRESS", "0.0.0.0"))
	cfg.Port = envInt("STAHLA_PORT", 2280, &errs)
	cfg.APIMaxBodyBytes = envInt("STAHLA_API_MAX_BODY_BYTES", 1<<20, &errs)
	cfg.AppBaseURL = envStr("STAHLA_APP_BASE_URL", "http://localhost:2280")

	// --- Auth (must be defined; empty means auth disabled) ---
	pricingKey, hasPricingKey := os.LookupEnv("STAHLA_PRICING_WEBHOOK_API_KEY")
	adminToken, hasAdminToken := os.LookupEnv("STAHLA_ADMIN_TOKEN")
	cfg.PricingAPIKey = pricingKey
	cfg.AdminToken = adminToken

	// --- Cache store ---
	cfg.CacheURL = envStr("STAHLA_CACHE_URL", "redis://localhost:6379/0")
	cfg.CacheOpTimeout = envDuration("STAHLA_CACHE_OP_TIMEOUT", 200*time.Millisecond, &errs)

	// --- Maps provider ---
	cfg.MapsBaseURL = envStr("STAHLA_MAPS_BASE_URL", "https://maps.googleapis.com/maps/api")
	cfg.MapsAPIKey = envStr("STAHLA_MAPS_API_KEY", "")
	cfg.MapsTimeout = envDuration("STAHLA_MAPS_TIMEOUT", 1500*time.Millisecond, &errs)

	// --- Spreadsheet source ---
	cfg.SheetBaseURL = envStr("STAHLA_SHEET_BASE_URL", "https://sheets.googleapis.com/v4/spreadsheets")
	cfg.SheetID = envStr("STAHLA_SHEET_ID", "")
	cfg.SheetAPIKey = envStr("STAHLA_SHEET_API_KEY", "")
	cfg.SheetRangeProducts = envStr("STAHLA_SHEET_RANGE_PRODUCTS", "products!A:Z")
	cfg.SheetRangeGenerators = envStr("STAHLA_SHEET_RANGE_GENERATORS", "generators!A:Z")
	cfg.SheetRangeBranches = envStr("STAHLA_SHEET_RANGE_BRANCHES", "branches!A:Z")
	cfg.SheetRangeConfig = envStr("STAHLA_SHEET_RANGE_CONFIG", "config!A:Z")
	cfg.CatalogSeedFile = envStr("STAHLA_CATALOG_SEED_FILE", "")
	cfg.CatalogFetchTimeout = envDuration("STAHLA_CATALOG_FETCH_TIMEOUT", 10*time.Second, &errs)
	cfg.CatalogSyncInterval = envDuration("STAHLA_CATALOG_SYNC_INTERVAL", 15*time.Minute, &errs)
	cfg.CatalogSyncSchedule = envStr("STAHLA_CATALOG_SYNC_SCHEDULE", "")

	// --- Quoting ---
	cfg.QuoteDeadline = envDuration("STAHLA_QUOTE_DEADLINE", 3*time.Second, &errs)
	cfg.LocationBGTimeout = envDuration("STAHLA_LOCATION_BG_TIMEOUT", 30*time.Second, &errs)
	cfg.LocalDistanceThresholdMiles = envFloat("STAHLA_LOCAL_DISTANCE_THRESHOLD_MILES", 180, &errs)
	cfg.DistanceTTL = envDuration("STAHLA_DISTANCE_TTL", 24*time.Hour, &errs)
	cfg.DistanceFallbackTTL = envDuration("STAHLA_DISTANCE_FALLBACK_TTL", time.Hour, &errs)
	cfg.RoadFactor = envFloat("STAHLA_ROAD_FACTOR", 1.3, &errs)

	// --- Latency recorder ---
	cfg.LatencySampleCapacity = envInt("STAHLA_LATENCY_SAMPLE_CAPACITY", 4096, &errs)
	cfg.LatencySortedSetCap = envInt("STAHLA_LATENCY_SORTED_SET_CAP", 1000, &errs)
	cfg.LatencySampleMaxAge = envDuration("STAHLA_LATENCY_SAMPLE_MAX_AGE", 30*time.Second, &errs)
	cfg.MetricsMinSamples = envInt("STAHLA_METRICS_MIN_SAMPLES", 30, &errs)

	// --- Audit store ---
	cfg.AuditDir = envStr("STAHLA_AUDIT_DIR", "/var/lib/stahla")
	cfg.AuditQueueSize = envInt("STAHLA_AUDIT_QUEUE_SIZE", 1024, &errs)
	cfg.AuditFlushBatch = envInt("STAHLA_AUDIT_FLUSH_BATCH", 256, &errs)
	cfg.AuditFlushInterval = envDuration("STAHLA_AUDIT_FLUSH_INTERVAL", 30*time.Second, &errs)

	// --- Validation ---
	if !hasPricingKey {
		errs = append(errs, "STAHLA_PRICING_WEBHOOK_API_KEY must be defined (can be empty)")
	}
	if !hasAdminToken {
		errs = append(errs, "STAHLA_ADMIN_TOKEN must be defined (can be empty)")
	}
	if cfg.ListenAddress == "" {
		errs = append(errs, "STAHLA_LISTEN_ADDRESS must not be empty")
	}
	validatePort("STAHLA_PORT", cfg.Port, &errs)
	validatePositive("STAHLA_API_MAX_BODY_BYTES", cfg.APIMaxBodyBytes, &errs)

	if _, err := url.Parse(cfg.CacheURL); err != nil {
		errs = append(errs, fmt.Sprintf("STAHLA_CACHE_URL: invalid URL %q: %v", cfg.CacheURL, err))
	}
	if cfg.CacheOpTimeout <= 0 {
		errs = append(errs, "STAHLA_CACHE_OP_TIMEOUT must be positive")
	}
	if cfg.MapsTimeout <= 0 {
		errs = append(errs, "STAHLA_MAPS_TIMEOUT must be positive")
	}
	if cfg.CatalogFetchTimeout <= 0 {
		errs = append(errs, "STAHLA_CATALOG_FETCH_TIMEOUT must be positive")
	}
	if cfg.CatalogSyncInterval <= 0 {
		errs = append(errs, "STAHLA_CATALOG_SYNC_INTERVAL must be positive")
	}
	if cfg.CatalogSyncSchedule != "" {
		if _, err := cron.ParseStandard(cfg.CatalogSyncSchedule); err != nil {
			errs = append(errs, fmt.Sprintf("STAHLA_CATALOG_SYNC_SCHEDULE: invalid cron expression %q: %v", cfg.CatalogSyncSchedule, err))
		}
	}
	if cfg.QuoteDeadline <= 0 {
		errs = append(errs, "STAHLA_QUOTE_DEADLINE must be positive")
	}
	if cfg.LocationBGTimeout <= 0 {
		errs = append(errs, "STAHLA_LOCATION_BG_TIMEOUT must be positive")
	}
	if cfg.LocalDistanceThresholdMiles <= 0 {
		errs = append(errs, "STAHLA_LOCAL_DISTANCE_THRESHOLD_MILES must be positive")
	}
	if cfg.DistanceTTL <= 0 {
		errs = append(errs, "STAHLA_DISTANCE_TTL must be positive")
	}
	if cfg.DistanceFallbackTTL <= 0 {
		errs = append(errs, "STAHLA_DISTANCE_FALLBACK_TTL must be positive")
	}
	if cfg.RoadFactor < 1.0 {
		errs = append(errs, "STAHLA_ROAD_FACTOR must be >= 1.0")
	}
	validatePositive("STAHLA_LATENCY_SAMPLE_CAPACITY", cfg.LatencySampleCapacity, &errs)
	validatePositive("STAHLA_LATENCY_SORTED_SET_CAP", cfg.LatencySortedSetCap, &errs)
	if cfg.LatencySampleMaxAge <= 0 {
		errs = append(errs, "STAHLA_LATENCY_SAMPLE_MAX_AGE must be positive")
	}
	validatePositive("STAHLA_METRICS_MIN_SAMPLES", cfg.MetricsMinSamples, &errs)
	validatePositive("STAHLA_AUDIT_QUEUE_SIZE", cfg.AuditQueueSize, &errs)
	validatePositive("STAHLA_AUDIT_FLUSH_BATCH", cfg.AuditFlushBatch, &errs)
	if cfg.AuditFlushInterval <= 0 {
		errs = append(errs, "STAHLA_AUDIT_FLUSH_INTERVAL must be positive")
	}
	if cfg.AuditQueueSize < 2*cfg.AuditFlushBatch {
		errs = append(errs, "STAHLA_AUDIT_QUEUE_SIZE must be at least 2x STAHLA_AUDIT_FLUSH_BATCH")
	}

	if hasPricingKey && IsWeakToken(cfg.PricingAPIKey) {
		log.Printf("[config] warning: STAHLA_PRICING_WEBHOOK_API_KEY is weak; use a longer random key")
	}
	if hasAdminToken && IsWeakToken(cfg.AdminToken) {
		log.Printf("[config] warning: STAHLA_ADMIN_TOKEN is weak; use a longer random token")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// warnUnknownEnvKeys logs a warning for every STAHLA_* variable that is not a
// recognized configuration key.
func warnUnknownEnvKeys(environ []string) {
	for _, kv := range environ {
		key, _, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, envPrefix) {
			continue
		}
		if !knownEnvKeys[key] {
			log.Printf("[config] warning: unknown configuration key %s ignored", key)
		}
	}
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envFloat(key string, defaultVal float64, errs *[]string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid number %q", key, v))
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}
