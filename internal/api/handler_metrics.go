package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/fescii/Stahla-sub005/internal/recorder"
)

// MetricsReader serves latency readbacks.
type MetricsReader interface {
	Percentile(ctx context.Context, service string, p int) (*recorder.PercentileResult, error)
	Average(ctx context.Context, service string) (*recorder.AverageResult, error)
	AllServicesSummary(ctx context.Context) ([]recorder.AverageResult, error)
}

// HandlePercentiles handles GET /metrics/percentiles?service=&p=.
func HandlePercentiles(reader MetricsReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		service := q.Get("service")
		if !recorder.ValidService(service) {
			writeInvalidArgument(w, r, "service: must be one of the known services")
			return
		}
		p := 95
		if v := q.Get("p"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || !recorder.ValidPercentile(n) {
				writeInvalidArgument(w, r, "p: must be one of 50, 90, 95, 99")
				return
			}
			p = n
		}

		res, err := reader.Percentile(r.Context(), service, p)
		if err != nil {
			writeInternalOrUnavailable(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	})
}

// HandleAverages handles GET /metrics/averages. With a service query
// parameter it returns that service alone; without one, all known services.
func HandleAverages(reader MetricsReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if service := r.URL.Query().Get("service"); service != "" {
			if !recorder.ValidService(service) {
				writeInvalidArgument(w, r, "service: must be one of the known services")
				return
			}
			res, err := reader.Average(r.Context(), service)
			if err != nil {
				writeInternalOrUnavailable(w, r, err)
				return
			}
			WriteJSON(w, http.StatusOK, res)
			return
		}

		all, err := reader.AllServicesSummary(r.Context())
		if err != nil {
			writeInternalOrUnavailable(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"services": all})
	})
}
