package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/fescii/Stahla-sub005/internal/audit"
)

// LocationService accepts background location lookups and serves their audit
// records.
type LocationService interface {
	Lookup(ctx context.Context, address string) (string, error)
	Get(ctx context.Context, id string) (*audit.Record, bool, error)
}

type locationLookupRequest struct {
	DeliveryLocation string `json:"delivery_location"`
}

// HandleLocationLookup handles POST /location_lookup. The lookup runs in the
// background; the caller polls the returned audit id.
func HandleLocationLookup(svc LocationService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req locationLookupRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, r, err)
			return
		}
		if strings.TrimSpace(req.DeliveryLocation) == "" {
			writeInvalidArgument(w, r, "delivery_location: required")
			return
		}

		id, err := svc.Lookup(r.Context(), req.DeliveryLocation)
		if err != nil {
			writeInternalOrUnavailable(w, r, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, map[string]string{"audit_id": id})
	})
}

// HandleGetLocationLookup handles GET /location_lookup/{id}.
func HandleGetLocationLookup(svc LocationService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		rec, found, err := svc.Get(r.Context(), id)
		if err != nil {
			writeInternalOrUnavailable(w, r, err)
			return
		}
		if !found {
			WriteError(w, r, http.StatusNotFound, "not_found", "unknown audit id")
			return
		}
		WriteJSON(w, http.StatusOK, rec)
	})
}
