// Package maps talks to the external maps provider: road-distance matrix
// and geocoding. Every call is measured under the maps latency service.
package maps

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/fescii/Stahla-sub005/internal/netutil"
	"github.com/fescii/Stahla-sub005/internal/recorder"
)

// ErrNotRoutable indicates the provider could not produce a driving route
// between the endpoints. Callers fall back to geocoding.
var ErrNotRoutable = errors.New("maps: not routable")

const metersPerMile = 1609.344

// Provider is the maps contract the distance resolver depends on.
type Provider interface {
	// DistanceMatrix returns road miles and travel seconds for driving.
	DistanceMatrix(ctx context.Context, origin, destination string) (miles float64, seconds int64, err error)
	// Geocode resolves an address to coordinates.
	Geocode(ctx context.Context, address string) (lat, lng float64, err error)
}

// Client implements Provider against a Google-style maps API.
type Client struct {
	fetcher netutil.Fetcher
	baseURL string
	apiKey  string
	rec     *recorder.Recorder
}

// NewClient builds a maps client. rec measures every upstream call.
func NewClient(fetcher netutil.Fetcher, baseURL, apiKey string, rec *recorder.Recorder) *Client {
	return &Client{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		rec:     rec,
	}
}

type distanceMatrixResponse struct {
	Status string `json:"status"`
	Rows   []struct {
		Elements []struct {
			Status   string `json:"status"`
			Distance struct {
				Value int64 `json:"value"` // meters
			} `json:"distance"`
			Duration struct {
				Value int64 `json:"value"` // seconds
			} `json:"duration"`
		} `json:"elements"`
	} `json:"rows"`
}

// DistanceMatrix requests driving distance between two addresses. Returns
// ErrNotRoutable when the provider cannot route the pair.
func (c *Client) DistanceMatrix(ctx context.Context, origin, destination string) (float64, int64, error) {
	done := c.rec.Scope(recorder.ServiceMaps, "distance_matrix")

	q := url.Values{}
	q.Set("origins", origin)
	q.Set("destinations", destination)
	q.Set("mode", "driving")
	q.Set("units", "imperial")
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	var resp distanceMatrixResponse
	err := netutil.FetchJSON(ctx, c.fetcher, c.baseURL+"/distancematrix/json?"+q.Encode(), &resp)
	if err != nil {
		done(err)
		return 0, 0, err
	}
	miles, seconds, err := parseDistanceMatrix(&resp)
	done(err)
	return miles, seconds, err
}

func parseDistanceMatrix(resp *distanceMatrixResponse) (float64, int64, error) {
	if resp.Status != "OK" {
		return 0, 0, fmt.Errorf("maps: distance matrix status %q", resp.Status)
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return 0, 0, ErrNotRoutable
	}
	el := resp.Rows[0].Elements[0]
	switch el.Status {
	case "OK":
		return float64(el.Distance.Value) / metersPerMile, el.Duration.Value, nil
	case "ZERO_RESULTS", "NOT_FOUND", "ROUTE_NOT_FOUND":
		return 0, 0, ErrNotRoutable
	default:
		return 0, 0, fmt.Errorf("maps: element status %q", el.Status)
	}
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode resolves an address to (lat, lng).
func (c *Client) Geocode(ctx context.Context, address string) (float64, float64, error) {
	done := c.rec.Scope(recorder.ServiceMaps, "geocode")

	q := url.Values{}
	q.Set("address", address)
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	var resp geocodeResponse
	err := netutil.FetchJSON(ctx, c.fetcher, c.baseURL+"/geocode/json?"+q.Encode(), &resp)
	if err != nil {
		done(err)
		return 0, 0, err
	}
	if resp.Status != "OK" || len(resp.Results) == 0 {
		err = fmt.Errorf("maps: geocode status %q for %q", resp.Status, address)
		done(err)
		return 0, 0, err
	}
	loc := resp.Results[0].Geometry.Location
	done(nil)
	return loc.Lat, loc.Lng, nil
}
