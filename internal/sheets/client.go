// Package sheets reads tabular ranges from the spreadsheet values API.
package sheets

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/fescii/Stahla-sub005/internal/netutil"
)

// ValueRange mirrors the values API response: header row first, then data
// rows. Rows may be ragged; missing trailing cells are absent.
type ValueRange struct {
	Range  string     `json:"range"`
	Values [][]string `json:"values"`
}

// RangeFetcher reads one named range as rows.
type RangeFetcher interface {
	FetchRange(ctx context.Context, rangeName string) ([][]string, error)
}

// Client fetches ranges of a single spreadsheet.
type Client struct {
	fetcher netutil.Fetcher
	baseURL string
	sheetID string
	apiKey  string
}

// NewClient builds a client for one spreadsheet. An empty sheetID disables
// the source; callers check Enabled before use.
func NewClient(fetcher netutil.Fetcher, baseURL, sheetID, apiKey string) *Client {
	return &Client{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
		sheetID: sheetID,
		apiKey:  apiKey,
	}
}

// Enabled reports whether a spreadsheet source is configured.
func (c *Client) Enabled() bool { return c.sheetID != "" }

// FetchRange reads one named range and returns its rows.
func (c *Client) FetchRange(ctx context.Context, rangeName string) ([][]string, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("sheets: no spreadsheet configured")
	}
	u := fmt.Sprintf("%s/%s/values/%s", c.baseURL, url.PathEscape(c.sheetID), url.PathEscape(rangeName))
	if c.apiKey != "" {
		u += "?key=" + url.QueryEscape(c.apiKey)
	}
	var vr ValueRange
	if err := netutil.FetchJSON(ctx, c.fetcher, u, &vr); err != nil {
		return nil, fmt.Errorf("sheets: range %s: %w", rangeName, err)
	}
	return vr.Values, nil
}
