package sheets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fescii/Stahla-sub005/internal/netutil"
)

func testFetcher() netutil.Fetcher {
	return netutil.NewClient(func() time.Duration { return time.Second }, 0)
}

func TestFetchRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/sheet-1/values/products%21A%3AZ") &&
			!strings.Contains(r.URL.Path, "/sheet-1/values/products!A:Z") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "k123" {
			t.Errorf("missing api key, query: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"range":"products!A1:Z3","values":[["id","category"],["3stall_combo","combo_trailer"]]}`))
	}))
	defer srv.Close()

	c := NewClient(testFetcher(), srv.URL, "sheet-1", "k123")
	rows, err := c.FetchRange(context.Background(), "products!A:Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 || rows[1][0] != "3stall_combo" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestFetchRangeDisabled(t *testing.T) {
	c := NewClient(testFetcher(), "http://unused", "", "")
	if c.Enabled() {
		t.Fatal("expected disabled client")
	}
	if _, err := c.FetchRange(context.Background(), "products!A:Z"); err == nil {
		t.Fatal("expected error when no spreadsheet configured")
	}
}

func TestFetchRangeUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(testFetcher(), srv.URL, "sheet-1", "")
	if _, err := c.FetchRange(context.Background(), "branches!A:Z"); err == nil {
		t.Fatal("expected error on 403")
	}
}
