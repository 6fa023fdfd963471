package api

import (
	"context"
	"net/http"
	"time"

	"github.com/fescii/Stahla-sub005/internal/quote"
)

// QuoteBuilder computes quotes.
type QuoteBuilder interface {
	Build(ctx context.Context, req quote.Request) (*quote.Result, *quote.Error)
}

// HandleQuote handles POST /quote. The whole build runs under the configured
// deadline; an expired deadline surfaces as 504.
func HandleQuote(builder QuoteBuilder, deadline time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req quote.Request
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, r, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), deadline)
		defer cancel()

		res, qerr := builder.Build(ctx, req)
		if qerr != nil {
			writeQuoteError(w, r, qerr)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	})
}
