package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/fescii/Stahla-sub005/internal/cache"
	"github.com/fescii/Stahla-sub005/internal/quote"
)

func writeInvalidArgument(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusBadRequest, "invalid_request", message)
}

func writePayloadTooLarge(w http.ResponseWriter, r *http.Request, limit int64) {
	msg := "request body too large"
	if limit > 0 {
		msg = "request body too large (max " + strconv.FormatInt(limit, 10) + " bytes)"
	}
	WriteError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", msg)
}

func writeDecodeBodyError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *requestBodyTooLargeError
	if errors.As(err, &tooLarge) {
		writePayloadTooLarge(w, r, tooLarge.Limit)
		return
	}
	writeInvalidArgument(w, r, err.Error())
}

// writeQuoteError maps quote failure kinds to HTTP status codes.
func writeQuoteError(w http.ResponseWriter, r *http.Request, qerr *quote.Error) {
	msg := qerr.Message
	if qerr.Field != "" {
		msg = qerr.Field + ": " + msg
	}
	var status int
	switch qerr.Kind {
	case quote.KindInvalidRequest:
		status = http.StatusBadRequest
	case quote.KindUndeliverable:
		status = http.StatusNotFound
	case quote.KindCatalogUnavailable, quote.KindFallbackUnavailable:
		w.Header().Set("Retry-After", "5")
		status = http.StatusServiceUnavailable
	case quote.KindDeadline:
		status = http.StatusGatewayTimeout
	default:
		status = http.StatusInternalServerError
	}
	WriteError(w, r, status, qerr.Kind, msg)
}

// writeInternalOrUnavailable distinguishes cache outages (503, retryable)
// from everything else (500).
func writeInternalOrUnavailable(w http.ResponseWriter, r *http.Request, err error) {
	if cache.IsUnavailable(err) {
		w.Header().Set("Retry-After", "5")
		WriteError(w, r, http.StatusServiceUnavailable, "cache_unavailable", "cache backend unavailable")
		return
	}
	WriteError(w, r, http.StatusInternalServerError, "internal", "internal server error")
}
