package cache

import (
	"errors"
	"fmt"
)

// Error kinds.
const (
	KindUnavailable = "unavailable"
	KindCodec       = "codec"
	KindNotFound    = "not_found"
)

// Error is the failure type surfaced by every store operation.
type Error struct {
	Kind string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("cache %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("cache %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsUnavailable reports whether err is a store-unavailable failure.
func IsUnavailable(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == KindUnavailable
}

func unavailable(op string, err error) *Error {
	return &Error{Kind: KindUnavailable, Op: op, Err: err}
}

func codecErr(op string, err error) *Error {
	return &Error{Kind: KindCodec, Op: op, Err: err}
}
