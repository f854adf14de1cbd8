package teleporter

import (
	"errors"
	"fmt"
	"net/http"
)

// Replication errors
var (
	ErrAuthentication = errors.New("authentication rejected")
	ErrFormat         = errors.New("malformed teleporter archive")
	ErrArgument       = errors.New("invalid argument")
)

// TransportError describes a failed request against a node's admin API.
// StatusCode is zero when no response was received.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": transport failure"
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the request ran out of time, either client side or
// through a 408 from the node.
func (e *TransportError) Timeout() bool {
	if e.StatusCode == http.StatusRequestTimeout {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(e.Err, &te) && te.Timeout()
}

// Unauthorized reports whether the node rejected the session.
func (e *TransportError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Retryable reports whether another attempt may succeed: timeouts, 401, 403
// and any 5xx.
func (e *TransportError) Retryable() bool {
	return e.Timeout() || e.Unauthorized() || e.StatusCode >= http.StatusInternalServerError
}

// IsRetryable reports whether err carries a retryable TransportError.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Retryable()
}

// IsUnauthorized reports whether err carries a 401/403 TransportError.
func IsUnauthorized(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Unauthorized()
}
