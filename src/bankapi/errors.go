package bankapi

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies adapter failures so callers can decide whether to surface
// a credential problem, back off, or report a bug.
type Kind int

const (
	// KindConnectivity covers network failures and timeouts.
	KindConnectivity Kind = iota
	// KindAuth covers 401/403 responses, i.e. a bad or expired token.
	KindAuth
	// KindRateLimit covers 429 responses.
	KindRateLimit
	// KindUnexpectedResponse covers everything else the bank sends that
	// we cannot work with.
	KindUnexpectedResponse
)

func (k Kind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	default:
		return "unexpected_response"
	}
}

// Error is the failure type returned by every adapter operation.
type Error struct {
	Kind Kind
	Bank string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Bank, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a bank API error of the given kind.
func IsKind(err error, kind Kind) bool {
	var be *Error
	return errors.As(err, &be) && be.Kind == kind
}

// connErr wraps a transport-level failure.
func connErr(bank, op string, err error) *Error {
	return &Error{Kind: KindConnectivity, Bank: bank, Op: op, Err: err}
}

// statusErr classifies a non-2xx HTTP status.
func statusErr(bank, op string, status int) *Error {
	kind := KindUnexpectedResponse
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusTooManyRequests:
		kind = KindRateLimit
	}
	return &Error{Kind: kind, Bank: bank, Op: op, Err: fmt.Errorf("http status %d", status)}
}

// decodeErr wraps a body we could not parse.
func decodeErr(bank, op string, err error) *Error {
	return &Error{Kind: KindUnexpectedResponse, Bank: bank, Op: op, Err: err}
}
