package source

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type FetchErrorKind int

const (
	Unreachable FetchErrorKind = iota + 1
	HTTPStatus
	UnexpectedFormat
	Timeout
)

func (k FetchErrorKind) String() string {
	switch k {
	case Unreachable:
		return "unreachable"
	case HTTPStatus:
		return "http status"
	case UnexpectedFormat:
		return "unexpected format"
	case Timeout:
		return "timeout"
	default:
		return fmt.Sprintf("FetchErrorKind(%d)", int(k))
	}
}

// FetchError reports why the range list could not be obtained. Any
// FetchError is fatal for the scan.
type FetchError struct {
	Kind   FetchErrorKind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	if e.Kind == HTTPStatus {
		msg += fmt.Sprintf(" %d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a *FetchError of the given kind.
func IsKind(err error, kind FetchErrorKind) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr) && fetchErr.Kind == kind
}

func transportError(url string, err error) *FetchError {
	kind := Unreachable

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = Timeout
	}

	return &FetchError{Kind: kind, URL: url, Err: err}
}
