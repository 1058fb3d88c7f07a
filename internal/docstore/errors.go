package docstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/mmcdole/b4/internal/domain"
)

// Failure codes reported to clients as the bad_gateway reason
const (
	CodeConnRefused = "ECONNREFUSED"
	CodeConnReset   = "ECONNRESET"
	CodeNotFound    = "ENOTFOUND"
	CodeTimedOut    = "ETIMEDOUT"
	CodeCanceled    = "ECANCELED"
	CodeBadResponse = "EBADRESPONSE"
	CodeUnknown     = "EUNKNOWN"
)

// TransportError is a document store exchange that did not complete.
// HTTP error statuses are never TransportErrors.
type TransportError struct {
	Op   string // HTTP method, or "decode"
	URL  string
	Code string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.URL, e.Code, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is lets callers match any TransportError against domain.ErrTransport
func (e *TransportError) Is(target error) bool {
	return target == domain.ErrTransport
}

// TransportCode returns the failure code carried by err, or CodeUnknown
func TransportCode(err error) string {
	var te *TransportError
	if errors.As(err, &te) && te.Code != "" {
		return te.Code
	}
	return CodeUnknown
}

// classify maps a transport error onto a node-style failure code
func classify(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimedOut
	case errors.Is(err, syscall.ECONNREFUSED):
		return CodeConnRefused
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return CodeConnReset
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return CodeTimedOut
		}
		return CodeNotFound
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimedOut
	}

	return CodeUnknown
}
