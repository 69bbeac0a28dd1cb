// Package verifyerr defines the sentinel error kinds shared across the
// verification pipeline and their HTTP mapping.
package verifyerr

import (
	"errors"
	"net/http"
)

// Kind is one of the stable error kinds a client or log line can match on.
type Kind string

const (
	KindBadInput            Kind = "bad-input"
	KindPayloadTooLarge     Kind = "payload-too-large"
	KindNoFetcher           Kind = "no-fetcher"
	KindFetchUnavailable    Kind = "fetch-unavailable"
	KindFetchPermanent      Kind = "fetch-permanent"
	KindSourceHashMismatch  Kind = "source-hash-mismatch"
	KindBadMetadata         Kind = "bad-metadata"
	KindCompilerUnavailable Kind = "compiler-unavailable"
	KindCompilerError       Kind = "compiler-error"
	KindNotDeployed         Kind = "not-deployed"
	KindAlreadyVerifying    Kind = "already-verifying"
	KindExtraFileInputBug   Kind = "extra-file-input-bug"
	KindUnsupportedChain    Kind = "unsupported-chain"
)

// httpStatus maps each kind to the status code spec.md §7 assigns it.
var httpStatus = map[Kind]int{
	KindBadInput:            http.StatusBadRequest,
	KindPayloadTooLarge:     http.StatusRequestEntityTooLarge,
	KindNoFetcher:           http.StatusBadRequest,
	KindFetchUnavailable:    http.StatusBadGateway,
	KindFetchPermanent:      http.StatusBadRequest,
	KindSourceHashMismatch:  http.StatusBadRequest,
	KindBadMetadata:         http.StatusBadRequest,
	KindCompilerUnavailable: http.StatusInternalServerError,
	KindCompilerError:       http.StatusInternalServerError,
	KindNotDeployed:         http.StatusNotFound,
	KindAlreadyVerifying:    http.StatusTooManyRequests,
	KindUnsupportedChain:    http.StatusBadRequest,
}

// Error is a Kind wrapping an underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	err  error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.err != nil {
		return string(e.Kind) + ": " + e.err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.err }

// New creates an *Error of the given kind with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap creates an *Error of the given kind wrapping err.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, err: err}
}

// As reports whether err is (or wraps) a *Error and returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HTTPStatus returns the status code for err, defaulting to 500 for
// errors that carry no recognized Kind.
func HTTPStatus(err error) int {
	if e, ok := As(err); ok {
		if status, found := httpStatus[e.Kind]; found {
			return status
		}
	}
	return http.StatusInternalServerError
}
