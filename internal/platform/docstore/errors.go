package docstore

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUpstream Kind = iota
	KindNotFound
	KindConflict
	KindBadRequest
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindBadRequest:
		return "bad_request"
	default:
		return "upstream"
	}
}

// Status is the HTTP status the kind corresponds to.
func (k Kind) Status() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

const (
	ReasonMissing  = "missing"
	ReasonDeleted  = "deleted"
	ReasonConflict = "Document update conflict."
	ReasonBadRev   = "Invalid rev format"
)

// Error is the only error type a Store returns.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("docstore %s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("docstore %s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Status() int { return e.Kind.Status() }

func notFound(reason string) error {
	return &Error{Kind: KindNotFound, Reason: reason}
}

func conflict() error {
	return &Error{Kind: KindConflict, Reason: ReasonConflict}
}

func badRequest(reason string) error {
	return &Error{Kind: KindBadRequest, Reason: reason}
}

func upstream(op string, err error) error {
	return &Error{Kind: KindUpstream, Reason: op, Err: err}
}

// AsError extracts the *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func kindOf(err error) (Kind, bool) {
	e, ok := AsError(err)
	if !ok {
		return 0, false
	}
	return e.Kind, true
}

func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}

func IsConflict(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindConflict
}

func IsBadRequest(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindBadRequest
}

// Reason returns the store reason carried by err, or err.Error().
func Reason(err error) string {
	if e, ok := AsError(err); ok {
		return e.Reason
	}
	return err.Error()
}
