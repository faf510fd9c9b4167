// Package httperr is the closed set of failures a handler may surface and
// the echo error handler that renders them. Anything outside the set is
// logged and answered with a generic 500.
package httperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type Kind int

const (
	UpstreamFailure Kind = iota
	Unauthenticated
	Forbidden
	NotFound
	InvalidInput
	Conflict
)

func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case InvalidInput:
		return "invalid_input"
	case Conflict:
		return "conflict"
	default:
		return "upstream_failure"
	}
}

func (k Kind) Status() int {
	switch k {
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case InvalidInput:
		return http.StatusBadRequest
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// InternalMessage is the only body an unclassified failure produces.
const InternalMessage = "Internal Server Error"

// Error carries the response body to send for Kind. A nil Body renders
// {"message": <kind>}.
type Error struct {
	Kind Kind
	Body interface{}
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, body interface{}) *Error {
	return &Error{Kind: kind, Body: body}
}

// Upstream wraps a store failure that has no more specific mapping.
func Upstream(err error) *Error {
	return &Error{Kind: UpstreamFailure, Err: err}
}

// Handler returns an echo.HTTPErrorHandler. *Error values with a body are
// rendered as-is except for UpstreamFailure, which never leaks detail.
func Handler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := render(err)
		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Warn().Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Msg("unhandled failure")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}

func render(err error) (int, interface{}) {
	internal := map[string]string{"message": InternalMessage}

	var he *Error
	if errors.As(err, &he) {
		if he.Kind == UpstreamFailure {
			return http.StatusInternalServerError, internal
		}
		if he.Body == nil {
			return he.Kind.Status(), map[string]string{"message": he.Kind.String()}
		}
		return he.Kind.Status(), he.Body
	}

	var ee *echo.HTTPError
	if errors.As(err, &ee) {
		if ee.Code >= http.StatusInternalServerError {
			return ee.Code, internal
		}
		msg := http.StatusText(ee.Code)
		if s, ok := ee.Message.(string); ok && s != "" {
			msg = s
		}
		return ee.Code, map[string]string{"message": msg}
	}

	return http.StatusInternalServerError, internal
}
