package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const CallerKey contextKey = "caller_uid"

// UnauthorizedMessage is the literal 401 body clients depend on.
const UnauthorizedMessage = "Not authorized to access this route"

const bearerPrefix = "Bearer "

// Protect rejects requests without a valid bearer token and stores the
// caller's uid on the request context. It never touches a store.
func Protect(codec *Codec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr, ok := BearerToken(c.Request())
			if !ok {
				return c.String(http.StatusUnauthorized, UnauthorizedMessage)
			}

			claims, err := codec.Decode(tokenStr)
			if err != nil {
				return c.String(http.StatusUnauthorized, UnauthorizedMessage)
			}

			ctx := WithCaller(c.Request().Context(), claims)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// BearerToken returns what follows the case-sensitive "Bearer " prefix of
// the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
	if !found || token == "" {
		return "", false
	}
	return token, true
}

func WithCaller(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, CallerKey, claims.UID)
}

// CallerFromContext returns the uid attached by Protect, or "" when absent.
func CallerFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(CallerKey).(string)
	return uid
}
