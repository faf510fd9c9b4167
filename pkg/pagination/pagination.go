package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	// QueryDefaultLimit is used by the public treatment query.
	QueryDefaultLimit = 100
	MaxLimit          = 1000
)

// Params holds the paging values read from a request.
type Params struct {
	Limit int
}

// FromContext reads ?limit=. Missing, malformed or non-positive values
// yield def; values above MaxLimit are clamped.
func FromContext(c echo.Context, def int) Params {
	return Params{Limit: ParseLimit(c.QueryParam("limit"), def)}
}

func ParseLimit(raw string, def int) int {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return def
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
