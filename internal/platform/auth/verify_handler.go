package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// VerifyHandler exposes the codec for clients that want to inspect their
// own token.
type VerifyHandler struct {
	codec *Codec
}

func NewVerifyHandler(codec *Codec) *VerifyHandler {
	return &VerifyHandler{codec: codec}
}

func (h *VerifyHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/jwt/verify", h.Verify)
}

// Verify accepts any "<scheme> <token>" header and returns the decoded
// claims.
func (h *VerifyHandler) Verify(c echo.Context) error {
	parts := strings.SplitN(c.Request().Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing token"})
	}
	claims, err := h.codec.Decode(parts[1])
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, claims)
}
