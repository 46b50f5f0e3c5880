package app

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/denuncias-admin/internal/pkg"
)

// renderError sends the JSON error envelope. An empty message falls back to
// the standard status text.
func renderError(c *gin.Context, code int, message string) {
	if strings.TrimSpace(message) == "" {
		message = defaultStatusText(code)
	}
	c.JSON(code, pkg.Response{Code: code, Message: message})
}

// defaultStatusText returns a short human-readable label for an error code.
func defaultStatusText(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Error"
}
