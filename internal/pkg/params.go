package pkg

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/denuncias-admin/internal/domain"
)

// PathID parses a positive integer path parameter such as a complaint id.
func PathID(c *gin.Context, name string) (int64, error) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, domain.NewAppError(domain.CodeValidation, "Parámetro "+name+" no válido: "+raw, err)
	}
	return id, nil
}

// PathInt parses a non-negative integer path parameter such as a page index.
func PathInt(c *gin.Context, name string) (int, error) {
	raw := c.Param(name)
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.NewAppError(domain.CodeValidation, "Parámetro "+name+" no válido: "+raw, err)
	}
	return n, nil
}

// QueryUint64 returns a non-negative integer query parameter, or def when it
// is absent or malformed.
func QueryUint64(c *gin.Context, name string, def uint64) uint64 {
	n, err := strconv.ParseUint(strings.TrimSpace(c.Query(name)), 10, 64)
	if err != nil {
		return def
	}
	return n
}

// QueryBool reports whether a flag query parameter is set ("1", "true", "yes").
func QueryBool(c *gin.Context, name string) bool {
	switch strings.ToLower(strings.TrimSpace(c.Query(name))) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// QueryDuration parses a wait-style query parameter. Bare integers are read
// as seconds. The result is clamped to [0, max]; absent or malformed values
// yield def.
func QueryDuration(c *gin.Context, name string, def, max time.Duration) time.Duration {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		secs, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return def
		}
		d = time.Duration(secs) * time.Second
	}
	if d < 0 {
		d = 0
	}
	if max > 0 && d > max {
		d = max
	}
	return d
}
