package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HitRecorder persists one hit for a path.
type HitRecorder interface {
	Record(ctx context.Context, path string) error
}

// PageViewRecorder records successful public content reads per day and path.
// Only paths under one of prefixes are counted.
func PageViewRecorder(rec HitRecorder, log *zap.Logger, prefixes ...string) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method != http.MethodGet {
			return
		}
		if status := c.Writer.Status(); status < 200 || status >= 300 {
			return
		}

		path := c.Request.URL.Path
		match := false
		for _, p := range prefixes {
			if strings.HasPrefix(path, p) {
				match = true
				break
			}
		}
		if !match {
			return
		}

		if err := rec.Record(c.Request.Context(), path); err != nil {
			log.Debug("page view not recorded", zap.String("path", path), zap.Error(err))
		}
	}
}
