package middleware

import (
	"context"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
)

// Timeout puts a deadline on the request context without aborting the
// request: message processing observes it, rolls its unit of work back and
// the handler answers 504. A non-positive timeout or a path in skipPaths
// leaves the context unbounded.
func Timeout(timeout time.Duration, skipPaths ...string) gin.HandlerFunc {
	if timeout <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		if slices.Contains(skipPaths, c.Request.URL.Path) {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
