// Package requestid tags every request with a correlation ID so portal log
// lines and audit entries can be stitched together.
package requestid

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header carries the correlation ID on requests and responses.
const Header = "X-Request-ID"

const contextKey = "request_id"

// Middleware adopts the caller's X-Request-ID when present and mints a
// fresh one otherwise. The ID is echoed back on the response.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(Header)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(contextKey, id)
		c.Writer.Header().Set(Header, id)

		c.Next()
	}
}

// Value returns the correlation ID for the current request, or an empty
// string outside the middleware chain.
func Value(c *gin.Context) string {
	if v, exists := c.Get(contextKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
