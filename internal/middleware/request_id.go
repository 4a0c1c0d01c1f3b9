package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"gameshop/pkg/log"
)

const (
	// RequestIDHeader carries the request id in and out
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey context key of the request id
	RequestIDKey = "request_id"
)

// RequestID reuses a sane client request id or mints one, and attaches it
// to the request's log context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(log.NewContext(c.Request.Context(), map[string]interface{}{
			RequestIDKey: id,
		}))

		c.Next()
	}
}

// GetRequestID returns the id set by RequestID
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}
