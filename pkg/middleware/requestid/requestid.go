package requestid

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header carries the correlation ID between the report client and server.
const Header = "X-Request-ID"

const ginKey = "request_id"

type ctxKey struct{}

// Middleware assigns a request ID to each request reaching the stub server,
// reusing the one sent by the client when present.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(Header)
		if reqID == "" {
			reqID = New()
		}

		c.Set(ginKey, reqID)
		c.Writer.Header().Set(Header, reqID)

		c.Next()
	}
}

// Value returns the request ID stored in the Gin context.
func Value(c *gin.Context) string {
	if v, exists := c.Get(ginKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// New generates a fresh request ID.
func New() string {
	return uuid.NewString()
}

// WithContext stores id on ctx for outbound requests.
func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the ID stored by WithContext, generating one when absent.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		return id
	}
	return New()
}
