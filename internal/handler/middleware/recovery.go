package middleware

import (
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"biliticket/possync/pkg/response"
)

// Recovery turns a handler panic into a 500 envelope. A panic after the
// response started (the SSE stream) only closes the connection.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.Error("panic in handler",
				zap.Any("panic", rec),
				zap.String("route", c.FullPath()),
				zap.ByteString("stack", debug.Stack()),
			)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			response.InternalError(c, "internal error")
			c.Abort()
		}()
		c.Next()
	}
}
