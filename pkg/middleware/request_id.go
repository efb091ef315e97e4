// Package middleware contains any custom middleware used in the app
package middleware

import (
	"bitwise74/docstring-api/pkg/util"

	"github.com/gin-gonic/gin"
)

// NewRequestIDMiddleware returns a new middleware function that generates a request ID for
// each incoming request, sets it as requestID and echoes it in the X-Request-ID header
func NewRequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := util.RandStr(10)

		c.Set("requestID", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}
