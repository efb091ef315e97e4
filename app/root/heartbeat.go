// Package root holds handlers that don't belong to any resource
package root

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Heartbeat answers HEAD and GET so load balancers and uptime checks can tell
// the server is alive
func Heartbeat(c *gin.Context) {
	c.Status(http.StatusOK)
}
