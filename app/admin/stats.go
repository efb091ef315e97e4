// Package admin exposes the dashboard metrics and user management
package admin

import (
	"bitwise74/docstring-api/internal"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func AdminStats(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	metrics, err := d.Admin.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to compute stats", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	c.JSON(http.StatusOK, metrics)
}
