// Package history lets identities browse and manage their past generations
package history

import (
	"bitwise74/docstring-api/internal"
	"bitwise74/docstring-api/internal/model"
	"bitwise74/docstring-api/internal/service"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HistoryList returns the caller's generations. Callers without a token see the
// history of the guest tracked under their IP, if there is one
func HistoryList(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	identityID := c.GetString("identityID")

	if identityID == "" {
		guest, err := d.Identities.FindGuest(c.Request.Context(), c.ClientIP())
		if err != nil {
			if errors.Is(err, service.ErrIdentityNotFound) {
				c.JSON(http.StatusOK, []model.Generation{})
				return
			}

			c.JSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to look up guest", zap.Error(err), zap.String("requestID", requestID))
			return
		}

		identityID = guest.ID
	}

	records, err := d.History.List(c.Request.Context(), identityID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to fetch history", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	c.JSON(http.StatusOK, records)
}
