package history

import (
	"bitwise74/docstring-api/internal"
	"bitwise74/docstring-api/internal/service"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func HistoryDelete(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	identityID := c.MustGet("identityID").(string)

	err := d.History.Delete(c.Request.Context(), identityID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGenerationNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "History item not found",
				"requestID": requestID,
			})
		case errors.Is(err, service.ErrNotOwner):
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":     "User not authorized",
				"requestID": requestID,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to delete history item", zap.Error(err), zap.String("requestID", requestID))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"msg": "History item removed",
	})
}
