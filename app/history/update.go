package history

import (
	"bitwise74/docstring-api/internal"
	"bitwise74/docstring-api/internal/service"
	"bitwise74/docstring-api/pkg/middleware"
	"bitwise74/docstring-api/pkg/validators"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type updateBody struct {
	Docstring string `json:"docstring"`
}

func HistoryUpdate(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	identityID := c.MustGet("identityID").(string)

	var data updateBody
	if err := c.ShouldBindJSON(&data); err != nil {
		if middleware.IsBodyTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":     "Request body size exceeds limit",
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})
		return
	}

	record, err := d.History.UpdateDocstring(c.Request.Context(), identityID, c.Param("id"), data.Docstring)
	if err != nil {
		switch {
		case errors.Is(err, validators.ErrDocstringRequired), errors.Is(err, validators.ErrDocstringTooLong):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     err.Error(),
				"requestID": requestID,
			})
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

			zap.L().Error("Failed to update history item", zap.Error(err), zap.String("requestID", requestID))
		}
		return
	}

	c.JSON(http.StatusOK, record)
}
