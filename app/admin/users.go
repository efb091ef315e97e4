package admin

import (
	"bitwise74/docstring-api/internal"
	"bitwise74/docstring-api/internal/model"
	"bitwise74/docstring-api/internal/service"
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func AdminUsers(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	users, err := d.Admin.Users(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to list users", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	c.JSON(http.StatusOK, users)
}

// PUT /api/admin/users/:id/block
func AdminToggleBlock(c *gin.Context, d *internal.Deps) {
	toggle(c, d.Admin.ToggleBlock)
}

// PUT /api/admin/users/:id/plan
func AdminTogglePlan(c *gin.Context, d *internal.Deps) {
	toggle(c, d.Admin.TogglePlan)
}

func toggle(c *gin.Context, fn func(context.Context, string) (*model.Identity, error)) {
	requestID := c.MustGet("requestID").(string)

	identity, err := fn(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrIdentityNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "User not found",
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to update user", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	zap.L().Info("User updated by admin",
		zap.String("requestID", requestID),
		zap.String("adminID", c.GetString("identityID")),
		zap.String("targetID", identity.ID),
		zap.Bool("isBlocked", identity.IsBlocked),
		zap.String("plan", identity.Plan))

	c.JSON(http.StatusOK, identity)
}
