package user

import (
	"bitwise74/docstring-api/internal"
	"bitwise74/docstring-api/internal/service"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func UserLogin(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	data, ok := bindCredentials(c, requestID)
	if !ok {
		return
	}

	if data.Email == "" || data.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Email and password are required",
			"requestID": requestID,
		})
		return
	}

	identity, err := d.Accounts.Authenticate(c.Request.Context(), data.Email, data.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":     "Invalid credentials",
				"requestID": requestID,
			})
		case errors.Is(err, service.ErrIdentityBlocked):
			c.JSON(http.StatusForbidden, gin.H{
				"error":     "Your account has been blocked.",
				"requestID": requestID,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to log in user", zap.Error(err), zap.String("requestID", requestID))
		}
		return
	}

	token, err := d.Tokens.Issue(identity.ID, identity.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to generate JWT auth token", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"role":  identity.Role,
	})
}
