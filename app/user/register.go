// Package user handles account registration and login
package user

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

type credentialsBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func bindCredentials(c *gin.Context, requestID string) (*credentialsBody, bool) {
	var data credentialsBody
	if err := c.ShouldBindJSON(&data); err != nil {
		if middleware.IsBodyTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":     "Request body size exceeds limit",
				"requestID": requestID,
			})
			return nil, false
		}

		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})

		zap.L().Debug("Can't bind request body", zap.Error(err), zap.String("requestID", requestID))
		return nil, false
	}

	return &data, true
}

func UserRegister(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	data, ok := bindCredentials(c, requestID)
	if !ok {
		return
	}

	identity, err := d.Accounts.Register(c.Request.Context(), data.Email, data.Password, c.ClientIP())
	if err != nil {
		switch {
		case errors.Is(err, validators.ErrEmailEmpty),
			errors.Is(err, validators.ErrEmailInvalid),
			errors.Is(err, validators.ErrEmailTooLong),
			errors.Is(err, validators.ErrPasswordEmpty),
			errors.Is(err, validators.ErrPasswordTooShort),
			errors.Is(err, validators.ErrPasswordTooLong):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     err.Error(),
				"requestID": requestID,
			})
		case errors.Is(err, service.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{
				"error":     "This email is already registered. Please login or use a different email",
				"requestID": requestID,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to register user", zap.Error(err), zap.String("requestID", requestID))
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
