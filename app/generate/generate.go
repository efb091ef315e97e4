// Package generate exposes docstring generation over HTTP
package generate

import (
	"bitwise74/docstring-api/internal"
	"bitwise74/docstring-api/internal/service"
	"bitwise74/docstring-api/pkg/middleware"
	"bitwise74/docstring-api/pkg/validators"
	"errors"
	"fmt"
	"net/http"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type generateBody struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Style    string `json:"style"`
}

func Generate(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	var data generateBody
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

		zap.L().Debug("Can't bind request body", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	record, err := d.Docstrings.Generate(c.Request.Context(), service.GenerateRequest{
		IdentityID: c.GetString("identityID"),
		IP:         c.ClientIP(),
		Code:       data.Code,
		Language:   data.Language,
		Style:      data.Style,
	})
	if err != nil {
		status, msg := classify(err, data.Language, d.Docstrings.Quota.Limits)

		if status == http.StatusInternalServerError {
			if hub := sentrygin.GetHubFromContext(c); hub != nil {
				hub.CaptureException(err)
			}

			zap.L().Error("Failed to generate docstring", zap.Error(err), zap.String("requestID", requestID))
		}

		c.JSON(status, gin.H{
			"error":     msg,
			"requestID": requestID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"docstring": record.Docstring,
	})
}

func classify(err error, language string, l service.Limits) (int, string) {
	switch {
	case errors.Is(err, validators.ErrCodeRequired):
		return http.StatusBadRequest, "Code is required"
	case errors.Is(err, validators.ErrCodeTooLong),
		errors.Is(err, validators.ErrLanguageInvalid),
		errors.Is(err, validators.ErrStyleInvalid):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrIdentityBlocked):
		return http.StatusForbidden, "Your account has been blocked."
	case errors.Is(err, service.ErrGuestLimit):
		return http.StatusTooManyRequests, fmt.Sprintf("Guest limit reached (%d/day). Please sign up for more.", l.GuestDaily)
	case errors.Is(err, service.ErrPlanLimit):
		return http.StatusTooManyRequests, fmt.Sprintf("Daily limit reached (%d) for Free plan. Upgrade to Pro for unlimited.", l.FreeDaily)
	case errors.Is(err, service.ErrLanguageNotAllowed):
		return http.StatusForbidden, fmt.Sprintf("You are on the Free plan. To generate %s documentation, please upgrade to Pro.", language)
	case errors.Is(err, service.ErrGenerationFailed):
		return http.StatusInternalServerError, "Failed to generate docstring."
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
