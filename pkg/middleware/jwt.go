package middleware

import (
	"bitwise74/docstring-api/internal/model"
	"bitwise74/docstring-api/pkg/security"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// tokenFromRequest reads the auth token from the Authorization header
// ("Bearer <token>") or from x-auth-token
func tokenFromRequest(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}

	return strings.TrimSpace(c.GetHeader("x-auth-token"))
}

// NewJWTMiddleware rejects requests without a valid token. The identity the
// token points to must still exist, it's stored as identity and its ID as identityID
func NewJWTMiddleware(d *gorm.DB, tokens *security.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.MustGet("requestID").(string)

		tokenStr := tokenFromRequest(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "No token, authorization denied",
				"requestID": requestID,
			})
			return
		}

		claims, err := tokens.Parse(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "Authorization token invalid",
				"requestID": requestID,
			})

			zap.L().Debug("Failed to parse token", zap.Error(err), zap.String("requestID", requestID))
			return
		}

		// Tokens outlive deleted accounts so check the account is still there
		var identity model.Identity
		err = d.WithContext(c.Request.Context()).
			Where("id = ?", claims.UserID).
			First(&identity).
			Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":     "User not found, authorization denied",
					"requestID": requestID,
				})
				return
			}

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to check if user exists", zap.Error(err), zap.String("requestID", requestID))
			return
		}

		c.Set("identityID", identity.ID)
		c.Set("identity", &identity)
		c.Next()
	}
}

// NewOptionalJWTMiddleware sets identityID when the request carries a valid
// token. Missing or broken tokens are ignored and the request goes on as a guest
func NewOptionalJWTMiddleware(tokens *security.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := tokenFromRequest(c)
		if tokenStr == "" {
			c.Next()
			return
		}

		claims, err := tokens.Parse(tokenStr)
		if err != nil {
			zap.L().Debug("Ignoring invalid token", zap.Error(err), zap.String("requestID", c.GetString("requestID")))
			c.Next()
			return
		}

		c.Set("identityID", claims.UserID)
		c.Next()
	}
}

// NewAdminMiddleware must run after NewJWTMiddleware. The role is taken from the
// database row, not from the token, so demoted admins lose access right away
func NewAdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := c.MustGet("identity").(*model.Identity)

		if identity.Role != model.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":     "Access denied. Admin only.",
				"requestID": c.GetString("requestID"),
			})
			return
		}

		c.Next()
	}
}
