package user

import (
	"bitwise74/docstring-api/internal/model"
	"net/http"

	"github.com/gin-gonic/gin"
)

// UserMe returns the identity loaded by the JWT middleware
func UserMe(c *gin.Context) {
	identity := c.MustGet("identity").(*model.Identity)
	c.JSON(http.StatusOK, identity)
}
