package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lpar_inventory/internal/auth"
)

// MeHandler reports who audit entries of this request will be attributed to.
func MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cl, ok := auth.ClaimsFrom(c)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"user_id": nil, "system": true})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"user_id":    cl.UserID,
			"email":      cl.Email,
			"expires_at": cl.ExpiresAt,
			"system":     false,
		})
	}
}
