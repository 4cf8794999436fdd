package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lpar_inventory/internal/dashboard"
)

func Dashboard(svc *dashboard.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sum, err := svc.Summary(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sum)
	}
}
