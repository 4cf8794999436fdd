package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lpar_inventory/internal/logger"
)

// HealthCheck answers {"status":"ok"}; with ?check=db it also pings the database.
func HealthCheck(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromGin(c)
		response := gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		}

		if c.Query("check") == "db" {
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(c.Request.Context())
			}
			if err != nil {
				log.Error("Database ping error", zap.Error(err))
				response["status"] = "error"
				response["db_status"] = "error"
				c.JSON(http.StatusServiceUnavailable, response)
				return
			}
			response["db_status"] = "ok"
		}

		c.JSON(http.StatusOK, response)
	}
}
