package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"lpar_inventory/internal/audit"
	"lpar_inventory/internal/models"
)

func ListAudit(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := audit.Query{
			EntityType: c.Query("entity_type"),
			Action:     models.AuditAction(c.Query("action")),
			Search:     strings.TrimSpace(c.Query("q")),
			After:      c.Query("after"),
		}
		if limitStr := c.Query("limit"); limitStr != "" {
			if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 100 {
				q.Limit = parsed
			}
		}
		entityID, ok := uuidQuery(c, "entity_id")
		if !ok {
			return
		}
		q.EntityID = entityID

		page, err := audit.List(c.Request.Context(), db, q)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"logs":        page.Logs,
			"next_cursor": page.NextCursor,
		})
	}
}
