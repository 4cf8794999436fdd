package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lpar_inventory/internal/metrics"
	"lpar_inventory/internal/rollback"
)

// RollbackSoftware expects JSON: { "software_id", "target_version_id", "reason" }
// for the LPAR in the path.
func RollbackSoftware(svc *rollback.Service, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		lparID, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		var req rollback.Request
		if !bindJSON(c, &req) {
			return
		}
		req.LparID = lparID

		res, err := svc.Rollback(c.Request.Context(), req)
		m.RecordRollback(err)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func RollbackCandidates(svc *rollback.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		lparID, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		softwareID, ok := uuidParam(c, "software_id")
		if !ok {
			return
		}
		versions, err := svc.Candidates(c.Request.Context(), lparID, softwareID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"versions": versions})
	}
}
