package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lpar_inventory/internal/compliance"
	"lpar_inventory/internal/deploy"
	"lpar_inventory/internal/logger"
	"lpar_inventory/internal/metrics"
)

// DeployPackage expects JSON: { "lpar_ids": ["..."] } and deploys package :id
// to all of them at once.
func DeployPackage(svc *deploy.Service, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		pkgID, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		var payload struct {
			LparIDs []uuid.UUID `json:"lpar_ids" binding:"required"`
		}
		if !bindJSON(c, &payload) {
			return
		}

		report, err := svc.Apply(c.Request.Context(), payload.LparIDs, pkgID)
		m.RecordDeployment(len(report.LPARs), err)
		if err != nil {
			respondError(c, err)
			return
		}
		logger.FromGin(c).Info("Package deployed",
			zap.String("package_id", pkgID.String()),
			zap.Int("lpars", len(report.LPARs)),
		)
		c.JSON(http.StatusOK, report)
	}
}

func DeployStatus(svc *deploy.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		pkgID, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		rows, err := svc.Status(c.Request.Context(), pkgID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"lpars": rows})
	}
}

// lparAndPackage reads the LPAR from the path and the package from ?package_id.
func lparAndPackage(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	lparID, ok := uuidParam(c, "id")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	pkgID, ok := uuidQuery(c, "package_id")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	if pkgID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "package_id is required"})
		return uuid.Nil, uuid.Nil, false
	}
	return lparID, *pkgID, true
}

func PreviewDeployment(svc *deploy.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		lparID, pkgID, ok := lparAndPackage(c)
		if !ok {
			return
		}
		impacts, err := svc.Preview(c.Request.Context(), lparID, pkgID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"impacts": impacts})
	}
}

func PlanDeployment(svc *deploy.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		lparID, pkgID, ok := lparAndPackage(c)
		if !ok {
			return
		}
		plan, err := svc.PlanFor(c.Request.Context(), lparID, pkgID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, plan)
	}
}

// LPARCompliance checks an LPAR against ?package_id, or its current package.
func LPARCompliance(svc *compliance.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		lparID, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		pkgID, ok := uuidQuery(c, "package_id")
		if !ok {
			return
		}
		report, err := svc.ForLPAR(c.Request.Context(), lparID, pkgID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
