package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lpar_inventory/internal/clone"
	"lpar_inventory/internal/metrics"
	"lpar_inventory/internal/models"
)

// cloneOf binds the request for one clone kind, runs fn on the source id in
// the path and records the outcome.
func cloneOf[Req any, Out any](kind string, m *metrics.Metrics, fn func(context.Context, uuid.UUID, Req) (*Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		var req Req
		if !bindJSON(c, &req) {
			return
		}
		out, err := fn(c.Request.Context(), id, req)
		m.RecordClone(kind, err)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{kind: out})
	}
}

func CloneSoftware(svc *clone.Service, m *metrics.Metrics) gin.HandlerFunc {
	return cloneOf(models.EntitySoftware, m, svc.CloneSoftware)
}

func ClonePackage(svc *clone.Service, m *metrics.Metrics) gin.HandlerFunc {
	return cloneOf(models.EntityPackage, m, svc.ClonePackage)
}

func CloneLPAR(svc *clone.Service, m *metrics.Metrics) gin.HandlerFunc {
	return cloneOf(models.EntityLPAR, m, svc.CloneLPAR)
}

func CloneCustomer(svc *clone.Service, m *metrics.Metrics) gin.HandlerFunc {
	return cloneOf(models.EntityCustomer, m, svc.CloneCustomer)
}

func CloneVendor(svc *clone.Service, m *metrics.Metrics) gin.HandlerFunc {
	return cloneOf(models.EntityVendor, m, svc.CloneVendor)
}

// ClonePreview summarises the :id entity of the given kind.
func ClonePreview(svc *clone.Service, kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		sum, err := svc.Preview(c.Request.Context(), kind, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sum)
	}
}
