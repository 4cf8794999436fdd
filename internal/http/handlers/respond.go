package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lpar_inventory/internal/apperr"
	"lpar_inventory/internal/logger"
)

// respondError writes err using the error taxonomy. Validation and duplicate
// errors name the offending field; not-found and database errors are logged
// in full and answered generically.
func respondError(c *gin.Context, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Database("unexpected", err)
	}
	status := apperr.HTTPStatus(ae.Kind)
	log := logger.FromGin(c)

	switch ae.Kind {
	case apperr.KindValidation, apperr.KindDuplicate:
		c.JSON(status, gin.H{"error": ae.Message, "code": ae.Kind, "field": ae.Field})
	case apperr.KindNotFound:
		log.Info("Entity not found", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": ae.Message, "code": ae.Kind})
	default:
		log.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal server error", "code": apperr.KindDatabase})
	}
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// uuidQuery parses an optional query parameter; ok is false when a value
// was given but does not parse.
func uuidQuery(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return nil, false
	}
	return &id, true
}
