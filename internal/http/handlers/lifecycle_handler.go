package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lpar_inventory/internal/lifecycle"
)

type lifecycleFunc func(ctx context.Context, entity string, id uuid.UUID) (lifecycle.Result, error)

func lifecycleAction(entity string, fn lifecycleFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		res, err := fn(c.Request.Context(), entity, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func Activate(svc *lifecycle.Service, entity string) gin.HandlerFunc {
	return lifecycleAction(entity, svc.Activate)
}

func Deactivate(svc *lifecycle.Service, entity string) gin.HandlerFunc {
	return lifecycleAction(entity, svc.Deactivate)
}

func Delete(svc *lifecycle.Service, entity string) gin.HandlerFunc {
	return lifecycleAction(entity, svc.Delete)
}
