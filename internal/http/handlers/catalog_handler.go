package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lpar_inventory/internal/catalog"
)

func listFilter(c *gin.Context) catalog.ListFilter {
	return catalog.ListFilter{
		Search:     c.Query("q"),
		ActiveOnly: c.Query("active") == "true",
	}
}

// list, create, get and update adapt one catalog method each into a
// handler; key is the JSON field the result is returned under.

func list[T any](key string, fn func(context.Context, catalog.ListFilter) ([]T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := fn(c.Request.Context(), listFilter(c))
		if err != nil {
			respondError(c, err)
			return
		}
		if rows == nil {
			rows = []T{}
		}
		c.JSON(http.StatusOK, gin.H{key: rows})
	}
}

func create[In any, Out any](key string, fn func(context.Context, In) (*Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in In
		if !bindJSON(c, &in) {
			return
		}
		out, err := fn(c.Request.Context(), in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{key: out})
	}
}

func get[Out any](key string, fn func(context.Context, uuid.UUID) (*Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		out, err := fn(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{key: out})
	}
}

func update[In any, Out any](key string, fn func(context.Context, uuid.UUID, In) (*Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		var in In
		if !bindJSON(c, &in) {
			return
		}
		out, err := fn(c.Request.Context(), id, in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{key: out})
	}
}

func ListVendors(svc *catalog.Service) gin.HandlerFunc  { return list("vendors", svc.ListVendors) }
func CreateVendor(svc *catalog.Service) gin.HandlerFunc { return create("vendor", svc.CreateVendor) }
func GetVendor(svc *catalog.Service) gin.HandlerFunc    { return get("vendor", svc.GetVendor) }
func UpdateVendor(svc *catalog.Service) gin.HandlerFunc { return update("vendor", svc.UpdateVendor) }

func ListCustomers(svc *catalog.Service) gin.HandlerFunc  { return list("customers", svc.ListCustomers) }
func CreateCustomer(svc *catalog.Service) gin.HandlerFunc { return create("customer", svc.CreateCustomer) }
func GetCustomer(svc *catalog.Service) gin.HandlerFunc    { return get("customer", svc.GetCustomer) }
func UpdateCustomer(svc *catalog.Service) gin.HandlerFunc { return update("customer", svc.UpdateCustomer) }

func ListSoftware(svc *catalog.Service) gin.HandlerFunc   { return list("software", svc.ListSoftware) }
func CreateSoftware(svc *catalog.Service) gin.HandlerFunc { return create("software", svc.CreateSoftware) }
func GetSoftware(svc *catalog.Service) gin.HandlerFunc    { return get("software", svc.GetSoftware) }
func UpdateSoftware(svc *catalog.Service) gin.HandlerFunc { return update("software", svc.UpdateSoftware) }

func ListPackages(svc *catalog.Service) gin.HandlerFunc  { return list("packages", svc.ListPackages) }
func CreatePackage(svc *catalog.Service) gin.HandlerFunc { return create("package", svc.CreatePackage) }
func GetPackage(svc *catalog.Service) gin.HandlerFunc    { return get("package", svc.GetPackage) }
func UpdatePackage(svc *catalog.Service) gin.HandlerFunc { return update("package", svc.UpdatePackage) }

func ListLPARs(svc *catalog.Service) gin.HandlerFunc  { return list("lpars", svc.ListLPARs) }
func CreateLPAR(svc *catalog.Service) gin.HandlerFunc { return create("lpar", svc.CreateLPAR) }
func GetLPAR(svc *catalog.Service) gin.HandlerFunc    { return get("lpar", svc.GetLPAR) }
func UpdateLPAR(svc *catalog.Service) gin.HandlerFunc { return update("lpar", svc.UpdateLPAR) }

func AddVersion(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		var in catalog.VersionInput
		if !bindJSON(c, &in) {
			return
		}
		v, err := svc.AddVersion(c.Request.Context(), id, in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"version": v})
	}
}

func SetCurrentVersion(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		var payload struct {
			VersionID uuid.UUID `json:"version_id"`
		}
		if !bindJSON(c, &payload) {
			return
		}
		if err := svc.SetCurrentVersion(c.Request.Context(), id, payload.VersionID); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// ReplacePackageItems expects JSON: { "items": [{software_id, software_version_id, order_index, required}] }
func ReplacePackageItems(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		var payload struct {
			Items []catalog.ItemInput `json:"items"`
		}
		if !bindJSON(c, &payload) {
			return
		}
		pkg, err := svc.ReplacePackageItems(c.Request.Context(), id, payload.Items)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"package": pkg})
	}
}

func InstallSoftware(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		var in catalog.InstallInput
		if !bindJSON(c, &in) {
			return
		}
		inst, err := svc.InstallSoftware(c.Request.Context(), id, in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"installation": inst})
	}
}
