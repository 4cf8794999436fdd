package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lpar_inventory/internal/auth"
	"lpar_inventory/internal/catalog"
	"lpar_inventory/internal/clone"
	"lpar_inventory/internal/compliance"
	"lpar_inventory/internal/dashboard"
	"lpar_inventory/internal/deploy"
	"lpar_inventory/internal/http/handlers"
	"lpar_inventory/internal/lifecycle"
	"lpar_inventory/internal/metrics"
	"lpar_inventory/internal/models"
	"lpar_inventory/internal/rollback"
)

func NewRouter(db *gorm.DB, log *zap.Logger, m *metrics.Metrics, jwtSecret string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log), m.Middleware())

	catalogSvc := catalog.NewService(db, log)
	cloneSvc := clone.NewService(db, log)
	lifecycleSvc := lifecycle.NewService(db, log)
	deploySvc := deploy.NewService(db, log)
	rollbackSvc := rollback.NewService(db, log)
	complianceSvc := compliance.NewService(db, log)
	dashboardSvc := dashboard.NewService(db, log)

	r.GET("/health", handlers.HealthCheck(db))
	r.GET("/metrics", gin.WrapH(m.Handler()))
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	api := r.Group("/api/v1", auth.Actor(jwtSecret))
	{
		api.GET("/me", handlers.MeHandler())
		api.GET("/dashboard", handlers.Dashboard(dashboardSvc))
		api.GET("/audit", handlers.ListAudit(db))

		// Vendors
		vendors := api.Group("/vendors")
		vendors.GET("", handlers.ListVendors(catalogSvc))
		vendors.POST("", handlers.CreateVendor(catalogSvc))
		vendors.GET("/:id", handlers.GetVendor(catalogSvc))
		vendors.PUT("/:id", handlers.UpdateVendor(catalogSvc))
		vendors.POST("/:id/clone", handlers.CloneVendor(cloneSvc, m))
		entityRoutes(vendors, models.EntityVendor, cloneSvc, lifecycleSvc)

		// Customers
		customers := api.Group("/customers")
		customers.GET("", handlers.ListCustomers(catalogSvc))
		customers.POST("", handlers.CreateCustomer(catalogSvc))
		customers.GET("/:id", handlers.GetCustomer(catalogSvc))
		customers.PUT("/:id", handlers.UpdateCustomer(catalogSvc))
		customers.POST("/:id/clone", handlers.CloneCustomer(cloneSvc, m))
		entityRoutes(customers, models.EntityCustomer, cloneSvc, lifecycleSvc)

		// Software and versions
		software := api.Group("/software")
		software.GET("", handlers.ListSoftware(catalogSvc))
		software.POST("", handlers.CreateSoftware(catalogSvc))
		software.GET("/:id", handlers.GetSoftware(catalogSvc))
		software.PUT("/:id", handlers.UpdateSoftware(catalogSvc))
		software.POST("/:id/versions", handlers.AddVersion(catalogSvc))
		software.PUT("/:id/current-version", handlers.SetCurrentVersion(catalogSvc))
		software.POST("/:id/clone", handlers.CloneSoftware(cloneSvc, m))
		entityRoutes(software, models.EntitySoftware, cloneSvc, lifecycleSvc)

		// Packages and deployment
		packages := api.Group("/packages")
		packages.GET("", handlers.ListPackages(catalogSvc))
		packages.POST("", handlers.CreatePackage(catalogSvc))
		packages.GET("/:id", handlers.GetPackage(catalogSvc))
		packages.PUT("/:id", handlers.UpdatePackage(catalogSvc))
		packages.PUT("/:id/items", handlers.ReplacePackageItems(catalogSvc))
		packages.POST("/:id/deploy", handlers.DeployPackage(deploySvc, m))
		packages.GET("/:id/deploy-status", handlers.DeployStatus(deploySvc))
		packages.POST("/:id/clone", handlers.ClonePackage(cloneSvc, m))
		entityRoutes(packages, models.EntityPackage, cloneSvc, lifecycleSvc)

		// LPARs, installations, compliance and rollback
		lpars := api.Group("/lpars")
		lpars.GET("", handlers.ListLPARs(catalogSvc))
		lpars.POST("", handlers.CreateLPAR(catalogSvc))
		lpars.GET("/:id", handlers.GetLPAR(catalogSvc))
		lpars.PUT("/:id", handlers.UpdateLPAR(catalogSvc))
		lpars.POST("/:id/software", handlers.InstallSoftware(catalogSvc))
		lpars.GET("/:id/compliance", handlers.LPARCompliance(complianceSvc))
		lpars.GET("/:id/preview", handlers.PreviewDeployment(deploySvc))
		lpars.GET("/:id/plan", handlers.PlanDeployment(deploySvc))
		lpars.POST("/:id/rollback", handlers.RollbackSoftware(rollbackSvc, m))
		lpars.GET("/:id/software/:software_id/rollback-candidates", handlers.RollbackCandidates(rollbackSvc))
		lpars.POST("/:id/clone", handlers.CloneLPAR(cloneSvc, m))
		entityRoutes(lpars, models.EntityLPAR, cloneSvc, lifecycleSvc)
	}

	return r
}

// entityRoutes registers the clone preview and lifecycle endpoints every
// catalog entity shares.
func entityRoutes(g *gin.RouterGroup, entity string, cloneSvc *clone.Service, lifecycleSvc *lifecycle.Service) {
	g.GET("/:id/clone-preview", handlers.ClonePreview(cloneSvc, entity))
	g.POST("/:id/activate", handlers.Activate(lifecycleSvc, entity))
	g.POST("/:id/deactivate", handlers.Deactivate(lifecycleSvc, entity))
	g.DELETE("/:id", handlers.Delete(lifecycleSvc, entity))
}
