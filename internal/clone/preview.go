package clone

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lpar_inventory/internal/apperr"
	"lpar_inventory/internal/models"
)

// Summary describes what a clone of an entity would copy.
type Summary struct {
	Kind        string     `json:"kind"`
	Name        string     `json:"name"`
	Code        string     `json:"code,omitempty"`
	Version     string     `json:"version,omitempty"`
	Parent      string     `json:"parent,omitempty"`
	Package     string     `json:"package,omitempty"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
	Active      bool       `json:"active"`
	ChildKind   string     `json:"child_kind,omitempty"`
	Children    int64      `json:"children"`
}

// Preview summarises the source entity of a clone without writing anything.
// kind is one of the entity tags software, package, lpar, customer, vendor.
func (s *Service) Preview(ctx context.Context, kind string, id uuid.UUID) (Summary, error) {
	tx := s.db.WithContext(ctx)
	sum := Summary{Kind: kind}

	switch kind {
	case models.EntitySoftware:
		var src models.Software
		if err := tx.Preload("Vendor").Where("id = ?", id).First(&src).Error; err != nil {
			return sum, apperr.Wrap("load software", kind, err)
		}
		sum.Name, sum.Active, sum.ChildKind = src.Name, src.Active, models.EntitySoftwareVersion
		if src.Vendor != nil {
			sum.Parent = src.Vendor.Name
		}
		if src.CurrentVersionID != nil {
			var v models.SoftwareVersion
			if err := tx.Where("id = ?", *src.CurrentVersionID).First(&v).Error; err == nil {
				sum.Version = v.Version
			}
		}
		return sum, count(tx, &models.SoftwareVersion{}, "software_id = ?", id, &sum.Children)

	case models.EntityPackage:
		var src models.Package
		if err := tx.Where("id = ?", id).First(&src).Error; err != nil {
			return sum, apperr.Wrap("load package", kind, err)
		}
		sum.Name, sum.Code, sum.Version, sum.Active = src.Name, src.Code, src.Version, src.Active
		sum.ReleaseDate, sum.ChildKind = &src.ReleaseDate, models.EntityPackageItem
		return sum, count(tx, &models.PackageItem{}, "package_id = ?", id, &sum.Children)

	case models.EntityLPAR:
		var src models.LPAR
		if err := tx.Preload("Customer").Preload("CurrentPackage").Where("id = ?", id).First(&src).Error; err != nil {
			return sum, apperr.Wrap("load lpar", kind, err)
		}
		sum.Name, sum.Code, sum.Active, sum.ChildKind = src.Name, src.Code, src.Active, models.EntityLparSoftware
		if src.Customer != nil {
			sum.Parent = src.Customer.Name
		}
		if src.CurrentPackage != nil {
			sum.Package = src.CurrentPackage.Name
		}
		return sum, count(tx, &models.LparSoftware{}, "lpar_id = ?", id, &sum.Children)

	case models.EntityCustomer:
		var src models.Customer
		if err := tx.Where("id = ?", id).First(&src).Error; err != nil {
			return sum, apperr.Wrap("load customer", kind, err)
		}
		sum.Name, sum.Code, sum.Active, sum.ChildKind = src.Name, src.Code, src.Active, models.EntityLPAR
		return sum, count(tx, &models.LPAR{}, "customer_id = ?", id, &sum.Children)

	case models.EntityVendor:
		var src models.Vendor
		if err := tx.Where("id = ?", id).First(&src).Error; err != nil {
			return sum, apperr.Wrap("load vendor", kind, err)
		}
		sum.Name, sum.Code, sum.Active, sum.ChildKind = src.Name, src.Code, src.Active, models.EntitySoftware
		return sum, count(tx, &models.Software{}, "vendor_id = ?", id, &sum.Children)
	}
	return sum, apperr.Validation("kind", "unsupported entity type "+kind)
}

func count(tx *gorm.DB, model interface{}, query string, id uuid.UUID, n *int64) error {
	if err := tx.Model(model).Where(query, id).Count(n).Error; err != nil {
		return apperr.Database("count children", err)
	}
	return nil
}
