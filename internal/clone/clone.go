// Package clone copies an entity and its children into a new entity with a
// new identity. Each clone runs in one transaction and writes one audit entry.
package clone

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lpar_inventory/internal/apperr"
	"lpar_inventory/internal/audit"
	"lpar_inventory/internal/catalog"
	"lpar_inventory/internal/models"
	"lpar_inventory/internal/validation"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{db: db, log: log}
}

type SoftwareRequest struct {
	Name          string `json:"name" binding:"required" validate:"required,min=2,max=100"`
	CloneVersions bool   `json:"clone_versions"`
}

type PackageRequest struct {
	Name    string `json:"name" binding:"required" validate:"required,min=2,max=100"`
	Code    string `json:"code" binding:"required" validate:"required,min=2,max=20,code"`
	Version string `json:"version" binding:"required" validate:"required,max=50"`
}

type LPARRequest struct {
	Name       string     `json:"name" binding:"required" validate:"required,min=2,max=100"`
	Code       string     `json:"code" binding:"required" validate:"required,min=2,max=20,code"`
	CustomerID *uuid.UUID `json:"customer_id"`
}

// IdentityRequest is the new name and code of a customer or vendor clone.
type IdentityRequest struct {
	Name string `json:"name" binding:"required" validate:"required,min=2,max=100"`
	Code string `json:"code" binding:"required" validate:"required,min=2,max=20,code"`
}

// normalize trims names and versions in place, then validates req. Codes are
// left as given so that padding fails the code pattern.
func normalize(req interface{}, fields ...*string) error {
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
	}
	return validation.Struct(req)
}

func clonedDescription(source, desc string) string {
	return catalog.Truncate(strings.TrimSpace("Cloned from: "+source+"\n\n"+desc), catalog.DescriptionMax)
}

func (s *Service) run(ctx context.Context, kind string, sourceID uuid.UUID, fn func(tx *gorm.DB) (audit.Entry, error)) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := fn(tx)
		if err != nil {
			return err
		}
		entry.Action = models.ActionClone
		entry.EntityType = kind
		return audit.Record(ctx, tx, entry)
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindDatabase {
			s.log.Error("Clone failed", zap.String("entity", kind), zap.String("source_id", sourceID.String()), zap.Error(err))
		}
		return err
	}
	s.log.Info("Entity cloned", zap.String("entity", kind), zap.String("source_id", sourceID.String()))
	return nil
}

func codeFree(tx *gorm.DB, model interface{}, field, label, query string, args ...interface{}) error {
	var n int64
	if err := tx.Model(model).Where(query, args...).Count(&n).Error; err != nil {
		return apperr.Database("check code", err)
	}
	if n > 0 {
		return apperr.Duplicate(field, label+" is already in use")
	}
	return nil
}

// CloneSoftware copies a software under a new name. With CloneVersions every
// version row is copied and the current-version pointer follows its copy.
func (s *Service) CloneSoftware(ctx context.Context, sourceID uuid.UUID, req SoftwareRequest) (*models.Software, error) {
	if err := normalize(&req, &req.Name); err != nil {
		return nil, err
	}

	var out models.Software
	err := s.run(ctx, models.EntitySoftware, sourceID, func(tx *gorm.DB) (audit.Entry, error) {
		var src models.Software
		if err := tx.Preload("Versions").Where("id = ?", sourceID).First(&src).Error; err != nil {
			return audit.Entry{}, apperr.Wrap("load software", models.EntitySoftware, err)
		}

		out = models.Software{
			Name:        req.Name,
			VendorID:    src.VendorID,
			Description: clonedDescription(src.Name, src.Description),
			Active:      src.Active,
		}
		if err := tx.Create(&out).Error; err != nil {
			return audit.Entry{}, apperr.Wrap("create software", models.EntitySoftware, err)
		}

		copied := 0
		if req.CloneVersions && len(src.Versions) > 0 {
			versions := make([]models.SoftwareVersion, len(src.Versions))
			var current *int
			for i, v := range src.Versions {
				versions[i] = models.SoftwareVersion{
					SoftwareID:   out.ID,
					Version:      v.Version,
					PtfLevel:     v.PtfLevel,
					ReleaseDate:  v.ReleaseDate,
					EndOfSupport: v.EndOfSupport,
					ReleaseNotes: v.ReleaseNotes,
					IsCurrent:    v.IsCurrent,
				}
				if v.IsCurrent {
					idx := i
					current = &idx
				}
			}
			if err := tx.Create(&versions).Error; err != nil {
				return audit.Entry{}, apperr.Wrap("copy versions", models.EntitySoftwareVersion, err)
			}
			copied = len(versions)
			if current != nil {
				out.CurrentVersionID = &versions[*current].ID
				if err := tx.Model(&models.Software{}).Where("id = ?", out.ID).
					Update("current_version_id", out.CurrentVersionID).Error; err != nil {
					return audit.Entry{}, apperr.Database("set current version", err)
				}
			}
			out.Versions = versions
		}

		return audit.Entry{EntityID: out.ID, Changes: map[string]interface{}{
			"source_id":       src.ID,
			"source_name":     src.Name,
			"new_name":        out.Name,
			"versions_cloned": copied,
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ClonePackage copies a package and its items under a new code and version.
func (s *Service) ClonePackage(ctx context.Context, sourceID uuid.UUID, req PackageRequest) (*models.Package, error) {
	if err := normalize(&req, &req.Name, &req.Version); err != nil {
		return nil, err
	}

	var out models.Package
	err := s.run(ctx, models.EntityPackage, sourceID, func(tx *gorm.DB) (audit.Entry, error) {
		var src models.Package
		if err := tx.Where("id = ?", sourceID).First(&src).Error; err != nil {
			return audit.Entry{}, apperr.Wrap("load package", models.EntityPackage, err)
		}
		var items []models.PackageItem
		if err := tx.Where("package_id = ?", sourceID).Order("order_index ASC").Find(&items).Error; err != nil {
			return audit.Entry{}, apperr.Database("load package items", err)
		}
		if err := codeFree(tx, &models.Package{}, "version", "package "+req.Code+" "+req.Version, "code = ? AND version = ?", req.Code, req.Version); err != nil {
			return audit.Entry{}, err
		}

		out = models.Package{
			Name:        req.Name,
			Code:        req.Code,
			Version:     req.Version,
			Description: clonedDescription(fmt.Sprintf("%s (%s %s)", src.Name, src.Code, src.Version), src.Description),
			ReleaseDate: src.ReleaseDate,
			Active:      src.Active,
		}
		if err := tx.Create(&out).Error; err != nil {
			return audit.Entry{}, apperr.Wrap("create package", models.EntityPackage, err)
		}

		if len(items) > 0 {
			copies := make([]models.PackageItem, len(items))
			for i, it := range items {
				copies[i] = models.PackageItem{
					PackageID:         out.ID,
					SoftwareID:        it.SoftwareID,
					SoftwareVersionID: it.SoftwareVersionID,
					Required:          it.Required,
					OrderIndex:        it.OrderIndex,
				}
			}
			if err := tx.Create(&copies).Error; err != nil {
				return audit.Entry{}, apperr.Wrap("copy package items", models.EntityPackageItem, err)
			}
			out.Items = copies
		}

		return audit.Entry{EntityID: out.ID, Changes: map[string]interface{}{
			"source_id":      src.ID,
			"source_name":    src.Name,
			"source_code":    src.Code,
			"source_version": src.Version,
			"new_code":       out.Code,
			"new_version":    out.Version,
			"items_cloned":   len(items),
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CloneLPAR copies an LPAR with its installations, optionally under another
// customer. Copied installations start with no rollback history.
func (s *Service) CloneLPAR(ctx context.Context, sourceID uuid.UUID, req LPARRequest) (*models.LPAR, error) {
	if err := normalize(&req, &req.Name); err != nil {
		return nil, err
	}

	var out models.LPAR
	err := s.run(ctx, models.EntityLPAR, sourceID, func(tx *gorm.DB) (audit.Entry, error) {
		var src models.LPAR
		if err := tx.Preload("Software").Where("id = ?", sourceID).First(&src).Error; err != nil {
			return audit.Entry{}, apperr.Wrap("load lpar", models.EntityLPAR, err)
		}

		customerID := src.CustomerID
		if req.CustomerID != nil {
			customerID = *req.CustomerID
			var n int64
			if err := tx.Model(&models.Customer{}).Where("id = ?", customerID).Count(&n).Error; err != nil {
				return audit.Entry{}, apperr.Database("check customer", err)
			}
			if n == 0 {
				return audit.Entry{}, apperr.NotFound(models.EntityCustomer)
			}
		}
		if err := codeFree(tx, &models.LPAR{}, "code", "code "+req.Code, "code = ?", req.Code); err != nil {
			return audit.Entry{}, err
		}

		out = models.LPAR{
			Name:             req.Name,
			Code:             req.Code,
			CustomerID:       customerID,
			Description:      clonedDescription(fmt.Sprintf("%s (%s)", src.Name, src.Code), src.Description),
			Active:           src.Active,
			CurrentPackageID: src.CurrentPackageID,
		}
		if err := tx.Create(&out).Error; err != nil {
			return audit.Entry{}, apperr.Wrap("create lpar", models.EntityLPAR, err)
		}

		if len(src.Software) > 0 {
			now := time.Now().UTC()
			installs := make([]models.LparSoftware, len(src.Software))
			for i, ls := range src.Software {
				installs[i] = models.LparSoftware{
					LparID:           out.ID,
					SoftwareID:       ls.SoftwareID,
					CurrentVersion:   ls.CurrentVersion,
					CurrentPtfLevel:  ls.CurrentPtfLevel,
					PreviousVersion:  ls.PreviousVersion,
					PreviousPtfLevel: ls.PreviousPtfLevel,
					InstalledDate:    now,
				}
			}
			if err := tx.Create(&installs).Error; err != nil {
				return audit.Entry{}, apperr.Wrap("copy installations", models.EntityLparSoftware, err)
			}
			out.Software = installs
		}

		return audit.Entry{EntityID: out.ID, Changes: map[string]interface{}{
			"source_id":       src.ID,
			"source_name":     src.Name,
			"source_code":     src.Code,
			"new_code":        out.Code,
			"customer_id":     customerID,
			"software_cloned": len(src.Software),
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) CloneCustomer(ctx context.Context, sourceID uuid.UUID, req IdentityRequest) (*models.Customer, error) {
	if err := normalize(&req, &req.Name); err != nil {
		return nil, err
	}

	var out models.Customer
	err := s.run(ctx, models.EntityCustomer, sourceID, func(tx *gorm.DB) (audit.Entry, error) {
		var src models.Customer
		if err := tx.Where("id = ?", sourceID).First(&src).Error; err != nil {
			return audit.Entry{}, apperr.Wrap("load customer", models.EntityCustomer, err)
		}
		if err := codeFree(tx, &models.Customer{}, "code", "code "+req.Code, "code = ?", req.Code); err != nil {
			return audit.Entry{}, err
		}
		out = models.Customer{
			Name:        req.Name,
			Code:        req.Code,
			Description: clonedDescription(fmt.Sprintf("%s (%s)", src.Name, src.Code), src.Description),
			Active:      src.Active,
		}
		if err := tx.Create(&out).Error; err != nil {
			return audit.Entry{}, apperr.Wrap("create customer", models.EntityCustomer, err)
		}
		return audit.Entry{EntityID: out.ID, Changes: map[string]interface{}{
			"source_id":   src.ID,
			"source_name": src.Name,
			"source_code": src.Code,
			"new_code":    out.Code,
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) CloneVendor(ctx context.Context, sourceID uuid.UUID, req IdentityRequest) (*models.Vendor, error) {
	if err := normalize(&req, &req.Name); err != nil {
		return nil, err
	}

	var out models.Vendor
	err := s.run(ctx, models.EntityVendor, sourceID, func(tx *gorm.DB) (audit.Entry, error) {
		var src models.Vendor
		if err := tx.Where("id = ?", sourceID).First(&src).Error; err != nil {
			return audit.Entry{}, apperr.Wrap("load vendor", models.EntityVendor, err)
		}
		if err := codeFree(tx, &models.Vendor{}, "code", "code "+req.Code, "code = ?", req.Code); err != nil {
			return audit.Entry{}, err
		}
		out = models.Vendor{
			Name:         req.Name,
			Code:         req.Code,
			Website:      src.Website,
			ContactEmail: src.ContactEmail,
			Active:       src.Active,
		}
		if err := tx.Create(&out).Error; err != nil {
			return audit.Entry{}, apperr.Wrap("create vendor", models.EntityVendor, err)
		}
		return audit.Entry{EntityID: out.ID, Changes: map[string]interface{}{
			"source_id":   src.ID,
			"source_name": src.Name,
			"source_code": src.Code,
			"new_code":    out.Code,
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
