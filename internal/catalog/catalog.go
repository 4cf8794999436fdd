// Package catalog creates and reads the inventory entities and performs the
// master-detail edits on them: software versions, package items and LPAR
// installations.
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lpar_inventory/internal/apperr"
	"lpar_inventory/internal/audit"
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

// ListFilter narrows list queries. Search matches the name or code.
type ListFilter struct {
	Search     string
	ActiveOnly bool
}

func (f ListFilter) apply(q *gorm.DB, hasCode bool) *gorm.DB {
	if f.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		if hasCode {
			q = q.Where("(LOWER(name) LIKE ? OR LOWER(code) LIKE ?)", like, like)
		} else {
			q = q.Where("LOWER(name) LIKE ?", like)
		}
	}
	return q.Order("name ASC")
}

// insert creates row and its audit entry in one transaction. entry is
// called after the insert so it can read the assigned id.
func (s *Service) insert(ctx context.Context, entity string, row interface{}, entry func() audit.Entry) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return apperr.Wrap("create "+entity, entity, err)
		}
		return audit.Record(ctx, tx, entry())
	})
	if err != nil {
		return err
	}
	s.log.Info("Entity created", zap.String("entity", entity))
	return nil
}

func exists(tx *gorm.DB, model interface{}, query string, args ...interface{}) (bool, error) {
	var n int64
	if err := tx.Model(model).Where(query, args...).Count(&n).Error; err != nil {
		return false, apperr.Database("count", err)
	}
	return n > 0, nil
}

func (s *Service) mustExist(ctx context.Context, model interface{}, entity string, id uuid.UUID) error {
	ok, err := exists(s.db.WithContext(ctx), model, "id = ?", id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound(entity)
	}
	return nil
}

// codeTaken reports DUPLICATE when another row than except already uses code.
func codeTaken(tx *gorm.DB, model interface{}, code string, except uuid.UUID) error {
	taken, err := exists(tx, model, "code = ? AND id <> ?", code, except)
	if err != nil {
		return err
	}
	if taken {
		return apperr.Duplicate("code", "code "+code+" is already in use")
	}
	return nil
}

func get[T any](ctx context.Context, db *gorm.DB, entity string, id uuid.UUID, preload ...string) (*T, error) {
	q := db.WithContext(ctx)
	for _, p := range preload {
		q = q.Preload(p)
	}
	var row T
	if err := q.Where("id = ?", id).First(&row).Error; err != nil {
		return nil, apperr.Wrap("load "+entity, entity, err)
	}
	return &row, nil
}

// Vendors

type VendorInput struct {
	Name         string `json:"name" binding:"required" validate:"required,min=2,max=100"`
	Code         string `json:"code" binding:"required" validate:"required,min=2,max=20,code"`
	Website      string `json:"website" binding:"omitempty,url" validate:"omitempty,max=500,url"`
	ContactEmail string `json:"contact_email" binding:"omitempty,email" validate:"omitempty,max=255,email"`
}

func (in *VendorInput) normalize() error {
	trim(&in.Name, &in.Website, &in.ContactEmail)
	return validation.Struct(in)
}

func (s *Service) CreateVendor(ctx context.Context, in VendorInput) (*models.Vendor, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if err := codeTaken(s.db.WithContext(ctx), &models.Vendor{}, in.Code, uuid.Nil); err != nil {
		return nil, err
	}

	v := &models.Vendor{
		Name:         in.Name,
		Code:         in.Code,
		Website:      in.Website,
		ContactEmail: in.ContactEmail,
		Active:       true,
	}
	err := s.insert(ctx, models.EntityVendor, v, func() audit.Entry {
		return audit.Entry{EntityType: models.EntityVendor, EntityID: v.ID, Action: models.ActionCreate,
			Changes: map[string]interface{}{"name": v.Name, "code": v.Code}}
	})
	return v, err
}

func (s *Service) GetVendor(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	return get[models.Vendor](ctx, s.db, models.EntityVendor, id, "Software")
}

func (s *Service) ListVendors(ctx context.Context, f ListFilter) ([]models.Vendor, error) {
	var out []models.Vendor
	if err := f.apply(s.db.WithContext(ctx), true).Find(&out).Error; err != nil {
		return nil, apperr.Database("list vendors", err)
	}
	return out, nil
}

// Customers

type CustomerInput struct {
	Name        string `json:"name" binding:"required" validate:"required,min=2,max=100"`
	Code        string `json:"code" binding:"required" validate:"required,min=2,max=20,code"`
	Description string `json:"description" validate:"max=500"`
}

func (in *CustomerInput) normalize() error {
	trim(&in.Name)
	return validation.Struct(in)
}

func (s *Service) CreateCustomer(ctx context.Context, in CustomerInput) (*models.Customer, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if err := codeTaken(s.db.WithContext(ctx), &models.Customer{}, in.Code, uuid.Nil); err != nil {
		return nil, err
	}

	c := &models.Customer{Name: in.Name, Code: in.Code, Description: in.Description, Active: true}
	err := s.insert(ctx, models.EntityCustomer, c, func() audit.Entry {
		return audit.Entry{EntityType: models.EntityCustomer, EntityID: c.ID, Action: models.ActionCreate,
			Changes: map[string]interface{}{"name": c.Name, "code": c.Code}}
	})
	return c, err
}

func (s *Service) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	return get[models.Customer](ctx, s.db, models.EntityCustomer, id, "LPARs")
}

func (s *Service) ListCustomers(ctx context.Context, f ListFilter) ([]models.Customer, error) {
	var out []models.Customer
	if err := f.apply(s.db.WithContext(ctx), true).Find(&out).Error; err != nil {
		return nil, apperr.Database("list customers", err)
	}
	return out, nil
}

// Software

type SoftwareInput struct {
	Name        string    `json:"name" binding:"required" validate:"required,min=2,max=100"`
	VendorID    uuid.UUID `json:"vendor_id"`
	Description string    `json:"description" validate:"max=500"`
}

func (in *SoftwareInput) normalize() error {
	trim(&in.Name)
	return validation.Struct(in)
}

func (s *Service) CreateSoftware(ctx context.Context, in SoftwareInput) (*models.Software, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if err := s.mustExist(ctx, &models.Vendor{}, models.EntityVendor, in.VendorID); err != nil {
		return nil, err
	}

	sw := &models.Software{Name: in.Name, VendorID: in.VendorID, Description: in.Description, Active: true}
	err := s.insert(ctx, models.EntitySoftware, sw, func() audit.Entry {
		return audit.Entry{EntityType: models.EntitySoftware, EntityID: sw.ID, Action: models.ActionCreate,
			Changes: map[string]interface{}{"name": sw.Name, "vendor_id": sw.VendorID}}
	})
	return sw, err
}

func (s *Service) GetSoftware(ctx context.Context, id uuid.UUID) (*models.Software, error) {
	sw, err := get[models.Software](ctx, s.db, models.EntitySoftware, id, "Vendor")
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Where("software_id = ?", id).
		Order("release_date DESC").Find(&sw.Versions).Error; err != nil {
		return nil, apperr.Database("load versions", err)
	}
	return sw, nil
}

func (s *Service) ListSoftware(ctx context.Context, f ListFilter) ([]models.Software, error) {
	var out []models.Software
	if err := f.apply(s.db.WithContext(ctx).Preload("Vendor"), false).Find(&out).Error; err != nil {
		return nil, apperr.Database("list software", err)
	}
	return out, nil
}

// VersionInput describes one catalogued version. An end of support is only
// checked against the release date when the release date is given.
type VersionInput struct {
	Version      string     `json:"version" binding:"required" validate:"required,max=50"`
	PtfLevel     *string    `json:"ptf_level" validate:"omitempty,max=50"`
	ReleaseDate  time.Time  `json:"release_date"`
	EndOfSupport *time.Time `json:"end_of_support" validate:"omitempty,gtefield=ReleaseDate"`
	ReleaseNotes string     `json:"release_notes"`
	IsCurrent    bool       `json:"is_current"`
}

func (in *VersionInput) normalize() error {
	trim(&in.Version)
	in.PtfLevel = emptyToNil(in.PtfLevel)
	if err := validation.Struct(in); err != nil {
		return err
	}
	if in.ReleaseDate.IsZero() {
		in.ReleaseDate = time.Now().UTC()
	}
	return nil
}

// versionTaken reports DUPLICATE when the software already has another
// version (not except) with the same designation.
func versionTaken(tx *gorm.DB, field string, softwareID uuid.UUID, version string, ptf *string, except uuid.UUID) error {
	q := tx.Model(&models.SoftwareVersion{}).Where("software_id = ? AND version = ? AND id <> ?", softwareID, version, except)
	if ptf == nil {
		q = q.Where("ptf_level IS NULL")
	} else {
		q = q.Where("ptf_level = ?", *ptf)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return apperr.Database("check version", err)
	}
	if n > 0 {
		return apperr.Duplicate(field, "version "+version+" already exists for this software")
	}
	return nil
}

// AddVersion records a new version of a software. When IsCurrent is set the
// new row becomes the only current version.
func (s *Service) AddVersion(ctx context.Context, softwareID uuid.UUID, in VersionInput) (*models.SoftwareVersion, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	v := &models.SoftwareVersion{
		SoftwareID:   softwareID,
		Version:      in.Version,
		PtfLevel:     in.PtfLevel,
		ReleaseDate:  in.ReleaseDate,
		EndOfSupport: in.EndOfSupport,
		ReleaseNotes: in.ReleaseNotes,
		IsCurrent:    in.IsCurrent,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ok, err := exists(tx, &models.Software{}, "id = ?", softwareID); err != nil {
			return err
		} else if !ok {
			return apperr.NotFound(models.EntitySoftware)
		}

		if err := versionTaken(tx, "version", softwareID, v.Version, v.PtfLevel, uuid.Nil); err != nil {
			return err
		}

		if v.IsCurrent {
			if err := tx.Model(&models.SoftwareVersion{}).Where("software_id = ?", softwareID).
				Update("is_current", false).Error; err != nil {
				return apperr.Database("clear current version", err)
			}
		}
		if err := tx.Create(v).Error; err != nil {
			return apperr.Wrap("create version", models.EntitySoftwareVersion, err)
		}
		if v.IsCurrent {
			if err := tx.Model(&models.Software{}).Where("id = ?", softwareID).
				Update("current_version_id", v.ID).Error; err != nil {
				return apperr.Database("set current version", err)
			}
		}
		return audit.Record(ctx, tx, audit.Entry{
			EntityType: models.EntitySoftware,
			EntityID:   softwareID,
			Action:     models.ActionVersionUpdate,
			Changes: map[string]interface{}{
				"version_id": v.ID,
				"version":    v.Version,
				"ptf_level":  v.PtfLevel,
				"is_current": v.IsCurrent,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// SetCurrentVersion marks versionID as the single current version of its
// software and points the software at it.
func (s *Service) SetCurrentVersion(ctx context.Context, softwareID, versionID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sw models.Software
		if err := tx.Where("id = ?", softwareID).First(&sw).Error; err != nil {
			return apperr.Wrap("load software", models.EntitySoftware, err)
		}
		ok, err := exists(tx, &models.SoftwareVersion{}, "id = ? AND software_id = ?", versionID, softwareID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Validation("version_id", "version does not belong to this software")
		}

		if err := tx.Model(&models.SoftwareVersion{}).Where("software_id = ? AND id <> ?", softwareID, versionID).
			Update("is_current", false).Error; err != nil {
			return apperr.Database("clear current version", err)
		}
		if err := tx.Model(&models.SoftwareVersion{}).Where("id = ?", versionID).
			Update("is_current", true).Error; err != nil {
			return apperr.Database("set current version", err)
		}
		if err := tx.Model(&models.Software{}).Where("id = ?", softwareID).
			Update("current_version_id", versionID).Error; err != nil {
			return apperr.Database("set current version", err)
		}
		return audit.Record(ctx, tx, audit.Entry{
			EntityType: models.EntitySoftware,
			EntityID:   softwareID,
			Action:     models.ActionVersionUpdate,
			Changes: map[string]interface{}{
				"previous_version_id": sw.CurrentVersionID,
				"current_version_id":  versionID,
			},
		})
	})
}

// Packages

type PackageInput struct {
	Name        string    `json:"name" binding:"required" validate:"required,min=2,max=100"`
	Code        string    `json:"code" binding:"required" validate:"required,min=2,max=20,code"`
	Version     string    `json:"version" binding:"required" validate:"required,max=50"`
	Description string    `json:"description" validate:"max=500"`
	ReleaseDate time.Time `json:"release_date"`
}

func (in *PackageInput) normalize() error {
	trim(&in.Name, &in.Version)
	return validation.Struct(in)
}

// packageTaken reports DUPLICATE on version when another package than except
// already has the same code and version.
func packageTaken(tx *gorm.DB, code, version string, except uuid.UUID) error {
	taken, err := exists(tx, &models.Package{}, "code = ? AND version = ? AND id <> ?", code, version, except)
	if err != nil {
		return err
	}
	if taken {
		return apperr.Duplicate("version", "package "+code+" "+version+" already exists")
	}
	return nil
}

func (s *Service) CreatePackage(ctx context.Context, in PackageInput) (*models.Package, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if err := packageTaken(s.db.WithContext(ctx), in.Code, in.Version, uuid.Nil); err != nil {
		return nil, err
	}
	if in.ReleaseDate.IsZero() {
		in.ReleaseDate = time.Now().UTC()
	}

	p := &models.Package{
		Name:        in.Name,
		Code:        in.Code,
		Version:     in.Version,
		Description: in.Description,
		ReleaseDate: in.ReleaseDate,
		Active:      true,
	}
	err := s.insert(ctx, models.EntityPackage, p, func() audit.Entry {
		return audit.Entry{EntityType: models.EntityPackage, EntityID: p.ID, Action: models.ActionCreate,
			Changes: map[string]interface{}{"name": p.Name, "code": p.Code, "version": p.Version}}
	})
	return p, err
}

func (s *Service) GetPackage(ctx context.Context, id uuid.UUID) (*models.Package, error) {
	p, err := get[models.Package](ctx, s.db, models.EntityPackage, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Preload("Software").Preload("SoftwareVersion").
		Where("package_id = ?", id).Order("order_index ASC").Find(&p.Items).Error; err != nil {
		return nil, apperr.Database("load package items", err)
	}
	return p, nil
}

func (s *Service) ListPackages(ctx context.Context, f ListFilter) ([]models.Package, error) {
	var out []models.Package
	if err := f.apply(s.db.WithContext(ctx), true).Order("version DESC").Find(&out).Error; err != nil {
		return nil, apperr.Database("list packages", err)
	}
	return out, nil
}

type ItemInput struct {
	SoftwareID        uuid.UUID `json:"software_id"`
	SoftwareVersionID uuid.UUID `json:"software_version_id"`
	Required          *bool     `json:"required"`
	OrderIndex        int       `json:"order_index"`
}

// ReplacePackageItems swaps the whole item list of a package. Order indices
// and software must each be unique, and every pinned version must belong to
// its item's software.
func (s *Service) ReplacePackageItems(ctx context.Context, packageID uuid.UUID, items []ItemInput) (*models.Package, error) {
	orders := make(map[int]struct{}, len(items))
	software := make(map[uuid.UUID]struct{}, len(items))
	versionIDs := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		if it.OrderIndex < 1 {
			return nil, apperr.Validation("order_index", "order index must be positive")
		}
		if _, dup := orders[it.OrderIndex]; dup {
			return nil, apperr.Validation("order_index", "order indices must be unique within a package")
		}
		if _, dup := software[it.SoftwareID]; dup {
			return nil, apperr.Validation("software_id", "each software may appear only once in a package")
		}
		orders[it.OrderIndex] = struct{}{}
		software[it.SoftwareID] = struct{}{}
		versionIDs = append(versionIDs, it.SoftwareVersionID)
	}

	var before int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ok, err := exists(tx, &models.Package{}, "id = ?", packageID); err != nil {
			return err
		} else if !ok {
			return apperr.NotFound(models.EntityPackage)
		}

		owner := map[uuid.UUID]uuid.UUID{}
		if len(versionIDs) > 0 {
			var versions []models.SoftwareVersion
			if err := tx.Where("id IN ?", versionIDs).Find(&versions).Error; err != nil {
				return apperr.Database("load versions", err)
			}
			for _, v := range versions {
				owner[v.ID] = v.SoftwareID
			}
		}

		rows := make([]models.PackageItem, 0, len(items))
		for _, it := range items {
			if sw, ok := owner[it.SoftwareVersionID]; !ok || sw != it.SoftwareID {
				return apperr.Validation("software_version_id", "version does not belong to the selected software")
			}
			required := true
			if it.Required != nil {
				required = *it.Required
			}
			rows = append(rows, models.PackageItem{
				PackageID:         packageID,
				SoftwareID:        it.SoftwareID,
				SoftwareVersionID: it.SoftwareVersionID,
				Required:          required,
				OrderIndex:        it.OrderIndex,
			})
		}

		if err := tx.Model(&models.PackageItem{}).Where("package_id = ?", packageID).Count(&before).Error; err != nil {
			return apperr.Database("count items", err)
		}
		if err := tx.Where("package_id = ?", packageID).Delete(&models.PackageItem{}).Error; err != nil {
			return apperr.Database("delete items", err)
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return apperr.Wrap("create items", models.EntityPackageItem, err)
			}
		}
		return audit.Record(ctx, tx, audit.Entry{
			EntityType: models.EntityPackage,
			EntityID:   packageID,
			Action:     models.ActionUpdate,
			Changes:    map[string]interface{}{"items_before": before, "items_after": len(rows)},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetPackage(ctx, packageID)
}

// LPARs

type LPARInput struct {
	Name             string     `json:"name" binding:"required" validate:"required,min=2,max=100"`
	Code             string     `json:"code" binding:"required" validate:"required,min=2,max=20,code"`
	CustomerID       uuid.UUID  `json:"customer_id"`
	Description      string     `json:"description" validate:"max=500"`
	CurrentPackageID *uuid.UUID `json:"current_package_id"`
}

func (in *LPARInput) normalize() error {
	trim(&in.Name)
	return validation.Struct(in)
}

func (s *Service) CreateLPAR(ctx context.Context, in LPARInput) (*models.LPAR, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if err := s.mustExist(ctx, &models.Customer{}, models.EntityCustomer, in.CustomerID); err != nil {
		return nil, err
	}
	if in.CurrentPackageID != nil {
		if err := s.mustExist(ctx, &models.Package{}, models.EntityPackage, *in.CurrentPackageID); err != nil {
			return nil, err
		}
	}
	if err := codeTaken(s.db.WithContext(ctx), &models.LPAR{}, in.Code, uuid.Nil); err != nil {
		return nil, err
	}

	l := &models.LPAR{
		Name:             in.Name,
		Code:             in.Code,
		CustomerID:       in.CustomerID,
		Description:      in.Description,
		CurrentPackageID: in.CurrentPackageID,
		Active:           true,
	}
	err := s.insert(ctx, models.EntityLPAR, l, func() audit.Entry {
		return audit.Entry{EntityType: models.EntityLPAR, EntityID: l.ID, Action: models.ActionCreate,
			Changes: map[string]interface{}{"name": l.Name, "code": l.Code, "customer_id": l.CustomerID}}
	})
	return l, err
}

func (s *Service) GetLPAR(ctx context.Context, id uuid.UUID) (*models.LPAR, error) {
	return get[models.LPAR](ctx, s.db, models.EntityLPAR, id, "Customer", "CurrentPackage", "Software.Software")
}

func (s *Service) ListLPARs(ctx context.Context, f ListFilter) ([]models.LPAR, error) {
	var out []models.LPAR
	if err := f.apply(s.db.WithContext(ctx).Preload("Customer"), true).Find(&out).Error; err != nil {
		return nil, apperr.Database("list lpars", err)
	}
	return out, nil
}

type InstallInput struct {
	SoftwareID        uuid.UUID `json:"software_id"`
	SoftwareVersionID uuid.UUID `json:"software_version_id"`
}

// InstallSoftware records a catalogued version as installed on an LPAR. The
// version strings are copied into the installation row.
func (s *Service) InstallSoftware(ctx context.Context, lparID uuid.UUID, in InstallInput) (*models.LparSoftware, error) {
	var inst *models.LparSoftware
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ok, err := exists(tx, &models.LPAR{}, "id = ?", lparID); err != nil {
			return err
		} else if !ok {
			return apperr.NotFound(models.EntityLPAR)
		}

		var v models.SoftwareVersion
		err := tx.Where("id = ? AND software_id = ?", in.SoftwareVersionID, in.SoftwareID).First(&v).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Validation("software_version_id", "version does not belong to the selected software")
		} else if err != nil {
			return apperr.Database("load version", err)
		}

		if taken, err := exists(tx, &models.LparSoftware{}, "lpar_id = ? AND software_id = ?", lparID, in.SoftwareID); err != nil {
			return err
		} else if taken {
			return apperr.Duplicate("software_id", "software is already installed on this LPAR")
		}

		inst = &models.LparSoftware{
			LparID:          lparID,
			SoftwareID:      in.SoftwareID,
			CurrentVersion:  v.Version,
			CurrentPtfLevel: v.PtfLevel,
			InstalledDate:   time.Now().UTC(),
		}
		if err := tx.Create(inst).Error; err != nil {
			return apperr.Wrap("create installation", models.EntityLparSoftware, err)
		}
		return audit.Record(ctx, tx, audit.Entry{
			EntityType: models.EntityLparSoftware,
			EntityID:   inst.ID,
			Action:     models.ActionCreate,
			Changes: map[string]interface{}{
				"lpar_id":     lparID,
				"software_id": in.SoftwareID,
				"version":     v.Version,
				"ptf_level":   v.PtfLevel,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}
