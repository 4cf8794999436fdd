package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lpar_inventory/internal/apperr"
	"lpar_inventory/internal/audit"
	"lpar_inventory/internal/lifecycle"
	"lpar_inventory/internal/models"
	"lpar_inventory/internal/validation"
)

// edit loads the row with id, lets change modify it and saves it, all in one
// transaction. The update entry holds the row before and after the edit plus
// whatever change returns. An edit that turns an active row inactive
// cascades exactly like a deactivation.
func edit[T any](ctx context.Context, s *Service, entity string, id uuid.UUID, active func(*T) bool,
	change func(tx *gorm.DB, row *T) (map[string]interface{}, error)) (*T, error) {
	var row T
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
			return apperr.Wrap("load "+entity, entity, err)
		}
		before := row

		extra, err := change(tx, &row)
		if err != nil {
			return err
		}
		if err := tx.Save(&row).Error; err != nil {
			return apperr.Wrap("update "+entity, entity, err)
		}

		changes := map[string]interface{}{"old": before, "new": row}
		for k, v := range extra {
			changes[k] = v
		}
		if active(&before) && !active(&row) {
			if _, err := lifecycle.Cascade(tx, entity, id, changes); err != nil {
				return err
			}
		}
		return audit.Record(ctx, tx, audit.Entry{EntityType: entity, EntityID: id, Action: models.ActionUpdate, Changes: changes})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Entity updated", zap.String("entity", entity), zap.String("id", id.String()))
	return &row, nil
}

func keep(active *bool, current bool) bool {
	if active == nil {
		return current
	}
	return *active
}

// VendorUpdate replaces a vendor's fields. A nil Active keeps the current
// state.
type VendorUpdate struct {
	VendorInput
	Active *bool `json:"active"`
}

func (s *Service) UpdateVendor(ctx context.Context, id uuid.UUID, in VendorUpdate) (*models.Vendor, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	return edit(ctx, s, models.EntityVendor, id, func(v *models.Vendor) bool { return v.Active },
		func(tx *gorm.DB, v *models.Vendor) (map[string]interface{}, error) {
			if err := codeTaken(tx, &models.Vendor{}, in.Code, id); err != nil {
				return nil, err
			}
			v.Name, v.Code, v.Website, v.ContactEmail = in.Name, in.Code, in.Website, in.ContactEmail
			v.Active = keep(in.Active, v.Active)
			return nil, nil
		})
}

type CustomerUpdate struct {
	CustomerInput
	Active *bool `json:"active"`
}

func (s *Service) UpdateCustomer(ctx context.Context, id uuid.UUID, in CustomerUpdate) (*models.Customer, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	return edit(ctx, s, models.EntityCustomer, id, func(c *models.Customer) bool { return c.Active },
		func(tx *gorm.DB, c *models.Customer) (map[string]interface{}, error) {
			if err := codeTaken(tx, &models.Customer{}, in.Code, id); err != nil {
				return nil, err
			}
			c.Name, c.Code, c.Description = in.Name, in.Code, in.Description
			c.Active = keep(in.Active, c.Active)
			return nil, nil
		})
}

// PackageUpdate replaces a package's header. Items are edited with
// ReplacePackageItems; a zero ReleaseDate keeps the stored one.
type PackageUpdate struct {
	PackageInput
	Active *bool `json:"active"`
}

func (s *Service) UpdatePackage(ctx context.Context, id uuid.UUID, in PackageUpdate) (*models.Package, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	return edit(ctx, s, models.EntityPackage, id, func(p *models.Package) bool { return p.Active },
		func(tx *gorm.DB, p *models.Package) (map[string]interface{}, error) {
			if err := packageTaken(tx, in.Code, in.Version, id); err != nil {
				return nil, err
			}
			p.Name, p.Code, p.Version, p.Description = in.Name, in.Code, in.Version, in.Description
			if !in.ReleaseDate.IsZero() {
				p.ReleaseDate = in.ReleaseDate
			}
			p.Active = keep(in.Active, p.Active)
			return nil, nil
		})
}

// LPARUpdate replaces an LPAR's fields. A nil CurrentPackageID clears the
// package assignment.
type LPARUpdate struct {
	LPARInput
	Active *bool `json:"active"`
}

func (s *Service) UpdateLPAR(ctx context.Context, id uuid.UUID, in LPARUpdate) (*models.LPAR, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	return edit(ctx, s, models.EntityLPAR, id, func(l *models.LPAR) bool { return l.Active },
		func(tx *gorm.DB, l *models.LPAR) (map[string]interface{}, error) {
			if ok, err := exists(tx, &models.Customer{}, "id = ?", in.CustomerID); err != nil {
				return nil, err
			} else if !ok {
				return nil, apperr.NotFound(models.EntityCustomer)
			}
			if in.CurrentPackageID != nil {
				if ok, err := exists(tx, &models.Package{}, "id = ?", *in.CurrentPackageID); err != nil {
					return nil, err
				} else if !ok {
					return nil, apperr.NotFound(models.EntityPackage)
				}
			}
			if err := codeTaken(tx, &models.LPAR{}, in.Code, id); err != nil {
				return nil, err
			}
			l.Name, l.Code, l.CustomerID, l.Description = in.Name, in.Code, in.CustomerID, in.Description
			l.CurrentPackageID = in.CurrentPackageID
			l.Active = keep(in.Active, l.Active)
			return nil, nil
		})
}

// VersionEdit is one row of a software master-detail edit: no ID creates a
// version, an ID updates it and Delete with an ID removes it.
type VersionEdit struct {
	ID           *uuid.UUID `json:"id" validate:"required_if=Delete true"`
	Delete       bool       `json:"delete"`
	Version      string     `json:"version" validate:"required_unless=Delete true,max=50"`
	PtfLevel     *string    `json:"ptf_level" validate:"omitempty,max=50"`
	ReleaseDate  time.Time  `json:"release_date"`
	EndOfSupport *time.Time `json:"end_of_support" validate:"omitempty,gtefield=ReleaseDate"`
	ReleaseNotes string     `json:"release_notes"`
	IsCurrent    bool       `json:"is_current"`
}

// SoftwareUpdate edits a software and its versions together. The current
// version is the last edit marked IsCurrent, else CurrentVersionID, else the
// stored one as long as it survives the edit.
type SoftwareUpdate struct {
	SoftwareInput
	Active           *bool         `json:"active"`
	CurrentVersionID *uuid.UUID    `json:"current_version_id"`
	Versions         []VersionEdit `json:"versions" validate:"dive"`
}

func (s *Service) UpdateSoftware(ctx context.Context, id uuid.UUID, in SoftwareUpdate) (*models.Software, error) {
	trim(&in.Name)
	for i := range in.Versions {
		trim(&in.Versions[i].Version)
		in.Versions[i].PtfLevel = emptyToNil(in.Versions[i].PtfLevel)
	}
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}

	_, err := edit(ctx, s, models.EntitySoftware, id, func(sw *models.Software) bool { return sw.Active },
		func(tx *gorm.DB, sw *models.Software) (map[string]interface{}, error) {
			if ok, err := exists(tx, &models.Vendor{}, "id = ?", in.VendorID); err != nil {
				return nil, err
			} else if !ok {
				return nil, apperr.NotFound(models.EntityVendor)
			}

			current, changes, err := applyVersionEdits(tx, sw, in)
			if err != nil {
				return nil, err
			}
			sw.Name, sw.VendorID, sw.Description = in.Name, in.VendorID, in.Description
			sw.Active = keep(in.Active, sw.Active)
			sw.CurrentVersionID = current
			return map[string]interface{}{"version_changes": changes}, nil
		})
	if err != nil {
		return nil, err
	}
	return s.GetSoftware(ctx, id)
}

type versionChanges struct {
	Created []uuid.UUID `json:"created"`
	Updated []uuid.UUID `json:"updated"`
	Deleted []uuid.UUID `json:"deleted"`
}

// applyVersionEdits runs deletes, then updates, then creates, and leaves
// exactly one row flagged current when the software has a current version.
func applyVersionEdits(tx *gorm.DB, sw *models.Software, in SoftwareUpdate) (*uuid.UUID, versionChanges, error) {
	changes := versionChanges{Created: []uuid.UUID{}, Updated: []uuid.UUID{}, Deleted: []uuid.UUID{}}

	var ids []uuid.UUID
	if err := tx.Model(&models.SoftwareVersion{}).Where("software_id = ?", sw.ID).Pluck("id", &ids).Error; err != nil {
		return nil, changes, apperr.Database("load versions", err)
	}
	owned := make(map[uuid.UUID]bool, len(ids))
	for _, vid := range ids {
		owned[vid] = true
	}
	field := func(i int, name string) string { return fmt.Sprintf("versions[%d].%s", i, name) }

	current := sw.CurrentVersionID
	if in.CurrentVersionID != nil {
		current = in.CurrentVersionID
	}

	for i, e := range in.Versions {
		if !e.Delete {
			continue
		}
		if !owned[*e.ID] {
			return nil, changes, apperr.Validation(field(i, "id"), "version does not belong to this software")
		}
		var pinned int64
		if err := tx.Model(&models.PackageItem{}).Where("software_version_id = ?", *e.ID).Count(&pinned).Error; err != nil {
			return nil, changes, apperr.Database("count package items", err)
		}
		if pinned > 0 {
			return nil, changes, apperr.Validation(field(i, "id"), fmt.Sprintf("version is pinned by %d package items", pinned))
		}
		if err := tx.Where("id = ?", *e.ID).Delete(&models.SoftwareVersion{}).Error; err != nil {
			return nil, changes, apperr.Database("delete version", err)
		}
		delete(owned, *e.ID)
		changes.Deleted = append(changes.Deleted, *e.ID)
		if current != nil && *current == *e.ID {
			current = nil
		}
	}

	for i, e := range in.Versions {
		if e.Delete || e.ID == nil {
			continue
		}
		if !owned[*e.ID] {
			return nil, changes, apperr.Validation(field(i, "id"), "version does not belong to this software")
		}
		if err := versionTaken(tx, field(i, "version"), sw.ID, e.Version, e.PtfLevel, *e.ID); err != nil {
			return nil, changes, err
		}
		updates := map[string]interface{}{
			"version":        e.Version,
			"ptf_level":      e.PtfLevel,
			"end_of_support": e.EndOfSupport,
			"release_notes":  e.ReleaseNotes,
		}
		if !e.ReleaseDate.IsZero() {
			updates["release_date"] = e.ReleaseDate
		}
		if err := tx.Model(&models.SoftwareVersion{}).Where("id = ?", *e.ID).Updates(updates).Error; err != nil {
			return nil, changes, apperr.Database("update version", err)
		}
		changes.Updated = append(changes.Updated, *e.ID)
		if e.IsCurrent {
			vid := *e.ID
			current = &vid
		}
	}

	for i, e := range in.Versions {
		if e.Delete || e.ID != nil {
			continue
		}
		if err := versionTaken(tx, field(i, "version"), sw.ID, e.Version, e.PtfLevel, uuid.Nil); err != nil {
			return nil, changes, err
		}
		v := models.SoftwareVersion{
			SoftwareID:   sw.ID,
			Version:      e.Version,
			PtfLevel:     e.PtfLevel,
			ReleaseDate:  e.ReleaseDate,
			EndOfSupport: e.EndOfSupport,
			ReleaseNotes: e.ReleaseNotes,
		}
		if v.ReleaseDate.IsZero() {
			v.ReleaseDate = time.Now().UTC()
		}
		if err := tx.Create(&v).Error; err != nil {
			return nil, changes, apperr.Wrap("create version", models.EntitySoftwareVersion, err)
		}
		owned[v.ID] = true
		changes.Created = append(changes.Created, v.ID)
		if e.IsCurrent {
			current = &v.ID
		}
	}

	if current != nil && !owned[*current] {
		return nil, changes, apperr.Validation("current_version_id", "version does not belong to this software")
	}
	if err := tx.Model(&models.SoftwareVersion{}).Where("software_id = ?", sw.ID).
		Update("is_current", false).Error; err != nil {
		return nil, changes, apperr.Database("clear current version", err)
	}
	if current != nil {
		if err := tx.Model(&models.SoftwareVersion{}).Where("id = ?", *current).
			Update("is_current", true).Error; err != nil {
			return nil, changes, apperr.Database("set current version", err)
		}
	}
	return current, changes, nil
}
