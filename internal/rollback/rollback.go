// Package rollback reverts one installed software on an LPAR to an earlier
// catalogued version.
package rollback

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
	"lpar_inventory/internal/compliance"
	"lpar_inventory/internal/models"
	"lpar_inventory/internal/validation"
	"lpar_inventory/internal/versioncmp"
)

// Request names the installation to roll back. Reason is trimmed before its
// length is checked.
type Request struct {
	LparID          uuid.UUID  `json:"lpar_id"`
	SoftwareID      uuid.UUID  `json:"software_id"`
	TargetVersionID *uuid.UUID `json:"target_version_id"`
	Reason          string     `json:"reason" validate:"min=10,max=500"`
}

type Result struct {
	Installation models.LparSoftware    `json:"installation"`
	From         versioncmp.Designation `json:"from"`
	To           versioncmp.Designation `json:"to"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{db: db, log: log}
}

// Rollback moves the current designation to previous, installs the target
// version and marks the row rolled back. Rolling back to the previous
// version a second time is how an operator rolls forward again.
func (s *Service) Rollback(ctx context.Context, req Request) (Result, error) {
	var res Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inst models.LparSoftware
		if err := tx.Where("lpar_id = ? AND software_id = ?", req.LparID, req.SoftwareID).
			First(&inst).Error; err != nil {
			return apperr.Wrap("load installation", "installation", err)
		}
		if inst.PreviousVersion == nil || *inst.PreviousVersion == "" {
			return apperr.Validation("software_id", "no previous version available for rollback")
		}

		req.Reason = strings.TrimSpace(req.Reason)
		if err := validation.Struct(&req); err != nil {
			return err
		}
		reason := req.Reason

		if req.TargetVersionID == nil {
			return apperr.Validation("target_version_id", "target version is required")
		}
		var target models.SoftwareVersion
		err := tx.Where("id = ? AND software_id = ?", *req.TargetVersionID, req.SoftwareID).First(&target).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Validation("target_version_id", "target version does not belong to this software")
		} else if err != nil {
			return apperr.Wrap("load target version", "version", err)
		}

		from := compliance.InstalledDesignation(inst)
		to := versioncmp.New(target.Version, target.PtfLevel)
		if from == to {
			return apperr.Validation("target_version_id", "cannot rollback to the currently installed version")
		}

		now := time.Now().UTC()
		if err := tx.Model(&models.LparSoftware{}).Where("id = ?", inst.ID).Updates(map[string]interface{}{
			"previous_version":   inst.CurrentVersion,
			"previous_ptf_level": inst.CurrentPtfLevel,
			"current_version":    to.Version,
			"current_ptf_level":  to.PtfPtr(),
			"rolled_back":        true,
			"rolled_back_at":     now,
			"rollback_reason":    reason,
		}).Error; err != nil {
			return apperr.Wrap("update installation", "installation", err)
		}

		if err := audit.Record(ctx, tx, audit.Entry{
			EntityType: models.EntityLparSoftware,
			EntityID:   inst.ID,
			Action:     models.ActionRollback,
			Changes: map[string]interface{}{
				"lpar_id":        inst.LparID,
				"software_id":    inst.SoftwareID,
				"from_version":   from.Version,
				"from_ptf_level": from.Ptf,
				"to_version":     to.Version,
				"to_ptf_level":   to.Ptf,
				"reason":         reason,
			},
		}); err != nil {
			return err
		}

		if err := tx.Where("id = ?", inst.ID).First(&res.Installation).Error; err != nil {
			return apperr.Wrap("reload installation", "installation", err)
		}
		res.From, res.To = from, to
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindDatabase {
			s.log.Error("Rollback failed",
				zap.String("lpar_id", req.LparID.String()),
				zap.String("software_id", req.SoftwareID.String()),
				zap.Error(err))
		}
		return Result{}, err
	}

	s.log.Info("Software rolled back",
		zap.String("lpar_id", req.LparID.String()),
		zap.String("software_id", req.SoftwareID.String()),
		zap.String("from", res.From.String()),
		zap.String("to", res.To.String()))
	return res, nil
}

// Candidates lists the versions of the installed software that a rollback
// may target, newest first, excluding the installed designation.
func (s *Service) Candidates(ctx context.Context, lparID, softwareID uuid.UUID) ([]models.SoftwareVersion, error) {
	tx := s.db.WithContext(ctx)
	var inst models.LparSoftware
	if err := tx.Where("lpar_id = ? AND software_id = ?", lparID, softwareID).First(&inst).Error; err != nil {
		return nil, apperr.Wrap("load installation", "installation", err)
	}
	var versions []models.SoftwareVersion
	if err := tx.Where("software_id = ?", softwareID).Order("release_date DESC").Find(&versions).Error; err != nil {
		return nil, apperr.Wrap("load versions", "version", err)
	}

	have := compliance.InstalledDesignation(inst)
	out := make([]models.SoftwareVersion, 0, len(versions))
	for _, v := range versions {
		if versioncmp.New(v.Version, v.PtfLevel) != have {
			out = append(out, v)
		}
	}
	return out, nil
}
