// Package dashboard aggregates the landing-page numbers: active entity
// counts, recent deployments and rollbacks, and end-of-support alerts.
package dashboard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lpar_inventory/internal/apperr"
	"lpar_inventory/internal/models"
)

const (
	recentLimit   = 5
	supportWindow = 90 * 24 * time.Hour
)

type Counts struct {
	Vendors   int64 `json:"vendors"`
	Customers int64 `json:"customers"`
	Software  int64 `json:"software"`
	Packages  int64 `json:"packages"`
	LPARs     int64 `json:"lpars"`
}

type Rollback struct {
	InstallationID uuid.UUID  `json:"installation_id"`
	LparID         uuid.UUID  `json:"lpar_id"`
	LparCode       string     `json:"lpar_code"`
	LparName       string     `json:"lpar_name"`
	SoftwareID     uuid.UUID  `json:"software_id"`
	SoftwareName   string     `json:"software_name"`
	CurrentVersion string     `json:"current_version"`
	RolledBackAt   *time.Time `json:"rolled_back_at"`
	RollbackReason *string    `json:"rollback_reason"`
}

type SupportAlert struct {
	VersionID    uuid.UUID `json:"version_id"`
	SoftwareID   uuid.UUID `json:"software_id"`
	SoftwareName string    `json:"software_name"`
	Version      string    `json:"version"`
	PtfLevel     *string   `json:"ptf_level"`
	EndOfSupport time.Time `json:"end_of_support"`
}

type Summary struct {
	Counts            Counts            `json:"counts"`
	RecentDeployments []models.AuditLog `json:"recent_deployments"`
	RecentRollbacks   []Rollback        `json:"recent_rollbacks"`
	EndOfSupport      []SupportAlert    `json:"end_of_support"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{db: db, log: log, now: time.Now}
}

func (s *Service) Summary(ctx context.Context) (Summary, error) {
	tx := s.db.WithContext(ctx)
	var sum Summary

	counts := []struct {
		model interface{}
		dst   *int64
	}{
		{&models.Vendor{}, &sum.Counts.Vendors},
		{&models.Customer{}, &sum.Counts.Customers},
		{&models.Software{}, &sum.Counts.Software},
		{&models.Package{}, &sum.Counts.Packages},
		{&models.LPAR{}, &sum.Counts.LPARs},
	}
	for _, c := range counts {
		if err := tx.Model(c.model).Where("active = ?", true).Count(c.dst).Error; err != nil {
			return sum, apperr.Database("count active", err)
		}
	}

	if err := tx.Where("action = ?", models.ActionDeploy).
		Order("timestamp DESC").Limit(recentLimit).Find(&sum.RecentDeployments).Error; err != nil {
		return sum, apperr.Database("recent deployments", err)
	}

	if err := tx.Table("lpar_software AS ls").
		Select(`ls.id AS installation_id, ls.lpar_id, l.code AS lpar_code, l.name AS lpar_name,
			ls.software_id, s.name AS software_name, ls.current_version, ls.rolled_back_at, ls.rollback_reason`).
		Joins("JOIN lpars l ON l.id = ls.lpar_id").
		Joins("JOIN software s ON s.id = ls.software_id").
		Where("ls.rolled_back = ?", true).
		Order("ls.rolled_back_at DESC").Limit(recentLimit).
		Scan(&sum.RecentRollbacks).Error; err != nil {
		return sum, apperr.Database("recent rollbacks", err)
	}

	now := s.now().UTC()
	if err := tx.Table("software_versions AS v").
		Select("v.id AS version_id, v.software_id, s.name AS software_name, v.version, v.ptf_level, v.end_of_support").
		Joins("JOIN software s ON s.id = v.software_id").
		Where("v.is_current = ? AND v.end_of_support >= ? AND v.end_of_support <= ?", true, now, now.Add(supportWindow)).
		Order("v.end_of_support ASC").Limit(recentLimit).
		Scan(&sum.EndOfSupport).Error; err != nil {
		return sum, apperr.Database("end of support", err)
	}

	if sum.RecentDeployments == nil {
		sum.RecentDeployments = []models.AuditLog{}
	}
	if sum.RecentRollbacks == nil {
		sum.RecentRollbacks = []Rollback{}
	}
	if sum.EndOfSupport == nil {
		sum.EndOfSupport = []SupportAlert{}
	}
	return sum, nil
}
