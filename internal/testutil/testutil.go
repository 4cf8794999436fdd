// Package testutil provides an in-memory SQLite database and small fixture
// builders shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lpar_inventory/internal/config"
	"lpar_inventory/internal/db"
	"lpar_inventory/internal/models"
)

// NewDB opens a fresh, migrated in-memory database for one test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := config.DBConfig{
		Driver:   "sqlite",
		DSN:      fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		LogLevel: "silent",
	}
	gdb, err := db.Connect(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(context.Background(), gdb))

	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

func Ptr[T any](v T) *T { return &v }

func Vendor(t *testing.T, gdb *gorm.DB, code string) *models.Vendor {
	t.Helper()
	v := &models.Vendor{Name: code + " Corp", Code: code, Active: true}
	require.NoError(t, gdb.Create(v).Error)
	return v
}

func Customer(t *testing.T, gdb *gorm.DB, code string) *models.Customer {
	t.Helper()
	c := &models.Customer{Name: code + " Customer", Code: code, Active: true}
	require.NoError(t, gdb.Create(c).Error)
	return c
}

func Software(t *testing.T, gdb *gorm.DB, vendorID uuid.UUID, name string) *models.Software {
	t.Helper()
	s := &models.Software{Name: name, VendorID: vendorID, Active: true}
	require.NoError(t, gdb.Create(s).Error)
	return s
}

// Version adds a version; an empty ptf is stored as NULL. A current version
// also becomes the software's current-version pointer.
func Version(t *testing.T, gdb *gorm.DB, softwareID uuid.UUID, version, ptf string, current bool) *models.SoftwareVersion {
	t.Helper()
	v := &models.SoftwareVersion{
		SoftwareID:  softwareID,
		Version:     version,
		ReleaseDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		IsCurrent:   current,
	}
	if ptf != "" {
		v.PtfLevel = Ptr(ptf)
	}
	require.NoError(t, gdb.Create(v).Error)
	if current {
		require.NoError(t, gdb.Model(&models.Software{}).Where("id = ?", softwareID).
			Update("current_version_id", v.ID).Error)
	}
	return v
}

func LPAR(t *testing.T, gdb *gorm.DB, customerID uuid.UUID, code string) *models.LPAR {
	t.Helper()
	l := &models.LPAR{Name: code + " partition", Code: code, CustomerID: customerID, Active: true}
	require.NoError(t, gdb.Create(l).Error)
	return l
}

func Install(t *testing.T, gdb *gorm.DB, lparID, softwareID uuid.UUID, version, ptf string) *models.LparSoftware {
	t.Helper()
	ls := &models.LparSoftware{
		LparID:         lparID,
		SoftwareID:     softwareID,
		CurrentVersion: version,
		InstalledDate:  time.Now().UTC(),
	}
	if ptf != "" {
		ls.CurrentPtfLevel = Ptr(ptf)
	}
	require.NoError(t, gdb.Create(ls).Error)
	return ls
}

// Package creates an active package whose items pin the given versions in order.
func Package(t *testing.T, gdb *gorm.DB, code, version string, pins ...*models.SoftwareVersion) *models.Package {
	t.Helper()
	p := &models.Package{
		Name:        code + " " + version,
		Code:        code,
		Version:     version,
		ReleaseDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Active:      true,
	}
	require.NoError(t, gdb.Create(p).Error)
	for i, sv := range pins {
		item := &models.PackageItem{
			PackageID:         p.ID,
			SoftwareID:        sv.SoftwareID,
			SoftwareVersionID: sv.ID,
			Required:          true,
			OrderIndex:        i + 1,
		}
		require.NoError(t, gdb.Create(item).Error)
		p.Items = append(p.Items, *item)
	}
	return p
}

// AuditCount counts audit entries for one entity and action.
func AuditCount(t *testing.T, gdb *gorm.DB, entityID uuid.UUID, action models.AuditAction) int64 {
	t.Helper()
	var n int64
	require.NoError(t, gdb.Model(&models.AuditLog{}).
		Where("entity_id = ? AND action = ?", entityID, action).Count(&n).Error)
	return n
}
