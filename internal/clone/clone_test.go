package clone

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lpar_inventory/internal/apperr"
	"lpar_inventory/internal/models"
	"lpar_inventory/internal/testutil"
)

type world struct {
	db     *gorm.DB
	svc    *Service
	vendor *models.Vendor
	cust   *models.Customer
	cics   *models.Software
	db2    *models.Software
	pkg    *models.Package
	lpar   *models.LPAR
}

func newWorld(t *testing.T) world {
	gdb := testutil.NewDB(t)
	vendor := testutil.Vendor(t, gdb, "IBM")
	cics := testutil.Software(t, gdb, vendor.ID, "CICS")
	db2 := testutil.Software(t, gdb, vendor.ID, "DB2")
	testutil.Version(t, gdb, cics.ID, "V5R5M0", "", false)
	cicsV := testutil.Version(t, gdb, cics.ID, "V5R6M0", "PTF12345", true)
	db2V := testutil.Version(t, gdb, db2.ID, "V13R1M0", "PTF54321", true)
	pkg := testutil.Package(t, gdb, "Q1-2025", "1.0.0", cicsV, db2V)
	cust := testutil.Customer(t, gdb, "ACME")
	lpar := testutil.LPAR(t, gdb, cust.ID, "PROD1")
	return world{db: gdb, svc: NewService(gdb, zap.NewNop()), vendor: vendor, cust: cust, cics: cics, db2: db2, pkg: pkg, lpar: lpar}
}

func countWhere(t *testing.T, gdb *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, gdb.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func TestClonePackage(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	cloned, err := w.svc.ClonePackage(ctx, w.pkg.ID, PackageRequest{Name: "Q2 bundle", Code: "Q2-2025", Version: "1.0.0"})
	require.NoError(t, err)
	assert.NotEqual(t, w.pkg.ID, cloned.ID)
	require.Len(t, cloned.Items, 2)

	var src, dst []models.PackageItem
	require.NoError(t, w.db.Where("package_id = ?", w.pkg.ID).Order("order_index").Find(&src).Error)
	require.NoError(t, w.db.Where("package_id = ?", cloned.ID).Order("order_index").Find(&dst).Error)
	require.Len(t, src, 2)
	require.Len(t, dst, 2)
	for i := range src {
		assert.NotEqual(t, src[i].ID, dst[i].ID)
		assert.Equal(t, src[i].SoftwareID, dst[i].SoftwareID)
		assert.Equal(t, src[i].SoftwareVersionID, dst[i].SoftwareVersionID)
		assert.Equal(t, src[i].OrderIndex, dst[i].OrderIndex)
		assert.Equal(t, src[i].Required, dst[i].Required)
	}
	assert.Contains(t, cloned.Description, "Cloned from: Q1-2025 1.0.0 (Q1-2025 1.0.0)")
	assert.EqualValues(t, 1, testutil.AuditCount(t, w.db, cloned.ID, models.ActionClone))
}

func TestClonePackage_DuplicateLeavesNoRows(t *testing.T) {
	w := newWorld(t)
	before := countWhere(t, w.db, &models.PackageItem{}, "1 = 1")

	_, err := w.svc.ClonePackage(context.Background(), w.pkg.ID, PackageRequest{Name: "Again", Code: "Q1-2025", Version: "1.0.0"})
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindDuplicate, ae.Kind)
	assert.Equal(t, "version", ae.Field)

	_, err = w.svc.ClonePackage(context.Background(), w.pkg.ID, PackageRequest{Name: "Padded", Code: "Q1-2025", Version: " 1.0.0 "})
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindDuplicate, ae.Kind)
	assert.Equal(t, "version", ae.Field, "version is trimmed before the clash check")

	assert.Equal(t, before, countWhere(t, w.db, &models.PackageItem{}, "1 = 1"))
	assert.EqualValues(t, 1, countWhere(t, w.db, &models.Package{}, "1 = 1"))
	assert.Zero(t, countWhere(t, w.db, &models.AuditLog{}, "action = ?", models.ActionClone))

	_, err = w.svc.ClonePackage(context.Background(), uuid.New(), PackageRequest{Name: "Nope", Code: "NOPE", Version: "1"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCloneSoftware(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	bare, err := w.svc.CloneSoftware(ctx, w.cics.ID, SoftwareRequest{Name: "CICS TS copy"})
	require.NoError(t, err)
	assert.Zero(t, countWhere(t, w.db, &models.SoftwareVersion{}, "software_id = ?", bare.ID))
	assert.Nil(t, bare.CurrentVersionID)
	assert.Equal(t, w.vendor.ID, bare.VendorID)

	full, err := w.svc.CloneSoftware(ctx, w.cics.ID, SoftwareRequest{Name: "CICS TS full", CloneVersions: true})
	require.NoError(t, err)
	require.Len(t, full.Versions, 2)
	require.NotNil(t, full.CurrentVersionID)

	var current models.SoftwareVersion
	require.NoError(t, w.db.Where("id = ?", *full.CurrentVersionID).First(&current).Error)
	assert.Equal(t, full.ID, current.SoftwareID)
	assert.Equal(t, "V5R6M0", current.Version)
	assert.True(t, current.IsCurrent)

	var stored models.Software
	require.NoError(t, w.db.Where("id = ?", full.ID).First(&stored).Error)
	assert.Equal(t, current.ID, *stored.CurrentVersionID)
	assert.EqualValues(t, 2, countWhere(t, w.db, &models.SoftwareVersion{}, "software_id = ?", w.cics.ID), "source untouched")
}

func TestCloneLPAR_ResetsRollbackAndOverridesCustomer(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	inst := testutil.Install(t, w.db, w.lpar.ID, w.cics.ID, "V5R5M0", "")
	require.NoError(t, w.db.Model(inst).Updates(map[string]interface{}{
		"previous_version": "V5R6M0", "rolled_back": true, "rollback_reason": "regression in region",
	}).Error)
	other := testutil.Customer(t, w.db, "GLOBEX")

	cloned, err := w.svc.CloneLPAR(ctx, w.lpar.ID, LPARRequest{Name: "DR copy", Code: "DR1", CustomerID: &other.ID})
	require.NoError(t, err)
	assert.Equal(t, other.ID, cloned.CustomerID)

	var installs []models.LparSoftware
	require.NoError(t, w.db.Where("lpar_id = ?", cloned.ID).Find(&installs).Error)
	require.Len(t, installs, 1)
	assert.NotEqual(t, inst.ID, installs[0].ID)
	assert.Equal(t, "V5R5M0", installs[0].CurrentVersion)
	assert.Equal(t, "V5R6M0", *installs[0].PreviousVersion)
	assert.False(t, installs[0].RolledBack)
	assert.Nil(t, installs[0].RollbackReason)

	_, err = w.svc.CloneLPAR(ctx, w.lpar.ID, LPARRequest{Name: "Clash", Code: "PROD1"})
	assert.True(t, apperr.Is(err, apperr.KindDuplicate))

	missing := uuid.New()
	_, err = w.svc.CloneLPAR(ctx, w.lpar.ID, LPARRequest{Name: "Lost", Code: "LOST", CustomerID: &missing})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCloneCustomerAndVendor(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	c, err := w.svc.CloneCustomer(ctx, w.cust.ID, IdentityRequest{Name: "Acme East", Code: "ACME-E"})
	require.NoError(t, err)
	assert.Zero(t, countWhere(t, w.db, &models.LPAR{}, "customer_id = ?", c.ID))
	assert.EqualValues(t, 1, testutil.AuditCount(t, w.db, c.ID, models.ActionClone))

	_, err = w.svc.CloneCustomer(ctx, w.cust.ID, IdentityRequest{Name: "Acme", Code: "ACME"})
	assert.True(t, apperr.Is(err, apperr.KindDuplicate))

	v, err := w.svc.CloneVendor(ctx, w.vendor.ID, IdentityRequest{Name: "IBM Labs", Code: "IBM-LABS"})
	require.NoError(t, err)
	assert.Equal(t, w.vendor.Website, v.Website)

	_, err = w.svc.CloneVendor(ctx, w.vendor.ID, IdentityRequest{Name: "IBM Labs", Code: "ibm labs"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestPreview(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	sum, err := w.svc.Preview(ctx, models.EntityPackage, w.pkg.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, sum.Children)
	assert.Equal(t, "Q1-2025", sum.Code)

	sum, err = w.svc.Preview(ctx, models.EntitySoftware, w.cics.ID)
	require.NoError(t, err)
	assert.Equal(t, "IBM Corp", sum.Parent)
	assert.Equal(t, "V5R6M0", sum.Version)
	assert.EqualValues(t, 2, sum.Children)

	sum, err = w.svc.Preview(ctx, models.EntityCustomer, w.cust.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, sum.Children)

	_, err = w.svc.Preview(ctx, "widget", w.cust.ID)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = w.svc.Preview(ctx, models.EntityLPAR, uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
