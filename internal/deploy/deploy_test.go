package deploy

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lpar_inventory/internal/apperr"
	"lpar_inventory/internal/models"
	"lpar_inventory/internal/testutil"
	"lpar_inventory/internal/versioncmp"
)

func pin(softwareID uuid.UUID, version string) models.PackageItem {
	return models.PackageItem{
		SoftwareID:      softwareID,
		SoftwareVersion: &models.SoftwareVersion{SoftwareID: softwareID, Version: version},
		Required:        true,
	}
}

func inst(softwareID uuid.UUID, version string) models.LparSoftware {
	return models.LparSoftware{SoftwareID: softwareID, CurrentVersion: version}
}

func TestPlanDeployment_UpgradeAndInstall(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	plan := PlanDeployment(
		[]models.LparSoftware{inst(a, "v1")},
		[]models.PackageItem{pin(a, "v2"), pin(b, "v1")},
	)

	require.Len(t, plan.ToUpgrade, 1)
	assert.Equal(t, a, plan.ToUpgrade[0].Item.SoftwareID)
	assert.Equal(t, versioncmp.Designation{Version: "v1"}, plan.ToUpgrade[0].Current)
	require.Len(t, plan.ToInstall, 1)
	assert.Equal(t, b, plan.ToInstall[0].SoftwareID)
	assert.Empty(t, plan.ToRemove)
	assert.Empty(t, plan.Unchanged)
}

func TestPlanDeployment_UnchangedAndRemove(t *testing.T) {
	a, c := uuid.New(), uuid.New()

	plan := PlanDeployment(
		[]models.LparSoftware{inst(a, "v1"), inst(c, "v1")},
		[]models.PackageItem{pin(a, "v1")},
	)

	require.Len(t, plan.Unchanged, 1)
	assert.Equal(t, a, plan.Unchanged[0].SoftwareID)
	require.Len(t, plan.ToRemove, 1)
	assert.Equal(t, c, plan.ToRemove[0].SoftwareID)
	assert.Empty(t, plan.ToInstall)
	assert.Empty(t, plan.ToUpgrade)
}

func TestPlanDeployment_NewerInstalledIsUnchanged(t *testing.T) {
	a := uuid.New()
	plan := PlanDeployment([]models.LparSoftware{inst(a, "V6R1M0")}, []models.PackageItem{pin(a, "V5R9M0")})
	assert.Len(t, plan.Unchanged, 1)
	assert.Empty(t, plan.ToUpgrade)
}

func TestPlanDeployment_NothingInstalled(t *testing.T) {
	plan := PlanDeployment(nil, []models.PackageItem{pin(uuid.New(), "1.0")})
	assert.Len(t, plan.ToInstall, 1)
	assert.Empty(t, plan.ToRemove)
}

func TestImpactOf(t *testing.T) {
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	impacts := ImpactOf(
		[]models.LparSoftware{inst(a, "V5R5M0"), inst(b, "V6R1M0"), inst(c, "2.4.0")},
		[]models.PackageItem{pin(a, "V5R6M0"), pin(b, "V5R9M0"), pin(c, "2.4.0"), pin(d, "1.0")},
	)
	require.Len(t, impacts, 4)
	assert.Equal(t, ChangeUpgrade, impacts[0].Change)
	assert.Equal(t, ChangeDowngrade, impacts[1].Change)
	assert.Equal(t, ChangeNone, impacts[2].Change)
	assert.Equal(t, ChangeInstall, impacts[3].Change)
	assert.Nil(t, impacts[3].CurrentVersion)
}

type scenario struct {
	db       *gorm.DB
	svc      *Service
	cics     *models.Software
	db2      *models.Software
	pkg      *models.Package
	customer *models.Customer
	lpar     *models.LPAR
}

func newScenario(t *testing.T) scenario {
	gdb := testutil.NewDB(t)
	vendor := testutil.Vendor(t, gdb, "IBM")
	cics := testutil.Software(t, gdb, vendor.ID, "CICS")
	db2 := testutil.Software(t, gdb, vendor.ID, "DB2")
	cicsV := testutil.Version(t, gdb, cics.ID, "V5R6M0", "PTF12345", true)
	db2V := testutil.Version(t, gdb, db2.ID, "V13R1M0", "PTF54321", true)
	pkg := testutil.Package(t, gdb, "Q1-2025", "1.0.0", cicsV, db2V)
	cust := testutil.Customer(t, gdb, "ACME")
	lpar := testutil.LPAR(t, gdb, cust.ID, "PROD1")
	testutil.Install(t, gdb, lpar.ID, cics.ID, "V5R5M0", "PTF11111")

	return scenario{
		db: gdb, svc: NewService(gdb, zap.NewNop()),
		cics: cics, db2: db2, pkg: pkg, customer: cust, lpar: lpar,
	}
}

func TestApply_EndToEnd(t *testing.T) {
	s := newScenario(t)
	ctx := context.Background()

	plan, err := s.svc.PlanFor(ctx, s.lpar.ID, s.pkg.ID)
	require.NoError(t, err)
	require.Len(t, plan.ToUpgrade, 1)
	assert.Equal(t, s.cics.ID, plan.ToUpgrade[0].Item.SoftwareID)
	require.Len(t, plan.ToInstall, 1)
	assert.Equal(t, s.db2.ID, plan.ToInstall[0].SoftwareID)

	report, err := s.svc.Apply(ctx, []uuid.UUID{s.lpar.ID}, s.pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Items)
	require.Len(t, report.LPARs, 1)
	assert.Equal(t, 1, report.LPARs[0].Installed)
	assert.Equal(t, 1, report.LPARs[0].Updated)

	var cicsInst models.LparSoftware
	require.NoError(t, s.db.Where("lpar_id = ? AND software_id = ?", s.lpar.ID, s.cics.ID).First(&cicsInst).Error)
	assert.Equal(t, "V5R6M0", cicsInst.CurrentVersion)
	assert.Equal(t, "PTF12345", *cicsInst.CurrentPtfLevel)
	require.NotNil(t, cicsInst.PreviousVersion)
	assert.Equal(t, "V5R5M0", *cicsInst.PreviousVersion)
	assert.Equal(t, "PTF11111", *cicsInst.PreviousPtfLevel)
	assert.False(t, cicsInst.RolledBack)

	var db2Inst models.LparSoftware
	require.NoError(t, s.db.Where("lpar_id = ? AND software_id = ?", s.lpar.ID, s.db2.ID).First(&db2Inst).Error)
	assert.Equal(t, "V13R1M0", db2Inst.CurrentVersion)
	assert.Equal(t, "PTF54321", *db2Inst.CurrentPtfLevel)
	assert.Nil(t, db2Inst.PreviousVersion)

	var lpar models.LPAR
	require.NoError(t, s.db.Where("id = ?", s.lpar.ID).First(&lpar).Error)
	require.NotNil(t, lpar.CurrentPackageID)
	assert.Equal(t, s.pkg.ID, *lpar.CurrentPackageID)

	assert.EqualValues(t, 1, testutil.AuditCount(t, s.db, s.lpar.ID, models.ActionDeploy))
}

func TestApply_ClearsRollbackState(t *testing.T) {
	s := newScenario(t)
	require.NoError(t, s.db.Model(&models.LparSoftware{}).
		Where("lpar_id = ? AND software_id = ?", s.lpar.ID, s.cics.ID).
		Updates(map[string]interface{}{"rolled_back": true, "rollback_reason": "bad ptf in prod"}).Error)

	_, err := s.svc.Apply(context.Background(), []uuid.UUID{s.lpar.ID, s.lpar.ID}, s.pkg.ID)
	require.NoError(t, err)

	var got models.LparSoftware
	require.NoError(t, s.db.Where("lpar_id = ? AND software_id = ?", s.lpar.ID, s.cics.ID).First(&got).Error)
	assert.False(t, got.RolledBack)
	assert.Nil(t, got.RollbackReason)
	assert.Nil(t, got.RolledBackAt)
}

func TestApply_IsAllOrNothing(t *testing.T) {
	s := newScenario(t)
	other := testutil.LPAR(t, s.db, s.customer.ID, "PROD2")

	require.NoError(t, s.db.Callback().Create().Before("gorm:create").Register("test:fail_audit", func(tx *gorm.DB) {
		if tx.Statement.Table == "audit_log" {
			tx.AddError(errors.New("audit sink unavailable"))
		}
	}))

	_, err := s.svc.Apply(context.Background(), []uuid.UUID{s.lpar.ID, other.ID}, s.pkg.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit sink unavailable")

	var n int64
	require.NoError(t, s.db.Model(&models.LparSoftware{}).Count(&n).Error)
	assert.EqualValues(t, 1, n, "no installation rows created")

	var cics models.LparSoftware
	require.NoError(t, s.db.Where("lpar_id = ? AND software_id = ?", s.lpar.ID, s.cics.ID).First(&cics).Error)
	assert.Equal(t, "V5R5M0", cics.CurrentVersion)
	assert.Nil(t, cics.PreviousVersion)

	var assigned int64
	require.NoError(t, s.db.Model(&models.LPAR{}).Where("current_package_id IS NOT NULL").Count(&assigned).Error)
	assert.Zero(t, assigned)
}

func TestApply_Validation(t *testing.T) {
	s := newScenario(t)
	ctx := context.Background()

	_, err := s.svc.Apply(ctx, nil, s.pkg.ID)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = s.svc.Apply(ctx, []uuid.UUID{s.lpar.ID}, uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = s.svc.Apply(ctx, []uuid.UUID{s.lpar.ID, uuid.New()}, s.pkg.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.EqualValues(t, 0, testutil.AuditCount(t, s.db, s.lpar.ID, models.ActionDeploy))
}

func TestPreviewAndStatus(t *testing.T) {
	s := newScenario(t)
	ctx := context.Background()

	impacts, err := s.svc.Preview(ctx, s.lpar.ID, s.pkg.ID)
	require.NoError(t, err)
	require.Len(t, impacts, 2)
	assert.Equal(t, "CICS", impacts[0].SoftwareName)
	assert.Equal(t, ChangeUpgrade, impacts[0].Change)
	assert.Equal(t, ChangeInstall, impacts[1].Change)

	_, err = s.svc.Preview(ctx, uuid.New(), s.pkg.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	statuses, err := s.svc.Status(ctx, s.pkg.ID)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "needs_update", statuses[0].Status)
	assert.Equal(t, 1, statuses[0].ChangesNeeded)
	assert.Equal(t, 1, statuses[0].NewInstalls)
	assert.Equal(t, 50, statuses[0].Score)
	assert.Equal(t, "ACME Customer", statuses[0].CustomerName)

	_, err = s.svc.Apply(ctx, []uuid.UUID{s.lpar.ID}, s.pkg.ID)
	require.NoError(t, err)
	statuses, err = s.svc.Status(ctx, s.pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, "compliant", statuses[0].Status)
	assert.Zero(t, statuses[0].ChangesNeeded+statuses[0].NewInstalls)
}

func TestStatus_OrderedByCustomerThenName(t *testing.T) {
	s := newScenario(t)
	zeta := testutil.Customer(t, s.db, "ZETA")
	alpha := testutil.Customer(t, s.db, "ALPHA")
	testutil.LPAR(t, s.db, zeta.ID, "AAA1")
	testutil.LPAR(t, s.db, alpha.ID, "ZZZ2")
	testutil.LPAR(t, s.db, alpha.ID, "ZZZ1")

	statuses, err := s.svc.Status(context.Background(), s.pkg.ID)
	require.NoError(t, err)
	var codes []string
	for _, st := range statuses {
		codes = append(codes, st.LparCode)
	}
	// "ACME Customer" < "ALPHA Customer" < "ZETA Customer"
	assert.Equal(t, []string{s.lpar.Code, "ZZZ1", "ZZZ2", "AAA1"}, codes)
}
