package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lpar_inventory/internal/auth"
	"lpar_inventory/internal/metrics"
	"lpar_inventory/internal/models"
	dbtest "lpar_inventory/internal/testutil"
)

const testSecret = "router-test-secret"

type harness struct {
	db *gorm.DB
	m  *metrics.Metrics
	r  *gin.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gdb := dbtest.NewDB(t)
	m := metrics.New("lpar_router_test")
	return &harness{db: gdb, m: m, r: NewRouter(gdb, zap.NewNop(), m, testSecret)}
}

func (h *harness) do(t *testing.T, method, path string, body interface{}, header ...string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.r.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	w, body := h.do(t, http.MethodGet, "/health?check=db", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["db_status"])
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w, _ = h.do(t, http.MethodGet, "/health", nil, RequestIDHeader, "req-123")
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
}

func TestErrorTaxonomyStatusCodes(t *testing.T) {
	h := newHarness(t)

	w, body := h.do(t, http.MethodPost, "/api/v1/vendors", gin.H{"name": "IBM Corp", "code": "IBM"})
	require.Equal(t, http.StatusCreated, w.Code)
	vendor := body["vendor"].(map[string]interface{})
	assert.Equal(t, "IBM", vendor["code"])

	w, body = h.do(t, http.MethodPost, "/api/v1/vendors", gin.H{"name": "Another", "code": "IBM"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE", body["code"])
	assert.Equal(t, "code", body["field"])

	w, body = h.do(t, http.MethodPost, "/api/v1/vendors", gin.H{"name": "Lower", "code": "lower"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "VALIDATION", body["code"])
	assert.Equal(t, "code", body["field"])

	w, _ = h.do(t, http.MethodPost, "/api/v1/vendors", gin.H{"code": "NONAME"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = h.do(t, http.MethodGet, "/api/v1/vendors/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = h.do(t, http.MethodGet, "/api/v1/vendors/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestListVendors_EmptyIsArray(t *testing.T) {
	h := newHarness(t)
	w, body := h.do(t, http.MethodGet, "/api/v1/vendors?active=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, body["vendors"])
}

func TestDeployAndRollbackOverHTTP(t *testing.T) {
	h := newHarness(t)
	vendor := dbtest.Vendor(t, h.db, "IBM")
	cics := dbtest.Software(t, h.db, vendor.ID, "CICS")
	older := dbtest.Version(t, h.db, cics.ID, "V5R5M0", "PTF11111", false)
	current := dbtest.Version(t, h.db, cics.ID, "V5R6M0", "PTF12345", true)
	pkg := dbtest.Package(t, h.db, "Q1-2025", "1.0.0", current)
	cust := dbtest.Customer(t, h.db, "ACME")
	lpar := dbtest.LPAR(t, h.db, cust.ID, "PROD1")
	dbtest.Install(t, h.db, lpar.ID, cics.ID, "V5R5M0", "PTF11111")

	w, body := h.do(t, http.MethodGet, "/api/v1/lpars/"+lpar.ID.String()+"/preview?package_id="+pkg.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	impacts := body["impacts"].([]interface{})
	require.Len(t, impacts, 1)
	assert.Equal(t, "upgrade", impacts[0].(map[string]interface{})["change_type"])

	w, _ = h.do(t, http.MethodGet, "/api/v1/lpars/"+lpar.ID.String()+"/preview", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = h.do(t, http.MethodPost, "/api/v1/packages/"+pkg.ID.String()+"/deploy",
		gin.H{"lpar_ids": []string{lpar.ID.String()}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.DeploymentsTotal.WithLabelValues("success")))

	w, body = h.do(t, http.MethodGet, "/api/v1/lpars/"+lpar.ID.String()+"/compliance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["compliant"])

	token, err := auth.Sign(testSecret, "operator-7", "op@example.com", time.Hour)
	require.NoError(t, err)
	w, body = h.do(t, http.MethodPost, "/api/v1/lpars/"+lpar.ID.String()+"/rollback", gin.H{
		"software_id":       cics.ID.String(),
		"target_version_id": older.ID.String(),
		"reason":            "regression in transaction routing",
	}, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.RollbacksTotal.WithLabelValues("success")))

	var entry models.AuditLog
	require.NoError(t, h.db.Where("action = ?", models.ActionRollback).First(&entry).Error)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "operator-7", *entry.UserID)

	w, body = h.do(t, http.MethodPost, "/api/v1/lpars/"+lpar.ID.String()+"/rollback", gin.H{
		"software_id":       cics.ID.String(),
		"target_version_id": older.ID.String(),
		"reason":            "short",
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "reason", body["field"])
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.RollbacksTotal.WithLabelValues("validation")))
}

func TestInvalidTokenIsRejected(t *testing.T) {
	h := newHarness(t)
	w, _ := h.do(t, http.MethodGet, "/api/v1/dashboard", nil, "Authorization", "Bearer nonsense")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body := h.do(t, http.MethodGet, "/api/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body, "counts")
}

func TestMe(t *testing.T) {
	h := newHarness(t)
	w, body := h.do(t, http.MethodGet, "/api/v1/me", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["system"])

	token, err := auth.Sign(testSecret, "operator-7", "op@example.com", time.Hour)
	require.NoError(t, err)
	w, body = h.do(t, http.MethodGet, "/api/v1/me", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "operator-7", body["user_id"])
	assert.Equal(t, false, body["system"])
}

func TestLifecycleAndCloneRoutes(t *testing.T) {
	h := newHarness(t)
	cust := dbtest.Customer(t, h.db, "ACME")
	dbtest.LPAR(t, h.db, cust.ID, "PROD1")
	base := "/api/v1/customers/" + cust.ID.String()

	w, body := h.do(t, http.MethodGet, base+"/clone-preview", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, body["children"])

	w, _ = h.do(t, http.MethodPost, base+"/clone", gin.H{"name": "ACME Copy", "code": "ACME2"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.ClonesTotal.WithLabelValues("customer", "success")))

	w, body = h.do(t, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "active", body["field"])

	w, body = h.do(t, http.MethodPost, base+"/deactivate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "inactive", body["state"])
	assert.Equal(t, 1.0, body["cascaded"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodGet, "/health", nil)

	w, _ := h.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `lpar_router_test_http_requests_total{method="GET",path="/health",status="200"} 1`)
}

func TestUpdateRoutes(t *testing.T) {
	h := newHarness(t)
	ibm := dbtest.Vendor(t, h.db, "IBM")
	dbtest.Vendor(t, h.db, "BMC")
	cust := dbtest.Customer(t, h.db, "ACME")
	dbtest.LPAR(t, h.db, cust.ID, "PROD1")

	w, body := h.do(t, http.MethodPut, "/api/v1/vendors/"+ibm.ID.String(), gin.H{"name": "IBM Corporation", "code": "IBM"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "IBM Corporation", body["vendor"].(map[string]interface{})["name"])

	w, body = h.do(t, http.MethodPut, "/api/v1/vendors/"+ibm.ID.String(), gin.H{"name": "IBM Corporation", "code": "BMC"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "code", body["field"])

	w, _ = h.do(t, http.MethodPut, "/api/v1/customers/"+cust.ID.String(), gin.H{"name": "Acme", "code": "ACME", "active": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var active int64
	require.NoError(t, h.db.Model(&models.LPAR{}).Where("customer_id = ? AND active = ?", cust.ID, true).Count(&active).Error)
	assert.Zero(t, active)
}
