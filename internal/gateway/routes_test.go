package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"warehouse-system/internal/database/dbtest"
	"warehouse-system/internal/gateway/handlers"
	inventory "warehouse-system/internal/services/inventory/handler"
	users "warehouse-system/internal/services/user/handler"
	"warehouse-system/internal/spreadsheet"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
}

type testServer struct {
	router *gin.Engine
	health *health.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.New(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hs := health.NewServer()
	hs.SetServingStatus(handlers.ServiceInventory, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(handlers.ServiceWatcher, healthpb.HealthCheckResponse_SERVING)

	router, err := NewRouter(Deps{
		Inventory: inventory.NewInventoryHandler(db, rdb),
		Users:     users.NewUserHandler(db, rdb),
		Health:    hs,
		DB:        db,
	})
	require.NoError(t, err)
	return &testServer{router: router, health: hs}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func (s *testServer) login(t *testing.T, email string, role int32) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]interface{}{
		"first_name": "Ana",
		"last_name":  "Horvat",
		"email":      email,
		"password":   "secret123",
		"role_id":    role,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var data struct {
		Token string `json:"token"`
	}
	decode(t, rec, &data)
	require.NotEmpty(t, data.Token)
	return data.Token
}

func TestAuthProtectsRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/products", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	admin := s.login(t, "admin@example.com", 0)
	analyst := s.login(t, "analyst@example.com", 2)

	rec = s.do(t, http.MethodGet, "/api/v1/users", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec, nil)
	assert.JSONEq(t, `{"total":2}`, string(env.Meta))

	rec = s.do(t, http.MethodGet, "/api/v1/users", analyst, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// An analyst may not edit someone else's profile.
	rec = s.do(t, http.MethodPatch, "/api/v1/users/1", analyst, map[string]string{"first_name": "Eve"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "admin@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, decode(t, rec, nil).Success)
}

func TestStockLedgerOverHTTP(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin@example.com", 0)

	var warehouse struct {
		ID int32 `json:"id"`
	}
	rec := s.do(t, http.MethodPost, "/api/v1/warehouses", token, map[string]string{"name": "Main", "location": "Zagreb"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &warehouse)

	rec = s.do(t, http.MethodPost, "/api/v1/warehouses", token, map[string]string{"name": "Other", "location": "Zagreb"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	var product struct {
		ID    int32  `json:"id"`
		Image string `json:"image"`
	}
	rec = s.do(t, http.MethodPost, "/api/v1/products", token, map[string]string{"ean": "5901234123457", "name": "Coffee"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &product)

	var stock struct {
		ID               int32 `json:"id"`
		StockInWarehouse int32 `json:"stock_in_warehouse"`
		WhenToNotify     int32 `json:"when_to_notify"`
	}
	rec = s.do(t, http.MethodPost, "/api/v1/stocks", token, map[string]interface{}{
		"product_id":         product.ID,
		"warehouse_id":       warehouse.ID,
		"stock_in_warehouse": 10,
		"warehouse_capacity": 100,
		"store_capacity":     10,
		"price":              "2.50",
		"currency":           "EUR",
		"storage_cost":       "0.5",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &stock)
	assert.Equal(t, int32(100), stock.WhenToNotify)

	rec = s.do(t, http.MethodPost, "/api/v1/stock-changes", token, map[string]interface{}{
		"product_id":   product.ID,
		"warehouse_id": warehouse.ID,
		"quantity":     -4,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/stock-changes", token, map[string]interface{}{
		"product_id":   product.ID,
		"warehouse_id": warehouse.ID,
		"quantity":     -50,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/stocks/%d", stock.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &stock)
	assert.Equal(t, int32(6), stock.StockInWarehouse)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/stock-changes/warehouse/%d/product/%d", warehouse.ID, product.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":1}`, string(decode(t, rec, nil).Meta))

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/stock-changes/moving-average/%d?warehouse_id=%d", product.ID, warehouse.ID), token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/stock-changes/moving-average/%d?warehouse_id=%d&window=1", product.ID, warehouse.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var avg struct {
		MovingAverage float64 `json:"moving_average"`
	}
	decode(t, rec, &avg)
	assert.InDelta(t, 4.0, avg.MovingAverage, 1e-9)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/warehouses/%d/daily-storage-cost", warehouse.ID), token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/products/abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/products/999", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, decode(t, rec, nil).Message)
}

func upload(t *testing.T, s *testServer, token, table string, workbook []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", table+".xlsx")
	require.NoError(t, err)
	_, err = part.Write(workbook)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/excel/import/"+table, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestExcelImportExport(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin@example.com", 0)

	rec := s.do(t, http.MethodGet, "/api/v1/excel/template/warehouses", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Warehouses_template.xlsx")
	header, rows, err := spreadsheet.Read(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []string{"Id", "Name", "Location"}, header)
	assert.Empty(t, rows)

	workbook, err := spreadsheet.Write("Warehouses", []string{"Name", "Location"}, [][]string{
		{"Main", "Zagreb"},
		{"North", "Varazdin"},
	})
	require.NoError(t, err)

	rec = upload(t, s, token, "Warehouses", workbook)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result inventory.ImportResult
	decode(t, rec, &result)
	assert.Equal(t, 2, result.Inserted)

	rec = s.do(t, http.MethodGet, "/api/v1/excel/export/Warehouses", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	_, rows, err = spreadsheet.Read(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rec = s.do(t, http.MethodGet, "/api/v1/excel/export/Invoices", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload(t, s, token, "Warehouses", []byte("not a workbook"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	analyst := s.login(t, "analyst@example.com", 2)
	rec = upload(t, s, analyst, "Warehouses", workbook)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthReflectsWatcherStatus(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	s.health.SetServingStatus(handlers.ServiceWatcher, healthpb.HealthCheckResponse_NOT_SERVING)
	rec = s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	var body struct {
		Status      string   `json:"status"`
		Unavailable []string `json:"unavailable_services"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, []string{handlers.ServiceWatcher}, body.Unavailable)

	rec = s.do(t, http.MethodGet, "/health/detailed", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detailed struct {
		Overall  string                       `json:"overall_status"`
		Services map[string]map[string]string `json:"services"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detailed))
	assert.Equal(t, "degraded", detailed.Overall)
	assert.Equal(t, "healthy", detailed.Services["database"]["status"])
	assert.Equal(t, "NOT_SERVING", detailed.Services[handlers.ServiceWatcher]["status"])
}

func TestNewRouterRequiresDependencies(t *testing.T) {
	_, err := NewRouter(Deps{})
	assert.Error(t, err)
}
