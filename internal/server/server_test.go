package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/payqr/internal/cache"
	"github.com/smallbiznis/payqr/internal/clock"
	"github.com/smallbiznis/payqr/internal/config"
	orderdomain "github.com/smallbiznis/payqr/internal/order/domain"
	"github.com/smallbiznis/payqr/internal/order/repository"
	orderservice "github.com/smallbiznis/payqr/internal/order/service"
	"github.com/smallbiznis/payqr/internal/passbook/sourcetest"
	"github.com/smallbiznis/payqr/internal/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testServer struct {
	engine *gin.Engine
	orders orderdomain.Service
	source *sourcetest.FakeSource
	clock  *clock.FakeClock
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&orderdomain.Order{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	orders := orderservice.NewService(orderservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  repository.Provide(),
	})

	source := sourcetest.New()
	verifier, err := verification.New(verification.Params{
		Log:      zap.NewNop(),
		OrderSvc: orders,
		Source:   source,
		Claims:   cache.NewMemory(),
		Clock:    fake,
	})
	require.NoError(t, err)
	t.Cleanup(verifier.StopTimers)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	srv := NewServer(Params{
		Log:      zap.NewNop(),
		Cfg:      config.Config{},
		Engine:   engine,
		Clock:    fake,
		OrderSvc: orders,
		Source:   source,
		Verifier: verifier,
	})
	srv.RegisterRoutes()

	return &testServer{engine: engine, orders: orders, source: source, clock: fake}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCreateOrderEndpoint(t *testing.T) {
	ts := setupServer(t)

	w := ts.do(t, http.MethodPost, "/api/orders", gin.H{"amount": 250.0, "note": "table 4"})
	require.Equal(t, http.StatusCreated, w.Code)

	body := decode(t, w)
	assert.Contains(t, body["order_id"], "ORD_")
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, 250.0, body["amount"])
}

func TestCreateOrderEndpointValidation(t *testing.T) {
	ts := setupServer(t)

	w := ts.do(t, http.MethodPost, "/api/orders", gin.H{"amount": -5})
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decode(t, w)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "validation_error", errObj["type"])
}

func TestListOrdersEmpty(t *testing.T) {
	ts := setupServer(t)

	w := ts.do(t, http.MethodGet, "/api/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	orders, ok := body["orders"].([]any)
	require.True(t, ok, "orders must be a JSON array, got %T", body["orders"])
	assert.Empty(t, orders)
}

func TestCheckStatusUnknownOrder(t *testing.T) {
	ts := setupServer(t)

	w := ts.do(t, http.MethodGet, "/api/orders/ORD_missing/status", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	body := decode(t, w)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "not_found", errObj["type"])
}

func TestMarkPaidEndpoint(t *testing.T) {
	ts := setupServer(t)

	created := decode(t, ts.do(t, http.MethodPost, "/api/orders", gin.H{"amount": 100.0}))
	id := created["order_id"].(string)

	w := ts.do(t, http.MethodPost, "/api/orders/"+id+"/mark-paid", gin.H{"utr": "123456789012"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "verifying", body["status"])

	// Without a body the endpoint still works.
	w = ts.do(t, http.MethodPost, "/api/orders/"+id+"/mark-paid", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAdminOverrideEndpoint(t *testing.T) {
	ts := setupServer(t)

	created := decode(t, ts.do(t, http.MethodPost, "/api/orders", gin.H{"amount": 100.0}))
	id := created["order_id"].(string)

	w := ts.do(t, http.MethodPost, "/api/orders/"+id+"/override", gin.H{"status": "confirmed"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "confirmed", body["status"])
	assert.Equal(t, "manual-admin", body["confirmed_by"])

	// A second override against the now-terminal order conflicts.
	w = ts.do(t, http.MethodPost, "/api/orders/"+id+"/override", gin.H{"status": "rejected"})
	require.Equal(t, http.StatusConflict, w.Code)
	errObj := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "conflict", errObj["type"])
}

func TestDeleteOrderEndpoint(t *testing.T) {
	ts := setupServer(t)

	created := decode(t, ts.do(t, http.MethodPost, "/api/orders", gin.H{"amount": 10.0}))
	id := created["order_id"].(string)

	w := ts.do(t, http.MethodDelete, "/api/orders/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodDelete, "/api/orders/"+id, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteAllOrdersEndpoint(t *testing.T) {
	ts := setupServer(t)

	ts.do(t, http.MethodPost, "/api/orders", gin.H{"amount": 10.0})
	ts.do(t, http.MethodPost, "/api/orders", gin.H{"amount": 20.0})

	w := ts.do(t, http.MethodDelete, "/api/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, ts.do(t, http.MethodGet, "/api/orders", nil))
	assert.Empty(t, body["orders"])
}

func TestWebhookCreditEndpoint(t *testing.T) {
	ts := setupServer(t)

	created := decode(t, ts.do(t, http.MethodPost, "/api/orders", gin.H{"amount": 250.0}))
	id := created["order_id"].(string)
	ts.do(t, http.MethodPost, "/api/orders/"+id+"/mark-paid", nil)

	w := ts.do(t, http.MethodPost, "/api/webhook/credit", gin.H{
		"amount":   250.0,
		"raw_text": "CREDIT INR 250.00",
	})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["matched"])

	status := decode(t, ts.do(t, http.MethodGet, "/api/orders/"+id+"/status", nil))
	assert.Equal(t, "confirmed", status["status"])
	assert.Equal(t, "webhook-match", status["confirmed_by"])
}

func TestWebhookCreditEndpointValidation(t *testing.T) {
	ts := setupServer(t)

	w := ts.do(t, http.MethodPost, "/api/webhook/credit", gin.H{"amount": 0})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPassbookStatusEndpoint(t *testing.T) {
	ts := setupServer(t)
	ts.source.SetConnected(false)

	w := ts.do(t, http.MethodGet, "/api/passbook/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["connected"])
	assert.Equal(t, false, body["poll_suspended"])
}

func TestCheckNowEndpoint(t *testing.T) {
	ts := setupServer(t)

	created := decode(t, ts.do(t, http.MethodPost, "/api/orders", gin.H{"amount": 75.0}))
	id := created["order_id"].(string)
	ts.do(t, http.MethodPost, "/api/orders/"+id+"/mark-paid", nil)

	w := ts.do(t, http.MethodPost, "/api/passbook/check-now", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, 0.0, body["matches"])
	assert.Equal(t, 0.0, body["total_events"])
}
