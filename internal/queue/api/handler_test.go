package api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"fortune-queue/internal/config"
	"fortune-queue/internal/logger"
	"fortune-queue/internal/models"
	"fortune-queue/internal/queue"
	"fortune-queue/internal/queue/api"
	"fortune-queue/internal/queue/db"
)

type noopNotifier struct{}

func (noopNotifier) SendReadingCompleted(ctx context.Context, order models.Order) error {
	return nil
}

func setupTestRouter(t *testing.T) (*chi.Mux, *queue.QueueService, *db.DB) {
	t.Helper()

	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// One connection: in-memory sqlite is per-connection.
	sqldb.SetMaxOpenConns(1)
	t.Cleanup(func() { sqldb.Close() })

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	_, err = bunDB.NewCreateTable().Model((*models.Order)(nil)).Exec(context.Background())
	require.NoError(t, err)

	dbLayer := &db.DB{Bun: bunDB}
	cfg := config.QueueConfig{DailyLimit: 10, ServiceTimeMinutes: 30, InProgressLimit: 1}
	svc := queue.NewQueueService(dbLayer, nil, noopNotifier{}, nil, cfg, logger.NewTestLogger())

	handler := &api.Handler{QueueService: svc, Logger: logger.NewTestLogger()}

	r := chi.NewRouter()
	r.Post("/api/v1/orders", handler.CreateOrder)
	r.Get("/api/v1/queue/stats", handler.GetQueueStats)
	r.Get("/api/v1/queue/position/{orderId}", handler.GetQueuePosition)
	r.Post("/api/v1/payments/webhook", handler.PaymentWebhook)
	r.Get("/api/v1/admin/queue", handler.ListQueue)
	r.Post("/api/v1/admin/queue/next", handler.ProcessNext)
	r.Post("/api/v1/admin/orders/{orderId}/complete", handler.CompleteOrder)
	r.Post("/api/v1/admin/orders/{orderId}/cancel", handler.CancelOrder)

	return r, svc, dbLayer
}

func seedOrder(t *testing.T, dbLayer *db.DB, status string, createdAt time.Time) models.Order {
	t.Helper()
	order := models.Order{
		OrderID:       uuid.NewString(),
		CustomerName:  "Zeynep Arslan",
		CustomerEmail: "zeynep@example.com",
		Status:        status,
		CreatedAt:     createdAt,
	}
	require.NoError(t, dbLayer.CreateOrder(context.Background(), order))
	return order
}

func TestCreateOrderEndpoint(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	body := bytes.NewBufferString(`{"customer_name":"Zeynep Arslan","customer_email":"zeynep@example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			OrderID string `json:"order_id"`
			Status  string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Data.OrderID)
	assert.Equal(t, models.StatusPendingPayment, resp.Data.Status)

	// Missing fields are rejected.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString(`{}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueueStatsEndpoint(t *testing.T) {
	router, svc, dbLayer := setupTestRouter(t)

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return now }
	seedOrder(t, dbLayer, models.StatusQueued, now.Add(-time.Hour))
	seedOrder(t, dbLayer, models.StatusInProgress, now.Add(-2*time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/queue/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.QueueStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.TotalInQueue)
	assert.Equal(t, 60, stats.EstimatedWaitTime)
	assert.True(t, stats.CanAcceptNewOrders)
}

func TestQueuePositionEndpoint(t *testing.T) {
	router, _, dbLayer := setupTestRouter(t)

	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	seedOrder(t, dbLayer, models.StatusQueued, base)
	second := seedOrder(t, dbLayer, models.StatusQueued, base.Add(time.Minute))
	done := seedOrder(t, dbLayer, models.StatusCompleted, base.Add(2*time.Minute))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/queue/position/"+second.OrderID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var pos models.QueuePosition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
	assert.Equal(t, 2, pos.Position)
	assert.Equal(t, 30, pos.EstimatedWaitTime)
	assert.Equal(t, models.StatusQueued, pos.Status)

	// Terminal orders read as not queued.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/queue/position/"+done.OrderID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var notQueued struct {
		Queued bool `json:"queued"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &notQueued))
	assert.False(t, notQueued.Queued)
}

func TestPaymentWebhookEndpoint(t *testing.T) {
	router, _, dbLayer := setupTestRouter(t)

	order := seedOrder(t, dbLayer, models.StatusPendingPayment, time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC))

	payload := fmt.Sprintf(`{"order_id":%q,"transaction_id":"txn-1","status":"success"}`, order.OrderID)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	got, err := dbLayer.GetOrderByID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, got.Status)
	require.NotNil(t, got.QueuePosition)
	assert.Equal(t, 1, *got.QueuePosition)

	// A webhook retry is acknowledged, not failed.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewBufferString(payload))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Failed payments never enter the queue.
	failed := seedOrder(t, dbLayer, models.StatusPendingPayment, time.Date(2026, 8, 31, 11, 0, 0, 0, time.UTC))
	payload = fmt.Sprintf(`{"order_id":%q,"status":"failed"}`, failed.OrderID)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewBufferString(payload))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err = dbLayer.GetOrderByID(context.Background(), failed.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingPayment, got.Status)
}

func TestProcessNextAndCompleteEndpoints(t *testing.T) {
	router, _, dbLayer := setupTestRouter(t)

	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	first := seedOrder(t, dbLayer, models.StatusQueued, base)
	seedOrder(t, dbLayer, models.StatusQueued, base.Add(time.Minute))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/queue/next", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, first.OrderID, resp.Data["order_id"])
	assert.Equal(t, models.StatusInProgress, resp.Data["status"])

	// Second promotion hits the in-progress cap.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/queue/next", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Complete the reading.
	body := bytes.NewBufferString(`{"reading_content":"A long journey awaits."}`)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/"+first.OrderID+"/complete", body)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var completeResp struct {
		Data struct {
			Status           string `json:"status"`
			NotificationSent bool   `json:"notification_sent"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &completeResp))
	assert.Equal(t, models.StatusCompleted, completeResp.Data.Status)
	assert.True(t, completeResp.Data.NotificationSent)

	// Empty reading is rejected.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/"+first.OrderID+"/complete",
		bytes.NewBufferString(`{"reading_content":""}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessNextEndpoint_EmptyQueue(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/queue/next", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queue is empty", resp.Message)
}

func TestCancelEndpoint(t *testing.T) {
	router, _, dbLayer := setupTestRouter(t)

	order := seedOrder(t, dbLayer, models.StatusQueued, time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/"+order.OrderID+"/cancel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := dbLayer.GetOrderByID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)

	// Terminal orders cannot be cancelled again.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/"+order.OrderID+"/cancel", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/unknown/cancel", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminListQueueEndpoint(t *testing.T) {
	router, _, dbLayer := setupTestRouter(t)

	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	seedOrder(t, dbLayer, models.StatusInProgress, base)
	seedOrder(t, dbLayer, models.StatusQueued, base.Add(time.Minute))
	seedOrder(t, dbLayer, models.StatusCompleted, base.Add(2*time.Minute))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/queue", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Stats  models.QueueStats `json:"stats"`
		Orders []models.Order    `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Stats.TotalInQueue)
	require.Len(t, resp.Orders, 2)
	assert.Equal(t, models.StatusInProgress, resp.Orders[0].Status)
}
