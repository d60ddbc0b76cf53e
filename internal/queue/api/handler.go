package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fortune-queue/internal/auth"
	"fortune-queue/internal/logger"
	"fortune-queue/internal/models"
	"fortune-queue/internal/queue"
	"fortune-queue/internal/utils"
)

type Handler struct {
	QueueService *queue.QueueService
	Logger       *logger.Logger
}

// CreateOrder is the public intake endpoint; orders start in pending_payment.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.CustomerName == "" || req.CustomerEmail == "" {
		http.Error(w, "customer_name and customer_email are required", http.StatusBadRequest)
		return
	}

	order, err := h.QueueService.CreateOrder(r.Context(), req)
	if err != nil {
		if errors.Is(err, queue.ErrDailyLimitReached) {
			http.Error(w, "Daily order limit reached, try again tomorrow", http.StatusTooManyRequests)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("CreateOrder: %v", err))
		http.Error(w, "Could not create order: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, utils.SuccessResponse("order created", models.OrderResponse{
		OrderID:       order.OrderID,
		Status:        order.Status,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
	}))
}

// GetQueueStats is the public queue snapshot.
func (h *Handler) GetQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.QueueService.GetQueueStats(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetQueueStats: %v", err))
		http.Error(w, "Could not compute queue stats", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// GetQueuePosition returns the live position of one order. Terminal and
// unknown orders both read as "not queued".
func (h *Handler) GetQueuePosition(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	pos, err := h.QueueService.GetQueuePosition(r.Context(), orderID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetQueuePosition: %v", err))
		http.Error(w, "Could not compute queue position", http.StatusInternalServerError)
		return
	}
	if pos == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"order_id": orderID,
			"queued":   false,
		})
		return
	}

	writeJSON(w, http.StatusOK, pos)
}

// ListQueue is the admin view: stats plus all queued and in-progress orders.
func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	stats, orders, err := h.QueueService.ListQueue(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListQueue: %v", err))
		http.Error(w, "Could not list queue", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":  stats,
		"orders": orders,
	})
}

// ProcessNext promotes the oldest queued order to in_progress.
func (h *Handler) ProcessNext(w http.ResponseWriter, r *http.Request) {
	h.Logger.LogQueue("NEXT", fmt.Sprintf("requested by operator %s", auth.UserID(r.Context())))

	order, err := h.QueueService.ProcessNextOrder(r.Context())
	if err != nil {
		if errors.Is(err, queue.ErrOperatorBusy) {
			http.Error(w, "Another reading is already in progress", http.StatusConflict)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("ProcessNext: %v", err))
		http.Error(w, "Could not process next order: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if order == nil {
		writeJSON(w, http.StatusOK, utils.SuccessResponse("queue is empty", nil))
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("order promoted", map[string]string{
		"order_id": order.OrderID,
		"status":   order.Status,
	}))
}

// CompleteOrder stores the reading and emails it to the customer.
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	var req struct {
		ReadingContent string `json:"reading_content"`
		ReadingNotes   string `json:"reading_notes,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	order, notified, err := h.QueueService.CompleteOrder(r.Context(), orderID, req.ReadingContent, req.ReadingNotes)
	if err != nil {
		h.writeOrderError(w, "Could not complete order", err)
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("order completed", map[string]interface{}{
		"order_id":          order.OrderID,
		"status":            order.Status,
		"notification_sent": notified,
	}))
}

// CancelOrder cancels a non-terminal order.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	order, err := h.QueueService.CancelOrder(r.Context(), orderID)
	if err != nil {
		h.writeOrderError(w, "Could not cancel order", err)
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("order cancelled", map[string]string{
		"order_id": order.OrderID,
		"status":   order.Status,
	}))
}

// writeOrderError maps scheduler errors onto HTTP statuses.
func (h *Handler) writeOrderError(w http.ResponseWriter, message string, err error) {
	var transitionErr *queue.TransitionError
	switch {
	case errors.Is(err, queue.ErrOrderNotFound):
		http.Error(w, "Order not found", http.StatusNotFound)
	case errors.Is(err, queue.ErrEmptyReading):
		http.Error(w, "Reading content cannot be empty", http.StatusBadRequest)
	case errors.As(err, &transitionErr):
		http.Error(w, transitionErr.Error(), http.StatusConflict)
	default:
		h.Logger.Error("API", fmt.Sprintf("%s: %v", message, err))
		http.Error(w, message+": "+err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
