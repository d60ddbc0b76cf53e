package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"fortune-queue/internal/models"
	"fortune-queue/internal/queue"
	"fortune-queue/internal/utils"
)

// PaymentWebhook handles the gateway's payment notification. Signature
// verification happens at the gateway edge; this endpoint receives the
// already-authenticated event and moves the order into the queue.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var event models.PaymentEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "Invalid webhook payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if event.OrderID == "" {
		http.Error(w, "order_id is required", http.StatusBadRequest)
		return
	}

	h.Logger.LogOrder("WEBHOOK", event.OrderID, fmt.Sprintf("payment event status=%s", event.Status))

	if event.Status != "success" {
		// Failed and refunded payments never enter the queue; acknowledge so
		// the gateway stops retrying.
		writeJSON(w, http.StatusOK, utils.SuccessResponse("event ignored", nil))
		return
	}

	pos, err := h.QueueService.ConfirmPayment(r.Context(), event.OrderID)
	if err != nil {
		var transitionErr *queue.TransitionError
		switch {
		case errors.Is(err, queue.ErrOrderNotFound):
			http.Error(w, "Order not found", http.StatusNotFound)
		case errors.As(err, &transitionErr):
			// Webhook retry for an order that already advanced. Acknowledge.
			h.Logger.Warn("WEBHOOK", transitionErr.Error())
			writeJSON(w, http.StatusOK, utils.SuccessResponse("order already processed", nil))
		default:
			h.Logger.Error("WEBHOOK", fmt.Sprintf("payment confirmation failed: %v", err))
			http.Error(w, "Webhook processing error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("order queued", pos))
}
