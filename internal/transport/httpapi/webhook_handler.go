package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
	"github.com/vladislavdragonenkov/ecom/internal/service/payment"
)

// WebhookHandler принимает callback'и платёжного шлюза.
// Подпись события верифицирует внешний коллаборатор; сюда события
// приходят уже проверенными.
type WebhookHandler struct {
	reconciler *payment.Reconciler
	logger     *log.Entry
}

// NewWebhookHandler создаёт обработчик webhook'ов шлюза.
func NewWebhookHandler(rec *payment.Reconciler, logger *log.Entry) *WebhookHandler {
	if logger == nil {
		logger = log.WithField("component", "http-webhook")
	}
	return &WebhookHandler{reconciler: rec, logger: logger}
}

// Register монтирует маршрут webhook'а.
func (h *WebhookHandler) Register(r chi.Router) {
	r.Post("/payments/webhook", h.handleWebhook)
}

type webhookReq struct {
	TransactionID string `json:"transaction_id"`
	OrderID       string `json:"order_id"`
	Outcome       string `json:"outcome"`
	FailureReason string `json:"failure_reason"`
}

type webhookResp struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// handleWebhook отвечает 200 и на применённое, и на проигнорированное
// событие: повтор или поздний callback не должен заставлять шлюз ретраить.
// 400 — только на синтаксически сломанный запрос.
func (h *WebhookHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	if req.OrderID == "" || req.Outcome == "" {
		writeBadRequest(w, "order_id and outcome are required")
		return
	}

	ack, err := h.reconciler.HandleCallback(domain.PaymentCallback{
		TransactionID: req.TransactionID,
		OrderID:       req.OrderID,
		Outcome:       domain.PaymentOutcome(req.Outcome),
		FailureReason: req.FailureReason,
	})
	if err != nil {
		h.logger.WithError(err).WithField("order_id", req.OrderID).Warn("webhook processing failed")
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, webhookResp{Status: string(ack.Status), Reason: ack.Reason})
}
