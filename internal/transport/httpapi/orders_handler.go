package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
	"github.com/vladislavdragonenkov/ecom/internal/service/checkout"
	"github.com/vladislavdragonenkov/ecom/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/ecom/internal/service/pricing"
)

const defaultListLimit = 50

// OrdersHandler обслуживает REST-операции над заказами.
type OrdersHandler struct {
	checkout  *checkout.Service
	lifecycle *lifecycle.Service
	logger    *log.Entry
}

// NewOrdersHandler создаёт обработчик заказов.
func NewOrdersHandler(co *checkout.Service, lc *lifecycle.Service, logger *log.Entry) *OrdersHandler {
	if logger == nil {
		logger = log.WithField("component", "http-orders")
	}
	return &OrdersHandler{checkout: co, lifecycle: lc, logger: logger}
}

// Register монтирует маршруты заказов.
func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", requireUser(h.createOrder))
	r.Get("/orders", requireUser(h.listOrders))
	r.Get("/orders/{id}", requireUser(h.getOrder))
	r.Post("/orders/{id}/cancel", requireUser(h.cancelOrder))
	r.Post("/orders/{id}/retry-payment", requireUser(h.retryPayment))
	r.Put("/orders/{id}/status", requireUser(h.updateStatus))
}

type orderItemReq struct {
	ProductID string `json:"product_id"`
	Qty       int32  `json:"qty"`
}

type createOrderReq struct {
	Items         []orderItemReq `json:"items"`
	PaymentMethod string         `json:"payment_method"`
	CouponCode    string         `json:"coupon_code"`
}

type cancelOrderReq struct {
	Reason string `json:"reason"`
}

type updateStatusReq struct {
	Status         string `json:"status"`
	Note           string `json:"note"`
	TrackingNumber string `json:"tracking_number"`
}

type orderItemView struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	Qty            int32  `json:"qty"`
	LineTotalMinor int64  `json:"line_total_minor"`
}

type pricingView struct {
	SubtotalMinor      int64 `json:"subtotal_minor"`
	DiscountMinor      int64 `json:"discount_minor"`
	ShippingMinor      int64 `json:"shipping_minor"`
	TaxMinor           int64 `json:"tax_minor"`
	ProcessingFeeMinor int64 `json:"processing_fee_minor"`
	TotalMinor         int64 `json:"total_minor"`
}

type statusChangeView struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
	Note   string    `json:"note,omitempty"`
	Actor  string    `json:"actor,omitempty"`
}

type orderView struct {
	ID             string             `json:"id"`
	OrderNumber    string             `json:"order_number"`
	UserID         string             `json:"user_id"`
	Status         string             `json:"status"`
	PaymentStatus  string             `json:"payment_status"`
	PaymentMethod  string             `json:"payment_method"`
	CouponCode     string             `json:"coupon_code,omitempty"`
	PaymentRef     string             `json:"payment_ref,omitempty"`
	TrackingNumber string             `json:"tracking_number,omitempty"`
	Items          []orderItemView    `json:"items"`
	Pricing        pricingView        `json:"pricing"`
	StatusHistory  []statusChangeView `json:"status_history"`
	Version        int64              `json:"version"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func toOrderView(order domain.Order) orderView {
	view := orderView{
		ID:             order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		Status:         string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		PaymentMethod:  string(order.Method),
		CouponCode:     order.CouponCode,
		PaymentRef:     order.PaymentRef,
		TrackingNumber: order.TrackingNumber,
		Items:          make([]orderItemView, 0, len(order.Items)),
		Pricing: pricingView{
			SubtotalMinor:      order.Pricing.SubtotalMinor,
			DiscountMinor:      order.Pricing.DiscountMinor,
			ShippingMinor:      order.Pricing.ShippingMinor,
			TaxMinor:           order.Pricing.TaxMinor,
			ProcessingFeeMinor: order.Pricing.ProcessingFeeMinor,
			TotalMinor:         order.Pricing.TotalMinor,
		},
		StatusHistory: make([]statusChangeView, 0, len(order.StatusHistory)),
		Version:       order.Version,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, orderItemView{
			ProductID:      item.ProductID,
			Name:           item.Name,
			UnitPriceMinor: item.UnitPriceMinor,
			Qty:            item.Qty,
			LineTotalMinor: item.LineTotalMinor,
		})
	}
	for _, change := range order.StatusHistory {
		view.StatusHistory = append(view.StatusHistory, statusChangeView{
			Status: string(change.Status),
			At:     change.At,
			Note:   change.Note,
			Actor:  change.Actor,
		})
	}
	return view
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	if len(req.Items) == 0 {
		writeBadRequest(w, "items are required")
		return
	}

	caller := callerIdentity(r)
	items := make([]pricing.CartItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, pricing.CartItem{ProductID: item.ProductID, Qty: item.Qty})
	}

	order, err := h.checkout.Checkout(checkout.Request{
		UserID:     caller.UserID,
		Items:      items,
		Method:     domain.PaymentMethod(req.PaymentMethod),
		CouponCode: req.CouponCode,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, toOrderView(order))
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	caller := callerIdentity(r)
	order, err := h.checkout.GetOrder(chi.URLParam(r, "id"), caller.UserID, caller.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, toOrderView(order))
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	caller := callerIdentity(r)
	orders, err := h.checkout.ListOrders(caller.UserID, defaultListLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]orderView, 0, len(orders))
	for _, order := range orders {
		views = append(views, toOrderView(order))
	}
	writeData(w, http.StatusOK, views)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderReq
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "cancelled by user"
	}

	caller := callerIdentity(r)
	orderID := chi.URLParam(r, "id")

	// Ownership-проверка до отмены: клиент отменяет только свои заказы.
	if _, err := h.checkout.GetOrder(orderID, caller.UserID, caller.Role); err != nil {
		writeError(w, err)
		return
	}

	order, err := h.lifecycle.Cancel(orderID, caller.UserID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, toOrderView(order))
}

func (h *OrdersHandler) retryPayment(w http.ResponseWriter, r *http.Request) {
	caller := callerIdentity(r)
	order, err := h.checkout.RetryPayment(chi.URLParam(r, "id"), caller.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, toOrderView(order))
}

// updateStatus — staff-переходы: confirmed (COD-одобрение), processing,
// shipped (+tracking number), delivered, cancelled.
func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	caller := callerIdentity(r)
	if caller.Role != RoleStaff {
		writeError(w, domain.ErrForbidden)
		return
	}

	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	if req.Status == "" {
		writeBadRequest(w, "status is required")
		return
	}

	orderID := chi.URLParam(r, "id")
	target := domain.OrderStatus(req.Status)

	// Отмена идёт через Cancel, чтобы сработали компенсации.
	if target == domain.OrderStatusCancelled {
		reason := req.Note
		if reason == "" {
			reason = "cancelled by staff"
		}
		order, err := h.lifecycle.Cancel(orderID, caller.UserID, reason)
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, toOrderView(order))
		return
	}

	treq := lifecycle.TransitionRequest{
		To:             target,
		Actor:          caller.UserID,
		Note:           req.Note,
		TrackingNumber: req.TrackingNumber,
	}
	// Подтверждение персоналом фиксирует payment_status только для COD:
	// карточный заказ помечает оплаченным исключительно callback шлюза.
	if target == domain.OrderStatusConfirmed {
		order, err := h.checkout.GetOrder(orderID, caller.UserID, caller.Role)
		if err != nil {
			writeError(w, err)
			return
		}
		if order.Method == domain.PaymentMethodCOD {
			treq.PaymentStatus = domain.PaymentStatusPendingCOD
		}
	}
	if target == domain.OrderStatusDelivered {
		order, err := h.checkout.GetOrder(orderID, caller.UserID, caller.Role)
		if err != nil {
			writeError(w, err)
			return
		}
		if order.Method == domain.PaymentMethodCOD {
			treq.PaymentStatus = domain.PaymentStatusPaid
			if treq.Note == "" {
				treq.Note = "cash collected on delivery"
			}
		}
	}

	order, err := h.lifecycle.Transition(orderID, treq)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, toOrderView(order))
}
