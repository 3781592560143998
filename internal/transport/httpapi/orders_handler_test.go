package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
	"github.com/vladislavdragonenkov/ecom/internal/service/checkout"
	"github.com/vladislavdragonenkov/ecom/internal/service/couponledger"
	"github.com/vladislavdragonenkov/ecom/internal/service/inventory"
	"github.com/vladislavdragonenkov/ecom/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/ecom/internal/service/payment"
	"github.com/vladislavdragonenkov/ecom/internal/service/pricing"
	"github.com/vladislavdragonenkov/ecom/internal/storage/memory"
)

type apiEnv struct {
	router   http.Handler
	gateway  *payment.MockGateway
	products interface {
		Put(domain.Product)
		Get(string) (domain.Product, error)
	}
	coupons interface{ Put(domain.Coupon) }
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	orders := memory.NewOrderRepository()
	products := memory.NewProductRepository()
	coupons := memory.NewCouponRepository()
	usage := memory.NewCouponUsageRepository()
	outbox := memory.NewOutboxRepository()

	evaluator := pricing.NewEvaluator(products, coupons, usage, pricing.Policy{
		TaxRateBP:                  1000,
		FlatShippingMinor:          500,
		FreeShippingThresholdMinor: 10000,
		CODSurchargeMinor:          300,
	}, nil)
	invLedger := inventory.NewLedger(products, nil)
	couponLedger := couponledger.NewLedger(coupons, usage, nil)
	lc := lifecycle.NewService(orders, invLedger, couponLedger, outbox, nil, nil)
	gateway := payment.NewMockGateway()
	co := checkout.NewService(evaluator, invLedger, orders, couponLedger, lc, gateway, outbox, nil, nil)
	rec := payment.NewReconciler(orders, lc, memory.NewCallbackStore(), nil, nil)

	router := NewRouter(
		NewOrdersHandler(co, lc, nil),
		NewWebhookHandler(rec, nil),
		nil,
	)
	return &apiEnv{router: router, gateway: gateway, products: products, coupons: coupons}
}

func (e *apiEnv) do(t *testing.T, method, path, userID, role string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set(headerUserID, userID)
	}
	if role != "" {
		req.Header.Set(headerUserRole, role)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeOrder(t *testing.T, rr *httptest.ResponseRecorder) orderView {
	t.Helper()
	var resp struct {
		Data orderView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Data
}

func decodeErrorKind(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error errorPayload `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Error.Kind
}

func (e *apiEnv) seedCatalog() {
	e.products.Put(domain.Product{ID: "p1", Name: "Widget", PriceMinor: 2999, Stock: 10, IsActive: true})
	e.coupons.Put(domain.Coupon{
		Code: "SAVE50", Type: domain.DiscountFixed, DiscountValue: 50,
		MinOrderValueMinor: 300, UsageLimit: 100, PerUserLimit: 2, IsActive: true,
	})
}

func TestCreateOrderEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	env.seedCatalog()

	rr := env.do(t, http.MethodPost, "/orders", "u1", "", createOrderReq{
		Items:         []orderItemReq{{ProductID: "p1", Qty: 2}},
		PaymentMethod: "card",
		CouponCode:    "SAVE50",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	order := decodeOrder(t, rr)
	require.Equal(t, "pending", order.Status)
	require.Equal(t, "awaiting_payment", order.PaymentStatus)
	require.Equal(t, int64(5998), order.Pricing.SubtotalMinor)
	require.Equal(t, int64(7043), order.Pricing.TotalMinor)
	require.Len(t, order.StatusHistory, 1)
}

func TestCreateOrderRequiresUserHeader(t *testing.T) {
	env := newAPIEnv(t)
	env.seedCatalog()

	rr := env.do(t, http.MethodPost, "/orders", "", "", createOrderReq{
		Items: []orderItemReq{{ProductID: "p1", Qty: 1}},
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "validation", decodeErrorKind(t, rr))
}

func TestCreateOrderInsufficientStockConflict(t *testing.T) {
	env := newAPIEnv(t)
	env.seedCatalog()

	rr := env.do(t, http.MethodPost, "/orders", "u1", "", createOrderReq{
		Items: []orderItemReq{{ProductID: "p1", Qty: 99}},
	})
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "conflict", decodeErrorKind(t, rr))
}

func TestGetOrderForeignForbidden(t *testing.T) {
	env := newAPIEnv(t)
	env.seedCatalog()

	created := decodeOrder(t, env.do(t, http.MethodPost, "/orders", "u1", "", createOrderReq{
		Items: []orderItemReq{{ProductID: "p1", Qty: 1}},
	}))

	rr := env.do(t, http.MethodGet, "/orders/"+created.ID, "u2", "", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, "forbidden", decodeErrorKind(t, rr))

	// Staff видит любой заказ.
	rr = env.do(t, http.MethodGet, "/orders/"+created.ID, "u2", RoleStaff, nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestListOrdersEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	env.seedCatalog()

	for i := 0; i < 2; i++ {
		rr := env.do(t, http.MethodPost, "/orders", "u1", "", createOrderReq{
			Items: []orderItemReq{{ProductID: "p1", Qty: 1}},
		})
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr := env.do(t, http.MethodGet, "/orders", "u1", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data []orderView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)

	rr = env.do(t, http.MethodGet, "/orders", "u2", "", nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Empty(t, resp.Data)
}

func TestCancelOrderEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	env.seedCatalog()

	created := decodeOrder(t, env.do(t, http.MethodPost, "/orders", "u1", "", createOrderReq{
		Items: []orderItemReq{{ProductID: "p1", Qty: 2}},
	}))

	// Чужой заказ отменить нельзя.
	rr := env.do(t, http.MethodPost, "/orders/"+created.ID+"/cancel", "u2", "", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(t, http.MethodPost, "/orders/"+created.ID+"/cancel", "u1", "", cancelOrderReq{Reason: "changed my mind"})
	require.Equal(t, http.StatusOK, rr.Code)

	cancelled := decodeOrder(t, rr)
	require.Equal(t, "cancelled", cancelled.Status)

	p1, err := env.products.Get("p1")
	require.NoError(t, err)
	require.Equal(t, int32(10), p1.Stock)
}

func TestUpdateStatusStaffOnly(t *testing.T) {
	env := newAPIEnv(t)
	env.seedCatalog()

	created := decodeOrder(t, env.do(t, http.MethodPost, "/orders", "u1", "", createOrderReq{
		Items:         []orderItemReq{{ProductID: "p1", Qty: 1}},
		PaymentMethod: "cod",
	}))
	statusURL := fmt.Sprintf("/orders/%s/status", created.ID)

	rr := env.do(t, http.MethodPut, statusURL, "u1", "", updateStatusReq{Status: "confirmed"})
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(t, http.MethodPut, statusURL, "staff-1", RoleStaff, updateStatusReq{Status: "confirmed"})
	require.Equal(t, http.StatusOK, rr.Code)
	confirmed := decodeOrder(t, rr)
	require.Equal(t, "confirmed", confirmed.Status)
	require.Equal(t, "pending_cod", confirmed.PaymentStatus)

	// Пропуск шага отклоняется как конфликт.
	rr = env.do(t, http.MethodPut, statusURL, "staff-1", RoleStaff, updateStatusReq{Status: "delivered"})
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = env.do(t, http.MethodPut, statusURL, "staff-1", RoleStaff, updateStatusReq{Status: "processing"})
	require.Equal(t, http.StatusOK, rr.Code)
	rr = env.do(t, http.MethodPut, statusURL, "staff-1", RoleStaff, updateStatusReq{
		Status: "shipped", TrackingNumber: "TRACK-42",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "TRACK-42", decodeOrder(t, rr).TrackingNumber)

	// Доставка COD-заказа фиксирует оплату наличными.
	rr = env.do(t, http.MethodPut, statusURL, "staff-1", RoleStaff, updateStatusReq{Status: "delivered"})
	require.Equal(t, http.StatusOK, rr.Code)
	delivered := decodeOrder(t, rr)
	require.Equal(t, "delivered", delivered.Status)
	require.Equal(t, "paid", delivered.PaymentStatus)
}

// Подтверждение карточного заказа персоналом не объявляет его оплаченным:
// paid ставит только callback шлюза.
func TestUpdateStatusConfirmCardKeepsAwaitingPayment(t *testing.T) {
	env := newAPIEnv(t)
	env.seedCatalog()

	created := decodeOrder(t, env.do(t, http.MethodPost, "/orders", "u1", "", createOrderReq{
		Items:         []orderItemReq{{ProductID: "p1", Qty: 1}},
		PaymentMethod: "card",
	}))
	statusURL := fmt.Sprintf("/orders/%s/status", created.ID)

	rr := env.do(t, http.MethodPut, statusURL, "staff-1", RoleStaff, updateStatusReq{Status: "confirmed"})
	require.Equal(t, http.StatusOK, rr.Code)
	confirmed := decodeOrder(t, rr)
	require.Equal(t, "confirmed", confirmed.Status)
	require.Equal(t, "awaiting_payment", confirmed.PaymentStatus)
}

func TestRetryPaymentEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	env.seedCatalog()

	created := decodeOrder(t, env.do(t, http.MethodPost, "/orders", "u1", "", createOrderReq{
		Items: []orderItemReq{{ProductID: "p1", Qty: 1}},
	}))

	// Отказ шлюза переводит заказ в payment_failed.
	rr := env.do(t, http.MethodPost, "/payments/webhook", "", "", webhookReq{
		TransactionID: "txn-1", OrderID: created.ID, Outcome: "failure", FailureReason: "card declined",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodPost, "/orders/"+created.ID+"/retry-payment", "u1", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	retried := decodeOrder(t, rr)
	require.Equal(t, "pending", retried.Status)
	require.Equal(t, "awaiting_payment", retried.PaymentStatus)
}
