package payment

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
	"github.com/vladislavdragonenkov/ecom/internal/service/couponledger"
	"github.com/vladislavdragonenkov/ecom/internal/service/inventory"
	"github.com/vladislavdragonenkov/ecom/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/ecom/internal/storage/memory"
)

type reconcilerEnv struct {
	reconciler *Reconciler
	lifecycle  *lifecycle.Service
	orders     domain.OrderRepository
	products   interface {
		Put(domain.Product)
		Get(string) (domain.Product, error)
	}
}

func newReconcilerEnv(t *testing.T) *reconcilerEnv {
	t.Helper()

	orders := memory.NewOrderRepository()
	products := memory.NewProductRepository()
	coupons := memory.NewCouponRepository()
	usage := memory.NewCouponUsageRepository()

	invLedger := inventory.NewLedger(products, nil)
	couponLedger := couponledger.NewLedger(coupons, usage, nil)
	lc := lifecycle.NewService(orders, invLedger, couponLedger, memory.NewOutboxRepository(), nil, nil)
	rec := NewReconciler(orders, lc, memory.NewCallbackStore(), nil, nil)

	return &reconcilerEnv{reconciler: rec, lifecycle: lc, orders: orders, products: products}
}

func (e *reconcilerEnv) seedPendingOrder(t *testing.T) domain.Order {
	t.Helper()

	now := time.Now().UTC()
	e.products.Put(domain.Product{ID: "p1", Name: "Widget", PriceMinor: 1000, Stock: 3, IsActive: true})

	order := domain.Order{
		ID:            "o1",
		OrderNumber:   "ORD-20260601-CAFEBABE",
		UserID:        "u1",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusAwaiting,
		Method:        domain.PaymentMethodCard,
		Items: []domain.OrderItem{{
			ProductID: "p1", Name: "Widget", UnitPriceMinor: 1000, Qty: 2, LineTotalMinor: 2000,
		}},
		Pricing:   domain.Pricing{SubtotalMinor: 2000, TotalMinor: 2000},
		CreatedAt: now,
		UpdatedAt: now,
	}
	order.AppendHistory(domain.OrderStatusPending, now, "order placed", "u1")
	require.NoError(t, e.orders.Create(order))
	return order
}

func TestCallbackSuccessConfirmsOrder(t *testing.T) {
	env := newReconcilerEnv(t)
	env.seedPendingOrder(t)

	ack, err := env.reconciler.HandleCallback(domain.PaymentCallback{
		TransactionID: "txn-1", OrderID: "o1", Outcome: domain.PaymentOutcomeSuccess,
	})
	require.NoError(t, err)
	require.Equal(t, AckApplied, ack.Status)

	order, _ := env.orders.Get("o1")
	require.Equal(t, domain.OrderStatusConfirmed, order.Status)
	require.Equal(t, domain.PaymentStatusPaid, order.PaymentStatus)
}

func TestCallbackDuplicateIgnored(t *testing.T) {
	env := newReconcilerEnv(t)
	env.seedPendingOrder(t)

	cb := domain.PaymentCallback{TransactionID: "txn-1", OrderID: "o1", Outcome: domain.PaymentOutcomeSuccess}

	ack, err := env.reconciler.HandleCallback(cb)
	require.NoError(t, err)
	require.Equal(t, AckApplied, ack.Status)

	ack, err = env.reconciler.HandleCallback(cb)
	require.NoError(t, err)
	require.Equal(t, AckIgnored, ack.Status)
	require.Equal(t, "duplicate callback", ack.Reason)

	// Состояние не должно меняться от повтора.
	order, _ := env.orders.Get("o1")
	require.Equal(t, domain.OrderStatusConfirmed, order.Status)
	require.Len(t, order.StatusHistory, 2)
}

func TestCallbackLateSuccessAfterCancelIgnored(t *testing.T) {
	env := newReconcilerEnv(t)
	env.seedPendingOrder(t)

	_, err := env.lifecycle.Cancel("o1", "u1", "changed my mind")
	require.NoError(t, err)

	ack, err := env.reconciler.HandleCallback(domain.PaymentCallback{
		TransactionID: "txn-late", OrderID: "o1", Outcome: domain.PaymentOutcomeSuccess,
	})
	require.NoError(t, err)
	require.Equal(t, AckIgnored, ack.Status)

	order, _ := env.orders.Get("o1")
	require.Equal(t, domain.OrderStatusCancelled, order.Status)
	// Поздний success не воскрешает возвращённый сток.
	p1, _ := env.products.Get("p1")
	require.Equal(t, int32(5), p1.Stock)
}

func TestCallbackFailureKeepsStockReserved(t *testing.T) {
	env := newReconcilerEnv(t)
	env.seedPendingOrder(t)

	ack, err := env.reconciler.HandleCallback(domain.PaymentCallback{
		TransactionID: "txn-1", OrderID: "o1",
		Outcome: domain.PaymentOutcomeFailure, FailureReason: "card declined",
	})
	require.NoError(t, err)
	require.Equal(t, AckApplied, ack.Status)

	order, _ := env.orders.Get("o1")
	require.Equal(t, domain.OrderStatusPaymentFailed, order.Status)
	require.Equal(t, domain.PaymentStatusFailed, order.PaymentStatus)
	require.False(t, order.StockReleased)

	p1, _ := env.products.Get("p1")
	require.Equal(t, int32(3), p1.Stock)
}

// Поздний success после отказа: payment_failed → pending → confirmed.
func TestCallbackSuccessAfterFailureConfirms(t *testing.T) {
	env := newReconcilerEnv(t)
	env.seedPendingOrder(t)

	_, err := env.reconciler.HandleCallback(domain.PaymentCallback{
		TransactionID: "txn-1", OrderID: "o1", Outcome: domain.PaymentOutcomeFailure,
	})
	require.NoError(t, err)

	ack, err := env.reconciler.HandleCallback(domain.PaymentCallback{
		TransactionID: "txn-2", OrderID: "o1", Outcome: domain.PaymentOutcomeSuccess,
	})
	require.NoError(t, err)
	require.Equal(t, AckApplied, ack.Status)

	order, _ := env.orders.Get("o1")
	require.Equal(t, domain.OrderStatusConfirmed, order.Status)
	require.Equal(t, domain.PaymentStatusPaid, order.PaymentStatus)
	// История фиксирует оба промежуточных шага: failed, pending, confirmed.
	require.Len(t, order.StatusHistory, 4)
}

func TestCallbackUnknownOutcomeIgnored(t *testing.T) {
	env := newReconcilerEnv(t)
	env.seedPendingOrder(t)

	ack, err := env.reconciler.HandleCallback(domain.PaymentCallback{
		TransactionID: "txn-1", OrderID: "o1", Outcome: "refund_requested",
	})
	require.NoError(t, err)
	require.Equal(t, AckIgnored, ack.Status)

	order, _ := env.orders.Get("o1")
	require.Equal(t, domain.OrderStatusPending, order.Status)
}

// flakyOrderRepository отказывает первым failGets чтениям, имитируя
// временную недоступность хранилища.
type flakyOrderRepository struct {
	domain.OrderRepository
	failGets int
}

func (f *flakyOrderRepository) Get(id string) (domain.Order, error) {
	if f.failGets > 0 {
		f.failGets--
		return domain.Order{}, errors.New("storage temporarily unavailable")
	}
	return f.OrderRepository.Get(id)
}

// Ошибка после захвата ключа дедупликации освобождает ключ: ретрай шлюза
// должен применить исход, а не быть проглоченным как дубль.
func TestCallbackRetryAfterTransientErrorApplies(t *testing.T) {
	env := newReconcilerEnv(t)
	env.seedPendingOrder(t)

	flaky := &flakyOrderRepository{OrderRepository: env.orders, failGets: 1}
	env.reconciler = NewReconciler(flaky, env.lifecycle, memory.NewCallbackStore(), nil, nil)

	cb := domain.PaymentCallback{TransactionID: "txn-1", OrderID: "o1", Outcome: domain.PaymentOutcomeSuccess}

	_, err := env.reconciler.HandleCallback(cb)
	require.Error(t, err)

	ack, err := env.reconciler.HandleCallback(cb)
	require.NoError(t, err)
	require.Equal(t, AckApplied, ack.Status)

	order, _ := env.orders.Get("o1")
	require.Equal(t, domain.OrderStatusConfirmed, order.Status)
	require.Equal(t, domain.PaymentStatusPaid, order.PaymentStatus)
}

func TestCallbackUnknownOrder(t *testing.T) {
	env := newReconcilerEnv(t)

	_, err := env.reconciler.HandleCallback(domain.PaymentCallback{
		TransactionID: "txn-1", OrderID: "ghost", Outcome: domain.PaymentOutcomeSuccess,
	})
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}
