package checkout

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
	"github.com/vladislavdragonenkov/ecom/internal/metrics"
	"github.com/vladislavdragonenkov/ecom/internal/service/couponledger"
	"github.com/vladislavdragonenkov/ecom/internal/service/inventory"
	"github.com/vladislavdragonenkov/ecom/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/ecom/internal/service/pricing"
)

// RoleStaff — роль, которой разрешены чужие заказы и смена статусов.
const RoleStaff = "staff"

// maxCheckoutAttempts ограничивает локальные повторы саги при конфликтах
// версий: компенсации первой попытки уже отработали, так что повтор
// стартует с чистого состояния.
const maxCheckoutAttempts = 2

// Request — входные данные чекаута.
type Request struct {
	UserID     string
	Items      []pricing.CartItem
	Method     domain.PaymentMethod
	CouponCode string
}

// Service — сага чекаута: оценка → резерв стока → запись заказа →
// учёт купона → инициация оплаты. Шаги не объединены транзакцией;
// у каждого последующего шага определена компенсация предыдущих.
type Service struct {
	evaluator *pricing.Evaluator
	inventory *inventory.Ledger
	orders    domain.OrderRepository
	coupons   *couponledger.Ledger
	lifecycle *lifecycle.Service
	gateway   domain.PaymentGateway
	outbox    domain.OutboxRepository
	metrics   *metrics.EngineMetrics
	logger    *log.Entry
}

// NewService собирает сагу чекаута.
func NewService(
	evaluator *pricing.Evaluator,
	inv *inventory.Ledger,
	orders domain.OrderRepository,
	coupons *couponledger.Ledger,
	lc *lifecycle.Service,
	gateway domain.PaymentGateway,
	outbox domain.OutboxRepository,
	m *metrics.EngineMetrics,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.WithField("component", "checkout")
	}
	return &Service{
		evaluator: evaluator,
		inventory: inv,
		orders:    orders,
		coupons:   coupons,
		lifecycle: lc,
		gateway:   gateway,
		outbox:    outbox,
		metrics:   m,
		logger:    logger,
	}
}

// Checkout проводит заказ через сагу. Любая неудача после резерва стока
// раскручивает уже выполненные шаги, поэтому система не остаётся в
// состоянии "сток списан, заказа нет" или "купон потрачен без заказа".
func (s *Service) Checkout(req Request) (domain.Order, error) {
	start := time.Now()
	if s.metrics != nil {
		s.metrics.RecordCheckoutStarted()
	}
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordCheckoutDuration(time.Since(start))
		}
	}()

	var (
		order domain.Order
		err   error
	)
	for attempt := 1; attempt <= maxCheckoutAttempts; attempt++ {
		order, err = s.checkout(req)
		if err == nil {
			break
		}
		// Конфликт версий — транзиентная гонка, не вердикт по заказу:
		// одна повторная попытка до того, как отдавать Conflict клиенту.
		if attempt < maxCheckoutAttempts && retryableConflict(err) {
			s.logger.WithError(err).WithField("attempt", attempt).Warn("checkout lost a version race, retrying")
			continue
		}
		break
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordCheckoutFailed()
		}
		return domain.Order{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordCheckoutCompleted()
	}
	return order, nil
}

// retryableConflict отличает конфликт optimistic locking от бизнес-отказов
// вроде исчерпанного лимита купона: первый стоит повторить, второй — нет.
func retryableConflict(err error) bool {
	if domain.IsVersionConflict(err) {
		return true
	}
	return errors.Is(err, domain.ErrConflict)
}

func (s *Service) checkout(req Request) (domain.Order, error) {
	if req.UserID == "" {
		return domain.Order{}, domain.ErrUserRequired
	}
	if req.Method == "" {
		req.Method = domain.PaymentMethodCard
	}

	// Шаг 1: оценка. Истёкший купон или нехватка стока обрывают чекаут
	// до каких-либо побочных эффектов.
	quote, err := s.evaluator.Price(req.Items, req.Method, req.CouponCode, req.UserID)
	if err != nil {
		return domain.Order{}, err
	}

	// Шаг 2: резерв стока. Резерв предшествует записи заказа.
	if err := s.inventory.Reserve(quote.Items); err != nil {
		return domain.Order{}, err
	}

	// Шаг 3: запись заказа в pending.
	now := time.Now().UTC()
	order := domain.Order{
		ID:            uuid.NewString(),
		OrderNumber:   newOrderNumber(now),
		UserID:        req.UserID,
		Items:         quote.Items,
		Pricing:       quote.Pricing,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusAwaiting,
		Method:        req.Method,
		CouponCode:    quote.CouponCode,
		Version:       0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.Method == domain.PaymentMethodCOD {
		order.PaymentStatus = domain.PaymentStatusPendingCOD
	}
	order.AppendHistory(domain.OrderStatusPending, now, "order placed", req.UserID)

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		s.compensateReserve(quote.Items)
		return domain.Order{}, joinErrors(errs)
	}

	if err := s.orders.Create(order); err != nil {
		s.compensateReserve(quote.Items)
		return domain.Order{}, fmt.Errorf("persist order: %w", err)
	}

	// Шаг 4: учёт купона. Проигрыш гонки за лимит откатывает весь чекаут.
	if order.CouponCode != "" {
		if err := s.coupons.RecordUsage(order.CouponCode, order.UserID, order.ID, order.Pricing.DiscountMinor); err != nil {
			s.unwind(&order, "coupon limit lost to concurrent checkout")
			return domain.Order{}, err
		}
	}

	// Шаг 5: инициация оплаты (COD прогрессирует без шлюза).
	if req.Method != domain.PaymentMethodCOD && s.gateway != nil {
		txnID, err := s.gateway.InitiatePayment(order.ID, order.Pricing.TotalMinor, "USD")
		if err != nil {
			// Инициация не прошла — заказ остаётся pending, клиент может
			// повторить оплату; сток и купон не трогаем.
			s.logger.WithError(err).WithField("order_id", order.ID).Warn("payment initiation failed")
		} else {
			order.PaymentRef = txnID
			if saveErr := s.orders.Save(order); saveErr != nil {
				s.logger.WithError(saveErr).WithField("order_id", order.ID).Warn("failed to persist payment ref")
			} else {
				order.Version++
			}
		}
	}

	s.emitCreated(&order)
	return order, nil
}

// RetryPayment повторно инициирует оплату заказа в payment_failed,
// возвращая его в pending (awaiting_payment).
func (s *Service) RetryPayment(orderID, callerUID string) (domain.Order, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.UserID != callerUID {
		return domain.Order{}, domain.ErrForbidden
	}
	if order.Status != domain.OrderStatusPaymentFailed {
		return domain.Order{}, &domain.InvalidTransitionError{From: order.Status, To: domain.OrderStatusPending}
	}

	order, err = s.lifecycle.Transition(orderID, lifecycle.TransitionRequest{
		To:            domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusAwaiting,
		Actor:         callerUID,
		Note:          "payment retry",
	})
	if err != nil {
		return domain.Order{}, err
	}

	if s.gateway != nil {
		txnID, gwErr := s.gateway.InitiatePayment(order.ID, order.Pricing.TotalMinor, "USD")
		if gwErr != nil {
			s.logger.WithError(gwErr).WithField("order_id", order.ID).Warn("payment re-initiation failed")
			return order, nil
		}
		order.PaymentRef = txnID
		if saveErr := s.orders.Save(order); saveErr != nil {
			s.logger.WithError(saveErr).WithField("order_id", order.ID).Warn("failed to persist payment ref")
		} else {
			order.Version++
		}
	}
	return order, nil
}

// GetOrder возвращает заказ с проверкой владения: клиент видит только свои
// заказы, staff — любые.
func (s *Service) GetOrder(orderID, callerUID, role string) (domain.Order, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if role != RoleStaff && order.UserID != callerUID {
		return domain.Order{}, domain.ErrForbidden
	}
	return order, nil
}

// ListOrders возвращает заказы вызывающего пользователя.
func (s *Service) ListOrders(callerUID string, limit int) ([]domain.Order, error) {
	return s.orders.ListByUser(callerUID, limit)
}

// unwind раскручивает сагу после неудачного позднего шага: заказ
// отменяется, сток и купон возвращаются (флаги на заказе дают exactly-once).
func (s *Service) unwind(order *domain.Order, reason string) {
	if s.metrics != nil {
		s.metrics.RecordCompensation("checkout_unwind")
	}
	if _, err := s.lifecycle.Cancel(order.ID, "engine", reason); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("checkout unwind failed")
	}
}

// compensateReserve возвращает сток, когда заказ ещё не был записан.
func (s *Service) compensateReserve(items []domain.OrderItem) {
	if s.metrics != nil {
		s.metrics.RecordCompensation("reserve_rollback")
	}
	if err := s.inventory.ReleaseQuantities(items); err != nil {
		s.logger.WithError(err).Error("failed to release reserved stock during unwind")
	}
}

func (s *Service) emitCreated(order *domain.Order) {
	if s.outbox == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"user_id":      order.UserID,
		"total_minor":  order.Pricing.TotalMinor,
		"coupon_code":  order.CouponCode,
		"ts":           order.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("marshal created event failed")
		return
	}
	if _, err := s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     domain.EventOrderCreated,
		Payload:       payload,
	}); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("enqueue created event failed")
	}
}

// newOrderNumber генерирует человекочитаемый, глобально уникальный номер.
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}

func joinErrors(errs []error) error {
	parts := make([]string, 0, len(errs))
	for _, err := range errs {
		parts = append(parts, err.Error())
	}
	return fmt.Errorf("order validation failed: %s", strings.Join(parts, "; "))
}
