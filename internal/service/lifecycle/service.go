package lifecycle

import (
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
	"github.com/vladislavdragonenkov/ecom/internal/metrics"
	"github.com/vladislavdragonenkov/ecom/internal/service/couponledger"
	"github.com/vladislavdragonenkov/ecom/internal/service/inventory"
)

const (
	maxSaveAttempts = 3
	baseRetryDelay  = 10 * time.Millisecond

	// ActorGateway — актор переходов, инициированных платёжным шлюзом.
	ActorGateway = "gateway"
)

// TransitionRequest описывает запрошенный переход статуса заказа.
type TransitionRequest struct {
	To domain.OrderStatus
	// PaymentStatus, если непустой, применяется вместе с переходом.
	PaymentStatus domain.PaymentStatus
	Actor         string
	Note          string
	// TrackingNumber проставляется при переходе в shipped.
	TrackingNumber string
}

// Service владеет переходами статусов заказа. Каждый переход — условное
// обновление с охраной по прежнему статусу и версии; проигравший гонку
// перечитывает свежий заказ и заново оценивает легальность перехода.
type Service struct {
	orders    domain.OrderRepository
	inventory *inventory.Ledger
	coupons   *couponledger.Ledger
	outbox    domain.OutboxRepository
	metrics   *metrics.EngineMetrics
	logger    *log.Entry
}

// NewService создаёт сервис жизненного цикла заказа.
func NewService(
	orders domain.OrderRepository,
	inv *inventory.Ledger,
	coupons *couponledger.Ledger,
	outbox domain.OutboxRepository,
	m *metrics.EngineMetrics,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.WithField("component", "lifecycle")
	}
	return &Service{
		orders:    orders,
		inventory: inv,
		coupons:   coupons,
		outbox:    outbox,
		metrics:   m,
		logger:    logger,
	}
}

// Transition применяет переход статуса с bounded retry на конфликтах версий.
// Повторный запрос того же целевого статуса — no-op, не ошибка.
func (s *Service) Transition(orderID string, req TransitionRequest) (domain.Order, error) {
	var lastErr error
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		order, err := s.orders.Get(orderID)
		if err != nil {
			return domain.Order{}, err
		}

		if order.Status == req.To {
			return order, nil
		}
		if !domain.CanTransition(order.Status, req.To) {
			return domain.Order{}, &domain.InvalidTransitionError{From: order.Status, To: req.To}
		}

		now := time.Now().UTC()
		order.Status = req.To
		if req.PaymentStatus != "" {
			order.PaymentStatus = req.PaymentStatus
		}
		if req.TrackingNumber != "" {
			order.TrackingNumber = req.TrackingNumber
		}
		order.AppendHistory(req.To, now, req.Note, req.Actor)
		order.UpdatedAt = now

		if err := s.orders.Save(order); err != nil {
			if domain.IsVersionConflict(err) {
				lastErr = err
				if s.metrics != nil {
					s.metrics.RecordTransitionConflict()
				}
				s.logger.WithFields(log.Fields{
					"order_id": orderID,
					"attempt":  attempt + 1,
					"to":       req.To,
				}).Warn("version conflict on transition, retrying")
				time.Sleep(baseRetryDelay * time.Duration(1<<uint(attempt)))
				continue
			}
			return domain.Order{}, fmt.Errorf("persist transition: %w", err)
		}

		order.Version++
		s.emitEvent(&order, domain.EventOrderStatusChanged, map[string]any{
			"status": string(order.Status),
			"note":   req.Note,
			"actor":  req.Actor,
		})
		return order, nil
	}

	return domain.Order{}, fmt.Errorf("%w: %v", domain.ErrConflict, lastErr)
}

// Cancel отменяет заказ и запускает компенсации: возврат стока и откат
// купона, каждая ровно один раз (флаги на самом заказе). Отмена уже
// отменённого заказа — no-op; из shipped/delivered — ErrOrderNotCancellable.
func (s *Service) Cancel(orderID, actor, reason string) (domain.Order, error) {
	var (
		order   domain.Order
		lastErr error
	)

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		var err error
		order, err = s.orders.Get(orderID)
		if err != nil {
			return domain.Order{}, err
		}

		if order.Status == domain.OrderStatusCancelled {
			// Уже отменён: повторный вызов — успех-noop, но компенсации
			// могли не дойти, поэтому ниже они всё равно проверяются.
			break
		}
		if !domain.IsCancellable(order.Status) {
			return domain.Order{}, domain.ErrOrderNotCancellable
		}

		now := time.Now().UTC()
		order.Status = domain.OrderStatusCancelled
		if order.PaymentStatus == domain.PaymentStatusPaid {
			order.PaymentStatus = domain.PaymentStatusRefunded
		} else {
			order.PaymentStatus = domain.PaymentStatusCancelled
		}
		order.AppendHistory(domain.OrderStatusCancelled, now, reason, actor)
		order.UpdatedAt = now

		if err := s.orders.Save(order); err != nil {
			if domain.IsVersionConflict(err) {
				lastErr = err
				if s.metrics != nil {
					s.metrics.RecordTransitionConflict()
				}
				time.Sleep(baseRetryDelay * time.Duration(1<<uint(attempt)))
				continue
			}
			return domain.Order{}, fmt.Errorf("persist cancel: %w", err)
		}

		order.Version++
		if s.metrics != nil {
			s.metrics.RecordOrderCancelled()
		}
		s.emitEvent(&order, domain.EventOrderCancelled, map[string]any{
			"reason": reason,
			"actor":  actor,
		})
		break
	}

	if order.Status != domain.OrderStatusCancelled {
		return domain.Order{}, fmt.Errorf("%w: %v", domain.ErrConflict, lastErr)
	}

	// Компенсации гонок не боятся: каждая сперва забирает флаг условным
	// сохранением и только потом выполняет побочный эффект.
	s.ReleaseStockOnce(&order)
	s.RollbackCouponOnce(&order)

	return order, nil
}

// ReleaseStockOnce возвращает сток заказа ровно один раз. Флаг StockReleased
// забирается условным сохранением до инкрементов, поэтому конкурентный
// повтор отмены не освободит сток дважды.
func (s *Service) ReleaseStockOnce(order *domain.Order) {
	if order.StockReleased {
		return
	}

	claimed, err := s.claimFlag(order, func(o *domain.Order) bool {
		if o.StockReleased {
			return false
		}
		o.StockReleased = true
		return true
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to claim stock release flag")
		return
	}
	if !claimed {
		return
	}

	if s.metrics != nil {
		s.metrics.RecordCompensation("stock_release")
	}
	err = s.withCompensationRetry("release stock", order.ID, func() error {
		return s.inventory.ReleaseQuantities(order.Items)
	})
	if err == nil {
		s.emitEvent(order, domain.EventStockReleased, map[string]any{
			"items": len(order.Items),
		})
	}
}

// RollbackCouponOnce откатывает применение купона ровно один раз.
func (s *Service) RollbackCouponOnce(order *domain.Order) {
	if order.CouponCode == "" || order.CouponRolledBack {
		return
	}

	claimed, err := s.claimFlag(order, func(o *domain.Order) bool {
		if o.CouponCode == "" || o.CouponRolledBack {
			return false
		}
		o.CouponRolledBack = true
		return true
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to claim coupon rollback flag")
		return
	}
	if !claimed {
		return
	}

	if s.metrics != nil {
		s.metrics.RecordCompensation("coupon_rollback")
	}
	err = s.withCompensationRetry("rollback coupon", order.ID, func() error {
		return s.coupons.RollbackUsage(order.CouponCode, order.UserID, order.ID)
	})
	if err == nil {
		s.emitEvent(order, domain.EventCouponRolledBack, map[string]any{
			"coupon_code": order.CouponCode,
		})
	}
}

// claimFlag выставляет флаг на заказе условным сохранением с retry.
// Возвращает false, если флаг уже забрал кто-то другой.
func (s *Service) claimFlag(order *domain.Order, mutate func(*domain.Order) bool) (bool, error) {
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		fresh, err := s.orders.Get(order.ID)
		if err != nil {
			return false, err
		}
		if !mutate(&fresh) {
			*order = fresh
			return false, nil
		}
		fresh.UpdatedAt = time.Now().UTC()

		if err := s.orders.Save(fresh); err != nil {
			if domain.IsVersionConflict(err) {
				time.Sleep(baseRetryDelay * time.Duration(1<<uint(attempt)))
				continue
			}
			return false, err
		}
		fresh.Version++
		*order = fresh
		return true, nil
	}
	return false, domain.ErrConflict
}

// withCompensationRetry выполняет компенсацию с backoff. Потерять её
// нельзя: заниженный сток хуже отложенной компенсации, поэтому финальная
// неудача логируется как ошибка, а не глотается. Возвращённая ошибка
// позволяет вызывающему не объявлять компенсацию свершившейся.
func (s *Service) withCompensationRetry(what, orderID string, fn func() error) error {
	delay := baseRetryDelay
	var err error
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt < maxSaveAttempts {
			time.Sleep(delay)
			delay *= 2
		}
	}
	s.logger.WithError(err).WithFields(log.Fields{
		"order_id": orderID,
		"step":     what,
	}).Error("compensation failed after retries")
	return err
}

func (s *Service) emitEvent(order *domain.Order, eventType string, payload map[string]any) {
	if s.outbox == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]any)
	}
	payload["order_id"] = order.ID
	payload["order_number"] = order.OrderNumber
	payload["ts"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       data,
	}
	if _, err := s.outbox.Enqueue(msg); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("enqueue event failed")
	}
}
