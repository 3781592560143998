package payment

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
	"github.com/vladislavdragonenkov/ecom/internal/metrics"
	"github.com/vladislavdragonenkov/ecom/internal/service/lifecycle"
)

// AckStatus — результат обработки callback'а для шлюза.
type AckStatus string

const (
	// AckApplied — событие изменило состояние заказа.
	AckApplied AckStatus = "applied"
	// AckIgnored — повтор или позднее событие; подтверждено без эффекта,
	// чтобы шлюз не ретраил.
	AckIgnored AckStatus = "ignored"
)

// Ack — подтверждение обработки события шлюза.
type Ack struct {
	Status AckStatus
	Reason string
}

// Reconciler сводит асинхронные callback'и шлюза с состоянием заказов.
// Верификация подписи события — забота внешнего коллаборатора; сюда
// приходят уже проверенные события.
type Reconciler struct {
	orders    domain.OrderRepository
	lifecycle *lifecycle.Service
	processed domain.ProcessedCallbackStore
	metrics   *metrics.EngineMetrics
	logger    *log.Entry
}

// NewReconciler создаёт адаптер callback'ов платёжного шлюза.
func NewReconciler(
	orders domain.OrderRepository,
	lc *lifecycle.Service,
	processed domain.ProcessedCallbackStore,
	m *metrics.EngineMetrics,
	logger *log.Entry,
) *Reconciler {
	if logger == nil {
		logger = log.WithField("component", "payment-reconciler")
	}
	return &Reconciler{
		orders:    orders,
		lifecycle: lc,
		processed: processed,
		metrics:   m,
		logger:    logger,
	}
}

// HandleCallback обрабатывает событие шлюза идемпотентно. Ошибка
// возвращается только при невозможности обработать событие вовсе
// (нет такого заказа, недоступно хранилище); аномалии шлюза — поздний
// success после отмены, повтор события — это Ack{Ignored}, не ошибка.
func (r *Reconciler) HandleCallback(cb domain.PaymentCallback) (Ack, error) {
	logger := r.logger.WithFields(log.Fields{
		"transaction_id": cb.TransactionID,
		"order_id":       cb.OrderID,
		"outcome":        cb.Outcome,
	})

	// Дедупликация повторов (transactionId, outcome) до каких-либо переходов.
	dedupKey := ""
	if r.processed != nil && cb.TransactionID != "" {
		dedupKey = fmt.Sprintf("callback:%s:%s", cb.TransactionID, cb.Outcome)
		first, err := r.processed.MarkProcessed(dedupKey)
		if err != nil {
			// Хранилище дедупликации недоступно — полагаемся на state-guard ниже.
			logger.WithError(err).Warn("callback dedup store unavailable")
			dedupKey = ""
		} else if !first {
			logger.Debug("duplicate gateway callback, acknowledging without effect")
			return r.ignored("duplicate callback"), nil
		}
	}

	ack, err := r.apply(cb, logger)
	if err != nil && dedupKey != "" {
		// Исход не применён (заказ не прочитался, переход не сохранился):
		// ключ освобождается, иначе ретрай шлюза будет проглочен как дубль
		// и оплаченный заказ навсегда останется в pending.
		if forgetErr := r.processed.Forget(dedupKey); forgetErr != nil {
			logger.WithError(forgetErr).Error("failed to release callback dedup key, gateway retry may be dropped")
		}
	}
	return ack, err
}

func (r *Reconciler) apply(cb domain.PaymentCallback, logger *log.Entry) (Ack, error) {
	order, err := r.orders.Get(cb.OrderID)
	if err != nil {
		return Ack{}, fmt.Errorf("load order for callback: %w", err)
	}

	// Терминальный guard: поздний callback не воскрешает отменённый заказ.
	if domain.IsTerminal(order.Status) {
		logger.WithField("status", order.Status).Warn("gateway callback for terminal order, acknowledging without effect")
		return r.ignored(fmt.Sprintf("order is %s", order.Status)), nil
	}

	switch cb.Outcome {
	case domain.PaymentOutcomeSuccess:
		return r.applySuccess(order, cb, logger)
	case domain.PaymentOutcomeFailure:
		return r.applyFailure(order, cb, logger)
	default:
		logger.Warn("unknown gateway outcome, acknowledging without effect")
		return r.ignored("unknown outcome"), nil
	}
}

func (r *Reconciler) applySuccess(order domain.Order, cb domain.PaymentCallback, logger *log.Entry) (Ack, error) {
	// Уже подтверждён (или дальше по циклу) — повтор success не ошибка.
	if order.Status != domain.OrderStatusPending && order.Status != domain.OrderStatusPaymentFailed {
		logger.WithField("status", order.Status).Debug("success callback for already progressed order")
		return r.ignored("already progressed"), nil
	}

	// payment_failed → confirmed не входит в граф: сперва возвращаем
	// заказ в pending (retry оплаты), затем подтверждаем.
	if order.Status == domain.OrderStatusPaymentFailed {
		if _, err := r.lifecycle.Transition(order.ID, lifecycle.TransitionRequest{
			To:            domain.OrderStatusPending,
			PaymentStatus: domain.PaymentStatusAwaiting,
			Actor:         lifecycle.ActorGateway,
			Note:          "late success after failure",
		}); err != nil {
			return r.reconcileError(err, logger)
		}
	}

	if _, err := r.lifecycle.Transition(order.ID, lifecycle.TransitionRequest{
		To:            domain.OrderStatusConfirmed,
		PaymentStatus: domain.PaymentStatusPaid,
		Actor:         lifecycle.ActorGateway,
		Note:          "payment captured, txn " + cb.TransactionID,
	}); err != nil {
		return r.reconcileError(err, logger)
	}

	if r.metrics != nil {
		r.metrics.RecordWebhookApplied()
	}
	return Ack{Status: AckApplied}, nil
}

func (r *Reconciler) applyFailure(order domain.Order, cb domain.PaymentCallback, logger *log.Entry) (Ack, error) {
	if order.Status != domain.OrderStatusPending {
		logger.WithField("status", order.Status).Debug("failure callback for non-pending order")
		return r.ignored("not pending"), nil
	}

	note := "payment declined"
	if cb.FailureReason != "" {
		note = "payment declined: " + cb.FailureReason
	}
	// Сток намеренно не освобождается: transient-отказ отличён от явной
	// отмены, клиент может повторить оплату.
	if _, err := r.lifecycle.Transition(order.ID, lifecycle.TransitionRequest{
		To:            domain.OrderStatusPaymentFailed,
		PaymentStatus: domain.PaymentStatusFailed,
		Actor:         lifecycle.ActorGateway,
		Note:          note,
	}); err != nil {
		return r.reconcileError(err, logger)
	}

	if r.metrics != nil {
		r.metrics.RecordWebhookApplied()
	}
	return Ack{Status: AckApplied}, nil
}

// reconcileError переводит проигрыш гонки со staff-действием в Ignored:
// конкурентный переход означает, что событие уже неактуально.
// InvalidTransition и конфликт версий KindOf относит к KindConflict.
func (r *Reconciler) reconcileError(err error, logger *log.Entry) (Ack, error) {
	if domain.KindOf(err) == domain.KindConflict {
		logger.WithError(err).Warn("callback lost race to concurrent transition, acknowledging")
		return r.ignored("lost race to concurrent transition"), nil
	}
	return Ack{}, err
}

func (r *Reconciler) ignored(reason string) Ack {
	if r.metrics != nil {
		r.metrics.RecordWebhookIgnored()
	}
	return Ack{Status: AckIgnored, Reason: reason}
}
