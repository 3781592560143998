package couponledger

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

// Ledger ведёт учёт применений купонов: глобальный счётчик на купоне и
// пер-пользовательская запись. Оба инкремента условные; пара, не
// прошедшая целиком, откатывается.
type Ledger struct {
	coupons domain.CouponRepository
	usage   domain.CouponUsageRepository
	logger  *log.Entry
}

// NewLedger создаёт леджер применений купонов.
func NewLedger(coupons domain.CouponRepository, usage domain.CouponUsageRepository, logger *log.Entry) *Ledger {
	if logger == nil {
		logger = log.WithField("component", "coupon-ledger")
	}
	return &Ledger{coupons: coupons, usage: usage, logger: logger}
}

// RecordUsage фиксирует применение купона заказом. При проигрыше гонки за
// лимит возвращает ErrCouponLimitExceeded / ErrCouponUserLimitExceeded —
// вызывающий обязан откатить весь чекаут.
func (l *Ledger) RecordUsage(code, userID, orderID string, discountMinor int64) error {
	code = domain.NormalizeCouponCode(code)

	coupon, err := l.coupons.GetByCode(code)
	if err != nil {
		return err
	}

	if err := l.coupons.ConditionalIncrementUsage(code); err != nil {
		return fmt.Errorf("increment coupon usage %s: %w", code, err)
	}

	entry := domain.CouponUsageEntry{
		OrderID:             orderID,
		DiscountAmountMinor: discountMinor,
		UsedAt:              time.Now().UTC(),
	}
	if err := l.usage.ConditionalIncrement(code, userID, coupon.PerUserLimit, entry); err != nil {
		// Пер-пользовательский лимит не прошёл: возвращаем глобальный счётчик.
		if decErr := l.coupons.DecrementUsage(code); decErr != nil {
			l.logger.WithError(decErr).WithField("coupon", code).Error("compensating decrement failed, used_count is overstated")
		}
		return fmt.Errorf("increment per-user usage %s/%s: %w", code, userID, err)
	}

	return nil
}

// RollbackUsage откатывает применение купона заказом. Идемпотентен:
// счётчики уменьшаются только если запись для orderID ещё существует.
func (l *Ledger) RollbackUsage(code, userID, orderID string) error {
	code = domain.NormalizeCouponCode(code)

	removed, err := l.usage.RemoveEntry(code, userID, orderID)
	if err != nil {
		return fmt.Errorf("remove usage entry %s/%s: %w", code, userID, err)
	}
	if !removed {
		// Запись уже откатили (или её не было) — повторный вызов no-op.
		return nil
	}

	if err := l.coupons.DecrementUsage(code); err != nil {
		return fmt.Errorf("decrement coupon usage %s: %w", code, err)
	}
	return nil
}
