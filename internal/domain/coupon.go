package domain

import (
	"strings"
	"time"
)

// DiscountType задаёт способ расчёта скидки купона.
type DiscountType string

const (
	// DiscountPercentage — скидка в процентах от subtotal, с опциональным потолком.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed — фиксированная скидка в минимальных денежных единицах.
	DiscountFixed DiscountType = "fixed"
)

// Coupon описывает маркетинговый купон.
// Инвариант: UsedCount <= UsageLimit, когда лимит задан; его держит
// хранилище условным инкрементом.
type Coupon struct {
	// Code хранится в верхнем регистре (NormalizeCouponCode).
	Code          string
	Type          DiscountType
	DiscountValue int64
	// MinOrderValueMinor — минимальный subtotal для применения купона.
	MinOrderValueMinor int64
	// MaxDiscountMinor — потолок скидки для percentage; 0 = без потолка.
	MaxDiscountMinor int64
	// UsageLimit — глобальный лимит применений; 0 = без лимита.
	UsageLimit int32
	UsedCount  int32
	// PerUserLimit — лимит применений одним пользователем; 0 = без лимита.
	PerUserLimit int32
	ExpiryDate   time.Time
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired сообщает, истёк ли купон к моменту now.
func (c *Coupon) Expired(now time.Time) bool {
	return !c.ExpiryDate.IsZero() && now.After(c.ExpiryDate)
}

// NormalizeCouponCode приводит код купона к каноническому виду.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CouponUsageEntry — факт применения купона в конкретном заказе.
type CouponUsageEntry struct {
	OrderID             string
	DiscountAmountMinor int64
	UsedAt              time.Time
}

// CouponUsageRecord — учёт применений купона одним пользователем.
// Ключ — пара (CouponCode, UserID). Инвариант: UsageCount <= PerUserLimit,
// когда лимит задан.
type CouponUsageRecord struct {
	CouponCode string
	UserID     string
	UsageCount int32
	Entries    []CouponUsageEntry
	UpdatedAt  time.Time
}

// EntryFor возвращает запись применения для заказа, если она есть.
func (r *CouponUsageRecord) EntryFor(orderID string) (CouponUsageEntry, bool) {
	for _, e := range r.Entries {
		if e.OrderID == orderID {
			return e, true
		}
	}
	return CouponUsageEntry{}, false
}
