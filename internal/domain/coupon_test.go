package domain_test

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

func TestNormalizeCouponCode(t *testing.T) {
	if got := domain.NormalizeCouponCode("  save50 "); got != "SAVE50" {
		t.Fatalf("expected SAVE50, got %q", got)
	}
}

func TestCouponExpired(t *testing.T) {
	now := time.Now().UTC()

	c := domain.Coupon{Code: "SAVE50", ExpiryDate: now.Add(time.Hour)}
	if c.Expired(now) {
		t.Fatal("coupon with future expiry reported as expired")
	}

	c.ExpiryDate = now.Add(-time.Hour)
	if !c.Expired(now) {
		t.Fatal("coupon with past expiry not reported as expired")
	}

	// Нулевая дата — бессрочный купон.
	c.ExpiryDate = time.Time{}
	if c.Expired(now) {
		t.Fatal("coupon without expiry reported as expired")
	}
}

func TestCouponUsageRecord_EntryFor(t *testing.T) {
	rec := domain.CouponUsageRecord{
		CouponCode: "SAVE50",
		UserID:     "user-1",
		UsageCount: 1,
		Entries: []domain.CouponUsageEntry{
			{OrderID: "order-1", DiscountAmountMinor: 50, UsedAt: time.Now().UTC()},
		},
	}

	if _, ok := rec.EntryFor("order-1"); !ok {
		t.Fatal("expected entry for order-1")
	}
	if _, ok := rec.EntryFor("order-2"); ok {
		t.Fatal("unexpected entry for order-2")
	}
}
