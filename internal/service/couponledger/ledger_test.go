package couponledger

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
	"github.com/vladislavdragonenkov/ecom/internal/storage/memory"
)

func TestRecordUsageAndRollback(t *testing.T) {
	coupons := memory.NewCouponRepository()
	usage := memory.NewCouponUsageRepository()
	ledger := NewLedger(coupons, usage, nil)
	coupons.Put(domain.Coupon{Code: "SAVE50", Type: domain.DiscountFixed, DiscountValue: 50, UsageLimit: 10, PerUserLimit: 2, IsActive: true})

	if err := ledger.RecordUsage("SAVE50", "u1", "o1", 50); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	coupon, _ := coupons.GetByCode("SAVE50")
	if coupon.UsedCount != 1 {
		t.Fatalf("used_count = %d, want 1", coupon.UsedCount)
	}
	record, _ := usage.Get("SAVE50", "u1")
	if record.UsageCount != 1 {
		t.Fatalf("per-user count = %d, want 1", record.UsageCount)
	}

	if err := ledger.RollbackUsage("SAVE50", "u1", "o1"); err != nil {
		t.Fatalf("RollbackUsage: %v", err)
	}
	coupon, _ = coupons.GetByCode("SAVE50")
	if coupon.UsedCount != 0 {
		t.Fatalf("used_count after rollback = %d, want 0", coupon.UsedCount)
	}

	// Повторный откат — no-op, счётчики не уходят в минус.
	if err := ledger.RollbackUsage("SAVE50", "u1", "o1"); err != nil {
		t.Fatalf("second RollbackUsage: %v", err)
	}
	coupon, _ = coupons.GetByCode("SAVE50")
	if coupon.UsedCount != 0 {
		t.Fatalf("used_count after double rollback = %d, want 0", coupon.UsedCount)
	}
}

// Проигрыш пер-пользовательского лимита откатывает глобальный инкремент.
func TestRecordUsagePerUserLimitCompensatesGlobal(t *testing.T) {
	coupons := memory.NewCouponRepository()
	usage := memory.NewCouponUsageRepository()
	ledger := NewLedger(coupons, usage, nil)
	coupons.Put(domain.Coupon{Code: "ONCE", Type: domain.DiscountFixed, DiscountValue: 10, PerUserLimit: 1, IsActive: true})

	if err := ledger.RecordUsage("ONCE", "u1", "o1", 10); err != nil {
		t.Fatalf("first RecordUsage: %v", err)
	}
	err := ledger.RecordUsage("ONCE", "u1", "o2", 10)
	if !errors.Is(err, domain.ErrCouponUserLimitExceeded) {
		t.Fatalf("got %v, want per-user limit exceeded", err)
	}
	coupon, _ := coupons.GetByCode("ONCE")
	if coupon.UsedCount != 1 {
		t.Fatalf("used_count = %d, want 1 (global increment compensated)", coupon.UsedCount)
	}
	record, _ := usage.Get("ONCE", "u1")
	if record.UsageCount != 1 {
		t.Fatalf("per-user count = %d, want 1", record.UsageCount)
	}
}

func TestRecordUsageGlobalLimit(t *testing.T) {
	coupons := memory.NewCouponRepository()
	usage := memory.NewCouponUsageRepository()
	ledger := NewLedger(coupons, usage, nil)
	coupons.Put(domain.Coupon{Code: "LIM", Type: domain.DiscountFixed, DiscountValue: 10, UsageLimit: 1, IsActive: true})

	if err := ledger.RecordUsage("LIM", "u1", "o1", 10); err != nil {
		t.Fatalf("first RecordUsage: %v", err)
	}
	err := ledger.RecordUsage("LIM", "u2", "o2", 10)
	if !errors.Is(err, domain.ErrCouponLimitExceeded) {
		t.Fatalf("got %v, want limit exceeded", err)
	}
}

func TestRecordUsageUnknownCoupon(t *testing.T) {
	coupons := memory.NewCouponRepository()
	usage := memory.NewCouponUsageRepository()
	ledger := NewLedger(coupons, usage, nil)

	if err := ledger.RecordUsage("GHOST", "u1", "o1", 10); !errors.Is(err, domain.ErrCouponNotFound) {
		t.Fatalf("got %v, want coupon not found", err)
	}
}
