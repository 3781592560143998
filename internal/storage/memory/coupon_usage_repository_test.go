package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

func TestCouponUsagePerUserLimit(t *testing.T) {
	repo := NewCouponUsageRepository()
	now := time.Now().UTC()

	record, err := repo.Get("SAVE50", "u1")
	if err != nil {
		t.Fatalf("Get absent: %v", err)
	}
	if record.UsageCount != 0 {
		t.Fatalf("absent record count = %d, want 0", record.UsageCount)
	}

	for i, orderID := range []string{"o1", "o2"} {
		err := repo.ConditionalIncrement("SAVE50", "u1", 2, domain.CouponUsageEntry{
			OrderID: orderID, DiscountAmountMinor: 50, UsedAt: now,
		})
		if err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}

	err = repo.ConditionalIncrement("SAVE50", "u1", 2, domain.CouponUsageEntry{OrderID: "o3", UsedAt: now})
	if !errors.Is(err, domain.ErrCouponUserLimitExceeded) {
		t.Fatalf("over per-user limit: got %v", err)
	}

	// Другой пользователь лимитом первого не ограничен.
	if err := repo.ConditionalIncrement("SAVE50", "u2", 2, domain.CouponUsageEntry{OrderID: "o4", UsedAt: now}); err != nil {
		t.Fatalf("increment for another user: %v", err)
	}
}

func TestCouponUsageRemoveEntryIdempotent(t *testing.T) {
	repo := NewCouponUsageRepository()
	now := time.Now().UTC()

	if err := repo.ConditionalIncrement("SAVE50", "u1", 0, domain.CouponUsageEntry{
		OrderID: "o1", DiscountAmountMinor: 50, UsedAt: now,
	}); err != nil {
		t.Fatalf("increment: %v", err)
	}

	removed, err := repo.RemoveEntry("SAVE50", "u1", "o1")
	if err != nil || !removed {
		t.Fatalf("first remove: removed=%v err=%v", removed, err)
	}

	removed, err = repo.RemoveEntry("SAVE50", "u1", "o1")
	if err != nil || removed {
		t.Fatalf("second remove: removed=%v err=%v, want no-op", removed, err)
	}

	record, _ := repo.Get("SAVE50", "u1")
	if record.UsageCount != 0 || len(record.Entries) != 0 {
		t.Fatalf("record after rollback: %+v", record)
	}
}

func TestCouponUsageEntryLookup(t *testing.T) {
	repo := NewCouponUsageRepository()
	now := time.Now().UTC()

	_ = repo.ConditionalIncrement("SAVE50", "u1", 0, domain.CouponUsageEntry{
		OrderID: "o1", DiscountAmountMinor: 75, UsedAt: now,
	})

	record, _ := repo.Get("SAVE50", "u1")
	entry, ok := record.EntryFor("o1")
	if !ok || entry.DiscountAmountMinor != 75 {
		t.Fatalf("EntryFor: ok=%v entry=%+v", ok, entry)
	}
	if _, ok := record.EntryFor("o2"); ok {
		t.Fatal("EntryFor unknown order must be false")
	}
}
