package memory

import (
	"errors"
	"sync"
	"testing"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

func TestCouponConditionalIncrement(t *testing.T) {
	repo := NewCouponRepository()
	repo.Put(domain.Coupon{Code: "save50", Type: domain.DiscountFixed, DiscountValue: 50, UsageLimit: 2, IsActive: true})

	// Код нормализован при записи.
	coupon, err := repo.GetByCode("SAVE50")
	if err != nil {
		t.Fatalf("GetByCode: %v", err)
	}
	if coupon.Code != "SAVE50" {
		t.Fatalf("code = %q, want SAVE50", coupon.Code)
	}

	for i := 0; i < 2; i++ {
		if err := repo.ConditionalIncrementUsage("SAVE50"); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}
	if err := repo.ConditionalIncrementUsage("SAVE50"); !errors.Is(err, domain.ErrCouponLimitExceeded) {
		t.Fatalf("over limit: got %v, want limit exceeded", err)
	}

	if err := repo.DecrementUsage("SAVE50"); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if err := repo.ConditionalIncrementUsage("SAVE50"); err != nil {
		t.Fatalf("increment after rollback: %v", err)
	}
}

// Глобальный лимит не превышается гонкой: 20 конкурентных применений
// при лимите 5 дают ровно 5 успешных.
func TestCouponUsageLimitUnderConcurrency(t *testing.T) {
	const (
		limit    = 5
		attempts = 20
	)

	repo := NewCouponRepository()
	repo.Put(domain.Coupon{Code: "LIMITED", Type: domain.DiscountFixed, DiscountValue: 100, UsageLimit: limit, IsActive: true})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.ConditionalIncrementUsage("LIMITED"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != limit {
		t.Fatalf("succeeded = %d, want %d", succeeded, limit)
	}
	coupon, _ := repo.GetByCode("LIMITED")
	if coupon.UsedCount != limit {
		t.Fatalf("used_count = %d, want %d", coupon.UsedCount, limit)
	}
}

func TestCouponDecrementFloorsAtZero(t *testing.T) {
	repo := NewCouponRepository()
	repo.Put(domain.Coupon{Code: "ZERO", Type: domain.DiscountFixed, DiscountValue: 10, IsActive: true})

	if err := repo.DecrementUsage("ZERO"); err != nil {
		t.Fatalf("decrement at zero: %v", err)
	}
	coupon, _ := repo.GetByCode("ZERO")
	if coupon.UsedCount != 0 {
		t.Fatalf("used_count = %d, want 0", coupon.UsedCount)
	}
}
