package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

// couponRepositoryInMemory хранит купоны; инкремент применений — условный,
// под одним захватом мьютекса.
type couponRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Coupon
}

// NewCouponRepository возвращает in-memory хранилище купонов.
func NewCouponRepository() *couponRepositoryInMemory {
	return &couponRepositoryInMemory{
		items: make(map[string]domain.Coupon),
	}
}

// Put добавляет или заменяет купон (сидинг и тесты). Код нормализуется.
func (r *couponRepositoryInMemory) Put(coupon domain.Coupon) {
	r.mu.Lock()
	defer r.mu.Unlock()
	coupon.Code = domain.NormalizeCouponCode(coupon.Code)
	r.items[coupon.Code] = coupon
}

// GetByCode возвращает купон или ErrCouponNotFound.
func (r *couponRepositoryInMemory) GetByCode(code string) (domain.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	coupon, ok := r.items[domain.NormalizeCouponCode(code)]
	if !ok {
		return domain.Coupon{}, domain.ErrCouponNotFound
	}
	return coupon, nil
}

// ConditionalIncrementUsage инкрементирует used_count под охраной лимита.
func (r *couponRepositoryInMemory) ConditionalIncrementUsage(code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := domain.NormalizeCouponCode(code)
	coupon, ok := r.items[key]
	if !ok {
		return domain.ErrCouponNotFound
	}
	if coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit {
		return domain.ErrCouponLimitExceeded
	}
	coupon.UsedCount++
	coupon.UpdatedAt = time.Now().UTC()
	r.items[key] = coupon
	return nil
}

// DecrementUsage откатывает одно применение, не опуская счётчик ниже нуля.
func (r *couponRepositoryInMemory) DecrementUsage(code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := domain.NormalizeCouponCode(code)
	coupon, ok := r.items[key]
	if !ok {
		return domain.ErrCouponNotFound
	}
	if coupon.UsedCount > 0 {
		coupon.UsedCount--
	}
	coupon.UpdatedAt = time.Now().UTC()
	r.items[key] = coupon
	return nil
}

var _ domain.CouponRepository = (*couponRepositoryInMemory)(nil)
