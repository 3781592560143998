package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

type usageKey struct {
	code   string
	userID string
}

// couponUsageRepositoryInMemory ведёт пер-пользовательский учёт применений купонов.
type couponUsageRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[usageKey]domain.CouponUsageRecord
}

// NewCouponUsageRepository возвращает in-memory реализацию CouponUsageRepository.
func NewCouponUsageRepository() *couponUsageRepositoryInMemory {
	return &couponUsageRepositoryInMemory{
		items: make(map[usageKey]domain.CouponUsageRecord),
	}
}

// Get возвращает запись учёта; отсутствие записи — нулевой счётчик, не ошибка.
func (r *couponUsageRepositoryInMemory) Get(code, userID string) (domain.CouponUsageRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := usageKey{code: domain.NormalizeCouponCode(code), userID: userID}
	record, ok := r.items[key]
	if !ok {
		return domain.CouponUsageRecord{CouponCode: key.code, UserID: userID}, nil
	}
	return cloneUsage(record), nil
}

// ConditionalIncrement инкрементирует счётчик под охраной perUserLimit
// и добавляет запись применения.
func (r *couponUsageRepositoryInMemory) ConditionalIncrement(code, userID string, perUserLimit int32, entry domain.CouponUsageEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := usageKey{code: domain.NormalizeCouponCode(code), userID: userID}
	record, ok := r.items[key]
	if !ok {
		record = domain.CouponUsageRecord{CouponCode: key.code, UserID: userID}
	}
	if perUserLimit > 0 && record.UsageCount >= perUserLimit {
		return domain.ErrCouponUserLimitExceeded
	}

	record.UsageCount++
	record.Entries = append(record.Entries, entry)
	record.UpdatedAt = time.Now().UTC()
	r.items[key] = record
	return nil
}

// RemoveEntry удаляет запись применения для заказа и уменьшает счётчик.
// Повторный вызов для того же заказа — no-op.
func (r *couponUsageRepositoryInMemory) RemoveEntry(code, userID, orderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := usageKey{code: domain.NormalizeCouponCode(code), userID: userID}
	record, ok := r.items[key]
	if !ok {
		return false, nil
	}

	for i, entry := range record.Entries {
		if entry.OrderID != orderID {
			continue
		}
		record.Entries = append(record.Entries[:i], record.Entries[i+1:]...)
		if record.UsageCount > 0 {
			record.UsageCount--
		}
		record.UpdatedAt = time.Now().UTC()
		r.items[key] = record
		return true, nil
	}
	return false, nil
}

func cloneUsage(record domain.CouponUsageRecord) domain.CouponUsageRecord {
	clone := record
	clone.Entries = append([]domain.CouponUsageEntry(nil), record.Entries...)
	return clone
}

var _ domain.CouponUsageRepository = (*couponUsageRepositoryInMemory)(nil)
