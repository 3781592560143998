package postgres

import (
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

// CouponUsageRepository — PostgreSQL-учёт применений купона по пользователям.
// Счётчик и записи применений лежат в разных таблицах, но меняются одной
// транзакцией.
type CouponUsageRepository struct {
	db *sql.DB
}

// NewCouponUsageRepository создаёт репозиторий применений поверх Store.
func NewCouponUsageRepository(store *Store) *CouponUsageRepository {
	return &CouponUsageRepository{db: store.DB()}
}

// Get возвращает запись (code, userID); отсутствие — запись с нулевым счётчиком.
func (r *CouponUsageRepository) Get(code, userID string) (domain.CouponUsageRecord, error) {
	ctx, cancel := withQueryTimeout()
	defer cancel()

	code = domain.NormalizeCouponCode(code)
	record := domain.CouponUsageRecord{CouponCode: code, UserID: userID}

	err := r.db.QueryRowContext(ctx, `
		SELECT usage_count, updated_at FROM coupon_usage
		WHERE coupon_code = $1 AND user_id = $2
	`, code, userID).Scan(&record.UsageCount, &record.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return record, nil
		}
		return domain.CouponUsageRecord{}, fmt.Errorf("query coupon usage: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, discount_amount_minor, used_at
		FROM coupon_usage_entries
		WHERE coupon_code = $1 AND user_id = $2
		ORDER BY used_at
	`, code, userID)
	if err != nil {
		return domain.CouponUsageRecord{}, fmt.Errorf("query coupon usage entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry domain.CouponUsageEntry
		if err := rows.Scan(&entry.OrderID, &entry.DiscountAmountMinor, &entry.UsedAt); err != nil {
			return domain.CouponUsageRecord{}, fmt.Errorf("scan coupon usage entry: %w", err)
		}
		record.Entries = append(record.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return domain.CouponUsageRecord{}, fmt.Errorf("iterate coupon usage entries: %w", err)
	}
	return record, nil
}

// ConditionalIncrement атомарно увеличивает счётчик применений с охраной
// per-user лимита и записывает entry. Upsert с условием в UPDATE-ветке
// отклоняет инкремент, когда лимит уже выбран (perUserLimit = 0 — без лимита).
func (r *CouponUsageRepository) ConditionalIncrement(code, userID string, perUserLimit int32, entry domain.CouponUsageEntry) error {
	ctx, cancel := withQueryTimeout()
	defer cancel()

	code = domain.NormalizeCouponCode(code)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin coupon usage tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO coupon_usage (coupon_code, user_id, usage_count, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (coupon_code, user_id) DO UPDATE
		SET usage_count = coupon_usage.usage_count + 1, updated_at = NOW()
		WHERE $3 = 0 OR coupon_usage.usage_count < $3
	`, code, userID, perUserLimit)
	if err != nil {
		return fmt.Errorf("increment coupon usage count: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment coupon usage rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrCouponUserLimitExceeded
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO coupon_usage_entries (coupon_code, user_id, order_id, discount_amount_minor, used_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (coupon_code, user_id, order_id) DO NOTHING
	`, code, userID, entry.OrderID, entry.DiscountAmountMinor, entry.UsedAt); err != nil {
		return fmt.Errorf("insert coupon usage entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit coupon usage tx: %w", err)
	}
	return nil
}

// RemoveEntry удаляет запись применения для заказа и уменьшает счётчик.
// Повторный вызов для того же заказа — no-op с removed=false.
func (r *CouponUsageRepository) RemoveEntry(code, userID, orderID string) (bool, error) {
	ctx, cancel := withQueryTimeout()
	defer cancel()

	code = domain.NormalizeCouponCode(code)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin remove entry tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM coupon_usage_entries
		WHERE coupon_code = $1 AND user_id = $2 AND order_id = $3
	`, code, userID, orderID)
	if err != nil {
		return false, fmt.Errorf("delete coupon usage entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete entry rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE coupon_usage
		SET usage_count = usage_count - 1, updated_at = NOW()
		WHERE coupon_code = $1 AND user_id = $2 AND usage_count > 0
	`, code, userID); err != nil {
		return false, fmt.Errorf("decrement coupon usage count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit remove entry tx: %w", err)
	}
	return true, nil
}

var _ domain.CouponUsageRepository = (*CouponUsageRepository)(nil)
