package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

// CouponRepository — PostgreSQL-хранилище купонов. Глобальный лимит
// применений держится условным инкрементом used_count.
type CouponRepository struct {
	db *sql.DB
}

// NewCouponRepository создаёт репозиторий купонов поверх Store.
func NewCouponRepository(store *Store) *CouponRepository {
	return &CouponRepository{db: store.DB()}
}

// GetByCode возвращает купон по нормализованному коду или ErrCouponNotFound.
func (r *CouponRepository) GetByCode(code string) (domain.Coupon, error) {
	ctx, cancel := withQueryTimeout()
	defer cancel()

	var (
		c          domain.Coupon
		dType      string
		expiryDate sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT code, discount_type, discount_value, min_order_value_minor,
		       max_discount_minor, usage_limit, used_count, per_user_limit,
		       expiry_date, is_active, created_at, updated_at
		FROM coupons
		WHERE code = $1
	`, domain.NormalizeCouponCode(code)).Scan(
		&c.Code, &dType, &c.DiscountValue, &c.MinOrderValueMinor,
		&c.MaxDiscountMinor, &c.UsageLimit, &c.UsedCount, &c.PerUserLimit,
		&expiryDate, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Coupon{}, domain.ErrCouponNotFound
		}
		return domain.Coupon{}, fmt.Errorf("query coupon: %w", err)
	}
	c.Type = domain.DiscountType(dType)
	if expiryDate.Valid {
		c.ExpiryDate = expiryDate.Time
	}
	return c, nil
}

// ConditionalIncrementUsage выполняет used_count = used_count + 1 с охраной
// used_count < usage_limit (usage_limit = 0 значит "без лимита").
func (r *CouponRepository) ConditionalIncrementUsage(code string) error {
	ctx, cancel := withQueryTimeout()
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE coupons
		SET used_count = used_count + 1, updated_at = NOW()
		WHERE code = $1 AND (usage_limit = 0 OR used_count < usage_limit)
	`, domain.NormalizeCouponCode(code))
	if err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment coupon usage rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1)`,
		domain.NormalizeCouponCode(code)).Scan(&exists); err != nil {
		return fmt.Errorf("check coupon existence: %w", err)
	}
	if !exists {
		return domain.ErrCouponNotFound
	}
	return domain.ErrCouponLimitExceeded
}

// DecrementUsage откатывает одно применение купона, не опускаясь ниже нуля.
func (r *CouponRepository) DecrementUsage(code string) error {
	ctx, cancel := withQueryTimeout()
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		UPDATE coupons
		SET used_count = used_count - 1, updated_at = NOW()
		WHERE code = $1 AND used_count > 0
	`, domain.NormalizeCouponCode(code)); err != nil {
		return fmt.Errorf("decrement coupon usage: %w", err)
	}
	return nil
}

var _ domain.CouponRepository = (*CouponRepository)(nil)
