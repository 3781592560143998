package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

// ProductRepository — PostgreSQL-хранилище каталога. Остаток меняется
// только атомарными условными UPDATE, инвариант stock >= 0 держит база.
type ProductRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт репозиторий каталога поверх Store.
func NewProductRepository(store *Store) *ProductRepository {
	return &ProductRepository{db: store.DB()}
}

// Get возвращает товар или ErrProductNotFound.
func (r *ProductRepository) Get(id string) (domain.Product, error) {
	ctx, cancel := withQueryTimeout()
	defer cancel()

	var p domain.Product
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, price_minor, stock, is_active, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.PriceMinor, &p.Stock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("query product: %w", err)
	}
	return p, nil
}

// ConditionalDecrementStock списывает qty единиц одним условным UPDATE.
// Ноль затронутых строк означает либо нехватку остатка, либо отсутствие
// товара; различаем дочитыванием.
func (r *ProductRepository) ConditionalDecrementStock(id string, qty int32) error {
	ctx, cancel := withQueryTimeout()
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
	`, id, qty)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement stock rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var available int32
	err = r.db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, id).Scan(&available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrProductNotFound
		}
		return fmt.Errorf("query stock: %w", err)
	}
	return &domain.InsufficientStockError{ProductID: id, Available: available, Requested: qty}
}

// IncrementStock возвращает qty единиц в остаток (компенсация).
func (r *ProductRepository) IncrementStock(id string, qty int32) error {
	ctx, cancel := withQueryTimeout()
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1
	`, id, qty)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment stock rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

var _ domain.ProductRepository = (*ProductRepository)(nil)
