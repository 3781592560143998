package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

// OrderRepository — PostgreSQL-хранилище заказов. Optimistic locking
// реализован условным UPDATE по (id, version); журнал статусов лежит в
// отдельной append-only таблице с позиционным ключом.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт репозиторий заказов поверх Store.
func NewOrderRepository(store *Store) *OrderRepository {
	return &OrderRepository{db: store.DB()}
}

// Create сохраняет новый заказ вместе с позициями и журналом статусов
// одной транзакцией.
func (r *OrderRepository) Create(order domain.Order) error {
	ctx, cancel := withQueryTimeout()
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create order tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, order_number, user_id, status, payment_status, payment_method,
			coupon_code, payment_ref, tracking_number,
			subtotal_minor, discount_minor, shipping_minor, tax_minor,
			processing_fee_minor, total_minor,
			stock_released, coupon_rolled_back, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`,
		order.ID, order.OrderNumber, order.UserID,
		string(order.Status), string(order.PaymentStatus), string(order.Method),
		order.CouponCode, order.PaymentRef, order.TrackingNumber,
		order.Pricing.SubtotalMinor, order.Pricing.DiscountMinor, order.Pricing.ShippingMinor,
		order.Pricing.TaxMinor, order.Pricing.ProcessingFeeMinor, order.Pricing.TotalMinor,
		order.StockReleased, order.CouponRolledBack, order.Version,
		order.CreatedAt, order.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, product_id, name, unit_price_minor, qty, line_total_minor)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, order.ID, i, item.ProductID, item.Name, item.UnitPriceMinor, item.Qty, item.LineTotalMinor); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := insertHistory(ctx, tx, order.ID, order.StatusHistory); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}
	return nil
}

// Get возвращает заказ по идентификатору или ErrOrderNotFound.
func (r *OrderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := withQueryTimeout()
	defer cancel()

	return r.getBy(ctx, `WHERE id = $1`, id)
}

// GetByNumber возвращает заказ по человекочитаемому номеру.
func (r *OrderRepository) GetByNumber(orderNumber string) (domain.Order, error) {
	ctx, cancel := withQueryTimeout()
	defer cancel()

	return r.getBy(ctx, `WHERE order_number = $1`, orderNumber)
}

const orderColumns = `
	id, order_number, user_id, status, payment_status, payment_method,
	coupon_code, payment_ref, tracking_number,
	subtotal_minor, discount_minor, shipping_minor, tax_minor,
	processing_fee_minor, total_minor,
	stock_released, coupon_rolled_back, version, created_at, updated_at`

func (r *OrderRepository) getBy(ctx context.Context, where string, arg any) (domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+orderColumns+` FROM orders `+where, arg)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("query order: %w", err)
	}

	if err := r.loadItems(ctx, &order); err != nil {
		return domain.Order{}, err
	}
	if err := r.loadHistory(ctx, &order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// ListByUser возвращает заказы пользователя, новые первыми.
func (r *OrderRepository) ListByUser(userID string, limit int) ([]domain.Order, error) {
	ctx, cancel := withQueryTimeout()
	defer cancel()

	query := `SELECT` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders by user: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	for i := range orders {
		if err := r.loadItems(ctx, &orders[i]); err != nil {
			return nil, err
		}
		if err := r.loadHistory(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// Save применяет обновления заказа с охраной по версии. Проигрыш гонки —
// ErrOrderVersionConflict; вызывающий перечитывает заказ и повторяет.
// Журнал статусов только дописывается: существующие позиции не трогаются.
func (r *OrderRepository) Save(order domain.Order) error {
	ctx, cancel := withQueryTimeout()
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save order tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET
			status = $3, payment_status = $4,
			coupon_code = $5, payment_ref = $6, tracking_number = $7,
			stock_released = $8, coupon_rolled_back = $9,
			version = version + 1, updated_at = $10
		WHERE id = $1 AND version = $2
	`,
		order.ID, order.Version,
		string(order.Status), string(order.PaymentStatus),
		order.CouponCode, order.PaymentRef, order.TrackingNumber,
		order.StockReleased, order.CouponRolledBack,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check order existence: %w", err)
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}

	if err := insertHistory(ctx, tx, order.ID, order.StatusHistory); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save order: %w", err)
	}
	return nil
}

// insertHistory дописывает новые записи журнала. ON CONFLICT DO NOTHING
// делает запись идемпотентной: уже сохранённые позиции не переписываются.
func insertHistory(ctx context.Context, tx *sql.Tx, orderID string, history []domain.StatusChange) error {
	for i, change := range history {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_status_history (order_id, position, status, changed_at, note, actor)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (order_id, position) DO NOTHING
		`, orderID, i, string(change.Status), change.At, change.Note, change.Actor); err != nil {
			return fmt.Errorf("insert status history: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order                     domain.Order
		status, payStatus, method string
	)
	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.UserID,
		&status, &payStatus, &method,
		&order.CouponCode, &order.PaymentRef, &order.TrackingNumber,
		&order.Pricing.SubtotalMinor, &order.Pricing.DiscountMinor, &order.Pricing.ShippingMinor,
		&order.Pricing.TaxMinor, &order.Pricing.ProcessingFeeMinor, &order.Pricing.TotalMinor,
		&order.StockReleased, &order.CouponRolledBack, &order.Version,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.PaymentStatus = domain.PaymentStatus(payStatus)
	order.Method = domain.PaymentMethod(method)
	return order, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, order *domain.Order) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, name, unit_price_minor, qty, line_total_minor
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`, order.ID)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.UnitPriceMinor, &item.Qty, &item.LineTotalMinor); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	return rows.Err()
}

func (r *OrderRepository) loadHistory(ctx context.Context, order *domain.Order) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, changed_at, note, actor
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY position
	`, order.ID)
	if err != nil {
		return fmt.Errorf("query status history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			change domain.StatusChange
			status string
		)
		if err := rows.Scan(&status, &change.At, &change.Note, &change.Actor); err != nil {
			return fmt.Errorf("scan status history: %w", err)
		}
		change.Status = domain.OrderStatus(status)
		order.StatusHistory = append(order.StatusHistory, change)
	}
	return rows.Err()
}

var _ domain.OrderRepository = (*OrderRepository)(nil)
