package inventory

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

// Ledger владеет остатками: резервирует сток под заказ и возвращает его
// при компенсациях. Хранилище не даёт мультидокументной атомарности,
// поэтому резерв — это спекулятивные условные декременты с откатом
// уже применённых при первой неудаче (saga-style).
type Ledger struct {
	products domain.ProductRepository
	logger   *log.Entry
}

// NewLedger создаёт леджер поверх каталожного репозитория.
func NewLedger(products domain.ProductRepository, logger *log.Entry) *Ledger {
	if logger == nil {
		logger = log.WithField("component", "inventory")
	}
	return &Ledger{products: products, logger: logger}
}

// Reserve атомарно (на весь заказ) списывает остатки: либо каждый товар
// уменьшен на своё количество, либо ни один. Частичный резерв запрещён.
func (l *Ledger) Reserve(items []domain.OrderItem) error {
	applied := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		if err := l.products.ConditionalDecrementStock(item.ProductID, item.Qty); err != nil {
			l.rollback(applied)
			return fmt.Errorf("reserve %s: %w", item.ProductID, err)
		}
		applied = append(applied, item)
	}
	return nil
}

// ReleaseQuantities возвращает количества в остаток. Идемпотентность
// на уровне заказа обеспечивает флаг StockReleased у самого заказа,
// поэтому здесь — чистые инкременты.
func (l *Ledger) ReleaseQuantities(items []domain.OrderItem) error {
	var firstErr error
	for _, item := range items {
		if err := l.products.IncrementStock(item.ProductID, item.Qty); err != nil {
			l.logger.WithError(err).WithField("product_id", item.ProductID).Error("release increment failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// rollback возвращает уже списанные количества после неудачного резерва.
func (l *Ledger) rollback(applied []domain.OrderItem) {
	for _, item := range applied {
		if err := l.products.IncrementStock(item.ProductID, item.Qty); err != nil {
			// Компенсацию нельзя молча терять: остаток занижен без заказа.
			l.logger.WithError(err).WithFields(log.Fields{
				"product_id": item.ProductID,
				"qty":        item.Qty,
			}).Error("compensating increment failed, stock is understated")
		}
	}
}
