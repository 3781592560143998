package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserRequired = errors.New("user_id is required")
	// Ошибка отсутствующего номера заказа.
	ErrOrderNumberRequired = errors.New("order_number is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия line total произведению qty * price.
	ErrLineTotalMismatch = errors.New("item line total does not match qty * unit price")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order total does not reproduce from pricing fields")
	// Ошибка недопустимой скидки (отрицательная или больше subtotal).
	ErrDiscountInvalid = errors.New("discount must be within [0, subtotal]")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound возвращается, если товар не найден в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrCouponNotFound возвращается, если купон не найден.
	ErrCouponNotFound = errors.New("coupon not found")

	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrConflict — конкурентный конфликт не разрешился за отведённые попытки.
	ErrConflict = errors.New("concurrent conflict, retry the operation")

	// ErrProductUnavailable — товар снят с продажи.
	ErrProductUnavailable = errors.New("product is unavailable")
	// ErrCouponInactive — купон деактивирован.
	ErrCouponInactive = errors.New("coupon is inactive")
	// ErrCouponExpired — срок действия купона истёк.
	ErrCouponExpired = errors.New("coupon has expired")
	// ErrCouponMinOrder — subtotal ниже минимальной суммы купона.
	ErrCouponMinOrder = errors.New("order subtotal is below coupon minimum")
	// ErrCouponLimitExceeded — исчерпан глобальный лимит применений купона.
	ErrCouponLimitExceeded = errors.New("coupon usage limit exceeded")
	// ErrCouponUserLimitExceeded — исчерпан лимит применений купона пользователем.
	ErrCouponUserLimitExceeded = errors.New("coupon per-user limit exceeded")

	// ErrOrderNotCancellable — отмена из shipped/delivered запрещена.
	ErrOrderNotCancellable = errors.New("order can no longer be cancelled")
	// ErrForbidden — заказ принадлежит другому пользователю либо не хватает роли.
	ErrForbidden = errors.New("operation is not permitted for this caller")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// InsufficientStockError возвращается условным декрементом стока,
// когда остатка не хватает на запрошенное количество.
type InsufficientStockError struct {
	ProductID string
	Available int32
	Requested int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available=%d requested=%d",
		e.ProductID, e.Available, e.Requested)
}

// InvalidTransitionError возвращается при попытке недопустимого перехода статусов.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order status transition %s -> %s", e.From, e.To)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// Kind — классификация ошибок для транспортного слоя.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindForbidden
	// KindGatewayAnomaly — поздние/повторные/противоречивые события шлюза;
	// логируются и подтверждаются, но не считаются ошибкой запроса.
	KindGatewayAnomaly
)

// KindOf сводит доменную ошибку к транспортной категории.
func KindOf(err error) Kind {
	var stockErr *InsufficientStockError
	var transErr *InvalidTransitionError

	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrCouponNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.As(err, &stockErr),
		errors.As(err, &transErr),
		errors.Is(err, ErrOrderNotCancellable),
		errors.Is(err, ErrCouponLimitExceeded),
		errors.Is(err, ErrCouponUserLimitExceeded),
		errors.Is(err, ErrOrderVersionConflict),
		errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrItemsRequired),
		errors.Is(err, ErrItemQtyInvalid),
		errors.Is(err, ErrItemPriceInvalid),
		errors.Is(err, ErrUserRequired),
		errors.Is(err, ErrProductUnavailable),
		errors.Is(err, ErrCouponInactive),
		errors.Is(err, ErrCouponExpired),
		errors.Is(err, ErrCouponMinOrder):
		return KindValidation
	default:
		return KindInternal
	}
}
