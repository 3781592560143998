package domain

import "time"

// OrderStatus описывает жизненный цикл заказа в движке.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, ожидаем подтверждение оплаты.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — оплата подтверждена (или COD одобрен персоналом).
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing — заказ собирается на складе.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ доставлен клиенту (терминальный успех).
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusPaymentFailed — провайдер отклонил оплату, допустим retry или отмена.
	OrderStatusPaymentFailed OrderStatus = "payment_failed"
	// OrderStatusCancelled — заказ отменён (терминальный).
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus описывает состояние оплаты заказа.
type PaymentStatus string

const (
	PaymentStatusAwaiting   PaymentStatus = "awaiting_payment"
	PaymentStatusPendingCOD PaymentStatus = "pending_cod"
	PaymentStatusPaid       PaymentStatus = "paid"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// PaymentMethod задаёт способ оплаты, выбранный на чекауте.
type PaymentMethod string

const (
	// PaymentMethodCard — онлайн-оплата через платёжный шлюз.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodCOD — оплата при получении; заказ прогрессирует без callback.
	PaymentMethodCOD PaymentMethod = "cod"
)

// transitions — граф допустимых переходов статусов.
// Терминальные статусы (delivered, cancelled) не имеют исходящих рёбер.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:       {OrderStatusConfirmed, OrderStatusPaymentFailed, OrderStatusCancelled},
	OrderStatusConfirmed:     {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing:    {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:       {OrderStatusDelivered},
	OrderStatusPaymentFailed: {OrderStatusPending, OrderStatusCancelled},
}

// CanTransition сообщает, допустим ли переход from → to.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal возвращает true для статусов, из которых переходы запрещены.
func IsTerminal(status OrderStatus) bool {
	return status == OrderStatusDelivered || status == OrderStatusCancelled
}

// cancellable — статусы, из которых разрешена явная отмена заказа.
var cancellable = map[OrderStatus]bool{
	OrderStatusPending:       true,
	OrderStatusConfirmed:     true,
	OrderStatusProcessing:    true,
	OrderStatusPaymentFailed: true,
}

// IsCancellable сообщает, можно ли отменить заказ из данного статуса.
func IsCancellable(status OrderStatus) bool {
	return cancellable[status]
}

// OrderItem — одна позиция заказа. Цена фиксируется в момент создания
// заказа и после этого не перечитывается из каталога.
type OrderItem struct {
	ProductID string
	Name      string
	// UnitPriceMinor — цена за единицу в минимальных денежных единицах.
	UnitPriceMinor int64
	Qty            int32
	// LineTotalMinor = UnitPriceMinor * Qty, неизменно после создания.
	LineTotalMinor int64
}

// Pricing — разложение итоговой суммы заказа.
// Инвариант: TotalMinor = SubtotalMinor - DiscountMinor + ShippingMinor + TaxMinor + ProcessingFeeMinor.
type Pricing struct {
	SubtotalMinor      int64
	DiscountMinor      int64
	ShippingMinor      int64
	TaxMinor           int64
	ProcessingFeeMinor int64
	TotalMinor         int64
}

// StatusChange — запись append-only журнала статусов заказа.
type StatusChange struct {
	Status OrderStatus
	At     time.Time
	Note   string
	// Actor — кто инициировал переход: uid клиента, uid сотрудника или "gateway".
	Actor string
}

// Order агрегирует состояние заказа, его позиции и журнал статусов.
type Order struct {
	ID          string
	OrderNumber string
	UserID      string
	Items       []OrderItem
	Pricing     Pricing

	Status        OrderStatus
	PaymentStatus PaymentStatus
	Method        PaymentMethod

	// CouponCode — применённый купон (пустая строка, если купона не было).
	CouponCode string
	// PaymentRef — идентификатор транзакции, выданный шлюзом при инициации оплаты.
	PaymentRef string

	StatusHistory  []StatusChange
	TrackingNumber string

	// StockReleased гарантирует не более одного возврата стока на заказ.
	StockReleased bool
	// CouponRolledBack гарантирует не более одного отката купона на заказ.
	CouponRolledBack bool

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AppendHistory добавляет запись в журнал статусов. Журнал только растёт.
func (o *Order) AppendHistory(status OrderStatus, at time.Time, note, actor string) {
	o.StatusHistory = append(o.StatusHistory, StatusChange{
		Status: status,
		At:     at,
		Note:   note,
		Actor:  actor,
	})
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if o.OrderNumber == "" {
		errs = append(errs, ErrOrderNumberRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	// Сверяем позиции: line total = qty * unit price, и их сумму с subtotal.
	var subtotal int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		if item.LineTotalMinor != int64(item.Qty)*item.UnitPriceMinor {
			errs = append(errs, ErrLineTotalMismatch)
		}
		subtotal += item.LineTotalMinor
	}
	if subtotal != o.Pricing.SubtotalMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	if o.Pricing.DiscountMinor < 0 || o.Pricing.DiscountMinor > o.Pricing.SubtotalMinor {
		errs = append(errs, ErrDiscountInvalid)
	}

	// Итог должен воспроизводиться из сохранённых полей.
	want := o.Pricing.SubtotalMinor - o.Pricing.DiscountMinor +
		o.Pricing.ShippingMinor + o.Pricing.TaxMinor + o.Pricing.ProcessingFeeMinor
	if o.Pricing.TotalMinor != want {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
