package domain

import "time"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// GetByNumber возвращает заказ по человекочитаемому номеру.
	GetByNumber(orderNumber string) (Order, error)
	// ListByUser возвращает заказы пользователя с опциональным ограничением на количество.
	ListByUser(userID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	// Записи журнала статусов только добавляются, существующие не переписываются.
	Save(order Order) error
}

// ProductRepository — каталог как внешний коллаборатор: чтение товара
// и атомарные операции над остатком.
type ProductRepository interface {
	// Get возвращает товар или ErrProductNotFound.
	Get(id string) (Product, error)
	// ConditionalDecrementStock выполняет атомарный stock = stock - qty
	// с охраной stock >= qty; при нехватке возвращает *InsufficientStockError.
	ConditionalDecrementStock(id string, qty int32) error
	// IncrementStock возвращает qty единиц в остаток (компенсация).
	IncrementStock(id string, qty int32) error
}

// CouponRepository хранит купоны и держит глобальный лимит применений.
type CouponRepository interface {
	// GetByCode возвращает купон по нормализованному коду или ErrCouponNotFound.
	GetByCode(code string) (Coupon, error)
	// ConditionalIncrementUsage выполняет атомарный used_count = used_count + 1
	// с охраной used_count < usage_limit (если лимит задан);
	// при исчерпании возвращает ErrCouponLimitExceeded.
	ConditionalIncrementUsage(code string) error
	// DecrementUsage откатывает одно применение купона (не ниже нуля).
	DecrementUsage(code string) error
}

// CouponUsageRepository ведёт учёт применений купона по пользователям.
type CouponUsageRepository interface {
	// Get возвращает запись (code, userID); отсутствие записи — не ошибка,
	// возвращается запись с нулевым счётчиком.
	Get(code, userID string) (CouponUsageRecord, error)
	// ConditionalIncrement выполняет атомарный usage_count + 1 с охраной
	// usage_count < perUserLimit (если лимит задан) и добавляет entry;
	// при исчерпании возвращает ErrCouponUserLimitExceeded.
	ConditionalIncrement(code, userID string, perUserLimit int32, entry CouponUsageEntry) error
	// RemoveEntry удаляет запись применения для заказа и уменьшает счётчик.
	// Если записи для orderID нет — no-op, возвращает removed=false.
	RemoveEntry(code, userID, orderID string) (removed bool, err error)
}

// PaymentGateway описывает инициацию оплаты у внешнего шлюза.
// Подтверждение приходит асинхронным callback'ом (PaymentCallback).
type PaymentGateway interface {
	// InitiatePayment запрашивает списание и возвращает идентификатор транзакции.
	InitiatePayment(orderID string, amountMinor int64, currency string) (transactionID string, err error)
}

// PaymentOutcome — исход платежа, сообщённый шлюзом.
type PaymentOutcome string

const (
	PaymentOutcomeSuccess PaymentOutcome = "success"
	PaymentOutcomeFailure PaymentOutcome = "failure"
)

// PaymentCallback — уже верифицированное событие платёжного шлюза.
type PaymentCallback struct {
	TransactionID string
	OrderID       string
	Outcome       PaymentOutcome
	FailureReason string
}

// ProcessedCallbackStore — хранилище обработанных событий шлюза для дедупликации.
type ProcessedCallbackStore interface {
	// MarkProcessed атомарно помечает ключ события обработанным.
	// Возвращает false, если событие уже встречалось.
	MarkProcessed(key string) (first bool, err error)
	// Forget освобождает ключ, когда исход так и не был применён:
	// ретрай шлюза не должен быть проглочен как дубль.
	Forget(key string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
