package domain

// Типы событий, попадающих в transactional outbox. Имена следуют схеме
// "<агрегат>.<что_случилось>" и образуют контракт с консьюмерами брокера.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderCancelled     = "order.cancelled"
	EventStockReleased      = "inventory.stock_released"
	EventCouponRolledBack   = "coupon.rolled_back"
)
