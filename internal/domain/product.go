package domain

import "time"

// Product — товар каталога. Движок читает цену только на чекауте;
// для уже созданных заказов авторитетна цена, зафиксированная в позициях.
type Product struct {
	ID         string
	Name       string
	PriceMinor int64
	// Stock — доступный остаток; инвариант stock >= 0 держит хранилище
	// условным декрементом, а не приложение.
	Stock     int32
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
