package pricing

// Policy задаёт денежную политику чекаута. Значения приходят из конфигурации,
// алгоритм оценщика их не захардкоживает (в исходных маршрутах формулы
// расходились между файлами, здесь они — явные параметры).
type Policy struct {
	// TaxRateBP — ставка налога в базисных пунктах (825 = 8.25%).
	TaxRateBP int64
	// FlatShippingMinor — базовая стоимость доставки.
	FlatShippingMinor int64
	// FreeShippingThresholdMinor — subtotal, начиная с которого доставка бесплатна.
	// 0 = порога нет, доставка всегда платная.
	FreeShippingThresholdMinor int64
	// CODSurchargeMinor — фиксированная надбавка за оплату при получении.
	CODSurchargeMinor int64
	// CardFeeBP — комиссия за онлайн-оплату в базисных пунктах от subtotal.
	CardFeeBP int64
}

// DefaultPolicy возвращает политику по умолчанию для локальной разработки.
func DefaultPolicy() Policy {
	return Policy{
		TaxRateBP:                  1000,
		FlatShippingMinor:          500,
		FreeShippingThresholdMinor: 10000,
		CODSurchargeMinor:          300,
		CardFeeBP:                  0,
	}
}

// roundBP умножает сумму на ставку в базисных пунктах с округлением half-up.
func roundBP(amountMinor, bp int64) int64 {
	if amountMinor <= 0 || bp <= 0 {
		return 0
	}
	return (amountMinor*bp + 5000) / 10000
}

// roundPercent умножает сумму на процент с округлением half-up.
func roundPercent(amountMinor, percent int64) int64 {
	if amountMinor <= 0 || percent <= 0 {
		return 0
	}
	return (amountMinor*percent + 50) / 100
}
