package payment

import (
	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

// MockGateway — конфигурируемая заглушка PaymentGateway для тестов и
// локальной разработки.
type MockGateway struct {
	InitiateErr error

	InitiateCalls int
	LastOrderID   string
	LastAmount    int64
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// InitiatePayment возвращает сгенерированный transaction id и считает вызовы.
func (m *MockGateway) InitiatePayment(orderID string, amountMinor int64, currency string) (string, error) {
	m.InitiateCalls++
	m.LastOrderID = orderID
	m.LastAmount = amountMinor
	if m.InitiateErr != nil {
		return "", m.InitiateErr
	}
	return "txn-" + uuid.NewString(), nil
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
