package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

// productRepositoryInMemory хранит товары и выполняет атомарные операции
// над остатком под общим мьютексом — эквивалент store-level CAS.
type productRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Product
}

// NewProductRepository возвращает in-memory каталог для разработки и тестов.
func NewProductRepository() *productRepositoryInMemory {
	return &productRepositoryInMemory{
		items: make(map[string]domain.Product),
	}
}

// Put добавляет или заменяет товар (используется в тестах и сидинге).
func (r *productRepositoryInMemory) Put(product domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[product.ID] = product
}

// Get возвращает товар или ErrProductNotFound.
func (r *productRepositoryInMemory) Get(id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// ConditionalDecrementStock выполняет stock = stock - qty под охраной stock >= qty.
// Чтение и запись происходят под одним захватом мьютекса, поэтому два
// конкурентных чекаута не могут увести остаток в минус.
func (r *productRepositoryInMemory) ConditionalDecrementStock(id string, qty int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	if product.Stock < qty {
		return &domain.InsufficientStockError{
			ProductID: id,
			Available: product.Stock,
			Requested: qty,
		}
	}
	product.Stock -= qty
	r.items[id] = product
	return nil
}

// IncrementStock возвращает qty единиц в остаток.
func (r *productRepositoryInMemory) IncrementStock(id string, qty int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.Stock += qty
	r.items[id] = product
	return nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
