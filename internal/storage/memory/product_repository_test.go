package memory

import (
	"errors"
	"sync"
	"testing"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

func TestProductConditionalDecrement(t *testing.T) {
	repo := NewProductRepository()
	repo.Put(domain.Product{ID: "p1", Name: "Widget", PriceMinor: 1000, Stock: 3, IsActive: true})

	if err := repo.ConditionalDecrementStock("p1", 2); err != nil {
		t.Fatalf("decrement within stock: %v", err)
	}

	err := repo.ConditionalDecrementStock("p1", 2)
	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("got %v, want InsufficientStockError", err)
	}
	if stockErr.Available != 1 || stockErr.Requested != 2 {
		t.Fatalf("wrong error details: %+v", stockErr)
	}

	// Остаток не изменился после отклонённого декремента.
	product, _ := repo.Get("p1")
	if product.Stock != 1 {
		t.Fatalf("stock = %d, want 1", product.Stock)
	}

	if err := repo.IncrementStock("p1", 2); err != nil {
		t.Fatalf("increment: %v", err)
	}
	product, _ = repo.Get("p1")
	if product.Stock != 3 {
		t.Fatalf("stock after release = %d, want 3", product.Stock)
	}
}

// Перепродажа невозможна: при N единицах и N+k конкурентных покупателях
// успешных декрементов ровно N, остаток ровно ноль.
func TestProductNoOverselling(t *testing.T) {
	const (
		stock  = 5
		buyers = 8
	)

	repo := NewProductRepository()
	repo.Put(domain.Product{ID: "p1", Name: "Limited", PriceMinor: 1000, Stock: stock, IsActive: true})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.ConditionalDecrementStock("p1", 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != stock {
		t.Fatalf("succeeded = %d, want %d", succeeded, stock)
	}
	product, _ := repo.Get("p1")
	if product.Stock != 0 {
		t.Fatalf("stock = %d, want 0", product.Stock)
	}
}

func TestProductDecrementUnknown(t *testing.T) {
	repo := NewProductRepository()
	if err := repo.ConditionalDecrementStock("missing", 1); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}
