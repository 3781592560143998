package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
	"github.com/vladislavdragonenkov/ecom/internal/storage/memory"
	"github.com/vladislavdragonenkov/ecom/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/ecom/internal/storage/redis"
)

// dependencies — собранные хранилища и внешние подключения приложения.
type dependencies struct {
	orders    domain.OrderRepository
	products  domain.ProductRepository
	coupons   domain.CouponRepository
	usage     domain.CouponUsageRepository
	outbox    domain.OutboxRepository
	callbacks domain.ProcessedCallbackStore

	pg    *postgres.Store
	redis *goredis.Client
}

// buildDependencies выбирает реализации хранилищ: PostgreSQL при заданном
// DSN, иначе in-memory с демо-данными. Redis (если настроен) берёт на себя
// дедупликацию callback'ов вместо основного хранилища.
func buildDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*dependencies, error) {
	deps := &dependencies{}

	if cfg.PostgresDSN != "" {
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		deps.pg = store
		deps.orders = postgres.NewOrderRepository(store)
		deps.products = postgres.NewProductRepository(store)
		deps.coupons = postgres.NewCouponRepository(store)
		deps.usage = postgres.NewCouponUsageRepository(store)
		deps.outbox = postgres.NewOutboxRepository(store)
		deps.callbacks = postgres.NewCallbackStore(store)
		logger.Info("postgres storage initialized")
	} else {
		products := memory.NewProductRepository()
		coupons := memory.NewCouponRepository()
		seedDemoData(products, coupons)

		deps.orders = memory.NewOrderRepository()
		deps.products = products
		deps.coupons = coupons
		deps.usage = memory.NewCouponUsageRepository()
		deps.outbox = memory.NewOutboxRepository()
		deps.callbacks = memory.NewCallbackStore()
		logger.Warn("ECOM_POSTGRES_DSN is empty, using in-memory storage with demo data")
	}

	if cfg.RedisAddr != "" {
		client, err := redisstore.Open(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, callback dedup falls back to primary storage")
		} else {
			deps.redis = client
			deps.callbacks = redisstore.NewCallbackStore(client)
			logger.WithField("addr", cfg.RedisAddr).Info("redis callback dedup initialized")
		}
	}

	return deps, nil
}

func (d *dependencies) close(logger *log.Entry) {
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			logger.WithError(err).Warn("failed to close redis client")
		}
	}
	if d.pg != nil {
		if err := d.pg.Close(); err != nil {
			logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}

// seedDemoData наполняет in-memory каталог для локальной разработки.
func seedDemoData(products interface{ Put(domain.Product) }, coupons interface{ Put(domain.Coupon) }) {
	now := time.Now().UTC()
	products.Put(domain.Product{
		ID: "p-keyboard", Name: "Mechanical Keyboard", PriceMinor: 8999, Stock: 25,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	})
	products.Put(domain.Product{
		ID: "p-mouse", Name: "Wireless Mouse", PriceMinor: 2999, Stock: 40,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	})
	products.Put(domain.Product{
		ID: "p-monitor", Name: "27in Monitor", PriceMinor: 24999, Stock: 10,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	})

	coupons.Put(domain.Coupon{
		Code: "SAVE50", Type: domain.DiscountFixed, DiscountValue: 50,
		MinOrderValueMinor: 300, UsageLimit: 100, PerUserLimit: 2,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	})
	coupons.Put(domain.Coupon{
		Code: "TENOFF", Type: domain.DiscountPercentage, DiscountValue: 10,
		MaxDiscountMinor: 2000, IsActive: true, CreatedAt: now, UpdatedAt: now,
	})
}
