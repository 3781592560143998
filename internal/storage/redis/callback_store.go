package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

const (
	defaultKeyPrefix  = "ecom:callback:"
	defaultTTL        = 24 * time.Hour
	defaultOpTimeout  = 2 * time.Second
	defaultPingPeriod = 5 * time.Second
)

// CallbackStore — дедупликация событий платёжного шлюза на Redis.
// SET NX атомарно различает первое и повторное появление ключа; TTL
// ограничивает рост множества, шлюзы не ретраят сутками.
type CallbackStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCallbackStore создаёт дедупликатор callback'ов поверх Redis-клиента.
func NewCallbackStore(client *redis.Client) *CallbackStore {
	return &CallbackStore{client: client, ttl: defaultTTL}
}

// Open подключается к Redis и проверяет доступность.
func Open(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingPeriod)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// MarkProcessed помечает ключ события обработанным; false — повтор.
func (s *CallbackStore) MarkProcessed(key string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	first, err := s.client.SetNX(ctx, defaultKeyPrefix+key, time.Now().UTC().Format(time.RFC3339Nano), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark callback processed: %w", err)
	}
	return first, nil
}

// Forget освобождает ключ события, исход которого не был применён.
func (s *CallbackStore) Forget(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	if err := s.client.Del(ctx, defaultKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("forget callback key: %w", err)
	}
	return nil
}

var _ domain.ProcessedCallbackStore = (*CallbackStore)(nil)
