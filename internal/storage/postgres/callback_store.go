package postgres

import (
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

// CallbackStore — дедупликация событий платёжного шлюза на PostgreSQL.
// INSERT ... ON CONFLICT DO NOTHING атомарно различает первое и повторное
// появление ключа.
type CallbackStore struct {
	db *sql.DB
}

// NewCallbackStore создаёт дедупликатор callback'ов поверх Store.
func NewCallbackStore(store *Store) *CallbackStore {
	return &CallbackStore{db: store.DB()}
}

// MarkProcessed помечает ключ события обработанным; false — повтор.
func (s *CallbackStore) MarkProcessed(key string) (bool, error) {
	ctx, cancel := withQueryTimeout()
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_callbacks (callback_key, processed_at)
		VALUES ($1, NOW())
		ON CONFLICT (callback_key) DO NOTHING
	`, key)
	if err != nil {
		return false, fmt.Errorf("mark callback processed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark callback rows affected: %w", err)
	}
	return affected > 0, nil
}

// Forget освобождает ключ события, исход которого не был применён.
func (s *CallbackStore) Forget(key string) error {
	ctx, cancel := withQueryTimeout()
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM processed_callbacks WHERE callback_key = $1
	`, key); err != nil {
		return fmt.Errorf("forget callback key: %w", err)
	}
	return nil
}

var _ domain.ProcessedCallbackStore = (*CallbackStore)(nil)
