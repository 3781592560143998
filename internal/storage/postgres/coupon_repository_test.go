package postgres

import (
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

func TestConditionalIncrementUsageLimitExhausted(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewCouponRepository(store)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE coupons")).
		WithArgs("SAVE50").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("SAVE50").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	// Код нормализуется перед запросом.
	err := repo.ConditionalIncrementUsage("save50")
	if !errors.Is(err, domain.ErrCouponLimitExceeded) {
		t.Fatalf("got %v, want limit exceeded", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestConditionalIncrementUsageUnknownCoupon(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewCouponRepository(store)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE coupons")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("GHOST").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.ConditionalIncrementUsage("GHOST")
	if !errors.Is(err, domain.ErrCouponNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestConditionalIncrementUsageSuccess(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewCouponRepository(store)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE coupons")).
		WithArgs("SAVE50").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.ConditionalIncrementUsage("SAVE50"); err != nil {
		t.Fatalf("increment: %v", err)
	}
}

func TestCallbackStoreDedup(t *testing.T) {
	store, mock := newMockStore(t)
	cs := NewCallbackStore(store)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO processed_callbacks")).
		WithArgs("callback:txn-1:success").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO processed_callbacks")).
		WithArgs("callback:txn-1:success").
		WillReturnResult(sqlmock.NewResult(0, 0))

	first, err := cs.MarkProcessed("callback:txn-1:success")
	if err != nil || !first {
		t.Fatalf("first mark: first=%v err=%v", first, err)
	}
	again, err := cs.MarkProcessed("callback:txn-1:success")
	if err != nil || again {
		t.Fatalf("duplicate mark: first=%v err=%v", again, err)
	}

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM processed_callbacks")).
		WithArgs("callback:txn-1:success").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO processed_callbacks")).
		WithArgs("callback:txn-1:success").
		WillReturnResult(sqlmock.NewResult(0, 1))

	// После освобождения ключа событие снова первое.
	if err := cs.Forget("callback:txn-1:success"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	retried, err := cs.MarkProcessed("callback:txn-1:success")
	if err != nil || !retried {
		t.Fatalf("mark after forget: first=%v err=%v", retried, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
