package walletstore

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"virtual-exchange/internal/wallet"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(&DB{DB: db}), mock
}

func TestStore_Save_Upsert(t *testing.T) {
	store, mock := newTestStore(t)

	state := wallet.State{Cash: decimal.NewFromInt(10000), FeeRate: decimal.Zero}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wallet_snapshots")).
		WithArgs("run-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.Save(context.Background(), "run-1", state); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStore_Load_NotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT snapshot FROM wallet_snapshots")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Load(context.Background(), "missing")
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestStore_Load_RoundTrip(t *testing.T) {
	store, mock := newTestStore(t)

	state := wallet.State{Cash: decimal.NewFromInt(9950), FeeRate: decimal.NewFromFloat(0.001)}
	blob, err := marshalState(state)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	rows := sqlmock.NewRows([]string{"snapshot"}).AddRow(blob)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT snapshot FROM wallet_snapshots")).
		WithArgs("run-1").
		WillReturnRows(rows)

	got, err := store.Load(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Cash.Equal(state.Cash) {
		t.Fatalf("cash = %s, want %s", got.Cash, state.Cash)
	}
}
