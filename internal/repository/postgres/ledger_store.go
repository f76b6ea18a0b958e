package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
)

// LedgerStore runs each ledger operation in one database transaction.
// Positions read inside Update are locked FOR UPDATE until commit.
type LedgerStore struct {
	pool    *pgxpool.Pool
	retries int
}

func NewLedgerStore(pool *pgxpool.Pool, retries int) *LedgerStore {
	if retries < 0 {
		retries = 0
	}
	return &LedgerStore{pool: pool, retries: retries}
}

// Update retries serialization failures and deadlocks by re-running fn from
// the start, so every check inside it is evaluated again.
func (s *LedgerStore) Update(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
			return fn(ctx, newLedgerTx(tx, true))
		})
		if !retryable(err) {
			return err
		}
	}
	return err
}

func (s *LedgerStore) View(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		return fn(ctx, newLedgerTx(tx, false))
	})
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

type ledgerTx struct {
	q      querier
	locked bool
}

func newLedgerTx(q querier, locked bool) *ledgerTx {
	return &ledgerTx{q: q, locked: locked}
}

func (t *ledgerTx) Lending() ledger.LendingRepository {
	return &LendingRepository{q: t.q, locked: t.locked}
}

func (t *ledgerTx) Borrowing() ledger.BorrowingRepository {
	return &BorrowingRepository{q: t.q, locked: t.locked}
}

func (t *ledgerTx) Registry() ledger.PositionRegistry {
	return &RegistryRepository{q: t.q}
}

func (t *ledgerTx) Currency(code string) ledger.CurrencyLedger {
	return &BalanceRepository{q: t.q, currency: code}
}

func (t *ledgerTx) Events() ledger.EventSink {
	return &EventRepository{q: t.q}
}

func forUpdate(locked bool) string {
	if locked {
		return " FOR UPDATE"
	}
	return ""
}
