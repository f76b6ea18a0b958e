package postgres_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/collateral"
	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
	"github.com/hendo420/P2PLendingPlatform/internal/jobs"
	"github.com/hendo420/P2PLendingPlatform/internal/oracle"
	"github.com/hendo420/P2PLendingPlatform/internal/repository/postgres"
	"github.com/hendo420/P2PLendingPlatform/internal/testutil"
)

func newPostgresService(t *testing.T) (*ledger.Service, *oracle.Static, *postgres.LedgerStore) {
	t.Helper()
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, pool)
	testutil.ResetTables(t, pool)

	rate, err := oracle.NewStatic(uint256.NewInt(1))
	require.NoError(t, err)
	store := postgres.NewLedgerStore(pool, 3)
	svc := ledger.NewService(store, rate, ledger.Config{
		Admin:           "admin",
		LoanCurrency:    "USDC",
		NativeCurrency:  "NATIVE",
		Reserve:         ledger.DefaultReserveAccount,
		ShortfallPolicy: collateral.ShortfallInsure,
	})
	ctx := context.Background()
	require.NoError(t, svc.Deposit(ctx, "admin", "alice", "USDC", uint256.NewInt(10_000)))
	require.NoError(t, svc.Deposit(ctx, "admin", "bob", "NATIVE", uint256.NewInt(100_000)))
	require.NoError(t, svc.Deposit(ctx, "admin", "bob", "USDC", uint256.NewInt(1_000)))
	require.NoError(t, svc.Deposit(ctx, "admin", ledger.DefaultReserveAccount, "USDC", uint256.NewInt(5_000)))
	return svc, rate, store
}

func TestPostgresLoanLifecycle(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	svc, _, _ := newPostgresService(t)

	lp, err := svc.CreateLendingPosition(ctx, "alice", uint256.NewInt(1000), 10)
	require.NoError(err)
	require.Equal(uint64(1), lp.ID)

	_, err = svc.TakeLoan(ctx, ledger.TakeLoanInput{LendingID: lp.ID, Amount: uint256.NewInt(500), Collateral: uint256.NewInt(833), Borrower: "bob"})
	require.ErrorIs(err, ledger.ErrInsufficientCollateral)

	bp, err := svc.TakeLoan(ctx, ledger.TakeLoanInput{LendingID: lp.ID, Amount: uint256.NewInt(500), Collateral: uint256.NewInt(834), Borrower: "bob"})
	require.NoError(err)
	require.Equal(uint64(2), bp.ID)
	require.Equal(uint64(550), bp.Due.Uint64())

	closed, err := svc.PayLoan(ctx, bp.ID, uint256.NewInt(500), "bob")
	require.NoError(err)
	require.False(closed)
	closed, err = svc.PayLoan(ctx, bp.ID, uint256.NewInt(50), "bob")
	require.NoError(err)
	require.True(closed)

	native, err := svc.Balance(ctx, "bob", "NATIVE")
	require.NoError(err)
	require.Equal(uint64(100_000), native.Uint64())
	_, err = svc.GetBorrowingPosition(ctx, bp.ID)
	require.ErrorIs(err, ledger.ErrNotFound)

	next, err := svc.CreateLendingPosition(ctx, "alice", uint256.NewInt(1), 0)
	require.NoError(err)
	require.Equal(uint64(3), next.ID)
}

func TestPostgresLiquidation(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	svc, rate, _ := newPostgresService(t)
	require.NoError(rate.SetRate(uint256.NewInt(10)))

	lp, err := svc.CreateLendingPosition(ctx, "alice", uint256.NewInt(1000), 10)
	require.NoError(err)
	bp, err := svc.TakeLoan(ctx, ledger.TakeLoanInput{LendingID: lp.ID, Amount: uint256.NewInt(500), Collateral: uint256.NewInt(100), Borrower: "bob"})
	require.NoError(err)

	_, err = svc.LiquidateLoan(ctx, bp.ID, "alice")
	require.ErrorIs(err, ledger.ErrCollateralStillSufficient)

	require.NoError(rate.SetRate(uint256.NewInt(2)))
	_, err = svc.LiquidateLoan(ctx, bp.ID, "bob")
	require.ErrorIs(err, ledger.ErrUnauthorized)

	res, err := svc.LiquidateLoan(ctx, bp.ID, "alice")
	require.NoError(err)
	require.Equal(uint64(550), res.Payout.RecoveredDue.Uint64())

	got, err := svc.GetLendingPosition(ctx, lp.ID)
	require.NoError(err)
	require.Equal(uint64(1050), got.Available.Uint64())
}

func TestPostgresConcurrentTakeLoan(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	svc, _, _ := newPostgresService(t)

	lp, err := svc.CreateLendingPosition(ctx, "alice", uint256.NewInt(1000), 0)
	require.NoError(err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.TakeLoan(ctx, ledger.TakeLoanInput{LendingID: lp.ID, Amount: uint256.NewInt(100), Collateral: uint256.NewInt(200), Borrower: "bob"})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ledger.ErrInsufficientLiquidity) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(10, ok)
	got, err := svc.GetLendingPosition(ctx, lp.ID)
	require.NoError(err)
	require.True(got.Available.IsZero())
}

func TestPostgresEventsFeedOutbox(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	svc, _, _ := newPostgresService(t)
	pool := testutil.NewTestPool(t)

	_, err := svc.CreateLendingPosition(ctx, "alice", uint256.NewInt(10), 0)
	require.NoError(err)

	events, err := postgres.NewEventRepository(pool).ListEventsSince(ctx, 0, 100)
	require.NoError(err)
	require.NotEmpty(events)
	last := events[len(events)-1]
	require.Equal(ledger.TopicLendingCreated, last.Topic)

	outbox := postgres.NewOutboxRepository(pool)
	claimed, err := outbox.ClaimPending(ctx, 100)
	require.NoError(err)
	require.Len(claimed, len(events))
	require.Equal(jobs.AnchorEventTopic, claimed[0].Topic)
	require.Equal(int32(1), claimed[0].Attempts)

	again, err := outbox.ClaimPending(ctx, 100)
	require.NoError(err)
	require.Empty(again)

	require.NoError(outbox.MarkRetry(ctx, claimed[0].ID, time.Now().Add(-time.Second), "rpc down"))
	retried, err := outbox.ClaimPending(ctx, 100)
	require.NoError(err)
	require.Len(retried, 1)
	require.Equal(int32(2), retried[0].Attempts)
	require.Equal("rpc down", retried[0].LastError)
}

func TestPostgresEventSeqFollowsCommitOrder(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, pool)
	testutil.ResetTables(t, pool)
	store := postgres.NewLedgerStore(pool, 0)
	events := postgres.NewEventRepository(pool)

	appendEvent := func(ctx context.Context, tx ledger.Tx, topic string) error {
		return tx.Events().Append(ctx, ledger.Event{ID: uuid.New(), Topic: topic, CreatedAt: time.Now().UTC()})
	}

	appended := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- store.Update(ctx, func(ctx context.Context, tx ledger.Tx) error {
			if err := appendEvent(ctx, tx, "test.first"); err != nil {
				return err
			}
			close(appended)
			<-release
			return nil
		})
	}()
	<-appended

	secondDone := make(chan error, 1)
	go func() {
		secondDone <- store.Update(ctx, func(ctx context.Context, tx ledger.Tx) error {
			return appendEvent(ctx, tx, "test.second")
		})
	}()

	select {
	case err := <-secondDone:
		t.Fatalf("second append committed while the first transaction was open: %v", err)
	case <-time.After(300 * time.Millisecond):
	}
	visible, err := events.ListEventsSince(ctx, 0, 10)
	require.NoError(err)
	require.Empty(visible)

	close(release)
	require.NoError(<-firstDone)
	require.NoError(<-secondDone)

	got, err := events.ListEventsSince(ctx, 0, 10)
	require.NoError(err)
	require.Len(got, 2)
	require.Equal("test.first", got[0].Topic)
	require.Equal(int64(1), got[0].Seq)
	require.Equal("test.second", got[1].Topic)
	require.Equal(int64(2), got[1].Seq)

	latest, err := events.LatestSeq(ctx)
	require.NoError(err)
	require.Equal(int64(2), latest)
}

func TestPostgresRolledBackEventLeavesNoGap(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, pool)
	testutil.ResetTables(t, pool)
	store := postgres.NewLedgerStore(pool, 0)

	boom := errors.New("boom")
	err := store.Update(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.Events().Append(ctx, ledger.Event{ID: uuid.New(), Topic: "test.rolled_back", CreatedAt: time.Now().UTC()}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(err, boom)
	require.NoError(store.Update(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.Events().Append(ctx, ledger.Event{ID: uuid.New(), Topic: "test.kept", CreatedAt: time.Now().UTC()})
	}))

	got, err := postgres.NewEventRepository(pool).ListEventsSince(ctx, 0, 10)
	require.NoError(err)
	require.Len(got, 1)
	require.Equal(int64(1), got[0].Seq)
	require.Equal("test.kept", got[0].Topic)
}
