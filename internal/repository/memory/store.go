// Package memory is a single-writer ledger store. Update holds the store lock
// for the whole operation and stages writes on copies until fn succeeds.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
)

var errReadOnly = errors.New("memory: write in read-only transaction")

type Store struct {
	mu        sync.RWMutex
	lending   map[uint64]*ledger.LendingPosition
	borrowing map[uint64]*ledger.BorrowingPosition
	balances  map[string]map[ledger.Account]*uint256.Int
	owners    map[uint64]ledger.Account
	minted    uint64
	events    []ledger.Event
	seq       int64
}

func NewStore() *Store {
	return &Store{
		lending:   map[uint64]*ledger.LendingPosition{},
		borrowing: map[uint64]*ledger.BorrowingPosition{},
		balances:  map[string]map[ledger.Account]*uint256.Int{},
		owners:    map[uint64]ledger.Account{},
	}
}

func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := newTx(s, true)
	if err := fn(ctx, t); err != nil {
		return err
	}
	t.commit()
	return nil
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, newTx(s, false))
}

// Ping satisfies readiness checks; the store is always available.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) LatestSeq(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.events) == 0 {
		return 0, nil
	}
	return s.events[len(s.events)-1].Seq, nil
}

// ListEventsSince returns committed events with Seq > after, oldest first.
func (s *Store) ListEventsSince(_ context.Context, after int64, limit int32) ([]ledger.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := sort.Search(len(s.events), func(i int) bool { return s.events[i].Seq > after })
	end := len(s.events)
	if limit > 0 && i+int(limit) < end {
		end = i + int(limit)
	}
	out := make([]ledger.Event, end-i)
	copy(out, s.events[i:end])
	return out, nil
}

type tx struct {
	s        *Store
	writable bool

	lending   map[uint64]*ledger.LendingPosition
	borrowing map[uint64]*ledger.BorrowingPosition
	deleted   map[uint64]bool
	balances  map[string]map[ledger.Account]*uint256.Int
	owners    map[uint64]ledger.Account
	burned    map[uint64]bool
	minted    uint64
	events    []ledger.Event
}

func newTx(s *Store, writable bool) *tx {
	return &tx{
		s:         s,
		writable:  writable,
		lending:   map[uint64]*ledger.LendingPosition{},
		borrowing: map[uint64]*ledger.BorrowingPosition{},
		deleted:   map[uint64]bool{},
		balances:  map[string]map[ledger.Account]*uint256.Int{},
		owners:    map[uint64]ledger.Account{},
		burned:    map[uint64]bool{},
		minted:    s.minted,
	}
}

func (t *tx) Lending() ledger.LendingRepository     { return lendingRepo{t} }
func (t *tx) Borrowing() ledger.BorrowingRepository { return borrowingRepo{t} }
func (t *tx) Registry() ledger.PositionRegistry     { return registry{t} }
func (t *tx) Currency(code string) ledger.CurrencyLedger {
	return currency{t: t, code: code}
}
func (t *tx) Events() ledger.EventSink { return eventSink{t} }

func (t *tx) commit() {
	s := t.s
	for id, p := range t.lending {
		s.lending[id] = p
	}
	for id, p := range t.borrowing {
		s.borrowing[id] = p
	}
	for id := range t.deleted {
		delete(s.borrowing, id)
	}
	for code, staged := range t.balances {
		book, ok := s.balances[code]
		if !ok {
			book = map[ledger.Account]*uint256.Int{}
			s.balances[code] = book
		}
		for acct, v := range staged {
			book[acct] = v
		}
	}
	for id, owner := range t.owners {
		s.owners[id] = owner
	}
	for id := range t.burned {
		delete(s.owners, id)
	}
	s.minted = t.minted
	for _, ev := range t.events {
		s.seq++
		ev.Seq = s.seq
		s.events = append(s.events, ev)
	}
}

type lendingRepo struct{ t *tx }

func (r lendingRepo) get(id uint64) (*ledger.LendingPosition, bool) {
	if p, ok := r.t.lending[id]; ok {
		return p, true
	}
	p, ok := r.t.s.lending[id]
	return p, ok
}

func (r lendingRepo) Get(_ context.Context, id uint64) (*ledger.LendingPosition, error) {
	p, ok := r.get(id)
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return p.Clone(), nil
}

func (r lendingRepo) Insert(_ context.Context, p *ledger.LendingPosition) error {
	if !r.t.writable {
		return errReadOnly
	}
	if _, ok := r.get(p.ID); ok {
		return errors.New("memory: duplicate lending position")
	}
	r.t.lending[p.ID] = p.Clone()
	return nil
}

func (r lendingRepo) Update(_ context.Context, p *ledger.LendingPosition) error {
	if !r.t.writable {
		return errReadOnly
	}
	if _, ok := r.get(p.ID); !ok {
		return ledger.ErrNotFound
	}
	r.t.lending[p.ID] = p.Clone()
	return nil
}

func (r lendingRepo) ListByLender(_ context.Context, lender ledger.Account) ([]ledger.LendingPosition, error) {
	var out []ledger.LendingPosition
	for _, id := range unionKeys(r.t.s.lending, r.t.lending) {
		p, _ := r.get(id)
		if p.Lender == lender {
			out = append(out, *p.Clone())
		}
	}
	return out, nil
}

type borrowingRepo struct{ t *tx }

func (r borrowingRepo) get(id uint64) (*ledger.BorrowingPosition, bool) {
	if r.t.deleted[id] {
		return nil, false
	}
	if p, ok := r.t.borrowing[id]; ok {
		return p, true
	}
	p, ok := r.t.s.borrowing[id]
	return p, ok
}

func (r borrowingRepo) Get(_ context.Context, id uint64) (*ledger.BorrowingPosition, error) {
	p, ok := r.get(id)
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return p.Clone(), nil
}

func (r borrowingRepo) Insert(_ context.Context, p *ledger.BorrowingPosition) error {
	if !r.t.writable {
		return errReadOnly
	}
	if _, ok := r.get(p.ID); ok {
		return errors.New("memory: duplicate borrowing position")
	}
	delete(r.t.deleted, p.ID)
	r.t.borrowing[p.ID] = p.Clone()
	return nil
}

func (r borrowingRepo) Update(_ context.Context, p *ledger.BorrowingPosition) error {
	if !r.t.writable {
		return errReadOnly
	}
	if _, ok := r.get(p.ID); !ok {
		return ledger.ErrNotFound
	}
	r.t.borrowing[p.ID] = p.Clone()
	return nil
}

func (r borrowingRepo) Delete(_ context.Context, id uint64) error {
	if !r.t.writable {
		return errReadOnly
	}
	if _, ok := r.get(id); !ok {
		return ledger.ErrNotFound
	}
	delete(r.t.borrowing, id)
	r.t.deleted[id] = true
	return nil
}

func (r borrowingRepo) list(match func(*ledger.BorrowingPosition) bool) []ledger.BorrowingPosition {
	var out []ledger.BorrowingPosition
	for _, id := range unionKeys(r.t.s.borrowing, r.t.borrowing) {
		p, ok := r.get(id)
		if ok && match(p) {
			out = append(out, *p.Clone())
		}
	}
	return out
}

func (r borrowingRepo) ListByBorrower(_ context.Context, borrower ledger.Account) ([]ledger.BorrowingPosition, error) {
	return r.list(func(p *ledger.BorrowingPosition) bool { return p.Borrower == borrower }), nil
}

func (r borrowingRepo) ListByLendingPosition(_ context.Context, lendingID uint64) ([]ledger.BorrowingPosition, error) {
	return r.list(func(p *ledger.BorrowingPosition) bool { return p.LendingPositionID == lendingID }), nil
}

type registry struct{ t *tx }

func (r registry) owner(id uint64) (ledger.Account, bool) {
	if r.t.burned[id] {
		return "", false
	}
	if o, ok := r.t.owners[id]; ok {
		return o, true
	}
	o, ok := r.t.s.owners[id]
	return o, ok
}

func (r registry) Mint(_ context.Context, owner ledger.Account) (uint64, error) {
	if !r.t.writable {
		return 0, errReadOnly
	}
	if owner == "" {
		return 0, ledger.ErrInvalidAccount
	}
	r.t.minted++
	r.t.owners[r.t.minted] = owner
	return r.t.minted, nil
}

func (r registry) Burn(_ context.Context, id uint64) error {
	if !r.t.writable {
		return errReadOnly
	}
	if _, ok := r.owner(id); !ok {
		return ledger.ErrNotFound
	}
	delete(r.t.owners, id)
	r.t.burned[id] = true
	return nil
}

func (r registry) OwnerOf(_ context.Context, id uint64) (ledger.Account, error) {
	o, ok := r.owner(id)
	if !ok {
		return "", ledger.ErrNotFound
	}
	return o, nil
}

func (r registry) Transfer(_ context.Context, id uint64, from, to ledger.Account) error {
	if !r.t.writable {
		return errReadOnly
	}
	o, ok := r.owner(id)
	if !ok {
		return ledger.ErrNotFound
	}
	if o != from {
		return ledger.ErrUnauthorized
	}
	r.t.owners[id] = to
	return nil
}

func (r registry) CurrentSupply(_ context.Context) (uint64, error) {
	n := uint64(0)
	for id := range r.t.s.owners {
		if _, ok := r.owner(id); ok {
			n++
		}
	}
	for id := range r.t.owners {
		if _, committed := r.t.s.owners[id]; !committed {
			n++
		}
	}
	return n, nil
}

type currency struct {
	t    *tx
	code string
}

func (c currency) balance(acct ledger.Account) *uint256.Int {
	if staged, ok := c.t.balances[c.code]; ok {
		if v, ok := staged[acct]; ok {
			return v
		}
	}
	if book, ok := c.t.s.balances[c.code]; ok {
		if v, ok := book[acct]; ok {
			return v
		}
	}
	return new(uint256.Int)
}

func (c currency) set(acct ledger.Account, v *uint256.Int) {
	staged, ok := c.t.balances[c.code]
	if !ok {
		staged = map[ledger.Account]*uint256.Int{}
		c.t.balances[c.code] = staged
	}
	staged[acct] = v
}

func (c currency) Transfer(_ context.Context, from, to ledger.Account, amount *uint256.Int) error {
	if !c.t.writable {
		return errReadOnly
	}
	if amount == nil || amount.IsZero() || from == to {
		return nil
	}
	have := c.balance(from)
	if have.Lt(amount) {
		return ledger.ErrInsufficientFunds
	}
	credited, overflow := new(uint256.Int).AddOverflow(c.balance(to), amount)
	if overflow {
		return ledger.ErrOverflow
	}
	c.set(from, new(uint256.Int).Sub(have, amount))
	c.set(to, credited)
	return nil
}

func (c currency) Deposit(_ context.Context, to ledger.Account, amount *uint256.Int) error {
	if !c.t.writable {
		return errReadOnly
	}
	credited, overflow := new(uint256.Int).AddOverflow(c.balance(to), amount)
	if overflow {
		return ledger.ErrOverflow
	}
	c.set(to, credited)
	return nil
}

func (c currency) BalanceOf(_ context.Context, acct ledger.Account) (*uint256.Int, error) {
	return c.balance(acct).Clone(), nil
}

type eventSink struct{ t *tx }

func (e eventSink) Append(_ context.Context, ev ledger.Event) error {
	if !e.t.writable {
		return errReadOnly
	}
	e.t.events = append(e.t.events, ev)
	return nil
}

func unionKeys[V any](committed, staged map[uint64]V) []uint64 {
	seen := make(map[uint64]struct{}, len(committed)+len(staged))
	ids := make([]uint64, 0, len(committed)+len(staged))
	for id := range committed {
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for id := range staged {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
