package ledger

import (
	"context"
	"time"

	"github.com/holiman/uint256"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/collateral"
)

// LendingBook owns lender capital. Every method runs inside the caller's Tx.
type LendingBook struct {
	now func() time.Time
}

func NewLendingBook(now func() time.Time) *LendingBook {
	if now == nil {
		now = time.Now
	}
	return &LendingBook{now: now}
}

// Create moves amount from lender into custody and opens a position for it.
func (b *LendingBook) Create(ctx context.Context, tx Tx, lender Account, currency string, amount *uint256.Int, ratePercent uint64) (*LendingPosition, error) {
	if lender == "" {
		return nil, ErrInvalidAccount
	}
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	if ratePercent > collateral.MaxInterestRatePercent {
		return nil, ErrInvalidRate
	}

	if err := tx.Currency(currency).Transfer(ctx, lender, CustodyAccount, amount); err != nil {
		return nil, err
	}
	id, err := tx.Registry().Mint(ctx, lender)
	if err != nil {
		return nil, err
	}

	now := b.now().UTC()
	p := &LendingPosition{
		ID:                  id,
		Lender:              lender,
		Currency:            currency,
		Available:           amount.Clone(),
		Collected:           new(uint256.Int),
		InterestRatePercent: uint8(ratePercent),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := tx.Lending().Insert(ctx, p); err != nil {
		return nil, err
	}
	err = emit(ctx, tx, now, TopicLendingCreated, id, lendingPayload{
		LendingID:           id,
		Lender:              string(lender),
		Currency:            currency,
		Amount:              amount.Dec(),
		Available:           amount.Dec(),
		InterestRatePercent: p.InterestRatePercent,
	}, lender)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Withdraw pays out the whole available amount to the recorded lender.
// A position with nothing available returns zero without moving funds.
func (b *LendingBook) Withdraw(ctx context.Context, tx Tx, id uint64, caller Account) (*uint256.Int, error) {
	p, err := tx.Lending().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller != p.Lender {
		return nil, ErrUnauthorized
	}
	amount := p.Available.Clone()
	if amount.IsZero() {
		return amount, nil
	}

	if err := tx.Currency(p.Currency).Transfer(ctx, CustodyAccount, caller, amount); err != nil {
		return nil, err
	}
	p.Available = new(uint256.Int)
	p.UpdatedAt = b.now().UTC()
	if err := tx.Lending().Update(ctx, p); err != nil {
		return nil, err
	}
	err = emit(ctx, tx, p.UpdatedAt, TopicLendingWithdrawn, id, lendingPayload{
		LendingID: id,
		Lender:    string(p.Lender),
		Currency:  p.Currency,
		Amount:    amount.Dec(),
		Available: "0",
	}, caller)
	if err != nil {
		return nil, err
	}
	return amount, nil
}

// CollectRepayments pays out repayments received on loans drawn against the
// position. They are tracked apart from Available so that repaid money is
// never lent out again without the lender's say.
func (b *LendingBook) CollectRepayments(ctx context.Context, tx Tx, id uint64, caller Account) (*uint256.Int, error) {
	p, err := tx.Lending().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller != p.Lender {
		return nil, ErrUnauthorized
	}
	amount := p.Collected.Clone()
	if amount.IsZero() {
		return amount, nil
	}

	if err := tx.Currency(p.Currency).Transfer(ctx, CustodyAccount, caller, amount); err != nil {
		return nil, err
	}
	p.Collected = new(uint256.Int)
	p.UpdatedAt = b.now().UTC()
	if err := tx.Lending().Update(ctx, p); err != nil {
		return nil, err
	}
	err = emit(ctx, tx, p.UpdatedAt, TopicRepaymentsCollected, id, lendingPayload{
		LendingID: id,
		Lender:    string(p.Lender),
		Currency:  p.Currency,
		Amount:    amount.Dec(),
		Available: p.Available.Dec(),
	}, caller)
	if err != nil {
		return nil, err
	}
	return amount, nil
}

// Reserve takes amount out of p.Available and persists p.
func (b *LendingBook) Reserve(ctx context.Context, tx Tx, p *LendingPosition, amount *uint256.Int) error {
	if amount.Gt(p.Available) {
		return ErrInsufficientLiquidity
	}
	p.Available = new(uint256.Int).Sub(p.Available, amount)
	p.UpdatedAt = b.now().UTC()
	return tx.Lending().Update(ctx, p)
}

// Credit returns recovered funds to p.Available and persists p.
func (b *LendingBook) Credit(ctx context.Context, tx Tx, p *LendingPosition, amount *uint256.Int) error {
	next, overflow := new(uint256.Int).AddOverflow(p.Available, amount)
	if overflow {
		return ErrOverflow
	}
	p.Available = next
	p.UpdatedAt = b.now().UTC()
	return tx.Lending().Update(ctx, p)
}

func (b *LendingBook) recordRepayment(ctx context.Context, tx Tx, p *LendingPosition, amount *uint256.Int) error {
	next, overflow := new(uint256.Int).AddOverflow(p.Collected, amount)
	if overflow {
		return ErrOverflow
	}
	p.Collected = next
	p.UpdatedAt = b.now().UTC()
	return tx.Lending().Update(ctx, p)
}
