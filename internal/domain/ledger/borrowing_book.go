package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/collateral"
)

// BorrowingBook owns active loans. Collateral is held in the native currency,
// loans in the currency of the lending position they are drawn from.
type BorrowingBook struct {
	lending *LendingBook
	oracle  func() PriceOracle
	native  string
	reserve Account
	policy  collateral.ShortfallPolicy
	now     func() time.Time
}

type BorrowingBookConfig struct {
	NativeCurrency  string
	Reserve         Account
	ShortfallPolicy collateral.ShortfallPolicy
}

func NewBorrowingBook(lending *LendingBook, oracle func() PriceOracle, cfg BorrowingBookConfig, now func() time.Time) *BorrowingBook {
	if now == nil {
		now = time.Now
	}
	if cfg.Reserve == "" {
		cfg.Reserve = DefaultReserveAccount
	}
	return &BorrowingBook{
		lending: lending,
		oracle:  oracle,
		native:  cfg.NativeCurrency,
		reserve: cfg.Reserve,
		policy:  cfg.ShortfallPolicy,
		now:     now,
	}
}

type TakeLoanInput struct {
	LendingID  uint64
	Amount     *uint256.Int
	Collateral *uint256.Int
	Borrower   Account
}

// TakeLoan escrows collateral, draws Amount from the lending position and
// disburses it to the borrower.
func (b *BorrowingBook) TakeLoan(ctx context.Context, tx Tx, in TakeLoanInput) (*BorrowingPosition, error) {
	if in.Borrower == "" {
		return nil, ErrInvalidAccount
	}
	if in.Amount == nil || in.Amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	posted := in.Collateral
	if posted == nil {
		posted = new(uint256.Int)
	}

	lp, err := tx.Lending().Get(ctx, in.LendingID)
	if err != nil {
		return nil, err
	}
	if in.Amount.Gt(lp.Available) {
		return nil, ErrInsufficientLiquidity
	}

	rate, err := b.currentRate(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := collateral.MeetsOriginationRatio(posted, in.Amount, rate)
	if err != nil {
		return nil, fromCollateral(err)
	}
	if !ok {
		return nil, ErrInsufficientCollateral
	}
	due, err := collateral.DueAmountAtOrigination(in.Amount, uint64(lp.InterestRatePercent))
	if err != nil {
		return nil, fromCollateral(err)
	}

	if err := tx.Currency(b.native).Transfer(ctx, in.Borrower, CustodyAccount, posted); err != nil {
		return nil, err
	}
	if err := b.lending.Reserve(ctx, tx, lp, in.Amount); err != nil {
		return nil, err
	}
	id, err := tx.Registry().Mint(ctx, in.Borrower)
	if err != nil {
		return nil, err
	}

	now := b.now().UTC()
	bp := &BorrowingPosition{
		ID:                id,
		Borrower:          in.Borrower,
		LendingPositionID: lp.ID,
		Currency:          lp.Currency,
		Collateral:        posted.Clone(),
		Principal:         in.Amount.Clone(),
		Due:               due,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := tx.Borrowing().Insert(ctx, bp); err != nil {
		return nil, err
	}
	if err := tx.Currency(lp.Currency).Transfer(ctx, CustodyAccount, in.Borrower, in.Amount); err != nil {
		return nil, err
	}
	err = emit(ctx, tx, now, TopicLoanTaken, id, loanPayload{
		BorrowingID: id,
		LendingID:   lp.ID,
		Borrower:    string(in.Borrower),
		Amount:      in.Amount.Dec(),
		Collateral:  bp.Collateral.Dec(),
		Principal:   bp.Principal.Dec(),
		Due:         bp.Due.Dec(),
		Rate:        rate.Dec(),
	}, in.Borrower, lp.Lender)
	if err != nil {
		return nil, err
	}
	return bp, nil
}

// PayLoan applies a repayment from any payer. Paying the last unit closes the
// position and releases all collateral to the borrower.
func (b *BorrowingBook) PayLoan(ctx context.Context, tx Tx, id uint64, amount *uint256.Int, payer Account) (bool, error) {
	if payer == "" {
		return false, ErrInvalidAccount
	}
	if amount == nil || amount.IsZero() {
		return false, ErrInvalidAmount
	}
	bp, err := tx.Borrowing().Get(ctx, id)
	if err != nil {
		return false, err
	}
	if amount.Gt(bp.Due) {
		return false, ErrExceedsDue
	}
	lp, err := tx.Lending().Get(ctx, bp.LendingPositionID)
	if err != nil {
		return false, err
	}

	if err := tx.Currency(bp.Currency).Transfer(ctx, payer, CustodyAccount, amount); err != nil {
		return false, err
	}
	if err := b.lending.recordRepayment(ctx, tx, lp, amount); err != nil {
		return false, err
	}

	bp.Due = new(uint256.Int).Sub(bp.Due, amount)
	bp.UpdatedAt = b.now().UTC()
	payload := loanPayload{
		BorrowingID: id,
		LendingID:   lp.ID,
		Borrower:    string(bp.Borrower),
		Amount:      amount.Dec(),
		Collateral:  bp.Collateral.Dec(),
		Principal:   bp.Principal.Dec(),
		Due:         bp.Due.Dec(),
	}

	if !bp.Due.IsZero() {
		if err := tx.Borrowing().Update(ctx, bp); err != nil {
			return false, err
		}
		return false, emit(ctx, tx, bp.UpdatedAt, TopicLoanRepaid, id, payload, payer, bp.Borrower, lp.Lender)
	}

	if err := tx.Currency(b.native).Transfer(ctx, CustodyAccount, bp.Borrower, bp.Collateral); err != nil {
		return false, err
	}
	if err := tx.Borrowing().Delete(ctx, id); err != nil {
		return false, err
	}
	if err := tx.Registry().Burn(ctx, id); err != nil {
		return false, err
	}
	if err := emit(ctx, tx, bp.UpdatedAt, TopicLoanClosed, id, payload, payer, bp.Borrower, lp.Lender); err != nil {
		return false, err
	}
	return true, nil
}

// AddCollateral tops up the escrow of a position owned by caller.
func (b *BorrowingBook) AddCollateral(ctx context.Context, tx Tx, id uint64, amount *uint256.Int, caller Account) (*BorrowingPosition, error) {
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	bp, err := tx.Borrowing().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller != bp.Borrower {
		return nil, ErrUnauthorized
	}
	next, overflow := new(uint256.Int).AddOverflow(bp.Collateral, amount)
	if overflow {
		return nil, ErrOverflow
	}

	if err := tx.Currency(b.native).Transfer(ctx, caller, CustodyAccount, amount); err != nil {
		return nil, err
	}
	bp.Collateral = next
	bp.UpdatedAt = b.now().UTC()
	if err := tx.Borrowing().Update(ctx, bp); err != nil {
		return nil, err
	}
	err = emit(ctx, tx, bp.UpdatedAt, TopicCollateralAdded, id, loanPayload{
		BorrowingID: id,
		LendingID:   bp.LendingPositionID,
		Borrower:    string(bp.Borrower),
		Amount:      amount.Dec(),
		Collateral:  bp.Collateral.Dec(),
		Principal:   bp.Principal.Dec(),
		Due:         bp.Due.Dec(),
	}, caller)
	if err != nil {
		return nil, err
	}
	return bp, nil
}

// Settlement says how the lender was paid out of a liquidation.
type Settlement string

const (
	// SettlementReserve sells seized collateral to the reserve account and
	// credits the proceeds to the lending position.
	SettlementReserve Settlement = "reserve"
	// SettlementInKind hands seized collateral straight to the lender when the
	// reserve cannot pay for it.
	SettlementInKind Settlement = "in_kind"
)

// Liquidation is the settled outcome of LiquidateLoan.
type Liquidation struct {
	BorrowingID uint64
	LendingID   uint64
	Rate        *uint256.Int
	Policy      collateral.ShortfallPolicy
	Settlement  Settlement
	Payout      *collateral.Payout
}

// LiquidateLoan closes an undercollateralized loan on behalf of the lender.
// Seized collateral is sold to the reserve account for the recovered amount,
// which is credited back to the lending position. A reserve that cannot cover
// the recovered amount leaves the lender with the seized collateral itself,
// recovered at its value and never above the due amount. Surplus collateral
// goes back to the borrower.
func (b *BorrowingBook) LiquidateLoan(ctx context.Context, tx Tx, id uint64, caller Account) (*Liquidation, error) {
	bp, err := tx.Borrowing().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	lp, err := tx.Lending().Get(ctx, bp.LendingPositionID)
	if err != nil {
		return nil, err
	}
	if caller != lp.Lender {
		return nil, ErrUnauthorized
	}

	rate, err := b.currentRate(ctx)
	if err != nil {
		return nil, err
	}
	under, err := collateral.IsUndercollateralized(bp.Collateral, bp.Principal, rate)
	if err != nil {
		return nil, fromCollateral(err)
	}
	if !under {
		return nil, ErrCollateralStillSufficient
	}
	payout, err := collateral.LiquidationPayout(bp.Collateral, bp.Due, rate, b.policy)
	if err != nil {
		return nil, fromCollateral(err)
	}

	settlement := SettlementReserve
	err = tx.Currency(bp.Currency).Transfer(ctx, b.reserve, CustodyAccount, payout.RecoveredDue)
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		settlement = SettlementInKind
		if payout.CollateralValue.Lt(payout.RecoveredDue) {
			payout.RecoveredDue = payout.CollateralValue.Clone()
		}
		if err := tx.Currency(b.native).Transfer(ctx, CustodyAccount, lp.Lender, payout.SeizedCollateral); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if err := tx.Currency(b.native).Transfer(ctx, CustodyAccount, b.reserve, payout.SeizedCollateral); err != nil {
			return nil, err
		}
		if err := b.lending.Credit(ctx, tx, lp, payout.RecoveredDue); err != nil {
			return nil, err
		}
	}
	if err := tx.Currency(b.native).Transfer(ctx, CustodyAccount, bp.Borrower, payout.ReturnedCollateral); err != nil {
		return nil, err
	}
	if err := tx.Borrowing().Delete(ctx, id); err != nil {
		return nil, err
	}
	if err := tx.Registry().Burn(ctx, id); err != nil {
		return nil, err
	}

	err = emit(ctx, tx, b.now().UTC(), TopicLoanLiquidated, id, liquidationPayload{
		BorrowingID:        id,
		LendingID:          lp.ID,
		Lender:             string(lp.Lender),
		Borrower:           string(bp.Borrower),
		Rate:               rate.Dec(),
		Policy:             b.policy.String(),
		Settlement:         string(settlement),
		CollateralValue:    payout.CollateralValue.Dec(),
		RecoveredDue:       payout.RecoveredDue.Dec(),
		SeizedCollateral:   payout.SeizedCollateral.Dec(),
		ReturnedCollateral: payout.ReturnedCollateral.Dec(),
		Shortfall:          payout.Shortfall.Dec(),
	}, lp.Lender, bp.Borrower)
	if err != nil {
		return nil, err
	}
	return &Liquidation{
		BorrowingID: id,
		LendingID:   lp.ID,
		Rate:        rate,
		Policy:      b.policy,
		Settlement:  settlement,
		Payout:      payout,
	}, nil
}

// Health reports how far a position is from liquidation at the current rate.
func (b *BorrowingBook) Health(ctx context.Context, tx Tx, id uint64) (*BorrowingPosition, *collateral.Health, *uint256.Int, error) {
	bp, err := tx.Borrowing().Get(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	rate, err := b.currentRate(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	h, err := collateral.Assess(bp.Collateral, bp.Principal, rate)
	if err != nil {
		return nil, nil, nil, fromCollateral(err)
	}
	return bp, h, rate, nil
}

func (b *BorrowingBook) currentRate(ctx context.Context) (*uint256.Int, error) {
	oracle := b.oracle()
	if oracle == nil {
		return nil, ErrOracleUnavailable
	}
	rate, err := oracle.CurrentRate(ctx)
	if err != nil {
		if errors.Is(err, ErrInvalidPrice) || errors.Is(err, ErrOracleUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	if rate == nil || rate.IsZero() {
		return nil, ErrInvalidPrice
	}
	return rate, nil
}
