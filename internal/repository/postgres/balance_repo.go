package postgres

import (
	"context"
	"errors"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
)

// BalanceRepository is the currency ledger for one currency code.
type BalanceRepository struct {
	q        querier
	currency string
}

func (r *BalanceRepository) Transfer(ctx context.Context, from, to ledger.Account, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() || from == to {
		return nil
	}
	tag, err := r.q.Exec(ctx, `
UPDATE balances SET amount = amount - $3, updated_at = NOW()
WHERE currency_code = $1 AND account = $2 AND amount >= $3
`, r.currency, string(from), numeric(amount))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrInsufficientFunds
	}
	return r.credit(ctx, to, amount)
}

func (r *BalanceRepository) Deposit(ctx context.Context, to ledger.Account, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	return r.credit(ctx, to, amount)
}

func (r *BalanceRepository) credit(ctx context.Context, to ledger.Account, amount *uint256.Int) error {
	_, err := r.q.Exec(ctx, `
INSERT INTO balances (currency_code, account, amount)
VALUES ($1, $2, $3)
ON CONFLICT (currency_code, account)
DO UPDATE SET amount = balances.amount + EXCLUDED.amount, updated_at = NOW()
`, r.currency, string(to), numeric(amount))
	return err
}

func (r *BalanceRepository) BalanceOf(ctx context.Context, account ledger.Account) (*uint256.Int, error) {
	var n pgtype.Numeric
	err := r.q.QueryRow(ctx, `SELECT amount FROM balances WHERE currency_code = $1 AND account = $2`, r.currency, string(account)).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return fromNumeric(n)
}
