package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var ten = big.NewInt(10)

func numeric(v *uint256.Int) pgtype.Numeric {
	if v == nil {
		return pgtype.Numeric{Int: new(big.Int), Valid: true}
	}
	return pgtype.Numeric{Int: v.ToBig(), Exp: 0, Valid: true}
}

func fromNumeric(n pgtype.Numeric) (*uint256.Int, error) {
	if !n.Valid {
		return nil, fmt.Errorf("numeric is null")
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return nil, fmt.Errorf("numeric is not finite")
	}
	b := new(big.Int).Set(n.Int)
	switch {
	case n.Exp > 0:
		b.Mul(b, new(big.Int).Exp(ten, big.NewInt(int64(n.Exp)), nil))
	case n.Exp < 0:
		q, r := new(big.Int).QuoRem(b, new(big.Int).Exp(ten, big.NewInt(int64(-n.Exp)), nil), new(big.Int))
		if r.Sign() != 0 {
			return nil, fmt.Errorf("numeric has a fractional part")
		}
		b = q
	}
	if b.Sign() < 0 {
		return nil, fmt.Errorf("numeric is negative")
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, ledger.ErrOverflow
	}
	return v, nil
}

func accountsToStrings(in []ledger.Account) []string {
	out := make([]string, len(in))
	for i, a := range in {
		out[i] = string(a)
	}
	return out
}

func stringsToAccounts(in []string) []ledger.Account {
	out := make([]ledger.Account, len(in))
	for i, a := range in {
		out[i] = ledger.Account(a)
	}
	return out
}
