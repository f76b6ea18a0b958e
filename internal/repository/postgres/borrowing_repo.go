package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
)

type BorrowingRepository struct {
	q      querier
	locked bool
}

const borrowingColumns = `id, borrower, lending_position_id, currency_code, collateral, principal, due, created_at, updated_at`

func scanBorrowing(row pgx.Row) (*ledger.BorrowingPosition, error) {
	var (
		p                    ledger.BorrowingPosition
		id, lendingID        int64
		borrower             string
		coll, principal, due pgtype.Numeric
	)
	if err := row.Scan(&id, &borrower, &lendingID, &p.Currency, &coll, &principal, &due, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.Collateral, err = fromNumeric(coll); err != nil {
		return nil, fmt.Errorf("borrowing %d collateral: %w", id, err)
	}
	if p.Principal, err = fromNumeric(principal); err != nil {
		return nil, fmt.Errorf("borrowing %d principal: %w", id, err)
	}
	if p.Due, err = fromNumeric(due); err != nil {
		return nil, fmt.Errorf("borrowing %d due: %w", id, err)
	}
	p.ID = uint64(id)
	p.LendingPositionID = uint64(lendingID)
	p.Borrower = ledger.Account(borrower)
	return &p, nil
}

func (r *BorrowingRepository) Get(ctx context.Context, id uint64) (*ledger.BorrowingPosition, error) {
	q := `SELECT ` + borrowingColumns + ` FROM borrowing_positions WHERE id = $1` + forUpdate(r.locked)
	p, err := scanBorrowing(r.q.QueryRow(ctx, q, int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	return p, err
}

func (r *BorrowingRepository) Insert(ctx context.Context, p *ledger.BorrowingPosition) error {
	q := `
INSERT INTO borrowing_positions (id, borrower, lending_position_id, currency_code, collateral, principal, due, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	_, err := r.q.Exec(ctx, q,
		int64(p.ID), string(p.Borrower), int64(p.LendingPositionID), p.Currency,
		numeric(p.Collateral), numeric(p.Principal), numeric(p.Due), p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (r *BorrowingRepository) Update(ctx context.Context, p *ledger.BorrowingPosition) error {
	q := `UPDATE borrowing_positions SET collateral = $2, due = $3, updated_at = $4 WHERE id = $1`
	tag, err := r.q.Exec(ctx, q, int64(p.ID), numeric(p.Collateral), numeric(p.Due), p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *BorrowingRepository) Delete(ctx context.Context, id uint64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM borrowing_positions WHERE id = $1`, int64(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *BorrowingRepository) ListByBorrower(ctx context.Context, borrower ledger.Account) ([]ledger.BorrowingPosition, error) {
	return r.list(ctx, `SELECT `+borrowingColumns+` FROM borrowing_positions WHERE borrower = $1 ORDER BY id ASC`, string(borrower))
}

func (r *BorrowingRepository) ListByLendingPosition(ctx context.Context, lendingID uint64) ([]ledger.BorrowingPosition, error) {
	return r.list(ctx, `SELECT `+borrowingColumns+` FROM borrowing_positions WHERE lending_position_id = $1 ORDER BY id ASC`, int64(lendingID))
}

func (r *BorrowingRepository) list(ctx context.Context, q string, arg any) ([]ledger.BorrowingPosition, error) {
	rows, err := r.q.Query(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ledger.BorrowingPosition, 0)
	for rows.Next() {
		p, err := scanBorrowing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
