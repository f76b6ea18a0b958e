package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
)

type LendingRepository struct {
	q      querier
	locked bool
}

const lendingColumns = `id, lender, currency_code, available, collected, interest_rate_percent, created_at, updated_at`

func scanLending(row pgx.Row) (*ledger.LendingPosition, error) {
	var (
		p         ledger.LendingPosition
		id        int64
		lender    string
		rate      int16
		available pgtype.Numeric
		collected pgtype.Numeric
	)
	if err := row.Scan(&id, &lender, &p.Currency, &available, &collected, &rate, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.Available, err = fromNumeric(available); err != nil {
		return nil, fmt.Errorf("lending %d available: %w", id, err)
	}
	if p.Collected, err = fromNumeric(collected); err != nil {
		return nil, fmt.Errorf("lending %d collected: %w", id, err)
	}
	p.ID = uint64(id)
	p.Lender = ledger.Account(lender)
	p.InterestRatePercent = uint8(rate)
	return &p, nil
}

func (r *LendingRepository) Get(ctx context.Context, id uint64) (*ledger.LendingPosition, error) {
	q := `SELECT ` + lendingColumns + ` FROM lending_positions WHERE id = $1` + forUpdate(r.locked)
	p, err := scanLending(r.q.QueryRow(ctx, q, int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	return p, err
}

func (r *LendingRepository) Insert(ctx context.Context, p *ledger.LendingPosition) error {
	q := `
INSERT INTO lending_positions (id, lender, currency_code, available, collected, interest_rate_percent, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
	_, err := r.q.Exec(ctx, q, int64(p.ID), string(p.Lender), p.Currency, numeric(p.Available), numeric(p.Collected), int16(p.InterestRatePercent), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *LendingRepository) Update(ctx context.Context, p *ledger.LendingPosition) error {
	q := `UPDATE lending_positions SET available = $2, collected = $3, updated_at = $4 WHERE id = $1`
	tag, err := r.q.Exec(ctx, q, int64(p.ID), numeric(p.Available), numeric(p.Collected), p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *LendingRepository) ListByLender(ctx context.Context, lender ledger.Account) ([]ledger.LendingPosition, error) {
	q := `SELECT ` + lendingColumns + ` FROM lending_positions WHERE lender = $1 ORDER BY id ASC`
	rows, err := r.q.Query(ctx, q, string(lender))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ledger.LendingPosition, 0)
	for rows.Next() {
		p, err := scanLending(rows)
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
