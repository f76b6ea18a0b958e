package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
)

// RegistryRepository issues position ids from the single registry_state
// counter, which holds the total ever minted.
type RegistryRepository struct {
	q querier
}

func (r *RegistryRepository) Mint(ctx context.Context, owner ledger.Account) (uint64, error) {
	if owner == "" {
		return 0, ledger.ErrInvalidAccount
	}
	var id int64
	if err := r.q.QueryRow(ctx, `UPDATE registry_state SET minted = minted + 1 WHERE id = 1 RETURNING minted`).Scan(&id); err != nil {
		return 0, err
	}
	if _, err := r.q.Exec(ctx, `INSERT INTO position_tokens (id, owner) VALUES ($1, $2)`, id, string(owner)); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (r *RegistryRepository) Burn(ctx context.Context, id uint64) error {
	tag, err := r.q.Exec(ctx, `UPDATE position_tokens SET burned_at = NOW() WHERE id = $1 AND burned_at IS NULL`, int64(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *RegistryRepository) OwnerOf(ctx context.Context, id uint64) (ledger.Account, error) {
	var owner string
	err := r.q.QueryRow(ctx, `SELECT owner FROM position_tokens WHERE id = $1 AND burned_at IS NULL`, int64(id)).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ledger.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return ledger.Account(owner), nil
}

func (r *RegistryRepository) Transfer(ctx context.Context, id uint64, from, to ledger.Account) error {
	tag, err := r.q.Exec(ctx, `
UPDATE position_tokens SET owner = $3
WHERE id = $1 AND owner = $2 AND burned_at IS NULL
`, int64(id), string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.OwnerOf(ctx, id); err != nil {
		return err
	}
	return ledger.ErrUnauthorized
}

func (r *RegistryRepository) CurrentSupply(ctx context.Context) (uint64, error) {
	var n int64
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM position_tokens WHERE burned_at IS NULL`).Scan(&n); err != nil {
		return 0, err
	}
	return uint64(n), nil
}
