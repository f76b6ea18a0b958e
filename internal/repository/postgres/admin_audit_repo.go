package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	admindomain "github.com/hendo420/P2PLendingPlatform/internal/domain/admin"
)

type AdminAuditRepository struct {
	pool *pgxpool.Pool
}

func NewAdminAuditRepository(pool *pgxpool.Pool) *AdminAuditRepository {
	return &AdminAuditRepository{pool: pool}
}

func (r *AdminAuditRepository) Log(ctx context.Context, in admindomain.AuditLogInput) error {
	payload := in.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := r.pool.Exec(ctx, `
INSERT INTO admin_audit_logs (admin_subject, action, target_type, target_id, payload)
VALUES ($1, $2, $3, $4, $5::jsonb)
`, in.AdminSubject, in.Action, in.TargetType, in.TargetID, payload)
	if err != nil {
		return fmt.Errorf("insert admin audit: %w", err)
	}
	return nil
}

func (r *AdminAuditRepository) ListRecent(ctx context.Context, limit int32) ([]admindomain.AuditEntry, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, admin_subject, action, target_type, target_id, payload, created_at
FROM admin_audit_logs
ORDER BY id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list admin audit: %w", err)
	}
	defer rows.Close()

	out := make([]admindomain.AuditEntry, 0)
	for rows.Next() {
		var e admindomain.AuditEntry
		if err := rows.Scan(&e.ID, &e.AdminSubject, &e.Action, &e.TargetType, &e.TargetID, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
