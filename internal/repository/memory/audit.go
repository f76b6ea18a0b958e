package memory

import (
	"context"
	"sync"
	"time"

	admindomain "github.com/hendo420/P2PLendingPlatform/internal/domain/admin"
)

// AuditLog keeps admin actions in insertion order.
type AuditLog struct {
	mu      sync.Mutex
	entries []admindomain.AuditEntry
	now     func() time.Time
}

func NewAuditLog() *AuditLog {
	return &AuditLog{now: time.Now}
}

func (a *AuditLog) Log(_ context.Context, in admindomain.AuditLogInput) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, admindomain.AuditEntry{
		ID:            int64(len(a.entries) + 1),
		AuditLogInput: in,
		CreatedAt:     a.now().UTC(),
	})
	return nil
}

func (a *AuditLog) ListRecent(_ context.Context, limit int32) ([]admindomain.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]admindomain.AuditEntry, 0, len(a.entries))
	for i := len(a.entries) - 1; i >= 0; i-- {
		if limit > 0 && int32(len(out)) >= limit {
			break
		}
		out = append(out, a.entries[i])
	}
	return out, nil
}

// Entries returns the logged inputs oldest first.
func (a *AuditLog) Entries() []admindomain.AuditLogInput {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]admindomain.AuditLogInput, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.AuditLogInput)
	}
	return out
}
