package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
	"github.com/hendo420/P2PLendingPlatform/internal/jobs"
)

// EventRepository appends ledger events and queues them for anchoring in the
// same transaction, and serves the realtime notifier from the pool. Sequence
// numbers come from the event_state counter row.
type EventRepository struct {
	q querier
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{q: pool}
}

func (r *EventRepository) Append(ctx context.Context, ev ledger.Event) error {
	payload := []byte(ev.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	// The event_state row lock is held until commit, so a later appender
	// waits and sequence order matches commit order without gaps.
	var seq int64
	if err := r.q.QueryRow(ctx, `UPDATE event_state SET last_seq = last_seq + 1 WHERE id = 1 RETURNING last_seq`).Scan(&seq); err != nil {
		return err
	}
	_, err := r.q.Exec(ctx, `
INSERT INTO ledger_events (seq, id, topic, position_id, accounts, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
`, seq, ev.ID, ev.Topic, int64(ev.PositionID), accountsToStrings(ev.Accounts), payload, ev.CreatedAt)
	if err != nil {
		return err
	}

	job, err := json.Marshal(jobs.AnchorPayload{
		EventID:    ev.ID.String(),
		Seq:        seq,
		Topic:      ev.Topic,
		PositionID: ev.PositionID,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	return (&OutboxRepository{q: r.q}).Enqueue(ctx, jobs.AnchorEventTopic, job)
}

func (r *EventRepository) ListEventsSince(ctx context.Context, after int64, limit int32) ([]ledger.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q.Query(ctx, `
SELECT seq, id, topic, position_id, accounts, payload, created_at
FROM ledger_events
WHERE seq > $1
ORDER BY seq ASC
LIMIT $2
`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ledger.Event, 0)
	for rows.Next() {
		var (
			ev         ledger.Event
			positionID int64
			accounts   []string
			payload    []byte
		)
		if err := rows.Scan(&ev.Seq, &ev.ID, &ev.Topic, &positionID, &accounts, &payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.PositionID = uint64(positionID)
		ev.Accounts = stringsToAccounts(accounts)
		ev.Payload = payload
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *EventRepository) SetAnchorTx(ctx context.Context, eventID, txHash string) error {
	_, err := r.q.Exec(ctx, `UPDATE ledger_events SET anchor_tx = $2 WHERE id = $1::uuid`, eventID, txHash)
	return err
}

func (r *EventRepository) LatestSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := r.q.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM ledger_events`).Scan(&seq)
	return seq, err
}
