package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
)

const notifierBatch = 100

// EventSource exposes the committed ledger event log.
type EventSource interface {
	ListEventsSince(ctx context.Context, after int64, limit int32) ([]ledger.Event, error)
}

type Notifier struct {
	events       EventSource
	hub          *Hub
	pollInterval time.Duration
	logger       *slog.Logger
	lastSeq      int64
}

func NewNotifier(events EventSource, hub *Hub, pollInterval time.Duration, logger *slog.Logger) *Notifier {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{events: events, hub: hub, pollInterval: pollInterval, logger: logger}
}

// StartAfter skips events already in the log so only new changes are pushed.
func (n *Notifier) StartAfter(seq int64) {
	n.lastSeq = seq
}

func (n *Notifier) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := n.tick(ctx); err != nil {
				n.logger.Warn("notifier poll failed", "error", err)
			}
		}
	}
}

func (n *Notifier) tick(ctx context.Context) error {
	for {
		events, err := n.events.ListEventsSince(ctx, n.lastSeq, notifierBatch)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if ev.Seq > n.lastSeq {
				n.lastSeq = ev.Seq
			}
			n.publish(ev)
		}
		if len(events) < notifierBatch {
			return nil
		}
	}
}

func (n *Notifier) publish(ev ledger.Event) {
	payload, err := json.Marshal(map[string]any{
		"event":       ev.Topic,
		"seq":         ev.Seq,
		"position_id": ev.PositionID,
		"recorded_at": ev.CreatedAt.UTC().Format(time.RFC3339),
		"data":        ev.Payload,
	})
	if err != nil {
		n.logger.Warn("notifier encode failed", "seq", ev.Seq, "error", err)
		return
	}
	if ev.PositionID != 0 {
		kind, _, _ := strings.Cut(ev.Topic, ".")
		if ch := positionChannel(kind, ev.PositionID); ch != "" {
			n.hub.Publish(ch, payload)
		}
	}
	for _, acct := range ev.Accounts {
		n.hub.Publish(AccountChannel(string(acct)), payload)
	}
}
