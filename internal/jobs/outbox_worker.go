package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hendo420/P2PLendingPlatform/internal/blockchain"
)

// AnchorEventTopic jobs are queued alongside every committed ledger event.
const AnchorEventTopic = "anchor_event"

type OutboxJob struct {
	ID          int64
	Topic       string
	Payload     []byte
	Status      string
	Attempts    int32
	LastError   string
	AvailableAt time.Time
}

type AnchorPayload struct {
	EventID    string          `json:"event_id"`
	Seq        int64           `json:"seq"`
	Topic      string          `json:"topic"`
	PositionID uint64          `json:"position_id"`
	Payload    json.RawMessage `json:"payload"`
}

type OutboxRepository interface {
	ClaimPending(ctx context.Context, limit int32) ([]OutboxJob, error)
	MarkDone(ctx context.Context, jobID int64) error
	MarkRetry(ctx context.Context, jobID int64, nextAvailableAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, jobID int64, lastError string) error
}

type EventRepository interface {
	SetAnchorTx(ctx context.Context, eventID, txHash string) error
}

// OutcomeRecorder counts processed jobs by outcome.
type OutcomeRecorder interface {
	JobOutcome(outcome string)
}

type Worker struct {
	outboxRepo   OutboxRepository
	eventRepo    EventRepository
	writer       blockchain.EventAnchorWriter
	recorder     OutcomeRecorder
	maxAttempts  int32
	now          func() time.Time
	retryBackoff func(attempt int32) time.Duration
}

func NewWorker(outboxRepo OutboxRepository, eventRepo EventRepository, writer blockchain.EventAnchorWriter) *Worker {
	return &Worker{
		outboxRepo:  outboxRepo,
		eventRepo:   eventRepo,
		writer:      writer,
		maxAttempts: 5,
		now:         func() time.Time { return time.Now().UTC() },
		retryBackoff: func(attempt int32) time.Duration {
			if attempt < 1 {
				attempt = 1
			}
			return time.Duration(attempt*15) * time.Second
		},
	}
}

func (w *Worker) WithRecorder(r OutcomeRecorder) *Worker {
	w.recorder = r
	return w
}

func (w *Worker) RunOnce(ctx context.Context, batchSize int32) error {
	jobs, err := w.outboxRepo.ClaimPending(ctx, batchSize)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			return err
		}
	}

	return nil
}

func (w *Worker) processJob(ctx context.Context, job OutboxJob) error {
	switch job.Topic {
	case AnchorEventTopic:
		return w.processAnchorEvent(ctx, job)
	default:
		return w.handleJobError(ctx, job, errors.New("unsupported_topic"))
	}
}

func (w *Worker) processAnchorEvent(ctx context.Context, job OutboxJob) error {
	var payload AnchorPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return w.handleJobError(ctx, job, fmt.Errorf("invalid_payload"))
	}
	if payload.EventID == "" {
		return w.handleJobError(ctx, job, errors.New("missing_event_id"))
	}

	txHash, err := w.writer.AnchorEvent(ctx, payload.EventID, blockchain.Digest(payload.Payload))
	if err != nil {
		return w.handleJobError(ctx, job, err)
	}

	if err := w.eventRepo.SetAnchorTx(ctx, payload.EventID, txHash); err != nil {
		return w.handleJobError(ctx, job, err)
	}

	w.record("done")
	return w.outboxRepo.MarkDone(ctx, job.ID)
}

func (w *Worker) handleJobError(ctx context.Context, job OutboxJob, err error) error {
	msg := err.Error()
	if job.Attempts >= w.maxAttempts {
		w.record("failed")
		return w.outboxRepo.MarkFailed(ctx, job.ID, msg)
	}
	w.record("retry")
	next := w.now().Add(w.retryBackoff(job.Attempts))
	return w.outboxRepo.MarkRetry(ctx, job.ID, next, msg)
}

func (w *Worker) record(outcome string) {
	if w.recorder != nil {
		w.recorder.JobOutcome(outcome)
	}
}
