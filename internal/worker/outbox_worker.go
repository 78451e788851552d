package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/upl-platform/exam-portal/internal/backend"
	"github.com/upl-platform/exam-portal/internal/config"
	"github.com/upl-platform/exam-portal/internal/engine"
	"github.com/upl-platform/exam-portal/internal/model"
)

const (
	OutboxPollTimeout = 1 * time.Second
	OutboxMaxAttempts = 10
	OutboxBaseBackoff = 2 * time.Second
	OutboxMaxBackoff  = 5 * time.Minute
	outboxSendTimeout = 30 * time.Second
)

// SenderFactory binds the results backend to a bearer token.
type SenderFactory func(token string) engine.ResultSender

// DeliveryLedger flags ledger rows once the backend accepted them.
type DeliveryLedger interface {
	MarkDelivered(ctx context.Context, id string) error
}

// OutboxWorker retries results whose first delivery failed.
type OutboxWorker struct {
	rdb    *redis.Client
	sender SenderFactory
	ledger DeliveryLedger
	now    func() time.Time
	log    zerolog.Logger
}

// NewOutboxWorker creates an OutboxWorker. ledger may be nil.
func NewOutboxWorker(rdb *redis.Client, sender SenderFactory, ledger DeliveryLedger, log zerolog.Logger) *OutboxWorker {
	return &OutboxWorker{
		rdb:    rdb,
		sender: sender,
		ledger: ledger,
		now:    time.Now,
		log:    log.With().Str("component", "outbox_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop
// ----------------------------------------------------------------

func (w *OutboxWorker) Start(ctx context.Context) {
	w.log.Info().Msg("OutboxWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested, outbox left in Redis")
			return
		default:
		}

		wait, err := w.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Outbox iteration failed")
		}
		if wait > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
		}
	}
}

// RunOnce handles at most one queued entry. It returns how long the caller
// should pause before the next call, which is non-zero when the head entry
// was not yet due.
func (w *OutboxWorker) RunOnce(ctx context.Context) (time.Duration, error) {
	item, err := w.rdb.BLPop(ctx, OutboxPollTimeout, config.WorkerKey.SubmitOutboxQueue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	if len(item) < 2 {
		return 0, nil
	}

	var entry model.OutboxEntry
	if err := json.Unmarshal([]byte(item[1]), &entry); err != nil {
		if pushErr := w.rdb.RPush(ctx, config.WorkerKey.SubmitDeadLetterQueue, item[1]).Err(); pushErr != nil {
			w.log.Error().Err(pushErr).Int("bytes", len(item[1])).Msg("Invalid outbox payload dropped, dead letter unavailable")
			return 0, fmt.Errorf("dead-letter invalid outbox payload: %w", pushErr)
		}
		w.log.Error().Err(err).Msg("Invalid outbox payload, moved to dead letter")
		return 0, nil
	}

	now := w.now()
	if !entry.TokenExpiresAt.IsZero() && !now.Before(entry.TokenExpiresAt.Time) {
		w.log.Error().
			Str("exam_id", entry.Result.ExamID).
			Str("student_id", entry.Result.StudentID).
			Msg("Student token expired, queued result moved to dead letter")
		return 0, w.deadLetter(ctx, &entry)
	}
	if !entry.NotBefore.IsZero() && now.Before(entry.NotBefore.Time) {
		if err := w.push(ctx, config.WorkerKey.SubmitOutboxQueue, &entry); err != nil {
			return 0, err
		}
		wait := entry.NotBefore.Sub(now)
		if wait > OutboxPollTimeout {
			wait = OutboxPollTimeout
		}
		return wait, nil
	}

	return 0, w.deliver(ctx, &entry)
}

func (w *OutboxWorker) deliver(ctx context.Context, entry *model.OutboxEntry) error {
	entryLog := w.log.With().
		Str("exam_id", entry.Result.ExamID).
		Str("student_id", entry.Result.StudentID).
		Int("attempt", entry.Attempts+1).
		Logger()

	sendCtx, cancel := context.WithTimeout(ctx, outboxSendTimeout)
	err := w.sender(entry.Token).SendResult(sendCtx, entry.Result)
	cancel()

	if err == nil {
		entryLog.Info().Msg("Queued result delivered")
		if w.ledger != nil && entry.LedgerID != "" {
			if err := w.ledger.MarkDelivered(ctx, entry.LedgerID); err != nil {
				entryLog.Warn().Err(err).Msg("Failed to flag ledger row as delivered")
			}
		}
		return nil
	}

	entry.Attempts++
	if permanent(err) || entry.Attempts >= OutboxMaxAttempts {
		entryLog.Error().Err(err).Msg("Giving up on queued result")
		return w.deadLetter(ctx, entry)
	}

	entry.NotBefore = model.NewTimestamp(w.now().Add(Backoff(entry.Attempts)))
	entryLog.Warn().Err(err).Time("retry_at", entry.NotBefore.Time).Msg("Delivery failed, requeueing")
	return w.push(ctx, config.WorkerKey.SubmitOutboxQueue, entry)
}

// deadLetter parks entry for manual follow-up without its bearer token.
func (w *OutboxWorker) deadLetter(ctx context.Context, entry *model.OutboxEntry) error {
	entry.Token = ""
	return w.push(ctx, config.WorkerKey.SubmitDeadLetterQueue, entry)
}

func (w *OutboxWorker) push(ctx context.Context, queue string, entry *model.OutboxEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return w.rdb.RPush(ctx, queue, raw).Err()
}

// Backoff doubles from OutboxBaseBackoff per attempt, capped at
// OutboxMaxBackoff.
func Backoff(attempts int) time.Duration {
	d := OutboxBaseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= OutboxMaxBackoff {
			return OutboxMaxBackoff
		}
	}
	return d
}

// permanent reports client errors the backend will never accept on retry.
func permanent(err error) bool {
	var se *backend.StatusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.Status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return se.Status >= 400 && se.Status < 500
}
