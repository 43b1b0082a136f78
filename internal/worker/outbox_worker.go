package worker

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-client/internal/config"
	"github.com/spec-kit/support-client/internal/domain"
	"github.com/spec-kit/support-client/internal/events"
	"github.com/spec-kit/support-client/internal/repository"
	"github.com/spec-kit/support-client/internal/service"
	apperrors "github.com/spec-kit/support-client/pkg/util"
)

// RetryPolicy bounds outbox replay.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// Jitter is the fraction the delay may vary by in either direction.
	Jitter float64
}

// PolicyFromConfig builds the policy with ±20% jitter.
func PolicyFromConfig(cfg config.OutboxConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseBackoff: cfg.BaseBackoff(),
		MaxBackoff:  cfg.MaxBackoff(),
		Jitter:      0.2,
	}
}

// Backoff returns the delay before attempt number attempts+1. r is a
// uniform sample in [0, 1).
func (p RetryPolicy) Backoff(attempts int, r float64) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseBackoff
	for i := 1; i < attempts && delay < p.MaxBackoff; i++ {
		delay *= 2
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		delay = p.MaxBackoff
	}
	if p.Jitter > 0 {
		delay = time.Duration(float64(delay) * (1 + p.Jitter*(2*r-1)))
	}
	return delay
}

// FlushResult counts what one replay pass did.
type FlushResult struct {
	Delivered int
	Retried   int
	Dropped   int
}

// OutboxWorker replays queued messages, FIFO per ticket.
type OutboxWorker struct {
	repo    repository.OutboxRepository
	sender  service.MessageSender
	policy  RetryPolicy
	tracker *events.Tracker
	logger  *zap.Logger
	now     func() time.Time
	rand    func() float64

	mu sync.Mutex
}

// OutboxDependencies bundles collaborators of the replay worker.
type OutboxDependencies struct {
	Outbox  *service.Outbox
	Policy  RetryPolicy
	Tracker *events.Tracker
	Logger  *zap.Logger
	Clock   func() time.Time
	Rand    func() float64
}

// NewOutboxWorker creates the worker.
func NewOutboxWorker(deps OutboxDependencies) *OutboxWorker {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Rand == nil {
		deps.Rand = rand.Float64
	}
	if deps.Policy.MaxAttempts <= 0 {
		deps.Policy.MaxAttempts = 8
	}
	return &OutboxWorker{
		repo:    deps.Outbox.Repository(),
		sender:  deps.Outbox.Sender(),
		policy:  deps.Policy,
		tracker: deps.Tracker,
		logger:  deps.Logger,
		now:     deps.Clock,
		rand:    deps.Rand,
	}
}

// Flush makes one replay pass over due entries. A failing entry blocks
// later entries for the same ticket until the next pass; a network failure
// ends the pass.
func (w *OutboxWorker) Flush(ctx context.Context) (FlushResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var result FlushResult
	entries, err := w.repo.List(ctx)
	if err != nil {
		return result, err
	}

	blocked := make(map[string]bool)
	for _, entry := range entries {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if blocked[entry.TicketID] {
			continue
		}
		if !entry.Due(w.now()) {
			blocked[entry.TicketID] = true
			continue
		}

		_, sendErr := w.sender.Send(ctx, entry.TicketID, entry.Text, entry.Attachments)
		if sendErr == nil {
			if err := w.repo.Delete(ctx, entry.ID); err != nil {
				return result, err
			}
			result.Delivered++
			w.tracker.Track(ctx, events.EventOutboxDelivered, map[string]any{"ticket_id": entry.TicketID, "attempts": entry.Attempts + 1})
			continue
		}

		entry.Attempts++
		entry.LastError = sendErr.Error()
		if permanent(sendErr) || entry.Attempts >= w.policy.MaxAttempts {
			if err := w.drop(ctx, entry, sendErr); err != nil {
				return result, err
			}
			result.Dropped++
			continue
		}

		entry.NextAttemptAt = w.now().Add(w.retryDelay(entry.Attempts, sendErr))
		if err := w.repo.Update(ctx, entry); err != nil && !repository.IsNotFound(err) {
			return result, err
		}
		result.Retried++
		blocked[entry.TicketID] = true
		w.logger.Warn("outbox replay failed",
			zap.String("entry_id", entry.ID),
			zap.String("ticket_id", entry.TicketID),
			zap.Int("attempt", entry.Attempts),
			zap.Time("next_attempt_at", entry.NextAttemptAt),
			zap.Error(sendErr))
		if apperrors.IsNetwork(sendErr) {
			break
		}
	}
	return result, nil
}

func (w *OutboxWorker) retryDelay(attempts int, err error) time.Duration {
	if d := apperrors.RetryAfterOf(err); d > 0 {
		return d
	}
	return w.policy.Backoff(attempts, w.rand())
}

func (w *OutboxWorker) drop(ctx context.Context, entry domain.OutboxEntry, cause error) error {
	if err := w.repo.Delete(ctx, entry.ID); err != nil {
		return err
	}
	w.logger.Error("outbox entry dropped",
		zap.String("entry_id", entry.ID),
		zap.String("ticket_id", entry.TicketID),
		zap.Int("attempt", entry.Attempts),
		zap.Error(cause))
	w.tracker.Track(ctx, events.EventOutboxDropped, map[string]any{
		"ticket_id": entry.TicketID,
		"attempts":  entry.Attempts,
		"reason":    apperrors.CodeOf(cause),
	})
	return nil
}

// permanent errors are never retried.
func permanent(err error) bool {
	return apperrors.IsValidation(err) || apperrors.IsNotFound(err) || apperrors.IsAuth(err)
}
