package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/support-client/internal/service"
	"github.com/spec-kit/support-client/internal/store"
	apperrors "github.com/spec-kit/support-client/pkg/util"
)

// AppStateFunc reports what the host UI shows at the time of a tick.
type AppStateFunc func() service.AppState

// SyncJob is one poll tick: refresh the cache, surface new agent messages as
// live notifications, refresh the unread count and replay the outbox.
type SyncJob struct {
	Store    *store.Store
	Router   *service.NotificationRouter
	Unread   *service.UnreadTracker
	Outbox   *OutboxWorker
	AppState AppStateFunc
	Logger   *zap.Logger
}

// Run executes the tick. Transient failures are logged; the first other
// failure is returned after every step has run.
func (j *SyncJob) Run(ctx context.Context) error {
	logger := j.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil && !apperrors.IsTransient(err) {
			firstErr = err
		}
	}

	if j.Store != nil {
		arrivals, err := j.Store.BackgroundSync(ctx)
		keep(err)
		if j.Router != nil && len(arrivals) > 0 {
			state := service.AppState{}
			if j.AppState != nil {
				state = j.AppState()
			}
			if n := j.Router.DispatchLive(arrivals, state); n > 0 {
				logger.Debug("live notifications dispatched", zap.Int("count", n))
			}
		}
	}

	if j.Unread != nil {
		if _, err := j.Unread.Refresh(ctx); err != nil {
			logger.Warn("refresh unread count", zap.Error(err))
			keep(err)
		}
	}

	if j.Outbox != nil {
		res, err := j.Outbox.Flush(ctx)
		if err != nil {
			logger.Warn("flush outbox", zap.Error(err))
			keep(err)
		} else if res != (FlushResult{}) {
			logger.Info("outbox flushed",
				zap.Int("delivered", res.Delivered),
				zap.Int("retried", res.Retried),
				zap.Int("dropped", res.Dropped))
		}
	}
	return firstErr
}
