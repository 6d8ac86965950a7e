package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tradepost/internal/repos"
)

const batchSize = 100

// Redeliverer delivers a queued order event payload.
type Redeliverer interface {
	Redeliver(ctx context.Context, payload string) error
}

// DispatchWorker retries notification deliveries that failed inline.
type DispatchWorker struct {
	outbox      *repos.OutboxRepo
	dispatcher  Redeliverer
	logger      *zap.Logger
	interval    time.Duration
	maxAttempts int
	now         func() time.Time
}

func NewDispatchWorker(outbox *repos.OutboxRepo, dispatcher Redeliverer, logger *zap.Logger,
	interval time.Duration, maxAttempts int) *DispatchWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &DispatchWorker{
		outbox:      outbox,
		dispatcher:  dispatcher,
		logger:      logger,
		interval:    interval,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Start polls the outbox until ctx is done.
func (w *DispatchWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("dispatch worker started", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("dispatch worker stopped")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error("failed to process outbox", zap.Error(err))
			}
		}
	}
}

// RunOnce redelivers one batch of pending events and returns how many were
// delivered.
func (w *DispatchWorker) RunOnce(ctx context.Context) (int, error) {
	entries, err := w.outbox.Pending(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, e := range entries {
		if err := w.dispatcher.Redeliver(ctx, e.Payload); err != nil {
			w.logger.Warn("redelivery failed",
				zap.Int64("entryId", e.ID),
				zap.String("eventKey", e.EventKey),
				zap.Int("attempt", e.Attempts+1),
				zap.Error(err))
			if mErr := w.outbox.MarkAttemptFailed(ctx, e.ID, err.Error(), w.maxAttempts, w.now().UTC()); mErr != nil {
				w.logger.Error("failed to record attempt", zap.Int64("entryId", e.ID), zap.Error(mErr))
			}
			continue
		}

		if err := w.outbox.MarkSent(ctx, e.ID, w.now().UTC()); err != nil {
			w.logger.Error("failed to mark entry as sent", zap.Int64("entryId", e.ID), zap.Error(err))
			continue
		}
		sent++
		w.logger.Debug("event redelivered", zap.Int64("entryId", e.ID), zap.String("eventKey", e.EventKey))
	}
	return sent, nil
}
