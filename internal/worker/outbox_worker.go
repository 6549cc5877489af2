// Package worker runs the notification outbox drain loops. Any number of
// loops may run concurrently, in this process or others; the outbox
// repository's claim semantics are the only coordination between them.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/mail"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/persistence"
	"github.com/spec-kit/support-desk/internal/repository"
)

// OutboxWorker drains pending outbox messages to the mail transport.
type OutboxWorker struct {
	outbox  repository.OutboxRepository
	mailer  mail.Mailer
	redis   *persistence.Redis
	metrics *observability.Metrics
	logger  *zap.Logger
	cfg     config.OutboxConfig

	wg sync.WaitGroup
}

// NewOutboxWorker constructs the worker pool.
func NewOutboxWorker(outbox repository.OutboxRepository, mailer mail.Mailer, redis *persistence.Redis, metrics *observability.Metrics, logger *zap.Logger, cfg config.OutboxConfig) *OutboxWorker {
	return &OutboxWorker{
		outbox:  outbox,
		mailer:  mailer,
		redis:   redis,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
	}
}

// Start launches the configured number of loops. They run until ctx is
// canceled; Wait blocks until all loops have exited.
func (w *OutboxWorker) Start(ctx context.Context) {
	workers := w.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			w.runLoop(ctx, id)
		}(i)
	}
}

// Wait blocks until all loops have stopped.
func (w *OutboxWorker) Wait() {
	w.wg.Wait()
}

func (w *OutboxWorker) runLoop(ctx context.Context, id int) {
	logger := w.logger.With(zap.Int("outbox_worker", id))
	logger.Info("outbox worker started")

	wake, cancelWake := w.redis.SubscribeOutbox(ctx)
	defer cancelWake()

	ticker := time.NewTicker(w.cfg.PollInterval())
	defer ticker.Stop()

	for {
		w.DrainOnce(ctx, logger)

		select {
		case <-ctx.Done():
			logger.Info("outbox worker stopping")
			return
		case <-ticker.C:
		case <-wake:
			// Enqueue nudge; claim immediately instead of waiting out the poll.
		}
	}
}

// DrainOnce claims one batch and attempts delivery of every claimed message.
// Each message settles individually; one failure never blocks the rest of
// the batch and never escapes the loop.
func (w *OutboxWorker) DrainOnce(ctx context.Context, logger *zap.Logger) {
	ids, err := w.outbox.Claim(ctx, w.cfg.BatchSize)
	if err != nil {
		logger.Error("outbox claim failed", zap.Error(err))
		return
	}
	for _, id := range ids {
		w.deliver(ctx, logger, id)
	}
}

func (w *OutboxWorker) deliver(ctx context.Context, logger *zap.Logger, id int64) {
	msg, err := w.outbox.GetByID(ctx, id)
	if err != nil {
		// Claim only picks up pending rows, so a claimed row left behind
		// here would never be retried. Settle it as failed for the operator.
		if settleErr := w.outbox.MarkFailed(ctx, id, fmt.Sprintf("load: %v", err)); settleErr != nil {
			logger.Error("outbox settle(failed) failed", zap.Int64("message_id", id), zap.Error(settleErr))
			return
		}
		w.metrics.RecordOutbox("failed")
		logger.Error("outbox load failed", zap.Int64("message_id", id), zap.Error(err))
		return
	}

	if sendErr := w.mailer.Send(msg.To, msg.CC, msg.Subject, msg.Body); sendErr != nil {
		if err := w.outbox.MarkFailed(ctx, id, sendErr.Error()); err != nil {
			logger.Error("outbox settle(failed) failed", zap.Int64("message_id", id), zap.Error(err))
			return
		}
		w.metrics.RecordOutbox("failed")
		logger.Warn("outbox message delivery failed",
			zap.Int64("message_id", id),
			zap.String("to", msg.To),
			zap.Error(sendErr))
		return
	}

	if err := w.outbox.MarkSent(ctx, id); err != nil {
		logger.Error("outbox settle(sent) failed", zap.Int64("message_id", id), zap.Error(err))
		return
	}
	w.metrics.RecordOutbox("sent")
	logger.Info("outbox message sent",
		zap.Int64("message_id", id),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject))
}
