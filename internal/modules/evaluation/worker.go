package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/vocalingo/core/internal/modules/ai"
	"github.com/vocalingo/core/internal/pkg/apperr"
	"github.com/vocalingo/core/internal/pkg/mq"
	"github.com/vocalingo/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultMaxAttempts = 3

// Processor runs one job; *Pipeline implements it.
type Processor interface {
	Process(ctx context.Context, jobID string, data JobData) error
}

// Worker drains the evaluation queue with a fixed number of slots.
type Worker struct {
	queue       mq.Queue
	processor   Processor
	status      StatusStore
	concurrency int
	maxAttempts int
	backoff     func(attempt int) time.Duration
	logger      *zap.Logger
}

func NewWorker(queue mq.Queue, processor Processor, status StatusStore, concurrency, maxAttempts int, logger *zap.Logger) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:       queue,
		processor:   processor,
		status:      status,
		concurrency: concurrency,
		maxAttempts: maxAttempts,
		backoff:     func(attempt int) time.Duration { return time.Duration(attempt) * time.Second },
		logger:      logger.Named("EvaluationWorker"),
	}
}

// Run consumes until ctx is cancelled. Each slot handles one job at a time.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.queue.Consume(ctx, w.concurrency)
	if err != nil {
		return err
	}
	w.logger.Info("worker started", zap.Int("concurrency", w.concurrency), zap.Int("max_attempts", w.maxAttempts))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			for d := range deliveries {
				w.handle(gctx, d)
			}
			return nil
		})
	}
	err = g.Wait()
	w.logger.Info("worker stopped")
	return err
}

func (w *Worker) handle(ctx context.Context, d mq.Delivery) {
	var env envelope
	if err := json.Unmarshal(d.Body, &env); err != nil || env.TaskID == "" {
		w.logger.Error("undecodable job dead-lettered", zap.String("message", d.ID), zap.Error(err))
		w.settle(d.DeadLetter, d.ID)
		return
	}
	log := w.logger.With(zap.String("job", env.TaskID), zap.Int("attempt", d.Attempt))

	err := w.processor.Process(ctx, env.TaskID, env.Data)
	if err == nil {
		w.settle(d.Ack, d.ID)
		return
	}
	if ctx.Err() != nil {
		// Left unsettled; the broker redelivers after the channel closes.
		return
	}
	if d.Attempt >= w.maxAttempts || !retryable(err) {
		log.Warn("job dead-lettered", zap.Error(err))
		w.settle(d.DeadLetter, d.ID)
		return
	}

	if w.status != nil {
		if serr := w.status.UpdateStatus(ctx, env.TaskID, taskqueue.TaskQueued, nil, err.Error()); serr != nil {
			log.Warn("task status not updated", zap.Error(serr))
		}
	}
	select {
	case <-ctx.Done():
		return
	case <-time.After(w.backoff(d.Attempt)):
	}
	next := mq.Message{ID: d.ID, Body: d.Body, Attempt: d.Attempt + 1}
	if perr := w.queue.Publish(ctx, next); perr != nil {
		log.Error("job not republished", zap.Error(perr))
		w.settle(d.DeadLetter, d.ID)
		return
	}
	log.Info("job requeued", zap.Int("next_attempt", next.Attempt), zap.Error(err))
	w.settle(d.Ack, d.ID)
}

func (w *Worker) settle(fn func() error, id string) {
	if err := fn(); err != nil {
		w.logger.Warn("delivery not settled", zap.String("message", id), zap.Error(err))
	}
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	if kind, ok := ai.KindOf(err); ok {
		return kind.Retryable()
	}
	switch {
	case errors.Is(err, ai.ErrConfiguration),
		errors.Is(err, apperr.ErrValidation),
		errors.Is(err, apperr.ErrNotFound),
		errors.Is(err, apperr.ErrForbidden):
		return false
	}
	return true
}
