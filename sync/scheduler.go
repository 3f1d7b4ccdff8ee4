package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
)

// JobIDSync is the queue job id for one (provider, user) sync run. The
// orchestrator enqueues under the same id when it kicks off the first sync
// after a callback.
const JobIDSync = core.SyncJobID

const defaultNackDelay = time.Minute

// Syncer is the slice of the orchestrator the worker needs.
type Syncer interface {
	Sync(ctx context.Context, providerID, userID string) (core.SyncResult, error)
}

// Scheduler enqueues sync runs. Deduplication keys on (provider, user) so a
// burst of triggers collapses into one queued run.
type Scheduler struct {
	Enqueuer core.JobEnqueuer
}

func (s Scheduler) Schedule(ctx context.Context, providerID, userID string) error {
	if s.Enqueuer == nil {
		return fmt.Errorf("sync: job enqueuer is required")
	}
	providerID = strings.TrimSpace(providerID)
	userID = strings.TrimSpace(userID)
	if providerID == "" || userID == "" {
		return fmt.Errorf("sync: provider and user id are required")
	}
	return s.Enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
		JobID:          JobIDSync,
		Provider:       providerID,
		UserID:         userID,
		IdempotencyKey: providerID + "::" + userID,
		DedupPolicy:    "drop",
	})
}

// Worker drains the sync queue. Rate-limited runs are requeued honoring the
// provider's retry hint; rejected credentials dead-letter instead of
// retrying forever.
type Worker struct {
	Dequeuer core.JobDequeuer
	Syncer   Syncer
	Logger   core.Logger
	Hooks    core.JobWorkerHook
}

func (w Worker) Run(ctx context.Context) error {
	if w.Dequeuer == nil || w.Syncer == nil {
		return fmt.Errorf("sync: dequeuer and syncer are required")
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		delivery, err := w.Dequeuer.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			w.logWarn(ctx, "dequeue failed", "", "", err)
			continue
		}
		w.handle(ctx, delivery)
	}
}

func (w Worker) handle(ctx context.Context, delivery core.JobDelivery) {
	msg := delivery.Message()
	if msg == nil || msg.JobID != JobIDSync {
		_ = delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: "unexpected job"})
		return
	}
	startedAt := time.Now().UTC()
	event := core.JobWorkerEvent{Message: msg, StartedAt: startedAt}
	if w.Hooks != nil {
		w.Hooks.OnStart(ctx, event)
	}

	_, err := w.Syncer.Sync(ctx, msg.Provider, msg.UserID)
	event.Duration = time.Since(startedAt)
	if err == nil {
		if w.Hooks != nil {
			w.Hooks.OnSuccess(ctx, event)
		}
		_ = delivery.Ack(ctx)
		return
	}

	event.Err = err
	w.logWarn(ctx, "sync job failed", msg.Provider, msg.UserID, err)
	switch {
	case core.IsRateLimited(err):
		delay := defaultNackDelay
		if hint, ok := core.RetryAfter(err); ok {
			delay = hint
		}
		event.Delay = delay
		if w.Hooks != nil {
			w.Hooks.OnRetry(ctx, event)
		}
		_ = delivery.Nack(ctx, core.JobNackOptions{Requeue: true, Delay: delay, Reason: err.Error()})
	case core.IsInvalidToken(err), core.IsRefreshRejected(err), core.IsNotConnected(err):
		if w.Hooks != nil {
			w.Hooks.OnFailure(ctx, event)
		}
		_ = delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: err.Error()})
	default:
		event.Delay = defaultNackDelay
		if w.Hooks != nil {
			w.Hooks.OnRetry(ctx, event)
		}
		_ = delivery.Nack(ctx, core.JobNackOptions{Requeue: true, Delay: defaultNackDelay, Reason: err.Error()})
	}
}

func (w Worker) logWarn(ctx context.Context, message, provider, userID string, err error) {
	if w.Logger == nil {
		return
	}
	logger := w.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Warn(message,
		"provider", provider,
		"user_id", userID,
		"error", err.Error(),
	)
}
