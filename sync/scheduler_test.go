package sync

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-integrations/core"
)

type captureEnqueuer struct {
	messages []*core.JobExecutionMessage
}

func (e *captureEnqueuer) Enqueue(_ context.Context, msg *core.JobExecutionMessage) error {
	e.messages = append(e.messages, msg)
	return nil
}

type stubDelivery struct {
	msg    *core.JobExecutionMessage
	acked  bool
	nacked *core.JobNackOptions
}

func (d *stubDelivery) Message() *core.JobExecutionMessage { return d.msg }

func (d *stubDelivery) Ack(context.Context) error {
	d.acked = true
	return nil
}

func (d *stubDelivery) Nack(_ context.Context, opts core.JobNackOptions) error {
	d.nacked = &opts
	return nil
}

type scriptedSyncer struct {
	err error
}

func (s scriptedSyncer) Sync(_ context.Context, providerID, userID string) (core.SyncResult, error) {
	if s.err != nil {
		return core.SyncResult{}, s.err
	}
	return core.SyncResult{Provider: providerID, UserID: userID, OK: true}, nil
}

func TestScheduler_DedupesOnProviderAndUser(t *testing.T) {
	enqueuer := &captureEnqueuer{}
	scheduler := Scheduler{Enqueuer: enqueuer}

	if err := scheduler.Schedule(context.Background(), "spotify", "user_1"); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(enqueuer.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(enqueuer.messages))
	}
	msg := enqueuer.messages[0]
	if msg.JobID != JobIDSync {
		t.Fatalf("unexpected job id: %s", msg.JobID)
	}
	if msg.IdempotencyKey != "spotify::user_1" {
		t.Fatalf("unexpected idempotency key: %s", msg.IdempotencyKey)
	}
	if msg.DedupPolicy != "drop" {
		t.Fatalf("unexpected dedup policy: %s", msg.DedupPolicy)
	}

	if err := scheduler.Schedule(context.Background(), "", "user_1"); err == nil {
		t.Fatalf("expected blank provider to be rejected")
	}
}

func TestWorker_AcksSuccessfulRun(t *testing.T) {
	delivery := &stubDelivery{msg: &core.JobExecutionMessage{JobID: JobIDSync, Provider: "spotify", UserID: "user_1"}}
	worker := Worker{Syncer: scriptedSyncer{}}

	worker.handle(context.Background(), delivery)
	if !delivery.acked {
		t.Fatalf("expected successful run acked")
	}
}

func TestWorker_RequeuesRateLimitedWithHint(t *testing.T) {
	delivery := &stubDelivery{msg: &core.JobExecutionMessage{JobID: JobIDSync, Provider: "spotify", UserID: "user_1"}}
	worker := Worker{Syncer: scriptedSyncer{err: core.NewRateLimitedError("spotify", 45*time.Second)}}

	worker.handle(context.Background(), delivery)
	if delivery.acked || delivery.nacked == nil {
		t.Fatalf("expected nack, got ack=%v", delivery.acked)
	}
	if !delivery.nacked.Requeue {
		t.Fatalf("expected requeue")
	}
	if delivery.nacked.Delay != 45*time.Second {
		t.Fatalf("expected retry hint honored, got %v", delivery.nacked.Delay)
	}
}

func TestWorker_DeadLettersRejectedCredentials(t *testing.T) {
	delivery := &stubDelivery{msg: &core.JobExecutionMessage{JobID: JobIDSync, Provider: "spotify", UserID: "user_1"}}
	worker := Worker{Syncer: scriptedSyncer{err: core.NewRefreshRejectedError("spotify", "invalid_grant")}}

	worker.handle(context.Background(), delivery)
	if delivery.nacked == nil || !delivery.nacked.DeadLetter {
		t.Fatalf("expected dead letter, got %+v", delivery.nacked)
	}
}

func TestWorker_DeadLettersUnknownJob(t *testing.T) {
	delivery := &stubDelivery{msg: &core.JobExecutionMessage{JobID: "something.else"}}
	worker := Worker{Syncer: scriptedSyncer{}}

	worker.handle(context.Background(), delivery)
	if delivery.nacked == nil || !delivery.nacked.DeadLetter {
		t.Fatalf("expected unknown job dead lettered, got %+v", delivery.nacked)
	}
}
