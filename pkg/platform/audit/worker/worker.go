// Package worker drains the audit outbox into Kafka.
package worker

import (
	"context"
	"log"
	"time"

	"landledger/pkg/platform/audit"
)

const (
	defaultInterval  = 2 * time.Second
	defaultBatchSize = 100
)

// Publisher delivers one serialized event downstream.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

// Worker polls the outbox and publishes pending entries in order. Entries
// are marked published only after a successful produce, so delivery is
// at-least-once and consumers must tolerate duplicates.
type Worker struct {
	outbox    audit.OutboxStore
	publisher Publisher
	log       *log.Logger
	interval  time.Duration
	batchSize int
}

func New(outbox audit.OutboxStore, publisher Publisher, logger *log.Logger) *Worker {
	return &Worker{
		outbox:    outbox,
		publisher: publisher,
		log:       logger,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
	}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.drain(ctx); err != nil && ctx.Err() == nil {
				w.log.Printf("audit worker: drain failed: %v", err)
			}
		}
	}
}

func (w *Worker) drain(ctx context.Context) error {
	for {
		entries, err := w.outbox.FetchUnpublished(ctx, w.batchSize)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		for _, entry := range entries {
			if err := w.publisher.Publish(ctx, entry.Key, entry.Payload); err != nil {
				// Stop at the first failure to preserve per-aggregate order.
				return err
			}
			if err := w.outbox.MarkPublished(ctx, entry.ID); err != nil {
				return err
			}
		}
		if len(entries) < w.batchSize {
			return nil
		}
	}
}
