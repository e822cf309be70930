// Package worker relays audit outbox rows to a message broker.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"baseid/pkg/platform/audit/store/postgres"
)

// Source is the outbox side of the relay.
type Source interface {
	FetchUnprocessed(ctx context.Context, limit int) ([]postgres.OutboxEntry, error)
	MarkProcessed(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Sink publishes one outbox payload.
type Sink interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// TxRunner runs fn in a transaction carried on the context.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// Relay polls the outbox and publishes unprocessed entries in order. A batch
// is marked processed only after every entry in it was published, so a
// broker outage delays events rather than losing them.
type Relay struct {
	source    Source
	sink      Sink
	runInTx   TxRunner
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type Option func(*Relay)

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func NewRelay(source Source, sink Sink, runInTx TxRunner, logger *slog.Logger, opts ...Option) *Relay {
	r := &Relay{
		source:    source,
		sink:      sink,
		runInTx:   runInTx,
		logger:    logger,
		interval:  time.Second,
		batchSize: 100,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil {
				r.logger.WarnContext(ctx, "audit outbox relay failed", "error", err)
			}
		}
	}
}

// RelayOnce publishes a single batch and returns how many entries it sent.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	published := 0
	err := r.runInTx(ctx, func(ctx context.Context) error {
		entries, err := r.source.FetchUnprocessed(ctx, r.batchSize)
		if err != nil {
			return err
		}
		ids := make([]uuid.UUID, 0, len(entries))
		for _, e := range entries {
			if err := r.sink.Publish(ctx, e.AggregateID, e.Payload); err != nil {
				return err
			}
			ids = append(ids, e.ID)
		}
		if err := r.source.MarkProcessed(ctx, ids, time.Now()); err != nil {
			return err
		}
		published = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}
