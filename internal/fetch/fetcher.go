// Package fetch runs batched, rate-limited lookups of remote item metadata
// in the background and streams the results back in order.
package fetch

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/starford/workshopwatch/internal/models"
)

// Defaults applied by New.
const (
	DefaultBatchSize = 50
	DefaultDelay     = time.Second
)

// Remote performs one metadata lookup for a batch of ids.
type Remote interface {
	Details(ctx context.Context, ids []string) ([]models.RemoteDetails, error)
}

// Fetcher splits id lists into batches and queries Remote one batch at a time.
type Fetcher struct {
	remote    Remote
	batchSize int
	delay     time.Duration
	sleep     func(context.Context, time.Duration)
	logger    *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithBatchSize sets the maximum number of ids per request.
func WithBatchSize(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.batchSize = n
		}
	}
}

// WithDelay sets the pause after every batch.
func WithDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		if d >= 0 {
			f.delay = d
		}
	}
}

// WithLogger sets the logger used for batch failures.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// New creates a Fetcher.
func New(remote Remote, opts ...Option) *Fetcher {
	f := &Fetcher{
		remote:    remote,
		batchSize: DefaultBatchSize,
		delay:     DefaultDelay,
		sleep:     sleepCtx,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start begins fetching ids in the background and returns immediately.
//
// For every batch the stream carries one Item event per returned result,
// then a Progress event with the cumulative result count. A Done event is
// always last. A batch whose request fails contributes no Item events and
// is not retried. The delay follows every batch, including the last.
// Cancelling ctx makes the remaining requests fail fast; the stream still
// ends with Done. Stream.Stop cancels the fetch from the consumer side.
func (f *Fetcher) Start(ctx context.Context, ids []string) *Stream {
	ids = slices.Clone(ids)
	ctx, cancel := context.WithCancel(ctx)
	s := newStream(newOperationID(), len(ids), cancel)
	go func() {
		defer cancel()
		f.run(ctx, s, ids)
	}()
	return s
}

func (f *Fetcher) run(ctx context.Context, s *Stream, ids []string) {
	logger := f.logger.With(slog.String("fetch_id", s.ID))
	logger.Info("fetch: started", slog.Int("total", len(ids)), slog.Int("batch_size", f.batchSize))

	emitted := 0
	batch := 0
	for chunk := range slices.Chunk(ids, f.batchSize) {
		batch++
		results, err := f.remote.Details(ctx, chunk)
		if err != nil {
			logger.Warn("fetch: batch failed",
				slog.Int("batch", batch),
				slog.Int("size", len(chunk)),
				slog.String("error", err.Error()))
			results = nil
		}
		for _, r := range results {
			s.push(Event{Kind: KindItem, Item: r})
			emitted++
		}
		s.push(Event{Kind: KindProgress, Completed: emitted, Total: len(ids)})
		f.sleep(ctx, f.delay)
	}

	s.push(Event{Kind: KindDone, Completed: emitted, Total: len(ids)})
	s.closeInput()
	logger.Info("fetch: finished", slog.Int("results", emitted), slog.Int("batches", batch))
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
