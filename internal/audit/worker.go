package audit

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Sink is where audit events end up: Kafka in production, memory in tests.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Worker drains the publisher inbox into the sink with a small pool of
// consumers. Sink failures are logged, not fatal: audit must never take the
// authorization path down.
type Worker struct {
	sink        Sink
	inbox       <-chan Event
	logger      *slog.Logger
	concurrency int
}

// NewWorker constructs a worker over the publisher's inbox.
func NewWorker(sink Sink, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{
		sink:        sink,
		inbox:       inbox,
		logger:      logger,
		concurrency: 2,
	}
}

// Run consumes until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case event := <-w.inbox:
					if err := w.sink.Append(ctx, event); err != nil {
						w.logger.ErrorContext(ctx, "audit append failed",
							"type", event.Type,
							"error", err,
						)
					}
				}
			}
		})
	}
	return g.Wait()
}
