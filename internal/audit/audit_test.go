package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmitFillsIdentity(t *testing.T) {
	publisher := NewPublisher(4, testLogger())

	publisher.Emit(context.Background(), Event{Type: EventNegotiationStarted, Subject: "acme"})

	event := <-publisher.Inbox()
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
	assert.Equal(t, EventNegotiationStarted, event.Type)
}

func TestEmitDropsWhenFull(t *testing.T) {
	publisher := NewPublisher(1, testLogger())

	publisher.Emit(context.Background(), Event{Type: EventNegotiationStarted})
	// Must not block even though nobody drains the inbox.
	done := make(chan struct{})
	go func() {
		publisher.Emit(context.Background(), Event{Type: EventNegotiationApproved})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full inbox")
	}
	assert.Len(t, publisher.Inbox(), 1)
}

func TestWorkerDrainsIntoSink(t *testing.T) {
	publisher := NewPublisher(16, testLogger())
	sink := NewMemorySink()
	worker := NewWorker(sink, publisher.Inbox(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	publisher.Emit(ctx, Event{Type: EventVerificationSucceeded, Subject: "did:jwk:holder"})
	publisher.Emit(ctx, Event{Type: EventNegotiationApproved, Subject: "did:jwk:holder"})

	require.Eventually(t, func() bool {
		return len(sink.Events()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on cancellation")
	}
}

type failingSink struct{}

func (failingSink) Append(context.Context, Event) error { return errors.New("broker down") }

func TestWorkerSurvivesSinkFailures(t *testing.T) {
	publisher := NewPublisher(16, testLogger())
	worker := NewWorker(failingSink{}, publisher.Inbox(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = worker.Run(ctx) }()

	publisher.Emit(ctx, Event{Type: EventContinuationRejected})

	// The failing append must not kill the worker; the inbox keeps draining.
	require.Eventually(t, func() bool {
		return len(publisher.Inbox()) == 0
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
}
