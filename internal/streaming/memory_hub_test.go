package streaming

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveOne(t *testing.T, ch <-chan StreamEvent) StreamEvent {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return StreamEvent{}
	}
}

func TestPublishSubscribe(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{
		ExecutionID: "exec-1",
		TenantID:    "org-1",
		StepID:      "create-issue",
		EventType:   EventStepCompleted,
	}))

	got := receiveOne(t, ch)
	assert.Equal(t, "exec-1", got.ExecutionID)
	assert.Equal(t, EventStepCompleted, got.EventType)
}

func TestFilterByExecutionID(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{ExecutionID: "exec-1"})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{ExecutionID: "exec-2", EventType: EventStepCompleted}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{ExecutionID: "exec-1", EventType: EventStepCompleted}))

	got := receiveOne(t, ch)
	assert.Equal(t, "exec-1", got.ExecutionID)

	select {
	case e := <-ch:
		t.Fatalf("unexpected extra event: %+v", e)
	default:
	}
}

func TestFilterByTenant(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{TenantID: "org-1"})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{ExecutionID: "e1", TenantID: "org-2", EventType: EventExecutionStarted}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{ExecutionID: "e2", TenantID: "org-1", EventType: EventExecutionStarted}))

	got := receiveOne(t, ch)
	assert.Equal(t, "e2", got.ExecutionID)
}

func TestFilterByEventType(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{EventTypes: []string{EventStepFailed, EventExecutionFinished}})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{ExecutionID: "e1", EventType: EventStepCompleted}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{ExecutionID: "e1", EventType: EventStepFailed, StepID: "announce"}))

	got := receiveOne(t, ch)
	assert.Equal(t, EventStepFailed, got.EventType)
	assert.Equal(t, "announce", got.StepID)
}

func TestCancelUnsubscribes(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{ExecutionID: "e1", EventType: EventExecutionStarted}))

	select {
	case e, ok := <-ch:
		if ok {
			t.Fatalf("received event after cancel: %+v", e)
		}
	default:
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	_, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	// Fill the buffer well past capacity; Publish must never block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < defaultChannelBuffer*2; i++ {
			_ = hub.Publish(ctx, StreamEvent{ExecutionID: "e1", EventType: EventStepCompleted})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}

func TestPublishCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := hub.Publish(ctx, StreamEvent{ExecutionID: "e1"})
	require.Error(t, err)
}
