package broadcast

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presentio/presentio/internal/domain/models"
	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/logger"
)

func progressEvent(sessionID uuid.UUID, progress int) models.ProgressEvent {
	return models.ProgressEvent{
		Type:      models.EventTypeProgress,
		SessionID: sessionID,
		Progress:  progress,
	}
}

func TestPublishToSubscriber(t *testing.T) {
	b := NewBroadcaster(nil, logger.NewNoopLogger())
	tenantID := uuid.New()

	events, cancel := b.Subscribe(tenantID)
	defer cancel()

	sessionID := uuid.New()
	b.Publish(tenantID, progressEvent(sessionID, 33))

	select {
	case ev := <-events:
		assert.Equal(t, sessionID, ev.SessionID)
		assert.Equal(t, 33, ev.Progress)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestPublishPreservesOrder(t *testing.T) {
	b := NewBroadcaster(nil, logger.NewNoopLogger())
	tenantID := uuid.New()
	events, cancel := b.Subscribe(tenantID)
	defer cancel()

	sessionID := uuid.New()
	for _, p := range []int{0, 33, 66, 100} {
		b.Publish(tenantID, progressEvent(sessionID, p))
	}

	for _, want := range []int{0, 33, 66, 100} {
		ev := <-events
		assert.Equal(t, want, ev.Progress)
	}
}

func TestTenantIsolation(t *testing.T) {
	b := NewBroadcaster(nil, logger.NewNoopLogger())
	tenantA, tenantB := uuid.New(), uuid.New()

	eventsA, cancelA := b.Subscribe(tenantA)
	defer cancelA()
	eventsB, cancelB := b.Subscribe(tenantB)
	defer cancelB()

	b.Publish(tenantA, progressEvent(uuid.New(), 33))

	select {
	case <-eventsA:
	case <-time.After(time.Second):
		t.Fatal("tenant A saw nothing")
	}
	select {
	case ev := <-eventsB:
		t.Fatalf("tenant B leaked event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	b := NewBroadcaster(nil, logger.NewNoopLogger())
	// Must not block or panic.
	b.Publish(uuid.New(), progressEvent(uuid.New(), 33))
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	b := NewBroadcaster(nil, logger.NewNoopLogger())
	tenantID := uuid.New()

	slow, cancelSlow := b.Subscribe(tenantID)
	defer cancelSlow()

	// Never drain slow; overflow its buffer.
	for i := 0; i <= constants.SubscriberChannelCapacity; i++ {
		b.Publish(tenantID, progressEvent(uuid.New(), i))
	}

	// The slow channel was closed after it fell behind, with the buffered
	// backlog still readable.
	drained := 0
	for range slow {
		drained++
	}
	assert.Equal(t, constants.SubscriberChannelCapacity, drained)
	assert.Equal(t, 0, b.SubscriberCount(tenantID))

	// The drop does not poison the tenant's fan-out.
	fresh, cancelFresh := b.Subscribe(tenantID)
	defer cancelFresh()
	b.Publish(tenantID, progressEvent(uuid.New(), 99))
	select {
	case ev := <-fresh:
		assert.Equal(t, 99, ev.Progress)
	case <-time.After(time.Second):
		t.Fatal("fresh subscriber starved")
	}
}

func TestCancelIdempotent(t *testing.T) {
	b := NewBroadcaster(nil, logger.NewNoopLogger())
	tenantID := uuid.New()

	_, cancel := b.Subscribe(tenantID)
	require.Equal(t, 1, b.SubscriberCount(tenantID))
	cancel()
	cancel()
	assert.Equal(t, 0, b.SubscriberCount(tenantID))
}

func TestNoReplayForLateSubscribers(t *testing.T) {
	b := NewBroadcaster(nil, logger.NewNoopLogger())
	tenantID := uuid.New()

	b.Publish(tenantID, progressEvent(uuid.New(), 33))

	events, cancel := b.Subscribe(tenantID)
	defer cancel()
	select {
	case ev := <-events:
		t.Fatalf("late subscriber got replayed event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
