package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presentio/presentio/pkg/errors"
	"github.com/presentio/presentio/pkg/logger"
)

func newTestSimLink(t *testing.T, cfg SimConfig) *SimLink {
	t.Helper()
	if cfg.Latency == 0 {
		cfg.Latency = time.Millisecond
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	link := NewSimLink("sim-1", cfg, logger.NewNoopLogger())
	require.NoError(t, link.Connect(context.Background()))
	t.Cleanup(func() { _ = link.Disconnect() })
	return link
}

func collectEvents(t *testing.T, link Link, n int) []Event {
	t.Helper()
	events := make([]Event, 0, n)
	for len(events) < n {
		ev, err := link.PollEvent(context.Background(), time.Second)
		require.NoError(t, err)
		events = append(events, ev)
	}
	return events
}

func TestSimLinkSuccessfulCapture(t *testing.T) {
	link := newTestSimLink(t, SimConfig{SuccessRate: 1})
	require.NoError(t, link.StartEnrollment(context.Background(), 7, 1))

	events := collectEvents(t, link, 3)
	assert.Equal(t, EventCapturePlaced, events[0].Kind)
	assert.Equal(t, EventCaptureHeld, events[1].Kind)
	assert.Equal(t, EventCaptureComplete, events[2].Kind)
	assert.NotEmpty(t, events[2].Template)
	assert.GreaterOrEqual(t, events[2].Quality, 60)
	assert.LessOrEqual(t, events[2].Quality, 100)

	// The template is readable back from the on-board store.
	data, quality, err := link.ReadTemplate(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.Equal(t, events[2].Template, data)
	assert.Equal(t, events[2].Quality, quality)
}

func TestSimLinkForcedRejection(t *testing.T) {
	link := newTestSimLink(t, SimConfig{
		SuccessRate:    1,
		RejectUserRefs: map[uint32]string{7: "finger too dry"},
	})
	require.NoError(t, link.StartEnrollment(context.Background(), 7, 1))

	events := collectEvents(t, link, 3)
	assert.Equal(t, EventCaptureRejected, events[2].Kind)
	assert.Equal(t, "finger too dry", events[2].Reason)

	_, _, err := link.ReadTemplate(context.Background(), 7, 1)
	assert.True(t, errors.IsCode(err, "template_capture_error"))
}

func TestSimLinkCancelMidCapture(t *testing.T) {
	link := newTestSimLink(t, SimConfig{SuccessRate: 1, Latency: 50 * time.Millisecond})
	require.NoError(t, link.StartEnrollment(context.Background(), 7, 1))
	require.NoError(t, link.CancelEnrollment(context.Background()))

	for {
		ev, err := link.PollEvent(context.Background(), time.Second)
		require.NoError(t, err)
		if ev.Kind == EventCancelAck {
			return
		}
		// Events already in flight before the cancel are allowed through.
		assert.Contains(t, []EventKind{EventCapturePlaced, EventCaptureHeld}, ev.Kind)
	}
}

func TestSimLinkBusyDuringEnrollment(t *testing.T) {
	link := newTestSimLink(t, SimConfig{SuccessRate: 1, Latency: 100 * time.Millisecond})
	require.NoError(t, link.StartEnrollment(context.Background(), 7, 1))

	err := link.StartEnrollment(context.Background(), 8, 1)
	assert.True(t, errors.IsCode(err, "device_busy"))
}

func TestSimLinkPollTimeout(t *testing.T) {
	link := newTestSimLink(t, SimConfig{SuccessRate: 1})
	_, err := link.PollEvent(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrPollTimeout)
}

func TestSimLinkDisconnected(t *testing.T) {
	link := newTestSimLink(t, SimConfig{SuccessRate: 1})
	require.NoError(t, link.Disconnect())
	assert.False(t, link.Connected())

	assert.ErrorIs(t, link.StartEnrollment(context.Background(), 7, 1), ErrLinkClosed)
	_, err := link.PollEvent(context.Background(), time.Millisecond)
	assert.ErrorIs(t, err, ErrLinkClosed)
}

func TestSimLinkWriteTemplate(t *testing.T) {
	link := newTestSimLink(t, SimConfig{SuccessRate: 1})
	require.NoError(t, link.WriteTemplate(context.Background(), 9, 2, []byte("transferred"), 77))

	data, quality, err := link.ReadTemplate(context.Background(), 9, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("transferred"), data)
	assert.Equal(t, 77, quality)
}

func TestSimLinkDeterministicWithSeed(t *testing.T) {
	run := func() []EventKind {
		link := newTestSimLink(t, SimConfig{SuccessRate: 0.5, Seed: 99})
		require.NoError(t, link.StartEnrollment(context.Background(), 7, 1))
		events := collectEvents(t, link, 3)
		kinds := make([]EventKind, len(events))
		for i, ev := range events {
			kinds[i] = ev.Kind
		}
		return kinds
	}
	assert.Equal(t, run(), run())
}

func TestSimLinkMutedUserGoesDark(t *testing.T) {
	link := newTestSimLink(t, SimConfig{
		SuccessRate:  1,
		MuteUserRefs: map[uint32]bool{7: true},
	})

	// The start command is accepted, then nothing ever comes back.
	require.NoError(t, link.StartEnrollment(context.Background(), 7, 1))
	_, err := link.PollEvent(context.Background(), 50*time.Millisecond)
	assert.Equal(t, ErrPollTimeout, err)

	// A cancel is likewise swallowed without an acknowledgement.
	require.NoError(t, link.CancelEnrollment(context.Background()))
	_, err = link.PollEvent(context.Background(), 50*time.Millisecond)
	assert.Equal(t, ErrPollTimeout, err)
}
