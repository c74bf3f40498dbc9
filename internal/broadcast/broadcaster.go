// Package broadcast implements the tenant-scoped fan-out of enrollment
// lifecycle events to live observers. Delivery is best-effort and live-only:
// events are never buffered for future subscribers, and a subscriber that
// falls behind is dropped rather than waited on.
package broadcast

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/presentio/presentio/internal/domain/models"
	"github.com/presentio/presentio/internal/domain/service"
	"github.com/presentio/presentio/internal/infrastructure/monitoring"
	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/logger"
)

type subscriber struct {
	ch   chan models.ProgressEvent
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Broadcaster fans events out to per-tenant subscriber sets. Publishing from
// a single goroutine per session preserves that session's event order for
// every subscriber; ordering across sessions is not guaranteed.
type Broadcaster struct {
	metrics *monitoring.Metrics // nil disables metric recording
	log     logger.Logger

	mu   sync.Mutex
	subs map[uuid.UUID]map[*subscriber]struct{}
}

// NewBroadcaster creates an empty broadcaster. metrics may be nil.
func NewBroadcaster(metrics *monitoring.Metrics, log logger.Logger) *Broadcaster {
	return &Broadcaster{
		metrics: metrics,
		log:     log.WithComponent("broadcast"),
		subs:    make(map[uuid.UUID]map[*subscriber]struct{}),
	}
}

var _ service.Broadcaster = (*Broadcaster)(nil)

// Subscribe implements service.Broadcaster. The returned cancel function is
// idempotent; it removes the subscription and closes the channel.
func (b *Broadcaster) Subscribe(tenantID uuid.UUID) (<-chan models.ProgressEvent, func()) {
	sub := &subscriber{ch: make(chan models.ProgressEvent, constants.SubscriberChannelCapacity)}

	b.mu.Lock()
	set, ok := b.subs[tenantID]
	if !ok {
		set = make(map[*subscriber]struct{})
		b.subs[tenantID] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.Subscribers.Inc()
	}
	cancel := func() {
		if b.remove(tenantID, sub) && b.metrics != nil {
			b.metrics.Subscribers.Dec()
		}
		sub.close()
	}
	return sub.ch, cancel
}

// Publish implements service.Broadcaster. A full subscriber channel means the
// observer stopped draining; it is dropped from the fan-out set and its
// channel closed, so the slow observer never blocks publication to others.
func (b *Broadcaster) Publish(tenantID uuid.UUID, event models.ProgressEvent) {
	b.mu.Lock()
	set := b.subs[tenantID]
	if len(set) == 0 {
		b.mu.Unlock()
		return
	}
	var dropped []*subscriber
	for sub := range set {
		select {
		case sub.ch <- event:
		default:
			dropped = append(dropped, sub)
		}
	}
	for _, sub := range dropped {
		delete(set, sub)
	}
	if len(set) == 0 {
		delete(b.subs, tenantID)
	}
	b.mu.Unlock()

	for _, sub := range dropped {
		sub.close()
	}
	if len(dropped) > 0 {
		if b.metrics != nil {
			b.metrics.DroppedSubscriber.Add(float64(len(dropped)))
			b.metrics.Subscribers.Sub(float64(len(dropped)))
		}
		b.log.Warn(context.Background(), "dropped slow progress subscribers",
			logger.String("tenant_id", tenantID.String()),
			logger.Int("count", len(dropped)),
		)
	}
}

// SubscriberCount returns the live subscriber count for a tenant.
func (b *Broadcaster) SubscriberCount(tenantID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[tenantID])
}

// remove reports whether the subscriber was still in the fan-out set, so the
// caller does not double-count a subscriber already dropped by Publish.
func (b *Broadcaster) remove(tenantID uuid.UUID, sub *subscriber) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[tenantID]
	if _, ok := set[sub]; !ok {
		return false
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, tenantID)
	}
	return true
}
