package device

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/presentio/presentio/internal/domain/service"
	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/errors"
	"github.com/presentio/presentio/pkg/logger"
)

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	// AcquireTimeout bounds the wait for a device's exclusive slot.
	AcquireTimeout time.Duration

	// IdleTimeout is the inactivity window after which an unheld link is
	// disconnected by the reaper.
	IdleTimeout time.Duration

	// LeaseTTL is the lifetime of the distributed lease, when one is used.
	LeaseTTL time.Duration
}

// Pool maps logical device ids to live links and guarantees at most one
// enrollment in flight per device within this process. When a DeviceLease is
// supplied the guarantee extends across orchestrator instances.
type Pool struct {
	registry service.DeviceRegistry
	factory  LinkFactory
	lease    service.DeviceLease // nil in single-instance deployments
	owner    string
	cfg      PoolConfig
	log      logger.Logger

	mu     sync.Mutex
	slots  map[uuid.UUID]*slot
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

// slot is the per-device exclusive state. The semaphore channel (capacity 1)
// is the exclusive enrollment slot; the link survives across holders until
// the idle reaper retires it.
type slot struct {
	sem  chan struct{}
	mu   sync.Mutex
	link Link
}

// Handle is the caller's grip on an acquired device. Release is idempotent
// and must be called on every exit path.
type Handle struct {
	pool     *Pool
	slot     *slot
	deviceID uuid.UUID
	link     Link
	once     sync.Once
}

// NewPool creates a pool. lease may be nil; owner identifies this process
// instance in the distributed lease.
func NewPool(registry service.DeviceRegistry, factory LinkFactory, lease service.DeviceLease, cfg PoolConfig, log logger.Logger) *Pool {
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = constants.PoolAcquireTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = constants.LinkIdleTimeout
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = constants.DeviceLeaseTTL
	}
	p := &Pool{
		registry: registry,
		factory:  factory,
		lease:    lease,
		owner:    uuid.NewString(),
		cfg:      cfg,
		log:      log.WithComponent("devicepool"),
		slots:    make(map[uuid.UUID]*slot),
		stop:     make(chan struct{}),
	}
	p.wg.Add(1)
	go p.reapIdle()
	return p
}

// Acquire resolves the device and takes its exclusive enrollment slot. It
// fails with DeviceOffline when the registry reports the device not live and
// with DeviceBusy when the slot (local or distributed) is held.
func (p *Pool) Acquire(ctx context.Context, deviceID uuid.UUID) (*Handle, error) {
	resolved, err := p.registry.Resolve(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !resolved.IsLive {
		return nil, errors.ErrDeviceOffline(deviceID.String())
	}

	s := p.getSlot(deviceID)

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()
	select {
	case s.sem <- struct{}{}:
	case <-timer.C:
		return nil, errors.ErrDeviceBusy(deviceID.String())
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if p.lease != nil {
		ok, err := p.lease.Acquire(ctx, deviceID, p.owner, p.cfg.LeaseTTL)
		if err != nil {
			<-s.sem
			return nil, err
		}
		if !ok {
			<-s.sem
			return nil, errors.ErrDeviceBusy(deviceID.String())
		}
	}

	link, err := p.ensureLink(ctx, s, deviceID, resolved.Address)
	if err != nil {
		p.releaseLease(deviceID)
		<-s.sem
		return nil, err
	}

	p.registry.MarkSeen(ctx, deviceID)
	return &Handle{pool: p, slot: s, deviceID: deviceID, link: link}, nil
}

func (p *Pool) getSlot(deviceID uuid.UUID) *slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[deviceID]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		p.slots[deviceID] = s
	}
	return s
}

// ensureLink returns the slot's live link, reconnecting transparently if the
// reaper retired it or the previous holder discarded it.
func (p *Pool) ensureLink(ctx context.Context, s *slot, deviceID uuid.UUID, address string) (Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.link != nil && s.link.Connected() {
		return s.link, nil
	}
	link := p.factory.New(deviceID.String(), address)
	if err := link.Connect(ctx); err != nil {
		return nil, err
	}
	s.link = link
	return link, nil
}

func (p *Pool) releaseLease(deviceID uuid.UUID) {
	if p.lease == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), constants.DeviceCommandTimeout)
	defer cancel()
	if err := p.lease.Release(ctx, deviceID, p.owner); err != nil {
		p.log.Warn(ctx, "failed to release device lease",
			logger.String("device_id", deviceID.String()),
			logger.String("error", err.Error()),
		)
	}
}

// Link returns the device link held by this handle.
func (h *Handle) Link() Link {
	return h.link
}

// DeviceID returns the device this handle holds.
func (h *Handle) DeviceID() uuid.UUID {
	return h.deviceID
}

// Release frees the exclusive slot. Safe to call multiple times; only the
// first call has an effect.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.pool.releaseLease(h.deviceID)
		<-h.slot.sem
	})
}

// Discard frees the slot like Release but disconnects the link first, for
// exit paths where the device's protocol state is unknown (unacknowledged
// cancel, mid-capture link errors). The next Acquire reconnects.
func (h *Handle) Discard() {
	h.once.Do(func() {
		h.slot.mu.Lock()
		if h.slot.link == h.link {
			h.slot.link = nil
		}
		h.slot.mu.Unlock()
		_ = h.link.Disconnect()
		h.pool.releaseLease(h.deviceID)
		<-h.slot.sem
	})
}

// reapIdle periodically disconnects links that sat unheld past the idle
// window, bounding resource usage on large device fleets.
func (p *Pool) reapIdle() {
	defer p.wg.Done()
	interval := p.cfg.IdleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.reapOnce()
		}
	}
}

func (p *Pool) reapOnce() {
	p.mu.Lock()
	candidates := make(map[uuid.UUID]*slot, len(p.slots))
	for id, s := range p.slots {
		candidates[id] = s
	}
	p.mu.Unlock()

	for id, s := range candidates {
		select {
		case s.sem <- struct{}{}:
		default:
			continue // held, skip
		}
		s.mu.Lock()
		if s.link != nil && time.Since(s.link.LastActivity()) > p.cfg.IdleTimeout {
			_ = s.link.Disconnect()
			s.link = nil
			p.log.Debug(context.Background(), "disconnected idle device link",
				logger.String("device_id", id.String()),
			)
		}
		s.mu.Unlock()
		<-s.sem
	}
}

// Close stops the reaper and disconnects every pooled link.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.stop)
	slots := make([]*slot, 0, len(p.slots))
	for _, s := range p.slots {
		slots = append(slots, s)
	}
	p.mu.Unlock()

	p.wg.Wait()
	for _, s := range slots {
		s.mu.Lock()
		if s.link != nil {
			_ = s.link.Disconnect()
			s.link = nil
		}
		s.mu.Unlock()
	}
}
