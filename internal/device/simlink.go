package device

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/errors"
	"github.com/presentio/presentio/pkg/logger"
)

// SimConfig tunes the simulated device.
type SimConfig struct {
	// Latency is the gap between consecutive capture events.
	Latency time.Duration

	// SuccessRate is the probability in [0,1] that a capture completes
	// instead of being rejected for poor quality.
	SuccessRate float64

	// Seed makes the simulator deterministic; 0 seeds from the clock.
	Seed int64

	// RejectUserRefs forces a rejection with the given reason for specific
	// on-device users, regardless of SuccessRate. Used to engineer
	// failures in tests and demos.
	RejectUserRefs map[uint32]string

	// MuteUserRefs makes the device go dark for specific on-device users:
	// the start command is accepted but no capture events follow and a
	// cancel is never acknowledged. Used to engineer wedged-device
	// behavior in tests and demos.
	MuteUserRefs map[uint32]bool
}

// SimLink is the deterministic simulator behind the Link interface. It
// reproduces the real device's event sequence and timing envelope
// (placed -> held -> complete) so the orchestrator cannot tell it apart
// from a network reader.
type SimLink struct {
	deviceID string
	cfg      SimConfig
	log      logger.Logger

	mu           sync.Mutex
	rng          *rand.Rand
	connected    bool
	enrolling    bool
	cancelCh     chan struct{}
	events       chan Event
	lastActivity time.Time

	// templates mirrors the device's on-board template store.
	templates map[templateKey]storedTemplate
}

type templateKey struct {
	userRef uint32
	finger  int
}

type storedTemplate struct {
	data    []byte
	quality int
}

// NewSimLink creates a simulated device link.
func NewSimLink(deviceID string, cfg SimConfig, log logger.Logger) *SimLink {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.Latency <= 0 {
		cfg.Latency = 50 * time.Millisecond
	}
	return &SimLink{
		deviceID:  deviceID,
		cfg:       cfg,
		log:       log.WithComponent("simlink"),
		rng:       rand.New(rand.NewSource(seed)),
		events:    make(chan Event, constants.EventChannelCapacity),
		templates: make(map[templateKey]storedTemplate),
	}
}

// SimLinkFactory builds SimLinks sharing one configuration.
type SimLinkFactory struct {
	Config SimConfig
	Log    logger.Logger
}

// New implements LinkFactory.
func (f *SimLinkFactory) New(deviceID string, address string) Link {
	return NewSimLink(deviceID, f.Config, f.Log)
}

// Connect implements Link.
func (s *SimLink) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	s.lastActivity = time.Now()
	return nil
}

// StartEnrollment implements Link.
func (s *SimLink) StartEnrollment(ctx context.Context, userRef uint32, fingerIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrLinkClosed
	}
	if s.enrolling {
		return errors.ErrDeviceBusy(s.deviceID)
	}
	s.enrolling = true
	s.cancelCh = make(chan struct{})
	s.lastActivity = time.Now()

	if s.cfg.MuteUserRefs[userRef] {
		// Wedged: the command was accepted but nothing ever comes back.
		return nil
	}

	reject := ""
	if reason, ok := s.cfg.RejectUserRefs[userRef]; ok {
		reject = reason
	} else if s.rng.Float64() >= s.cfg.SuccessRate {
		reject = "sample quality below threshold"
	}
	quality := constants.QualityMin + 60 + s.rng.Intn(41)
	if quality > constants.QualityMax {
		quality = constants.QualityMax
	}

	go s.runCapture(userRef, fingerIndex, reject, quality, s.cancelCh)
	return nil
}

// runCapture emits the capture event sequence with the configured latency,
// aborting if a cancel arrives between steps.
func (s *SimLink) runCapture(userRef uint32, fingerIndex int, reject string, quality int, cancel <-chan struct{}) {
	step := func(ev Event) bool {
		select {
		case <-cancel:
			s.finishEnrollment(Event{Kind: EventCancelAck})
			return false
		case <-time.After(s.cfg.Latency):
		}
		select {
		case <-cancel:
			s.finishEnrollment(Event{Kind: EventCancelAck})
			return false
		case s.events <- ev:
		}
		return true
	}

	if !step(Event{Kind: EventCapturePlaced}) {
		return
	}
	if !step(Event{Kind: EventCaptureHeld}) {
		return
	}
	if reject != "" {
		s.finishEnrollment(Event{Kind: EventCaptureRejected, Reason: reject})
		return
	}

	data := []byte(fmt.Sprintf("SIMTPL|%d|%d|%08x", userRef, fingerIndex, s.rng.Uint32()))
	s.mu.Lock()
	s.templates[templateKey{userRef: userRef, finger: fingerIndex}] = storedTemplate{data: data, quality: quality}
	s.mu.Unlock()
	s.finishEnrollment(Event{Kind: EventCaptureComplete, Template: data, Quality: quality})
}

func (s *SimLink) finishEnrollment(ev Event) {
	s.mu.Lock()
	s.enrolling = false
	s.lastActivity = time.Now()
	s.mu.Unlock()
	select {
	case s.events <- ev:
	default:
		// Event channel full; the holder stopped polling. Drop.
	}
}

// CancelEnrollment implements Link.
func (s *SimLink) CancelEnrollment(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrLinkClosed
	}
	if s.enrolling && s.cancelCh != nil {
		close(s.cancelCh)
		s.cancelCh = nil
	}
	s.lastActivity = time.Now()
	return nil
}

// PollEvent implements Link.
func (s *SimLink) PollEvent(ctx context.Context, timeout time.Duration) (Event, error) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return Event{}, ErrLinkClosed
	}
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-s.events:
		s.mu.Lock()
		s.lastActivity = time.Now()
		s.mu.Unlock()
		return ev, nil
	case <-timer.C:
		return Event{}, ErrPollTimeout
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// ReadTemplate implements Link.
func (s *SimLink) ReadTemplate(ctx context.Context, userRef uint32, fingerIndex int) ([]byte, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, 0, ErrLinkClosed
	}
	s.lastActivity = time.Now()
	tpl, ok := s.templates[templateKey{userRef: userRef, finger: fingerIndex}]
	if !ok {
		return nil, 0, errors.ErrTemplateCaptureError(s.deviceID)
	}
	return tpl.data, tpl.quality, nil
}

// WriteTemplate implements Link.
func (s *SimLink) WriteTemplate(ctx context.Context, userRef uint32, fingerIndex int, template []byte, quality int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrLinkClosed
	}
	s.lastActivity = time.Now()
	s.templates[templateKey{userRef: userRef, finger: fingerIndex}] = storedTemplate{data: template, quality: quality}
	return nil
}

// Disconnect implements Link.
func (s *SimLink) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enrolling && s.cancelCh != nil {
		close(s.cancelCh)
		s.cancelCh = nil
		s.enrolling = false
	}
	s.connected = false
	return nil
}

// Connected implements Link.
func (s *SimLink) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// LastActivity implements Link.
func (s *SimLink) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}
