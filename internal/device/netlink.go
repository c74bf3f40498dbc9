package device

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/errors"
	"github.com/presentio/presentio/pkg/logger"
)

// Wire protocol: each frame is a 4-byte big-endian length prefix followed by
// a JSON envelope. The handshake is hello/welcome with a shared secret; after
// that the device pushes unsolicited "event" frames while command frames are
// answered by exactly one response frame, in order.
const (
	FrameHello         = "hello"
	FrameWelcome       = "welcome"
	FrameAuthReject    = "auth_reject"
	FrameEnrollStart   = "enroll_start"
	FrameEnrollCancel  = "enroll_cancel"
	FrameTemplateRead  = "template_read"
	FrameTemplateWrite = "template_write"
	FrameTemplateData  = "template_data"
	FrameAck           = "ack"
	FrameEvent         = "event"

	AckOK    = "ok"
	AckBusy  = "busy"
	AckError = "error"

	maxFrameSize = 1 << 20
)

// Frame is the JSON envelope exchanged with a network reader. It is exported
// so the simulated device endpoint (cmd/simdevice) can speak the same wire.
type Frame struct {
	Type     string `json:"type"`
	Secret   string `json:"secret,omitempty"`
	UserRef  uint32 `json:"user_ref,omitempty"`
	Finger   int    `json:"finger,omitempty"`
	Event    string `json:"event,omitempty"`
	Template []byte `json:"template,omitempty"`
	Quality  int    `json:"quality,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Status   string `json:"status,omitempty"`
}

// WriteFrame writes one length-prefixed frame.
func WriteFrame(w io.Writer, f *Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed frame.
func ReadFrame(r io.Reader) (*Frame, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(hdr[:])
	if size > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// NetLinkConfig tunes the network link.
type NetLinkConfig struct {
	CommSecret     string
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
}

// NetLink is the Link implementation for network-attached readers.
type NetLink struct {
	deviceID string
	address  string
	cfg      NetLinkConfig
	log      logger.Logger

	mu           sync.Mutex
	conn         net.Conn
	connected    bool
	lastActivity time.Time

	cmdMu  sync.Mutex // at most one command in flight
	events chan Event
	resp   chan *Frame
	done   chan struct{}
}

// NewNetLink creates a link that dials the given address on Connect.
func NewNetLink(deviceID, address string, cfg NetLinkConfig, log logger.Logger) *NetLink {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = constants.DeviceConnectTimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = constants.DeviceCommandTimeout
	}
	return &NetLink{
		deviceID: deviceID,
		address:  address,
		cfg:      cfg,
		log:      log.WithComponent("netlink"),
	}
}

// NetLinkFactory builds NetLinks sharing one configuration.
type NetLinkFactory struct {
	Config NetLinkConfig
	Log    logger.Logger
}

// New implements LinkFactory.
func (f *NetLinkFactory) New(deviceID string, address string) Link {
	return NewNetLink(deviceID, address, f.Config, f.Log)
}

// Connect implements Link. It dials, runs the hello/welcome handshake, and
// starts the read pump.
func (l *NetLink) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.connected {
		return nil
	}

	dialer := net.Dialer{Timeout: l.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", l.address)
	if err != nil {
		return errors.ErrUnreachable(l.address).WithCause(err)
	}

	deadline := time.Now().Add(l.cfg.ConnectTimeout)
	_ = conn.SetDeadline(deadline)
	if err := WriteFrame(conn, &Frame{Type: FrameHello, Secret: l.cfg.CommSecret}); err != nil {
		conn.Close()
		return errors.ErrUnreachable(l.address).WithCause(err)
	}
	reply, err := ReadFrame(conn)
	if err != nil {
		conn.Close()
		return errors.ErrUnreachable(l.address).WithCause(err)
	}
	switch reply.Type {
	case FrameWelcome:
	case FrameAuthReject:
		conn.Close()
		return errors.ErrAuthRejected(l.deviceID)
	default:
		conn.Close()
		return errors.ErrUnreachable(l.address).WithCause(fmt.Errorf("unexpected handshake frame %q", reply.Type))
	}
	_ = conn.SetDeadline(time.Time{})

	l.conn = conn
	l.connected = true
	l.lastActivity = time.Now()
	l.events = make(chan Event, constants.EventChannelCapacity)
	l.resp = make(chan *Frame, 1)
	l.done = make(chan struct{})
	go l.readLoop(conn, l.events, l.resp, l.done)
	return nil
}

// readLoop pumps inbound frames, routing unsolicited events to the event
// channel and everything else to the pending command. It exits on any read
// error, closing the event channel so pollers observe the lost link.
func (l *NetLink) readLoop(conn net.Conn, events chan Event, resp chan *Frame, done chan struct{}) {
	defer close(events)
	for {
		f, err := ReadFrame(conn)
		if err != nil {
			select {
			case <-done:
			default:
				l.log.Warn(context.Background(), "device link read failed",
					logger.String("device_id", l.deviceID),
					logger.String("error", err.Error()),
				)
			}
			l.markDisconnected()
			return
		}
		if f.Type == FrameEvent {
			ev := Event{Template: f.Template, Quality: f.Quality, Reason: f.Reason}
			switch f.Event {
			case string(EventCapturePlaced):
				ev.Kind = EventCapturePlaced
			case string(EventCaptureHeld):
				ev.Kind = EventCaptureHeld
			case string(EventCaptureComplete):
				ev.Kind = EventCaptureComplete
			case string(EventCaptureRejected):
				ev.Kind = EventCaptureRejected
			case string(EventCancelAck):
				ev.Kind = EventCancelAck
			default:
				continue
			}
			select {
			case events <- ev:
			default:
				// Holder stopped polling; drop rather than stall the pump.
			}
			continue
		}
		select {
		case resp <- f:
		default:
			// Response with no command pending; drop.
		}
	}
}

func (l *NetLink) markDisconnected() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		l.conn.Close()
	}
	l.connected = false
}

// roundTrip sends one command frame and waits for its response frame.
func (l *NetLink) roundTrip(ctx context.Context, f *Frame) (*Frame, error) {
	l.cmdMu.Lock()
	defer l.cmdMu.Unlock()

	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return nil, ErrLinkClosed
	}
	conn, resp := l.conn, l.resp
	l.mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(l.cfg.CommandTimeout))
	if err := WriteFrame(conn, f); err != nil {
		l.markDisconnected()
		return nil, errors.ErrConnectionLost(l.deviceID).WithCause(err)
	}

	timer := time.NewTimer(l.cfg.CommandTimeout)
	defer timer.Stop()
	select {
	case reply, ok := <-resp:
		if !ok || reply == nil {
			return nil, errors.ErrConnectionLost(l.deviceID)
		}
		l.mu.Lock()
		l.lastActivity = time.Now()
		l.mu.Unlock()
		return reply, nil
	case <-timer.C:
		return nil, errors.ErrTimeout(f.Type)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// StartEnrollment implements Link.
func (l *NetLink) StartEnrollment(ctx context.Context, userRef uint32, fingerIndex int) error {
	reply, err := l.roundTrip(ctx, &Frame{Type: FrameEnrollStart, UserRef: userRef, Finger: fingerIndex})
	if err != nil {
		return err
	}
	switch reply.Status {
	case AckOK:
		return nil
	case AckBusy:
		return errors.ErrDeviceBusy(l.deviceID)
	default:
		return errors.ErrInternal(fmt.Sprintf("device %s refused enrollment: %s", l.deviceID, reply.Reason))
	}
}

// CancelEnrollment implements Link.
func (l *NetLink) CancelEnrollment(ctx context.Context) error {
	_, err := l.roundTrip(ctx, &Frame{Type: FrameEnrollCancel})
	return err
}

// PollEvent implements Link.
func (l *NetLink) PollEvent(ctx context.Context, timeout time.Duration) (Event, error) {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return Event{}, ErrLinkClosed
	}
	events := l.events
	l.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev, ok := <-events:
		if !ok {
			return Event{}, ErrLinkClosed
		}
		l.mu.Lock()
		l.lastActivity = time.Now()
		l.mu.Unlock()
		return ev, nil
	case <-timer.C:
		return Event{}, ErrPollTimeout
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// ReadTemplate implements Link.
func (l *NetLink) ReadTemplate(ctx context.Context, userRef uint32, fingerIndex int) ([]byte, int, error) {
	reply, err := l.roundTrip(ctx, &Frame{Type: FrameTemplateRead, UserRef: userRef, Finger: fingerIndex})
	if err != nil {
		return nil, 0, err
	}
	if reply.Type != FrameTemplateData || len(reply.Template) == 0 {
		return nil, 0, errors.ErrTemplateCaptureError(l.deviceID)
	}
	return reply.Template, reply.Quality, nil
}

// WriteTemplate implements Link.
func (l *NetLink) WriteTemplate(ctx context.Context, userRef uint32, fingerIndex int, template []byte, quality int) error {
	reply, err := l.roundTrip(ctx, &Frame{
		Type:     FrameTemplateWrite,
		UserRef:  userRef,
		Finger:   fingerIndex,
		Template: template,
		Quality:  quality,
	})
	if err != nil {
		return err
	}
	if reply.Status != AckOK {
		return errors.ErrInternal(fmt.Sprintf("device %s refused template write: %s", l.deviceID, reply.Reason))
	}
	return nil
}

// Disconnect implements Link.
func (l *NetLink) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return nil
	}
	close(l.done)
	l.connected = false
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
	return nil
}

// Connected implements Link.
func (l *NetLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// LastActivity implements Link.
func (l *NetLink) LastActivity() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastActivity
}
