// simdevice is a standalone simulated fingerprint reader speaking the same
// wire protocol as real network-attached devices. It lets a full server
// deployment in "net" mode run against fake hardware.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"os"
	"sync"
	"time"

	"github.com/presentio/presentio/internal/config"
	"github.com/presentio/presentio/internal/device"
	"github.com/presentio/presentio/internal/infrastructure/monitoring"
	"github.com/presentio/presentio/pkg/logger"
)

func main() {
	var (
		listen      = flag.String("listen", ":7070", "address to listen on")
		secret      = flag.String("secret", "changeme", "communication secret expected in the handshake")
		latency     = flag.Duration("latency", 300*time.Millisecond, "gap between capture events")
		successRate = flag.Float64("success-rate", 0.9, "probability a capture completes instead of being rejected")
		seed        = flag.Int64("seed", 0, "rng seed, 0 seeds from the clock")
	)
	flag.Parse()

	log, err := monitoring.NewZapLogger(&config.LogConfig{Level: "debug", Format: "console"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	ctx := context.Background()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Fatal(ctx, "failed to listen", err, logger.String("addr", *listen))
	}
	log.Info(ctx, "simulated device listening",
		logger.String("addr", *listen),
		logger.Duration("latency", *latency),
	)

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Error(ctx, "accept failed", err)
			continue
		}
		d := &simDevice{
			conn:        conn,
			secret:      *secret,
			latency:     *latency,
			successRate: *successRate,
			rng:         rand.New(rand.NewSource(*seed)),
			templates:   make(map[templateKey][]byte),
			qualities:   make(map[templateKey]int),
			log:         log.WithFields(logger.String("remote", conn.RemoteAddr().String())),
		}
		go d.serve()
	}
}

type templateKey struct {
	userRef uint32
	finger  int
}

// simDevice serves one orchestrator connection. Writes are serialized because
// the capture goroutine pushes event frames while commands are being answered.
type simDevice struct {
	conn        net.Conn
	secret      string
	latency     time.Duration
	successRate float64
	log         logger.Logger

	writeMu sync.Mutex
	rng     *rand.Rand

	mu        sync.Mutex
	enrolling bool
	cancelCh  chan struct{}
	templates map[templateKey][]byte
	qualities map[templateKey]int
}

func (d *simDevice) serve() {
	defer d.conn.Close()
	ctx := context.Background()

	hello, err := device.ReadFrame(d.conn)
	if err != nil || hello.Type != device.FrameHello {
		return
	}
	if hello.Secret != d.secret {
		_ = d.write(&device.Frame{Type: device.FrameAuthReject})
		d.log.Warn(ctx, "rejected handshake with bad secret")
		return
	}
	if err := d.write(&device.Frame{Type: device.FrameWelcome}); err != nil {
		return
	}
	d.log.Info(ctx, "orchestrator connected")

	for {
		f, err := device.ReadFrame(d.conn)
		if err != nil {
			d.log.Info(ctx, "orchestrator disconnected")
			return
		}
		switch f.Type {
		case device.FrameEnrollStart:
			d.handleEnrollStart(f)
		case device.FrameEnrollCancel:
			d.handleEnrollCancel()
		case device.FrameTemplateRead:
			d.handleTemplateRead(f)
		case device.FrameTemplateWrite:
			d.handleTemplateWrite(f)
		default:
			_ = d.write(&device.Frame{Type: device.FrameAck, Status: device.AckError, Reason: "unknown command"})
		}
	}
}

func (d *simDevice) handleEnrollStart(f *device.Frame) {
	d.mu.Lock()
	if d.enrolling {
		d.mu.Unlock()
		_ = d.write(&device.Frame{Type: device.FrameAck, Status: device.AckBusy})
		return
	}
	d.enrolling = true
	d.cancelCh = make(chan struct{})
	cancelCh := d.cancelCh
	d.mu.Unlock()

	_ = d.write(&device.Frame{Type: device.FrameAck, Status: device.AckOK})
	go d.runCapture(f.UserRef, f.Finger, cancelCh)
}

func (d *simDevice) handleEnrollCancel() {
	d.mu.Lock()
	ch := d.cancelCh
	active := d.enrolling
	d.mu.Unlock()

	_ = d.write(&device.Frame{Type: device.FrameAck, Status: device.AckOK})
	if active && ch != nil {
		select {
		case <-ch:
		default:
			close(ch)
		}
	} else {
		// Nothing in flight; acknowledge the abort immediately.
		_ = d.write(&device.Frame{Type: device.FrameEvent, Event: string(device.EventCancelAck)})
	}
}

// runCapture emits the placed/held/complete sequence with the configured
// latency, honouring cancellation between steps.
func (d *simDevice) runCapture(userRef uint32, finger int, cancelCh chan struct{}) {
	defer func() {
		d.mu.Lock()
		d.enrolling = false
		d.mu.Unlock()
	}()

	steps := []string{
		string(device.EventCapturePlaced),
		string(device.EventCaptureHeld),
	}
	for _, step := range steps {
		select {
		case <-cancelCh:
			_ = d.write(&device.Frame{Type: device.FrameEvent, Event: string(device.EventCancelAck)})
			return
		case <-time.After(d.latency):
		}
		if err := d.write(&device.Frame{Type: device.FrameEvent, Event: step}); err != nil {
			return
		}
	}

	select {
	case <-cancelCh:
		_ = d.write(&device.Frame{Type: device.FrameEvent, Event: string(device.EventCancelAck)})
		return
	case <-time.After(d.latency):
	}

	d.mu.Lock()
	roll := d.rng.Float64()
	quality := 60 + d.rng.Intn(41)
	d.mu.Unlock()

	if roll >= d.successRate {
		_ = d.write(&device.Frame{
			Type:   device.FrameEvent,
			Event:  string(device.EventCaptureRejected),
			Reason: "sample quality below threshold",
		})
		return
	}

	template := []byte(fmt.Sprintf("simtpl:%d:%d:%d", userRef, finger, time.Now().UnixNano()))
	d.mu.Lock()
	key := templateKey{userRef: userRef, finger: finger}
	d.templates[key] = template
	d.qualities[key] = quality
	d.mu.Unlock()

	_ = d.write(&device.Frame{
		Type:     device.FrameEvent,
		Event:    string(device.EventCaptureComplete),
		Template: template,
		Quality:  quality,
	})
}

func (d *simDevice) handleTemplateRead(f *device.Frame) {
	key := templateKey{userRef: f.UserRef, finger: f.Finger}
	d.mu.Lock()
	template, ok := d.templates[key]
	quality := d.qualities[key]
	d.mu.Unlock()

	if !ok {
		_ = d.write(&device.Frame{Type: device.FrameAck, Status: device.AckError, Reason: "no template stored"})
		return
	}
	_ = d.write(&device.Frame{Type: device.FrameTemplateData, Template: template, Quality: quality})
}

func (d *simDevice) handleTemplateWrite(f *device.Frame) {
	key := templateKey{userRef: f.UserRef, finger: f.Finger}
	d.mu.Lock()
	d.templates[key] = f.Template
	d.qualities[key] = f.Quality
	d.mu.Unlock()
	_ = d.write(&device.Frame{Type: device.FrameAck, Status: device.AckOK})
}

func (d *simDevice) write(f *device.Frame) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return device.WriteFrame(d.conn, f)
}
