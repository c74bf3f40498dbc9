package device

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/errors"
	"github.com/presentio/presentio/pkg/logger"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := &Frame{
		Type:     FrameEvent,
		Event:    string(EventCaptureComplete),
		Template: []byte{0x01, 0x02, 0xff},
		Quality:  88,
	}
	require.NoError(t, WriteFrame(&buf, in))

	out, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestReadFrameRejectsOversized(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff})
	_, err := ReadFrame(&buf)
	assert.Error(t, err)
}

// stubReader is a minimal wire-compatible device endpoint for link tests.
type stubReader struct {
	t      *testing.T
	ln     net.Listener
	secret string
	// script answers command frames; events are pushed by tests via push.
	script func(conn net.Conn, f *Frame)
	push   chan *Frame
}

func newStubReader(t *testing.T, secret string, script func(conn net.Conn, f *Frame)) *stubReader {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &stubReader{t: t, ln: ln, secret: secret, script: script, push: make(chan *Frame, 8)}
	go s.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *stubReader) addr() string { return s.ln.Addr().String() }

func (s *stubReader) serve() {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	hello, err := ReadFrame(conn)
	if err != nil || hello.Type != FrameHello {
		return
	}
	if hello.Secret != s.secret {
		_ = WriteFrame(conn, &Frame{Type: FrameAuthReject})
		return
	}
	if err := WriteFrame(conn, &Frame{Type: FrameWelcome}); err != nil {
		return
	}

	go func() {
		for f := range s.push {
			_ = WriteFrame(conn, f)
		}
	}()

	for {
		f, err := ReadFrame(conn)
		if err != nil {
			return
		}
		if s.script != nil {
			s.script(conn, f)
		}
	}
}

func dialStub(t *testing.T, s *stubReader, secret string) *NetLink {
	t.Helper()
	link := NewNetLink("dev-1", s.addr(), NetLinkConfig{
		CommSecret:     secret,
		ConnectTimeout: time.Second,
		CommandTimeout: time.Second,
	}, logger.NewNoopLogger())
	return link
}

func TestNetLinkHandshake(t *testing.T) {
	s := newStubReader(t, "s3cret", nil)
	link := dialStub(t, s, "s3cret")

	require.NoError(t, link.Connect(context.Background()))
	assert.True(t, link.Connected())
	require.NoError(t, link.Disconnect())
	assert.False(t, link.Connected())
}

func TestNetLinkAuthRejected(t *testing.T) {
	s := newStubReader(t, "s3cret", nil)
	link := dialStub(t, s, "wrong")

	err := link.Connect(context.Background())
	assert.True(t, errors.IsCode(err, constants.ErrCodeAuthRejected))
	assert.False(t, link.Connected())
}

func TestNetLinkUnreachable(t *testing.T) {
	// A port nothing listens on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	link := NewNetLink("dev-1", addr, NetLinkConfig{
		ConnectTimeout: 200 * time.Millisecond,
		CommandTimeout: 200 * time.Millisecond,
	}, logger.NewNoopLogger())

	err = link.Connect(context.Background())
	assert.True(t, errors.IsCode(err, constants.ErrCodeUnreachable))
}

func TestNetLinkStartEnrollment(t *testing.T) {
	s := newStubReader(t, "s3cret", func(conn net.Conn, f *Frame) {
		if f.Type == FrameEnrollStart {
			_ = WriteFrame(conn, &Frame{Type: FrameAck, Status: AckOK})
		}
	})
	link := dialStub(t, s, "s3cret")
	require.NoError(t, link.Connect(context.Background()))
	defer link.Disconnect()

	assert.NoError(t, link.StartEnrollment(context.Background(), 7, 1))
}

func TestNetLinkStartEnrollmentBusy(t *testing.T) {
	s := newStubReader(t, "s3cret", func(conn net.Conn, f *Frame) {
		_ = WriteFrame(conn, &Frame{Type: FrameAck, Status: AckBusy})
	})
	link := dialStub(t, s, "s3cret")
	require.NoError(t, link.Connect(context.Background()))
	defer link.Disconnect()

	err := link.StartEnrollment(context.Background(), 7, 1)
	assert.True(t, errors.IsCode(err, constants.ErrCodeDeviceBusy))
}

func TestNetLinkEventRouting(t *testing.T) {
	s := newStubReader(t, "s3cret", nil)
	link := dialStub(t, s, "s3cret")
	require.NoError(t, link.Connect(context.Background()))
	defer link.Disconnect()

	s.push <- &Frame{Type: FrameEvent, Event: string(EventCapturePlaced)}
	s.push <- &Frame{Type: FrameEvent, Event: string(EventCaptureComplete), Template: []byte("tpl"), Quality: 91}

	ev, err := link.PollEvent(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, EventCapturePlaced, ev.Kind)

	ev, err = link.PollEvent(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, EventCaptureComplete, ev.Kind)
	assert.Equal(t, []byte("tpl"), ev.Template)
	assert.Equal(t, 91, ev.Quality)
}

func TestNetLinkReadTemplate(t *testing.T) {
	s := newStubReader(t, "s3cret", func(conn net.Conn, f *Frame) {
		if f.Type == FrameTemplateRead {
			_ = WriteFrame(conn, &Frame{Type: FrameTemplateData, Template: []byte("stored"), Quality: 73})
		}
	})
	link := dialStub(t, s, "s3cret")
	require.NoError(t, link.Connect(context.Background()))
	defer link.Disconnect()

	data, quality, err := link.ReadTemplate(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("stored"), data)
	assert.Equal(t, 73, quality)
}

func TestNetLinkCommandTimeout(t *testing.T) {
	// A device that never answers commands.
	s := newStubReader(t, "s3cret", func(conn net.Conn, f *Frame) {})
	link := dialStub(t, s, "s3cret")
	require.NoError(t, link.Connect(context.Background()))
	defer link.Disconnect()

	err := link.StartEnrollment(context.Background(), 7, 1)
	assert.True(t, errors.IsCode(err, constants.ErrCodeTimeout))
}

func TestNetLinkLostConnection(t *testing.T) {
	s := newStubReader(t, "s3cret", func(conn net.Conn, f *Frame) {
		// Hang up on the first command.
		conn.Close()
	})
	link := dialStub(t, s, "s3cret")
	require.NoError(t, link.Connect(context.Background()))
	defer link.Disconnect()

	err := link.StartEnrollment(context.Background(), 7, 1)
	assert.Error(t, err)

	// The read pump notices and pollers see the closed link.
	require.Eventually(t, func() bool {
		_, err := link.PollEvent(context.Background(), 10*time.Millisecond)
		return err == ErrLinkClosed
	}, time.Second, 10*time.Millisecond)
}
