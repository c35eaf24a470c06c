package chathub_test

import (
	"context"
	"errors"
	"sync"

	"chatsync/internal/transport"
)

// mockConn is a scriptable transport connection: sent frames are recorded,
// incoming frames are injected through deliver, and fail simulates a
// transport-level disconnect.
type mockConn struct {
	mu     sync.Mutex
	sent   []transport.Frame
	frames chan transport.Frame
	done   chan struct{}
	once   sync.Once
}

func newMockConn() *mockConn {
	return &mockConn{
		frames: make(chan transport.Frame, 32),
		done:   make(chan struct{}),
	}
}

func (c *mockConn) Send(f transport.Frame) error {
	select {
	case <-c.done:
		return transport.ErrConnClosed
	default:
	}
	c.mu.Lock()
	c.sent = append(c.sent, f)
	c.mu.Unlock()
	return nil
}

func (c *mockConn) Frames() <-chan transport.Frame { return c.frames }
func (c *mockConn) Done() <-chan struct{}          { return c.done }

func (c *mockConn) Close() error {
	c.fail()
	return nil
}

// fail kills the connection as a network drop would.
func (c *mockConn) fail() {
	c.once.Do(func() {
		close(c.done)
		close(c.frames)
	})
}

// deliver injects an incoming frame.
func (c *mockConn) deliver(f transport.Frame) {
	c.frames <- f
}

// sentFrames returns a copy of everything sent so far.
func (c *mockConn) sentFrames() []transport.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]transport.Frame, len(c.sent))
	copy(out, c.sent)
	return out
}

// framesFor filters sent frames by event name.
func (c *mockConn) framesFor(event string) []transport.Frame {
	var out []transport.Frame
	for _, f := range c.sentFrames() {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// mockDialer hands out mockConns and counts dial attempts. With failures > 0
// the first dials fail, exercising the retry loop.
type mockDialer struct {
	mu       sync.Mutex
	calls    int
	failures int
	conns    []*mockConn
	gate     chan struct{} // when non-nil, Dial blocks until the gate closes
}

func (d *mockDialer) Dial(ctx context.Context) (transport.Conn, error) {
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("dial refused")
	}
	conn := newMockConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *mockDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *mockDialer) lastConn() *mockConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}
