// Package chathub owns the realtime side of the engine: the persistent
// channel's lifecycle, room membership, presence and event dispatch. One Hub
// is a session-wide resource shared by every conversation screen.
package chathub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"chatsync/internal/models"
	"chatsync/internal/pubsub"
	"chatsync/internal/transport"
)

// State is the connection lifecycle state of the hub.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

var (
	// ErrNotConnected is returned by Emit while the channel is down.
	ErrNotConnected = errors.New("chathub: not connected")
	// ErrClosed is returned once the hub has been shut down for good.
	ErrClosed = errors.New("chathub: hub closed")
)

// HubOptions configures a Hub.
type HubOptions struct {
	Dialer transport.Dialer
	// UserID is the local user, announced as online after every (re)connect.
	UserID string
	// UserName accompanies outgoing typing events.
	UserName string
	// Heartbeat is the interval of the application-level heartbeat event.
	Heartbeat time.Duration
	// ReconnectDelay is the fixed pause between dial attempts. Retries are
	// unlimited; disconnects are treated as transient.
	ReconnectDelay time.Duration
	Log            *zap.Logger
}

// Hub manages the persistent realtime channel. EnsureConnected is safe to
// call from any number of goroutines; concurrent callers coalesce onto a
// single dial attempt so duplicate transport instances can never exist.
type Hub struct {
	opts       HubOptions
	dispatcher *Dispatcher
	joins      *JoinQueue
	presence   *Presence

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	conn    transport.Conn
	attempt chan struct{}
	stopHB  chan struct{}
	closed  bool

	pubsub.Notifier
}

// NewHub builds a hub and wires the presence tracker into its dispatcher.
func NewHub(opts HubOptions) *Hub {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 25 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		opts:       opts,
		dispatcher: NewDispatcher(opts.Log),
		joins:      NewJoinQueue(),
		presence:   NewPresence(),
		ctx:        ctx,
		cancel:     cancel,
	}

	h.dispatcher.Register(models.EventGetUsers, func(data json.RawMessage) {
		var users []models.OnlineUser
		if err := json.Unmarshal(data, &users); err != nil {
			opts.Log.Warn("malformed presence snapshot", zap.Error(err))
			return
		}
		h.presence.ApplySnapshot(users)
	})
	h.dispatcher.Register(models.EventTyping, func(data json.RawMessage) {
		var ev models.TypingPayload
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		h.presence.OnTyping(ev)
	})
	h.dispatcher.Register(models.EventStopTyping, func(data json.RawMessage) {
		var ev models.TypingPayload
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		h.presence.OnStopTyping(ev.UserID)
	})

	return h
}

// Dispatcher exposes event registration for the synchronizers.
func (h *Hub) Dispatcher() *Dispatcher { return h.dispatcher }

// Register attaches a handler to one incoming event and returns its
// unregister func.
func (h *Hub) Register(event string, fn func(data json.RawMessage)) func() {
	return h.dispatcher.Register(event, fn)
}

// Presence exposes the online/typing tracker.
func (h *Hub) Presence() *Presence { return h.presence }

// State returns the current lifecycle state.
func (h *Hub) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// EnsureConnected returns once the channel is up. If a connect attempt is
// already in flight the caller waits on that attempt instead of starting a
// second one. Dialing retries forever with a fixed delay, so this only fails
// when ctx is canceled or the hub is closed.
func (h *Hub) EnsureConnected(ctx context.Context) error {
	for {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return ErrClosed
		}
		if h.state == StateConnected {
			h.mu.Unlock()
			return nil
		}
		if h.attempt != nil {
			attempt := h.attempt
			h.mu.Unlock()
			select {
			case <-attempt:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		attempt := make(chan struct{})
		h.attempt = attempt
		if h.state == StateDisconnected {
			h.state = StateConnecting
		}
		h.mu.Unlock()
		h.Notify()

		err := h.connect(ctx)

		h.mu.Lock()
		h.attempt = nil
		h.mu.Unlock()
		close(attempt)
		return err
	}
}

// connect dials until it succeeds or ctx is canceled, then brings the new
// connection into service.
func (h *Hub) connect(ctx context.Context) error {
	policy := backoff.WithContext(backoff.NewConstantBackOff(h.opts.ReconnectDelay), ctx)
	return backoff.Retry(func() error {
		conn, err := h.opts.Dialer.Dial(ctx)
		if err != nil {
			h.opts.Log.Warn("dial failed, retrying", zap.Error(err))
			return err
		}
		h.adopt(conn)
		return nil
	}, policy)
}

// adopt installs a freshly dialed connection: announce presence, resume the
// heartbeat, flush queued room joins, start the frame loop.
func (h *Hub) adopt(conn transport.Conn) {
	stopHB := make(chan struct{})

	h.mu.Lock()
	h.conn = conn
	h.state = StateConnected
	h.stopHB = stopHB
	h.mu.Unlock()
	h.Notify()
	h.opts.Log.Info("realtime channel connected")

	go h.readLoop(conn)
	go h.heartbeatLoop(conn, stopHB)
	go h.watch(conn)

	h.sendFrame(conn, models.EventOnline, h.opts.UserID)
	h.flushJoins(conn)
}

func (h *Hub) sendFrame(conn transport.Conn, event string, payload any) {
	f, err := transport.NewFrame(event, payload)
	if err != nil {
		return
	}
	if err := conn.Send(f); err != nil {
		h.opts.Log.Warn("send failed", zap.String("event", event), zap.Error(err))
	}
}

func (h *Hub) readLoop(conn transport.Conn) {
	for f := range conn.Frames() {
		h.dispatcher.Dispatch(f)
	}
}

func (h *Hub) heartbeatLoop(conn transport.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(h.opts.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.sendFrame(conn, models.EventHeartbeat, nil)
		case <-stop:
			return
		}
	}
}

// watch waits for the connection to die and starts the reconnect cycle.
// Presence is cleared; the join queue and all message state survive.
func (h *Hub) watch(conn transport.Conn) {
	<-conn.Done()

	h.mu.Lock()
	if h.conn != conn || h.closed {
		h.mu.Unlock()
		return
	}
	h.conn = nil
	h.state = StateReconnecting
	if h.stopHB != nil {
		close(h.stopHB)
		h.stopHB = nil
	}
	h.mu.Unlock()

	h.presence.Clear()
	h.Notify()
	h.opts.Log.Warn("realtime channel lost, reconnecting")

	go func() {
		if err := h.EnsureConnected(h.ctx); err != nil && !errors.Is(err, ErrClosed) {
			h.opts.Log.Error("reconnect abandoned", zap.Error(err))
		}
	}()
}

// JoinChats queues room ids for membership. If the channel is already up the
// queue is flushed immediately; joins are never silently dropped.
func (h *Hub) JoinChats(roomIDs ...string) {
	h.joins.Add(roomIDs...)

	h.mu.Lock()
	conn := h.conn
	connected := h.state == StateConnected
	h.mu.Unlock()

	if connected && conn != nil {
		h.flushJoins(conn)
	}
}

// flushJoins emits one batched join for everything queued. On a failed send
// the ids go back in the queue for the next (re)connect.
func (h *Hub) flushJoins(conn transport.Conn) {
	ids := h.joins.Drain()
	if len(ids) == 0 {
		return
	}
	f, err := transport.NewFrame(models.EventJoinChats, ids)
	if err != nil {
		h.joins.Add(ids...)
		return
	}
	if err := conn.Send(f); err != nil {
		h.opts.Log.Warn("join emit failed, re-queueing", zap.Int("rooms", len(ids)), zap.Error(err))
		h.joins.Add(ids...)
		return
	}
	h.opts.Log.Info("joined rooms", zap.Int("count", len(ids)))
}

// Emit sends one event over the channel, failing with ErrNotConnected while
// the channel is down. Best-effort callers (typing) ignore that error.
func (h *Hub) Emit(event string, payload any) error {
	h.mu.Lock()
	conn := h.conn
	connected := h.state == StateConnected
	h.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}
	f, err := transport.NewFrame(event, payload)
	if err != nil {
		return err
	}
	return conn.Send(f)
}

// SendTyping announces that the local user is typing in the given room.
// Typing is best-effort: while disconnected this is a silent no-op.
func (h *Hub) SendTyping(room string) {
	_ = h.Emit(models.EventTyping, models.TypingPayload{
		Room: room, UserID: h.opts.UserID, UserName: h.opts.UserName,
	})
}

// SendStopTyping announces that the local user stopped typing.
func (h *Hub) SendStopTyping(room string) {
	_ = h.Emit(models.EventStopTyping, models.TypingPayload{
		Room: room, UserID: h.opts.UserID,
	})
}

// OnForeground is called when the app returns to the foreground: make sure
// the channel is up and re-flush any queued joins. Backgrounding needs no
// hook; the connection is left alone.
func (h *Hub) OnForeground(ctx context.Context) error {
	if err := h.EnsureConnected(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn != nil {
		h.flushJoins(conn)
	}
	return nil
}

// Close shuts the hub down permanently.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.state = StateDisconnected
	conn := h.conn
	h.conn = nil
	if h.stopHB != nil {
		close(h.stopHB)
		h.stopHB = nil
	}
	h.mu.Unlock()

	h.cancel()
	if conn != nil {
		conn.Close()
	}
	h.Notify()
	return nil
}
