package chathub

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"chatsync/internal/transport"
)

// Handler consumes the raw payload of one realtime event. Handlers must
// tolerate missing optional fields; a panic here would desync the whole view.
type Handler func(data json.RawMessage)

// Dispatcher routes incoming frames to handlers registered per event name.
// Registration returns an unregister func so screen-scoped consumers can
// detach without leaking handlers across conversations.
type Dispatcher struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]Handler
	log      *zap.Logger
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher(log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]map[int]Handler),
		log:      log,
	}
}

// Register attaches h to the given event name and returns a func that
// detaches it again. Multiple handlers per event are allowed.
func (d *Dispatcher) Register(event string, h Handler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	if d.handlers[event] == nil {
		d.handlers[event] = make(map[int]Handler)
	}
	d.handlers[event][id] = h

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.handlers[event], id)
	}
}

// Dispatch routes one frame. Unknown events are dropped; the server emits
// more event kinds than this layer consumes.
func (d *Dispatcher) Dispatch(f transport.Frame) {
	d.mu.RLock()
	registered := d.handlers[f.Event]
	hs := make([]Handler, 0, len(registered))
	for _, h := range registered {
		hs = append(hs, h)
	}
	d.mu.RUnlock()

	if len(hs) == 0 {
		d.log.Debug("no handler for event", zap.String("event", f.Event))
		return
	}
	for _, h := range hs {
		h(f.Data)
	}
}
