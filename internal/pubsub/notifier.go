// Package pubsub provides the subscription primitive every state store in
// the engine embeds: consumers subscribe for change signals and pull current
// state themselves, instead of receiving pushed diffs.
package pubsub

import "sync"

// Notifier is an embeddable listener registry. The zero value is ready to
// use. Stores call Notify after each atomic mutation.
type Notifier struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]func()
}

// Subscribe registers fn to run after every mutation and returns an
// unsubscribe func.
func (n *Notifier) Subscribe(fn func()) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listeners == nil {
		n.listeners = make(map[int]func())
	}
	n.nextID++
	id := n.nextID
	n.listeners[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.listeners, id)
	}
}

// Notify invokes every subscribed listener. Listeners run outside the
// registry lock, so they may subscribe or unsubscribe freely.
func (n *Notifier) Notify() {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
