package machine

import (
	"sync"
	"sync/atomic"
)

// A Transport delivers lines to a controller and reports what happens on the wire.
//
// SendLine must not block on motion or acknowledgments.
type Transport interface {
	SendLine(line, source string) error
	Subscribe(Listener) *Subscription
}

// Listener holds the event taps of a subscriber. Nil fields are skipped.
type Listener struct {
	// LineSent is called as a line is written to the controller, never after
	// its reply has been delivered.
	// source is the tag given to SendLine.
	LineSent func(line, source string)

	// LineReceived is called for every inbound line except status reports.
	LineReceived func(line string)

	// PhaseChanged is called when consecutive status reports disagree on the phase.
	PhaseChanged func(from, to Phase)

	// StateUpdated is called for every status report.
	StateUpdated func(State)

	// Disconnected is called once when the connection is lost.
	Disconnected func(err error)
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	hub      *Hub
	l        Listener
	released int32
}

// Release deregisters the listener. It is safe to call more than once.
func (s *Subscription) Release() {
	if s == nil || !atomic.CompareAndSwapInt32(&s.released, 0, 1) {
		return
	}
	s.hub.mx.Lock()
	delete(s.hub.subs, s)
	s.hub.mx.Unlock()
}

// Released returns true after Release has been called.
func (s *Subscription) Released() bool { return atomic.LoadInt32(&s.released) == 1 }

// Hub fans transport events out to subscribers. The zero value is ready to use.
type Hub struct {
	mx   sync.RWMutex
	subs map[*Subscription]struct{}
}

// Subscribe registers l and returns its handle.
func (h *Hub) Subscribe(l Listener) *Subscription {
	s := &Subscription{hub: h, l: l}
	h.mx.Lock()
	if h.subs == nil {
		h.subs = make(map[*Subscription]struct{})
	}
	h.subs[s] = struct{}{}
	h.mx.Unlock()
	return s
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mx.RLock()
	defer h.mx.RUnlock()
	return len(h.subs)
}

func (h *Hub) each(fn func(Listener)) {
	h.mx.RLock()
	subs := make([]*Subscription, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mx.RUnlock()

	for _, s := range subs {
		if s.Released() {
			continue
		}
		fn(s.l)
	}
}

func (h *Hub) LineSent(line, source string) {
	h.each(func(l Listener) {
		if l.LineSent != nil {
			l.LineSent(line, source)
		}
	})
}

func (h *Hub) LineReceived(line string) {
	h.each(func(l Listener) {
		if l.LineReceived != nil {
			l.LineReceived(line)
		}
	})
}

func (h *Hub) PhaseChanged(from, to Phase) {
	h.each(func(l Listener) {
		if l.PhaseChanged != nil {
			l.PhaseChanged(from, to)
		}
	})
}

func (h *Hub) StateUpdated(s State) {
	h.each(func(l Listener) {
		if l.StateUpdated != nil {
			l.StateUpdated(s)
		}
	})
}

func (h *Hub) Disconnected(err error) {
	h.each(func(l Listener) {
		if l.Disconnected != nil {
			l.Disconnected(err)
		}
	})
}
