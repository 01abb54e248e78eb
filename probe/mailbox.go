package probe

import "sync"

// mailbox is the unbounded event queue of a session. Posting never blocks.
type mailbox struct {
	mx     sync.Mutex
	q      []interface{}
	closed bool

	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

// post queues e. It returns false once the mailbox is closed.
func (m *mailbox) post(e interface{}) bool {
	m.mx.Lock()
	if m.closed {
		m.mx.Unlock()
		return false
	}
	m.q = append(m.q, e)
	m.mx.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

func (m *mailbox) drain() []interface{} {
	m.mx.Lock()
	defer m.mx.Unlock()
	q := m.q
	m.q = nil
	return q
}

func (m *mailbox) close() {
	m.mx.Lock()
	m.closed = true
	m.mx.Unlock()
}
