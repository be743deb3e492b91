// Package session implements the session reconciliation store: a directory
// from logical session names to correlation ids, a handoff queue for
// registrations arriving from other processes, and polling waits that
// resolve names against a live session registry.
package session

// Pending is a session registration awaiting reconciliation into the store.
type Pending struct {
	Name          string
	CorrelationID string
}

// PendingQueue carries registrations from producers (payload handlers,
// sidecar processes) to the single consuming Store. Push never blocks the
// consumer; the buffer absorbs bursts.
type PendingQueue struct {
	ch chan Pending
}

// NewPendingQueue creates a queue with a fixed buffer.
func NewPendingQueue() *PendingQueue {
	return &PendingQueue{ch: make(chan Pending, 64)}
}

// Push enqueues a registration. Safe for concurrent producers.
func (q *PendingQueue) Push(p Pending) {
	q.ch <- p
}

// TryPop dequeues one registration without blocking.
func (q *PendingQueue) TryPop() (Pending, bool) {
	select {
	case p := <-q.ch:
		return p, true
	default:
		return Pending{}, false
	}
}
