package utils

import "sync"

// Mailbox is a bounded-or-unbounded queue with a coalesced notification
// channel. Capacity 0 means unbounded; capacity 1 means only the latest
// delivery survives (useful for head notifications, where stale
// intermediate heads are uninteresting). core/adapter/rpcnode uses an
// unbounded Mailbox to buffer concurrently fetched hot blocks ahead of the
// pairing heap that resequences them into ascending height order.
type Mailbox struct {
	mu       sync.Mutex
	capacity int
	items    []interface{}
	notifyCh chan struct{}
}

// NewMailbox constructs a Mailbox with the given capacity (0 = unbounded).
func NewMailbox(capacity int) *Mailbox {
	return &Mailbox{
		capacity: capacity,
		notifyCh: make(chan struct{}, 1),
	}
}

// Deliver enqueues x and returns true if an existing item had to be dropped
// to make room (only possible when capacity > 0).
func (m *Mailbox) Deliver(x interface{}) (wasOverCapacity bool) {
	m.mu.Lock()
	if m.capacity > 0 && len(m.items) >= m.capacity {
		m.items = m.items[1:]
		wasOverCapacity = true
	}
	m.items = append(m.items, x)
	m.mu.Unlock()

	select {
	case m.notifyCh <- struct{}{}:
	default:
	}
	return wasOverCapacity
}

// Notify returns a channel that receives a value whenever an item is
// delivered. It is coalesced: a burst of deliveries may produce only one
// notification, so callers must drain with Retrieve in a loop.
func (m *Mailbox) Notify() <-chan struct{} {
	return m.notifyCh
}

// Retrieve pops the oldest item, if any.
func (m *Mailbox) Retrieve() (interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return nil, false
	}
	x := m.items[0]
	m.items = m.items[1:]
	return x, true
}

// RetrieveLatestAndClear drops everything but the most recently delivered
// item and returns it (nil if the mailbox is empty).
func (m *Mailbox) RetrieveLatestAndClear() interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return nil
	}
	latest := m.items[len(m.items)-1]
	m.items = nil
	return latest
}
