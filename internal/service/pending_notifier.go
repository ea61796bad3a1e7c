package service

import "sync"

// PendingListener receives the number of pending queue items.
type PendingListener func(count int64)

// PendingNotifier is the observer registry for the pending count.
// Consecutive publications of the same count are delivered once.
type PendingNotifier struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]PendingListener
	last      int64
	published bool

	// serializes delivery so listeners see counts in publication order
	deliverMu sync.Mutex
}

func NewPendingNotifier() *PendingNotifier {
	return &PendingNotifier{listeners: make(map[int]PendingListener)}
}

// Subscribe registers fn, delivers the count returned by load to it right
// away and returns the matching unsubscribe func. Unsubscribing twice is a
// no-op. Registration, load and first delivery happen under the delivery
// lock, so a concurrent publication reaches fn after its first count.
func (n *PendingNotifier) Subscribe(fn PendingListener, load func() (int64, error)) (func(), error) {
	n.deliverMu.Lock()
	defer n.deliverMu.Unlock()

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.listeners[id] = fn
	n.mu.Unlock()

	unsubscribe := func() {
		n.mu.Lock()
		delete(n.listeners, id)
		n.mu.Unlock()
	}
	current, err := load()
	if err != nil {
		unsubscribe()
		return nil, err
	}
	fn(current)

	var once sync.Once
	return func() { once.Do(unsubscribe) }, nil
}

// Refresh publishes the count returned by load. The count is read under the
// delivery lock so concurrent refreshes deliver in the order they read.
func (n *PendingNotifier) Refresh(load func() (int64, error)) error {
	n.deliverMu.Lock()
	defer n.deliverMu.Unlock()
	count, err := load()
	if err != nil {
		return err
	}
	n.publishLocked(count)
	return nil
}

func (n *PendingNotifier) Publish(count int64) {
	n.deliverMu.Lock()
	defer n.deliverMu.Unlock()
	n.publishLocked(count)
}

func (n *PendingNotifier) publishLocked(count int64) {
	n.mu.Lock()
	if n.published && n.last == count {
		n.mu.Unlock()
		return
	}
	n.last, n.published = count, true
	listeners := make([]PendingListener, 0, len(n.listeners))
	for _, fn := range n.listeners {
		listeners = append(listeners, fn)
	}
	n.mu.Unlock()

	for _, fn := range listeners {
		fn(count)
	}
}

// Len reports the number of registered listeners.
func (n *PendingNotifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}
