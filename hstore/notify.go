/*
notify.go - Change-subscription hub shared by backend implementations

PURPOSE:
  Both the in-memory and the SQLite backends deliver change notifications
  in-process. This hub owns the subscriber registry and the delivery
  goroutines so backends only have to call Publish after a write.

DELIVERY SEMANTICS:
  - Asynchronous: writers never block on subscribers
  - Ordered per subscription: each subscriber has its own queue goroutine
  - Full-value: each delivery carries the whole watched node, not a diff
  - A subscriber is notified when its path, an ancestor, or a descendant
    changes

SEE ALSO:
  - store/memory.go: Publishes after every mutation
*/
package hstore

import "sync"

// Notifier fans change notifications out to path subscribers.
// The zero value is not usable; use NewNotifier.
type Notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
}

type subscriber struct {
	path string
	fn   func(Snapshot)
	ch   chan Snapshot
	done chan struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]*subscriber)}
}

// Subscribe registers fn for changes affecting path. The returned func
// cancels the subscription and stops its delivery goroutine.
func (n *Notifier) Subscribe(path string, fn func(Snapshot)) func() {
	sub := &subscriber{
		path: path,
		fn:   fn,
		ch:   make(chan Snapshot, 16),
		done: make(chan struct{}),
	}

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = sub
	n.mu.Unlock()

	go sub.run()

	return func() {
		n.mu.Lock()
		if _, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(sub.done)
		}
		n.mu.Unlock()
	}
}

func (s *subscriber) run() {
	for {
		select {
		case snap := <-s.ch:
			s.fn(snap)
		case <-s.done:
			return
		}
	}
}

// Publish notifies every subscriber affected by a change at changedPath.
// load materializes the current value of a subscriber's watched path; it
// is called once per affected subscriber, under the caller's lock if any.
func (n *Notifier) Publish(changedPath string, load func(watchedPath string) Snapshot) {
	n.mu.Lock()
	affected := make([]*subscriber, 0, 4)
	for _, sub := range n.subs {
		if isAffected(sub.path, changedPath) {
			affected = append(affected, sub)
		}
	}
	n.mu.Unlock()

	for _, sub := range affected {
		snap := load(sub.path)
		select {
		case sub.ch <- snap:
		case <-sub.done:
		default:
			// Queue full: drop the oldest delivery, keep the newest.
			// Safe because every delivery is a full-value snapshot.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- snap:
			default:
			}
		}
	}
}

// Close cancels all subscriptions.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, sub := range n.subs {
		delete(n.subs, id)
		close(sub.done)
	}
}
