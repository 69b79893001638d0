package cache

import "sync"

// Observer is notified after a variant write commits. OnImageWritten must
// not block; it runs on the writer's goroutine (or the submitter's, for
// asynchronous commits).
type Observer interface {
	OnImageWritten(ol OperationList)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(ol OperationList)

// OnImageWritten implements Observer.
func (f ObserverFunc) OnImageWritten(ol OperationList) { f(ol) }

// Subscription is the handle returned by ObserverRegistry.Subscribe.
// Calling Unsubscribe removes the observer; it is idempotent. This
// replaces the weak-reference registry of the original design — Go has no
// GC-driven finalization callers can rely on, so removal is explicit.
type Subscription struct {
	registry *ObserverRegistry
	id       uint64
}

// Unsubscribe removes the observer associated with this token. Safe to
// call more than once and from any goroutine.
func (s Subscription) Unsubscribe() {
	if s.registry == nil {
		return
	}
	s.registry.remove(s.id)
}

// ObserverRegistry holds the set of observers notified when a variant is
// fully written. Notify takes a snapshot before invoking callbacks so
// registration changes during iteration never block or race with it.
type ObserverRegistry struct {
	mu      sync.Mutex
	nextID  uint64
	members map[uint64]Observer
}

// NewObserverRegistry returns an empty registry.
func NewObserverRegistry() *ObserverRegistry {
	return &ObserverRegistry{members: make(map[uint64]Observer)}
}

// Subscribe registers o and returns a token that removes it on Unsubscribe.
func (r *ObserverRegistry) Subscribe(o Observer) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.members[id] = o
	return Subscription{registry: r, id: id}
}

func (r *ObserverRegistry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, id)
}

// Notify calls OnImageWritten(ol) on every currently subscribed observer.
// A panic in one observer is recovered and discarded, so it neither aborts
// the caller nor keeps later observers from being notified.
func (r *ObserverRegistry) Notify(ol OperationList) {
	r.mu.Lock()
	snapshot := make([]Observer, 0, len(r.members))
	for _, o := range r.members {
		snapshot = append(snapshot, o)
	}
	r.mu.Unlock()

	for _, o := range snapshot {
		notifyOne(o, ol)
	}
}

func notifyOne(o Observer, ol OperationList) {
	defer func() {
		_ = recover()
	}()
	o.OnImageWritten(ol)
}
