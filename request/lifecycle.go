package request

import (
	"context"
	"sync"
)

// LifecycleState mirrors the states of a UI component's lifecycle.
type LifecycleState int

const (
	Initialized LifecycleState = iota
	Created
	Started
	Resumed
	Destroyed
)

// Active reports whether requests may run in this state.
func (s LifecycleState) Active() bool { return s == Started || s == Resumed }

func (s LifecycleState) String() string {
	switch s {
	case Initialized:
		return "INITIALIZED"
	case Created:
		return "CREATED"
	case Started:
		return "STARTED"
	case Resumed:
		return "RESUMED"
	case Destroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

// Lifecycle is the governing lifecycle of a request's target.
type Lifecycle interface {
	// State returns the current state.
	State() LifecycleState
	// Subscribe registers fn for state changes and returns an unsubscribe func.
	// fn may be called from any goroutine.
	Subscribe(fn func(LifecycleState)) (unsubscribe func())
}

// LifecycleResolver resolves the lifecycle asynchronously, e.g. once a view
// is attached to its window.
type LifecycleResolver interface {
	Lifecycle(ctx context.Context) (Lifecycle, error)
}

// FixedLifecycle resolves immediately to l.
type FixedLifecycle struct{ L Lifecycle }

// Lifecycle implements LifecycleResolver.
func (f FixedLifecycle) Lifecycle(context.Context) (Lifecycle, error) { return f.L, nil }

type alwaysStarted struct{}

func (alwaysStarted) State() LifecycleState                 { return Resumed }
func (alwaysStarted) Subscribe(func(LifecycleState)) func() { return func() {} }

// AlwaysStarted is a lifecycle that is permanently active. Requests without
// a LifecycleResolver run under it.
var AlwaysStarted Lifecycle = alwaysStarted{}

// ManualLifecycle is a Lifecycle driven explicitly through SetState. It is
// used by embedders without a native lifecycle and by tests.
type ManualLifecycle struct {
	mu    sync.Mutex
	state LifecycleState
	subs  map[int]func(LifecycleState)
	next  int
}

// NewManualLifecycle returns a lifecycle in the given initial state.
func NewManualLifecycle(initial LifecycleState) *ManualLifecycle {
	return &ManualLifecycle{state: initial, subs: make(map[int]func(LifecycleState))}
}

// State implements Lifecycle.
func (m *ManualLifecycle) State() LifecycleState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe implements Lifecycle.
func (m *ManualLifecycle) Subscribe(fn func(LifecycleState)) func() {
	m.mu.Lock()
	id := m.next
	m.next++
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// SetState moves the lifecycle to s and notifies subscribers outside the lock.
func (m *ManualLifecycle) SetState(s LifecycleState) {
	m.mu.Lock()
	m.state = s
	subs := make([]func(LifecycleState), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

// AwaitActive blocks until l is Started/Resumed. It returns false if l reaches
// Destroyed first, and ctx.Err() if ctx ends first.
func AwaitActive(ctx context.Context, l Lifecycle) (bool, error) {
	ch := make(chan LifecycleState, 1)
	unsubscribe := l.Subscribe(func(s LifecycleState) {
		select {
		case ch <- s:
		default:
			// drop stale state; the latest is re-read below
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	})
	defer unsubscribe()

	state := l.State()
	for {
		switch {
		case state.Active():
			return true, nil
		case state == Destroyed:
			return false, nil
		}
		select {
		case state = <-ch:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}
