package session

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// State is the overall session view consumed by UI gating.
type State int

const (
	StateBootstrapping State = iota
	StateUnauthenticated
	StateUnverified
	StatePending
	StateAdmin
	StateDenied
)

func (s State) String() string {
	switch s {
	case StateBootstrapping:
		return "Bootstrapping"
	case StateUnauthenticated:
		return "Unauthenticated"
	case StateUnverified:
		return "Unverified"
	case StatePending:
		return "Pending"
	case StateAdmin:
		return "Admin"
	case StateDenied:
		return "Denied"
	}
	return "Unknown"
}

// Observer receives session state changes.
type Observer func(State)

// Machine composes the credential store and authorization resolver into
// the session lifecycle. It starts in Bootstrapping and leaves it exactly
// once, on the first identity notification; "no one is signed in" counts.
// Tier resolutions are tagged with the identity generation they were
// started for, and a result whose generation is no longer current is
// discarded (latest identity wins).
type Machine struct {
	store    *CredentialStore
	resolver *Resolver
	logger   *zap.Logger

	mu           sync.Mutex
	state        State
	generation   uint64
	bootstrapped bool
	observers    map[int]Observer
	nextObserver int
	unsubscribe  func()
}

// NewMachine constructs an unstarted machine.
func NewMachine(store *CredentialStore, resolver *Resolver, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		store:     store,
		resolver:  resolver,
		logger:    logger,
		state:     StateBootstrapping,
		observers: make(map[int]Observer),
	}
}

// State returns the current session state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Observe registers an observer and returns an unregister function.
func (m *Machine) Observe(fn Observer) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextObserver
	m.nextObserver++
	m.observers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.observers, id)
	}
}

// Start subscribes to identity changes and emits the initial state. The
// context bounds all tier resolutions the machine starts.
func (m *Machine) Start(ctx context.Context) {
	m.unsubscribe = m.store.Subscribe(func(identity *Identity, generation uint64) {
		m.onIdentity(ctx, identity, generation)
	})
	m.store.Bootstrap()
}

// Stop detaches the machine from the credential store.
func (m *Machine) Stop() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

func (m *Machine) onIdentity(ctx context.Context, identity *Identity, generation uint64) {
	m.mu.Lock()
	m.bootstrapped = true
	m.generation = generation
	m.mu.Unlock()

	if identity == nil {
		m.setState(StateUnauthenticated)
		return
	}
	if !identity.EmailVerified {
		m.setState(StateUnverified)
		return
	}

	go func() {
		tier := m.resolver.Resolve(ctx, identity)

		m.mu.Lock()
		if m.generation != generation {
			m.mu.Unlock()
			m.logger.Debug("discarding stale tier resolution",
				zap.Uint64("generation", generation))
			return
		}
		m.mu.Unlock()

		switch tier {
		case TierAdmin:
			m.setState(StateAdmin)
		case TierPendingApproval:
			m.setState(StatePending)
		default:
			m.setState(StateDenied)
		}
	}()
}

func (m *Machine) setState(next State) {
	m.mu.Lock()
	if m.state == next {
		m.mu.Unlock()
		return
	}
	m.state = next
	observers := make([]Observer, 0, len(m.observers))
	for _, fn := range m.observers {
		observers = append(observers, fn)
	}
	m.mu.Unlock()

	for _, fn := range observers {
		fn(next)
	}
}
