// Package session owns the widget's conversation session lifecycle: creation
// against the backend, adoption of external session ids, and replacement
// when the agent or customer context changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"parlor.chat/widget/common/logger"
	"parlor.chat/widget/internal/api"
	"parlor.chat/widget/internal/model"
)

type State string

const (
	StateIdle     State = "idle"
	StateCreating State = "creating"
	StateActive   State = "active"
	StateClosed   State = "closed"
)

var (
	// ErrCreationInFlight is returned when Create is called while another
	// creation is still pending. Callers treat it as a no-op: one logical
	// "start chat" action must never issue two creation requests.
	ErrCreationInFlight = errors.New("session creation already in flight")

	ErrClosed = errors.New("session manager is closed")
)

// Backend is the slice of the API client the manager needs.
type Backend interface {
	CreateSession(ctx context.Context, params api.CreateSessionParams) (*model.Session, error)
	AppendMessage(ctx context.Context, sessionID, text string) (*model.Event, error)
	FindCustomer(ctx context.Context, name string) (*model.Customer, error)
	CreateCustomer(ctx context.Context, id, name string) (*model.Customer, error)
}

// Transition is pushed to observers on every state change. Key increments on
// each replacement so dependent state (messages, polling cursor) is torn
// down and rebuilt rather than silently reused.
type Transition struct {
	State     State
	SessionID string
	Key       int64
}

type Observer func(Transition)

type Manager struct {
	backend Backend

	mu        sync.Mutex
	state     State
	sessionID string
	key       int64
	creating  bool
	observers []Observer
}

func NewManager(backend Backend) *Manager {
	return &Manager{
		backend: backend,
		state:   StateIdle,
	}
}

// SetBackend swaps the API client, e.g. after a token change. Safe only
// while no creation is in flight.
func (m *Manager) SetBackend(backend Backend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backend = backend
}

// Subscribe registers an observer for session transitions. Observers are
// called outside the manager's lock, in registration order.
func (m *Manager) Subscribe(fn Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Current returns the active session id (empty unless Active), the session
// key, and the lifecycle state.
func (m *Manager) Current() (sessionID string, key int64, state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID, m.key, m.state
}

// Create creates a session for the agent, optionally bound to a resolved
// customer identity, and appends firstMessage as the session's first event
// when non-empty. At most one creation may be in flight; concurrent calls
// return ErrCreationInFlight and issue no request.
func (m *Manager) Create(ctx context.Context, agentID string, identity *model.CustomerIdentity, firstMessage string) (string, error) {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	if m.creating {
		m.mu.Unlock()
		return "", ErrCreationInFlight
	}
	m.creating = true
	m.state = StateCreating
	backend := m.backend
	m.mu.Unlock()
	m.notify()

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "widget.session",
		AgentID:   logger.Ptr(agentID),
	})

	sc := logger.StartSpan(ctx, "widget.session.create")
	defer sc.End()
	ctx = sc.Context()

	customerID := m.resolveCustomer(ctx, backend, identity)

	session, err := backend.CreateSession(ctx, api.CreateSessionParams{
		AgentID:    agentID,
		CustomerID: customerID,
	})
	if err != nil {
		sc.RecordError(err)
		m.mu.Lock()
		m.creating = false
		m.state = StateIdle
		m.mu.Unlock()
		m.notify()
		// The queued first message is abandoned; the caller keeps the input
		// for resubmission.
		return "", fmt.Errorf("creating session: %w", err)
	}

	m.mu.Lock()
	m.creating = false
	m.state = StateActive
	m.sessionID = session.ID
	m.mu.Unlock()
	m.notify()

	slog.InfoContext(ctx, "session created",
		"session_id", session.ID,
		"customer_id", customerID)

	if firstMessage != "" {
		// Append failure does not invalidate the freshly created session.
		if _, err := backend.AppendMessage(ctx, session.ID, firstMessage); err != nil {
			slog.WarnContext(ctx, "failed to append first message",
				"session_id", session.ID,
				"error", err)
		}
	}

	return session.ID, nil
}

// resolveCustomer maps a token-derived identity onto a remote customer
// record, creating one when the lookup reports not found. Any other failure
// degrades to an anonymous session: session creation must survive identity
// subsystem outages.
func (m *Manager) resolveCustomer(ctx context.Context, backend Backend, identity *model.CustomerIdentity) string {
	if identity == nil || identity.CustomerID == "" || identity.CustomerID == model.GuestCustomerID {
		return ""
	}

	name := identity.CustomerName
	if name == "" {
		name = identity.CustomerID
	}

	customer, err := backend.FindCustomer(ctx, name)
	if err == nil {
		return customer.ID
	}
	if !api.IsNotFound(err) {
		slog.WarnContext(ctx, "customer lookup failed, proceeding anonymous", "error", err)
		return ""
	}

	customer, err = backend.CreateCustomer(ctx, identity.CustomerID, name)
	if err != nil {
		slog.WarnContext(ctx, "customer creation failed, proceeding anonymous", "error", err)
		return ""
	}
	return customer.ID
}

// Adopt takes an externally supplied session id and activates it directly,
// bypassing creation.
func (m *Manager) Adopt(sessionID string) {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.sessionID = sessionID
	m.state = StateActive
	m.mu.Unlock()
	m.notify()
}

// Replace invalidates the current session and bumps the session key. Called
// when the agent or customer identity changes while a session is active.
func (m *Manager) Replace() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.sessionID = ""
	m.key++
	m.state = StateIdle
	m.mu.Unlock()
	m.notify()
}

// Close ends the lifecycle. The manager accepts no further transitions.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.sessionID = ""
	m.state = StateClosed
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) notify() {
	m.mu.Lock()
	observers := make([]Observer, len(m.observers))
	copy(observers, m.observers)
	transition := Transition{
		State:     m.state,
		SessionID: m.sessionID,
		Key:       m.key,
	}
	m.mu.Unlock()

	for _, fn := range observers {
		fn(transition)
	}
}
