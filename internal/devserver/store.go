package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"parlor.chat/widget/common"
	"parlor.chat/widget/common/id"
	"parlor.chat/widget/internal/model"
)

var ErrSessionNotFound = errors.New("session not found")

// Store is the dev backend's in-memory state. Sessions hold an append-only
// event slice; offsets are slice indices, so they are strictly increasing
// with no gaps. Long-poll waiters block on a per-session broadcast channel
// that is closed and replaced on every append.
type Store struct {
	mu        sync.Mutex
	sessions  map[string]*sessionState
	customers map[string]model.Customer
}

type sessionState struct {
	session model.Session
	events  []model.Event
	notify  chan struct{}
}

func NewStore() *Store {
	return &Store{
		sessions:  make(map[string]*sessionState),
		customers: make(map[string]model.Customer),
	}
}

func (s *Store) CreateSession(agentID, customerID, title string) model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	session := model.Session{
		ID:         id.NewString(),
		AgentID:    agentID,
		CustomerID: customerID,
		Title:      title,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.sessions[session.ID] = &sessionState{
		session: session,
		notify:  make(chan struct{}),
	}
	return session
}

func (s *Store) GetSession(sessionID string) (model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return model.Session{}, false
	}
	return state.session, true
}

// Append assigns the next offset and a snowflake id, stores the event, and
// wakes every long-poll waiter on the session.
func (s *Store) Append(sessionID string, kind model.EventKind, source model.EventSource, correlationID string, data any) (model.Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return model.Event{}, fmt.Errorf("encoding event data: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return model.Event{}, ErrSessionNotFound
	}

	event := model.Event{
		ID:            id.NewString(),
		SessionID:     sessionID,
		Offset:        int64(len(state.events)),
		Kind:          kind,
		Source:        source,
		CorrelationID: correlationID,
		CreationUTC:   time.Now().UTC(),
		Data:          payload,
	}
	state.events = append(state.events, event)
	state.session.UpdatedAt = event.CreationUTC

	// The opening customer message names the conversation.
	if kind == model.EventKindMessage && source == model.SourceCustomer && state.session.Title == "" {
		if data, err := event.MessageData(); err == nil {
			state.session.Title = common.SessionTitle(data.Message, "New conversation")
		}
	}

	close(state.notify)
	state.notify = make(chan struct{})

	return event, nil
}

// ListEvents returns events at or past minOffset, holding the request open
// up to wait for new data. An empty result after the wait budget expires is
// a normal long-poll timeout, reported as such to exercise the client's
// recovery path only when the client's own deadline is shorter.
func (s *Store) ListEvents(ctx context.Context, sessionID string, minOffset int64, wait time.Duration) ([]model.Event, error) {
	deadline := time.Now().Add(wait)

	for {
		s.mu.Lock()
		state, ok := s.sessions[sessionID]
		if !ok {
			s.mu.Unlock()
			return nil, ErrSessionNotFound
		}
		if minOffset < 0 {
			minOffset = 0
		}
		if minOffset < int64(len(state.events)) {
			events := make([]model.Event, len(state.events)-int(minOffset))
			copy(events, state.events[minOffset:])
			s.mu.Unlock()
			return events, nil
		}
		notify := state.notify
		s.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return []model.Event{}, nil
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
			return []model.Event{}, nil
		case <-notify:
			timer.Stop()
		}
	}
}

func (s *Store) FindCustomerByName(name string) (model.Customer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, customer := range s.customers {
		if customer.Name == name {
			return customer, true
		}
	}
	return model.Customer{}, false
}

func (s *Store) CreateCustomer(customerID, name string) model.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customerID == "" {
		customerID = id.NewString()
	}
	customer := model.Customer{
		ID:        customerID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	s.customers[customer.ID] = customer
	return customer
}
