package session_test

import (
	"context"

	"parlor.chat/widget/internal/api"
	"parlor.chat/widget/internal/model"
)

type mockBackend struct {
	createSessionFn  func(ctx context.Context, params api.CreateSessionParams) (*model.Session, error)
	appendMessageFn  func(ctx context.Context, sessionID, text string) (*model.Event, error)
	findCustomerFn   func(ctx context.Context, name string) (*model.Customer, error)
	createCustomerFn func(ctx context.Context, id, name string) (*model.Customer, error)
}

func (m *mockBackend) CreateSession(ctx context.Context, params api.CreateSessionParams) (*model.Session, error) {
	if m.createSessionFn != nil {
		return m.createSessionFn(ctx, params)
	}
	return &model.Session{ID: "session-1", AgentID: params.AgentID}, nil
}

func (m *mockBackend) AppendMessage(ctx context.Context, sessionID, text string) (*model.Event, error) {
	if m.appendMessageFn != nil {
		return m.appendMessageFn(ctx, sessionID, text)
	}
	return &model.Event{ID: "event-1"}, nil
}

func (m *mockBackend) FindCustomer(ctx context.Context, name string) (*model.Customer, error) {
	if m.findCustomerFn != nil {
		return m.findCustomerFn(ctx, name)
	}
	return nil, &api.Error{Status: 404, Category: api.CategoryNotFound, Message: "customer not found"}
}

func (m *mockBackend) CreateCustomer(ctx context.Context, id, name string) (*model.Customer, error) {
	if m.createCustomerFn != nil {
		return m.createCustomerFn(ctx, id, name)
	}
	return &model.Customer{ID: id, Name: name}, nil
}
