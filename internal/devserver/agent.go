package devserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"parlor.chat/widget/common/logger"
	"parlor.chat/widget/internal/model"
)

// Responder produces the agent's reply to a customer message given the
// session's message history.
type Responder interface {
	Reply(ctx context.Context, history []model.Message, userText string) (string, error)
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, history []model.Message, userText string) (string, error)

func (f ResponderFunc) Reply(ctx context.Context, history []model.Message, userText string) (string, error) {
	return f(ctx, history, userText)
}

// EchoResponder is the scripted fallback used when no LLM is configured.
func EchoResponder() Responder {
	return ResponderFunc(func(_ context.Context, _ []model.Message, userText string) (string, error) {
		return fmt.Sprintf("You said: %q. This is the dev agent speaking.", userText), nil
	})
}

// Agent simulates the backend's conversational pipeline: for every customer
// message it emits a processing status, then typing, then the reply message,
// then ready, all sharing the customer message's correlation prefix.
type Agent struct {
	store     *Store
	responder Responder
	delay     time.Duration
}

func NewAgent(store *Store, responder Responder, delay time.Duration) *Agent {
	if responder == nil {
		responder = EchoResponder()
	}
	return &Agent{
		store:     store,
		responder: responder,
		delay:     delay,
	}
}

// Engage runs the reply pipeline in the background. The correlation of every
// emitted event shares the customer message's prefix so clients can group
// the exchange.
func (a *Agent) Engage(sessionID, correlation, userText string) {
	go a.run(sessionID, correlation, userText)
}

func (a *Agent) run(sessionID, correlation, userText string) {
	ctx := logger.WithLogFields(context.Background(), logger.LogFields{
		Component:     "devserver.agent",
		SessionID:     logger.Ptr(sessionID),
		CorrelationID: logger.Ptr(correlation),
	})

	responseCorrelation := correlation + model.CorrelationSeparator + "response"

	a.emitStatus(ctx, sessionID, responseCorrelation, model.StatusData{
		Status: model.BotStatusProcessing,
	})
	time.Sleep(a.delay)

	history := a.history(sessionID)

	a.emitStatus(ctx, sessionID, responseCorrelation, model.StatusData{
		Status: model.BotStatusTyping,
	})
	time.Sleep(a.delay)

	reply, err := a.responder.Reply(ctx, history, userText)
	if err != nil {
		slog.ErrorContext(ctx, "responder failed", "error", err)
		a.emitStatus(ctx, sessionID, responseCorrelation, model.StatusData{
			Status:    model.BotStatusError,
			Exception: err.Error(),
		})
		return
	}

	if _, err := a.store.Append(sessionID, model.EventKindMessage, model.SourceAIAgent, responseCorrelation, model.MessageData{
		Message: reply,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to append reply", "error", err)
		return
	}

	a.emitStatus(ctx, sessionID, responseCorrelation, model.StatusData{
		Status: model.BotStatusReady,
	})
}

func (a *Agent) emitStatus(ctx context.Context, sessionID, correlation string, data model.StatusData) {
	if _, err := a.store.Append(sessionID, model.EventKindStatus, model.SourceAIAgent, correlation, data); err != nil {
		slog.WarnContext(ctx, "failed to append status event", "status", data.Status, "error", err)
	}
}

// history collects the session's confirmed messages in offset order for the
// responder's context window.
func (a *Agent) history(sessionID string) []model.Message {
	events, err := a.store.ListEvents(context.Background(), sessionID, 0, 0)
	if err != nil {
		return nil
	}
	messages := make([]model.Message, 0, len(events))
	for _, event := range events {
		if event.Kind != model.EventKindMessage {
			continue
		}
		data, err := event.MessageData()
		if err != nil {
			continue
		}
		messages = append(messages, model.Message{
			ID:          event.ID,
			Offset:      event.Offset,
			Source:      event.Source,
			Text:        data.Message,
			CreationUTC: event.CreationUTC,
		})
	}
	return messages
}
