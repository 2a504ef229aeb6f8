package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type EventKind string

const (
	EventKindMessage EventKind = "message"
	EventKindStatus  EventKind = "status"
	EventKindCustom  EventKind = "custom"
)

type EventSource string

const (
	SourceCustomer   EventSource = "customer"
	SourceAIAgent    EventSource = "ai_agent"
	SourceHumanAgent EventSource = "human_agent"
)

// CorrelationSeparator splits a correlation id into its causal-chain prefix
// and a per-event suffix. Events sharing the prefix belong to one exchange
// (a customer message plus the agent's resulting status and reply events).
const CorrelationSeparator = "::"

// Event is one append-only record in a session's event stream. Offsets are
// server-assigned and strictly increasing per session; the same offset is
// never reissued with different content.
type Event struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"session_id"`
	Offset        int64           `json:"offset"`
	Kind          EventKind       `json:"kind"`
	Source        EventSource     `json:"source"`
	CorrelationID string          `json:"correlation_id"`
	CreationUTC   time.Time       `json:"creation_utc"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// CorrelationPrefix returns the portion of the correlation id before the
// separator, or the whole id when no separator is present.
func (e Event) CorrelationPrefix() string {
	if idx := strings.Index(e.CorrelationID, CorrelationSeparator); idx >= 0 {
		return e.CorrelationID[:idx]
	}
	return e.CorrelationID
}

// MessageData is the payload of a message event.
type MessageData struct {
	Message     string `json:"message"`
	Participant string `json:"participant,omitempty"`
}

// StatusData is the payload of a status event. Stage is an optional
// human-readable phase name emitted while the agent is processing.
type StatusData struct {
	Status    BotStatus `json:"status"`
	Stage     string    `json:"stage,omitempty"`
	Exception string    `json:"exception,omitempty"`
}

func (e Event) MessageData() (MessageData, error) {
	var data MessageData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return MessageData{}, fmt.Errorf("decoding message event %s: %w", e.ID, err)
	}
	return data, nil
}

func (e Event) StatusData() (StatusData, error) {
	var data StatusData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return StatusData{}, fmt.Errorf("decoding status event %s: %w", e.ID, err)
	}
	return data, nil
}
