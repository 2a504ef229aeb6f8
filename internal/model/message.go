package model

import "time"

// BotStatus is the agent's transient activity state, derived from the most
// recent status event in the stream.
type BotStatus string

const (
	BotStatusReady      BotStatus = "ready"
	BotStatusProcessing BotStatus = "processing"
	BotStatusTyping     BotStatus = "typing"
	BotStatusError      BotStatus = "error"
)

// DeliveryStatus annotates a reconciled message with the state of its
// correlated exchange.
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryReady      DeliveryStatus = "ready"
	DeliveryProcessing DeliveryStatus = "processing"
	DeliveryTyping     DeliveryStatus = "typing"
	DeliveryError      DeliveryStatus = "error"
)

// Message is the externally visible conversation unit. Confirmed messages
// carry a server id and offset; a pending message has neither (ID empty,
// Offset -1) and exists only until the server echoes it back or the send
// fails.
type Message struct {
	ID            string         `json:"id,omitempty"`
	Offset        int64          `json:"offset"`
	Source        EventSource    `json:"source"`
	Text          string         `json:"text"`
	CorrelationID string         `json:"correlation_id"`
	CreationUTC   time.Time      `json:"creation_utc"`
	Status        DeliveryStatus `json:"status,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// Confirmed reports whether the message came from a server event rather than
// being a local synthetic record.
func (m Message) Confirmed() bool { return m.ID != "" }

// StatusIndicator is the transient, non-persisted "agent is thinking/typing"
// record. It never enters the confirmed message map.
type StatusIndicator struct {
	Phase BotStatus `json:"phase"`
	Text  string    `json:"text"`
}

// Snapshot is the reconciled view handed to the presentation layer.
// Messages are confirmed events only, sorted by offset ascending with no
// duplicate ids; Pending and Status are appended after them by the consumer
// since they intentionally lack a real offset.
type Snapshot struct {
	Messages  []Message        `json:"messages"`
	Pending   *Message         `json:"pending,omitempty"`
	Status    *StatusIndicator `json:"status,omitempty"`
	BotStatus BotStatus        `json:"bot_status"`
}
