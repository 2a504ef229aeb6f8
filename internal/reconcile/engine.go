// Package reconcile merges at-least-once server event batches and locally
// optimistic pending messages into a stable, deduplicated, offset-ordered
// conversation view plus a transient agent-status indicator.
package reconcile

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"parlor.chat/widget/internal/model"
)

type statusRecord struct {
	offset int64
	data   model.StatusData
}

// Engine is the reconciliation state for one session. Reset discards
// everything when the session is replaced.
type Engine struct {
	mu sync.Mutex

	// Confirmed messages keyed by event id. Append-only: ids are never
	// removed, re-delivered events only upsert.
	byID map[string]model.Message

	// Latest status payload per correlation prefix, by offset.
	statusByCorrelation map[string]statusRecord

	// Highest-offset status event overall and highest-offset agent message,
	// for deriving the transient status indicator.
	latestStatus      *statusRecord
	agentMsgOffset    int64
	customerMsgOffset int64

	pending      *model.Message
	clearPending bool

	botStatus model.BotStatus
}

func New() *Engine {
	return &Engine{
		byID:                make(map[string]model.Message),
		statusByCorrelation: make(map[string]statusRecord),
		agentMsgOffset:      -1,
		customerMsgOffset:   -1,
		botStatus:           model.BotStatusReady,
	}
}

// Reset discards all reconciliation state. Used on session replacement so a
// new session never inherits another session's view.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byID = make(map[string]model.Message)
	e.statusByCorrelation = make(map[string]statusRecord)
	e.latestStatus = nil
	e.agentMsgOffset = -1
	e.customerMsgOffset = -1
	e.pending = nil
	e.clearPending = false
	e.botStatus = model.BotStatusReady
}

// SetPending installs the optimistic not-yet-acknowledged customer message.
// At most one pending message exists at a time; a second send replaces it.
func (e *Engine) SetPending(text string) model.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	pending := model.Message{
		Offset:        -1,
		Source:        model.SourceCustomer,
		Text:          text,
		CorrelationID: "pending-" + uuid.NewString(),
		Status:        model.DeliveryPending,
	}
	e.pending = &pending
	e.clearPending = false
	return pending
}

// ClearPending drops the pending message, e.g. when the send failed.
func (e *Engine) ClearPending() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = nil
	e.clearPending = false
}

// Ingest merges a raw event batch into the reconciled state. Events are
// immutable once observed; re-delivery of a known id is harmless.
func (e *Engine) Ingest(events []model.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// A match detected on the previous pass clears now, one pass later, so
	// the confirmed bubble replaces the pending one without a flicker frame
	// showing both or neither.
	if e.clearPending {
		e.pending = nil
		e.clearPending = false
	}

	for _, event := range events {
		switch event.Kind {
		case model.EventKindMessage:
			e.ingestMessage(event)
		case model.EventKindStatus:
			e.ingestStatus(event)
		}
	}
}

func (e *Engine) ingestMessage(event model.Event) {
	// Events without an id never enter the dedup map; only the synthetic
	// pending/status records lack ids and they live outside it.
	if event.ID == "" {
		return
	}

	data, err := event.MessageData()
	if err != nil {
		return
	}

	_, known := e.byID[event.ID]
	e.byID[event.ID] = model.Message{
		ID:            event.ID,
		Offset:        event.Offset,
		Source:        event.Source,
		Text:          data.Message,
		CorrelationID: event.CorrelationPrefix(),
		CreationUTC:   event.CreationUTC,
	}

	switch event.Source {
	case model.SourceCustomer:
		if event.Offset > e.customerMsgOffset {
			e.customerMsgOffset = event.Offset
		}
		if !known && e.pending != nil && e.pending.Text == data.Message {
			e.clearPending = true
		}
	case model.SourceAIAgent, model.SourceHumanAgent:
		if event.Offset > e.agentMsgOffset {
			e.agentMsgOffset = event.Offset
		}
	}
}

func (e *Engine) ingestStatus(event model.Event) {
	data, err := event.StatusData()
	if err != nil || data.Status == "" {
		return
	}

	record := statusRecord{offset: event.Offset, data: data}
	prefix := event.CorrelationPrefix()
	if prev, ok := e.statusByCorrelation[prefix]; !ok || record.offset > prev.offset {
		e.statusByCorrelation[prefix] = record
	}
	if e.latestStatus == nil || record.offset > e.latestStatus.offset {
		e.latestStatus = &record
		e.botStatus = data.Status
	}
}

// Snapshot produces the UI-facing view: confirmed messages sorted by offset
// ascending with no duplicate ids, the pending message if any, and the
// derived status indicator. The derivation is idempotent: the same state
// always yields the same snapshot.
func (e *Engine) Snapshot() model.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	messages := make([]model.Message, 0, len(e.byID))
	for _, msg := range e.byID {
		messages = append(messages, e.annotate(msg))
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Offset < messages[j].Offset
	})

	snapshot := model.Snapshot{
		Messages:  messages,
		BotStatus: e.botStatus,
	}
	if e.pending != nil {
		pending := *e.pending
		snapshot.Pending = &pending
	}
	snapshot.Status = e.statusIndicator()
	return snapshot
}

// annotate derives a message's displayed status: the most recent
// same-correlation status payload wins; lacking one, a later message in the
// same kind-stream implies the exchange completed; otherwise the status is
// left unset.
func (e *Engine) annotate(msg model.Message) model.Message {
	if record, ok := e.statusByCorrelation[msg.CorrelationID]; ok && record.offset >= msg.Offset {
		msg.Status = deliveryStatus(record.data.Status)
		if record.data.Status == model.BotStatusError {
			msg.Error = record.data.Exception
		}
		return msg
	}

	var latest int64
	switch msg.Source {
	case model.SourceCustomer:
		latest = e.customerMsgOffset
	default:
		latest = e.agentMsgOffset
	}
	if latest > msg.Offset {
		msg.Status = model.DeliveryReady
	}
	return msg
}

func deliveryStatus(status model.BotStatus) model.DeliveryStatus {
	switch status {
	case model.BotStatusProcessing:
		return model.DeliveryProcessing
	case model.BotStatusTyping:
		return model.DeliveryTyping
	case model.BotStatusError:
		return model.DeliveryError
	default:
		return model.DeliveryReady
	}
}
