// Package poller keeps a near-real-time view of a session's event stream via
// adaptive long-polling, trading latency for request volume based on recent
// conversation activity.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"parlor.chat/widget/common/logger"
	"parlor.chat/widget/internal/api"
	"parlor.chat/widget/internal/model"
)

// State is the engine's explicit lifecycle FSM. It is owned by the engine
// and mutated only through its own methods.
type State string

const (
	StateIdle    State = "idle"
	StatePolling State = "polling"
	StateStopped State = "stopped"
)

// Fetcher is the single backend call the engine depends on: one HTTP round
// trip that blocks server-side up to wait for new data and returns an empty
// batch on expiry.
type Fetcher interface {
	ListEvents(ctx context.Context, sessionID string, minOffset int64, wait time.Duration) ([]model.Event, error)
}

// Engine runs the long-poll loop for one session at a time. At most one
// fetch is in flight at any moment; the busy flag is independent from the
// lifecycle state so stopping and restarting do not race.
type Engine struct {
	cfg   Config
	fetch Fetcher
	sink  func([]model.Event)
	emit  func(error)
	clock clockwork.Clock

	mu              sync.Mutex
	state           State
	busy            bool
	rearm           bool
	sessionID       string
	offset          int64
	timer           clockwork.Timer
	cancel          context.CancelFunc
	retries         int
	surfacedTimeout bool
	lastUserMsg     time.Time
	lastBatch       time.Time
	botStatus       model.BotStatus
}

// NewEngine builds an engine that pushes event batches to sink and reports
// user-visible failures to emit. Both callbacks are invoked outside the
// engine's lock.
func NewEngine(cfg Config, fetch Fetcher, sink func([]model.Event), emit func(error)) *Engine {
	return NewEngineWithClock(cfg, fetch, sink, emit, clockwork.NewRealClock())
}

func NewEngineWithClock(cfg Config, fetch Fetcher, sink func([]model.Event), emit func(error), clock clockwork.Clock) *Engine {
	if sink == nil {
		sink = func([]model.Event) {}
	}
	if emit == nil {
		emit = func(error) {}
	}
	return &Engine{
		cfg:       cfg.withDefaults(),
		fetch:     fetch,
		sink:      sink,
		emit:      emit,
		clock:     clock,
		state:     StateIdle,
		botStatus: model.BotStatusReady,
	}
}

// Start begins polling sessionID from fromOffset. Restarting after Stop
// begins cleanly: all counters and flags reset. Calling Start while already
// polling is a no-op.
func (e *Engine) Start(sessionID string, fromOffset int64) {
	e.mu.Lock()
	if e.state == StatePolling {
		e.mu.Unlock()
		return
	}
	e.state = StatePolling
	e.sessionID = sessionID
	e.offset = fromOffset
	e.retries = 0
	e.surfacedTimeout = false
	e.rearm = false
	e.botStatus = model.BotStatusReady
	e.lastBatch = time.Time{}
	e.schedule(0)
	e.mu.Unlock()
}

// Stop aborts the in-flight request and clears all scheduled timers. No
// scheduled poll may fire after Stop returns.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateStopped
	e.rearm = false
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.cancel != nil {
		e.cancel()
	}
}

// Offset returns the current resume cursor: max(observed offsets) + 1.
func (e *Engine) Offset() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.offset
}

// CurrentState returns the lifecycle state.
func (e *Engine) CurrentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// TriggerImmediatePoll cancels any pending scheduled poll and polls right
// away, stamping last-user-message time so interval selection reflects fresh
// activity before the poll even returns. Called right after the user sends a
// message.
func (e *Engine) TriggerImmediatePoll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastUserMsg = e.clock.Now()
	if e.state != StatePolling {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.busy {
		// Abort the in-flight request; its completion path re-arms the loop
		// immediately instead of walking the normal interval ladder.
		e.rearm = true
		if e.cancel != nil {
			e.cancel()
		}
		return
	}
	e.schedule(0)
}

// schedule arms the next poll. Caller must hold e.mu.
func (e *Engine) schedule(d time.Duration) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = e.clock.AfterFunc(d, e.pollOnce)
}

func (e *Engine) pollOnce() {
	e.mu.Lock()
	if e.state != StatePolling {
		e.mu.Unlock()
		return
	}
	if e.busy {
		// A trigger fired while a poll is still in flight; let the in-flight
		// completion re-arm.
		e.rearm = true
		e.mu.Unlock()
		return
	}
	e.busy = true
	sessionID := e.sessionID
	offset := e.offset
	wait := e.waitBudget()
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.mu.Unlock()

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "widget.poller",
		SessionID: logger.Ptr(sessionID),
		Offset:    logger.Ptr(offset),
	})

	events, err := e.fetch.ListEvents(ctx, sessionID, offset, wait)
	cancel()

	e.mu.Lock()
	e.busy = false
	e.cancel = nil
	if e.state != StatePolling {
		e.mu.Unlock()
		return
	}

	if err != nil {
		e.handleFailure(ctx, err)
		return
	}

	e.retries = 0
	e.surfacedTimeout = false
	if len(events) > 0 {
		for _, event := range events {
			if event.Offset >= e.offset {
				e.offset = event.Offset + 1
			}
		}
		// Stamp receipt time so a streaming response keeps the engine in the
		// fast tier.
		e.lastBatch = e.clock.Now()
		e.noteBatchStatusLocked(events)
	}
	e.finishCycle()

	if len(events) > 0 {
		e.sink(events)
	}
}

// handleFailure applies the error taxonomy: timeouts are expected long-poll
// behavior (backed off, surfaced once); cancellation is silent; anything
// else resets backoff, waits at least ErrorDelay, and surfaces every time.
// Caller must hold e.mu; the lock is released before returning.
func (e *Engine) handleFailure(ctx context.Context, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		if e.rearm {
			e.rearm = false
			e.schedule(0)
		}
		e.mu.Unlock()

	case api.IsTimeout(err):
		if e.retries < e.cfg.MaxRetries {
			e.retries++
		}
		surface := !e.surfacedTimeout
		e.surfacedTimeout = true
		delay := e.backoff()
		retries := e.retries
		e.schedule(delay)
		e.mu.Unlock()

		slog.DebugContext(ctx, "long-poll timed out",
			"retries", retries,
			"backoff", delay)
		if surface {
			e.emit(err)
		}

	default:
		e.retries = 0
		e.schedule(e.cfg.ErrorDelay)
		e.mu.Unlock()

		slog.WarnContext(ctx, "event fetch failed", "error", err)
		e.emit(err)
	}
}

// finishCycle schedules the next poll at the activity-derived interval.
// Caller must hold e.mu; the lock is released before returning.
func (e *Engine) finishCycle() {
	if e.rearm {
		e.rearm = false
		e.schedule(0)
		e.mu.Unlock()
		return
	}
	interval := selectInterval(e.cfg, e.clock.Now(), e.lastUserMsg, e.lastBatch, e.botStatus)
	e.schedule(interval)
	e.mu.Unlock()
}

// waitBudget shrinks the server-side wait from the ceiling toward the floor
// as consecutive timeouts accumulate. Caller must hold e.mu.
func (e *Engine) waitBudget() time.Duration {
	wait := e.cfg.WaitCeiling - time.Duration(e.retries)*e.cfg.WaitShrink
	if wait < e.cfg.WaitFloor {
		wait = e.cfg.WaitFloor
	}
	return wait
}

// backoff is exponential in the retry counter, capped. Caller must hold e.mu.
func (e *Engine) backoff() time.Duration {
	delay := e.cfg.BackoffBase << (e.retries - 1)
	if delay > e.cfg.BackoffCap || delay <= 0 {
		delay = e.cfg.BackoffCap
	}
	return delay
}

// noteBatchStatusLocked tracks the highest-offset status event in the batch
// for interval selection. Caller must hold e.mu.
func (e *Engine) noteBatchStatusLocked(events []model.Event) {
	var best *model.Event
	for i := range events {
		if events[i].Kind != model.EventKindStatus {
			continue
		}
		if best == nil || events[i].Offset > best.Offset {
			best = &events[i]
		}
	}
	if best == nil {
		return
	}
	if data, err := best.StatusData(); err == nil && data.Status != "" {
		e.botStatus = data.Status
	}
}
