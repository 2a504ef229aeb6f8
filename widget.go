// Package widget is the embeddable chat widget's session/event
// synchronization core: identity resolution, session lifecycle, adaptive
// long-polling, and event-to-message reconciliation. Presentation is the
// consumer's problem; this package only produces the reconciled view.
package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"parlor.chat/widget/common/logger"
	"parlor.chat/widget/internal/api"
	"parlor.chat/widget/internal/identity"
	"parlor.chat/widget/internal/model"
	"parlor.chat/widget/internal/poller"
	"parlor.chat/widget/internal/reconcile"
	"parlor.chat/widget/internal/session"
)

// Re-exports so consumers outside the module can name the view-model and
// configuration types without reaching into internal packages.
type (
	Snapshot        = model.Snapshot
	Message         = model.Message
	StatusIndicator = model.StatusIndicator
	BotStatus       = model.BotStatus
	PollingConfig   = poller.Config
)

var ErrNotStarted = errors.New("widget is not started")

type Options struct {
	// BaseURL of the conversational-agent backend.
	BaseURL string
	// AgentID the sessions target.
	AgentID string
	// Token is an optional bearer token used for identity resolution and
	// request authorization.
	Token string
	// Provider selects the claim mapping for Token ("microsoft", "auth0",
	// ...). Empty falls back to the generic mapping.
	Provider string
	// SessionID, when set, resumes an existing session instead of creating
	// one.
	SessionID string
	// Polling tunes the long-poll engine; zero values take the canonical
	// defaults.
	Polling poller.Config
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
	// Registry overrides the identity provider registry.
	Registry *identity.Registry
}

// Client wires the synchronization core together. One Client owns one active
// session at a time; replacing the agent or token tears the session down and
// rebuilds dependent state.
type Client struct {
	mu       sync.Mutex
	opts     Options
	resolver *identity.Resolver
	sessions *session.Manager
	backend  *api.Client
	engine   *poller.Engine
	rec      *reconcile.Engine
	errs     chan string
	started  bool
}

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("BaseURL is required")
	}
	if opts.AgentID == "" && opts.SessionID == "" {
		return nil, errors.New("AgentID or SessionID is required")
	}
	if opts.Provider == "" {
		opts.Provider = "generic"
	}

	c := &Client{
		opts:     opts,
		resolver: identity.NewResolver(opts.Registry),
		rec:      reconcile.New(),
		errs:     make(chan string, 8),
	}
	c.rebuildLocked()
	c.sessions = session.NewManager(c.backend)
	c.sessions.Subscribe(c.onTransition)
	return c, nil
}

// rebuildLocked recreates the backend client and polling engine, e.g. after
// a token change. Caller must hold c.mu or be the constructor.
func (c *Client) rebuildLocked() {
	apiOpts := []api.Option{}
	if c.opts.Token != "" {
		apiOpts = append(apiOpts, api.WithToken(c.opts.Token))
	}
	if c.opts.HTTPClient != nil {
		apiOpts = append(apiOpts, api.WithHTTPClient(c.opts.HTTPClient))
	}
	c.backend = api.NewClient(c.opts.BaseURL, apiOpts...)
	c.engine = poller.NewEngine(c.opts.Polling, c.backend, c.onBatch, c.onError)
}

// Start resolves the customer identity and activates a session: adopting
// Options.SessionID when present, creating one otherwise. Polling begins as
// soon as the session is active.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	opts := c.opts
	c.mu.Unlock()

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "widget"})

	if opts.SessionID != "" {
		c.sessions.Adopt(opts.SessionID)
		return nil
	}

	ident := c.resolver.Extract(ctx, opts.Token, opts.Provider)
	if ident == nil {
		guest := model.GuestIdentity()
		ident = &guest
		slog.DebugContext(ctx, "no token-derived identity, using guest")
	}

	if _, err := c.sessions.Create(ctx, opts.AgentID, ident, ""); err != nil {
		c.mu.Lock()
		c.started = false
		c.mu.Unlock()
		if !errors.Is(err, session.ErrCreationInFlight) {
			c.surface(err)
		}
		return err
	}
	return nil
}

// SendMessage optimistically renders the message as pending, appends it to
// the session, and triggers an immediate poll so the confirmed echo arrives
// with minimal latency. On failure the pending message is cleared and the
// error surfaced; the caller keeps the input for resubmission.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	c.mu.Lock()
	engine := c.engine
	backend := c.backend
	c.mu.Unlock()

	sessionID, _, state := c.sessions.Current()
	if state != session.StateActive {
		return ErrNotStarted
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "widget",
		SessionID: logger.Ptr(sessionID),
	})

	c.rec.SetPending(text)
	if _, err := backend.AppendMessage(ctx, sessionID, text); err != nil {
		c.rec.ClearPending()
		c.surface(err)
		return fmt.Errorf("sending message: %w", err)
	}

	engine.TriggerImmediatePoll()
	return nil
}

// Snapshot returns the current reconciled view.
func (c *Client) Snapshot() Snapshot {
	return c.rec.Snapshot()
}

// Errors is the single user-visible error channel. Absorbed categories
// (repeat long-poll timeouts, identity degradation) never appear here.
func (c *Client) Errors() <-chan string {
	return c.errs
}

// UseToken replaces the bearer token. The active session is invalidated and
// a fresh one is created under the new identity.
func (c *Client) UseToken(ctx context.Context, token string) error {
	c.mu.Lock()
	c.opts.Token = token
	c.mu.Unlock()
	return c.replace(ctx)
}

// UseAgent retargets the widget at a different agent, tearing down the
// current session.
func (c *Client) UseAgent(ctx context.Context, agentID string) error {
	c.mu.Lock()
	c.opts.AgentID = agentID
	c.opts.SessionID = ""
	c.mu.Unlock()
	return c.replace(ctx)
}

func (c *Client) replace(ctx context.Context) error {
	c.mu.Lock()
	c.engine.Stop()
	c.rebuildLocked()
	c.sessions.SetBackend(c.backend)
	wasStarted := c.started
	c.started = false
	c.mu.Unlock()

	// Bumps the session key; the observer resets reconciliation state.
	c.sessions.Replace()

	if !wasStarted {
		return nil
	}
	return c.Start(ctx)
}

// Stop halts polling and closes the session lifecycle. No timer fires and no
// callback runs after Stop returns.
func (c *Client) Stop() {
	c.mu.Lock()
	engine := c.engine
	c.started = false
	c.mu.Unlock()

	engine.Stop()
	c.sessions.Close()
}

// onTransition reacts to session lifecycle changes: an active session starts
// polling from offset zero, a replaced or closed one stops it and discards
// reconciliation state.
func (c *Client) onTransition(t session.Transition) {
	c.mu.Lock()
	engine := c.engine
	c.mu.Unlock()

	switch t.State {
	case session.StateActive:
		c.rec.Reset()
		engine.Start(t.SessionID, 0)
	case session.StateIdle, session.StateClosed:
		engine.Stop()
		c.rec.Reset()
	}
}

func (c *Client) onBatch(events []model.Event) {
	c.rec.Ingest(events)
}

func (c *Client) onError(err error) {
	c.surface(err)
}

// surface pushes an error onto the user-visible channel, dropping it when
// the consumer is not draining. Auth failures pass through verbatim.
func (c *Client) surface(err error) {
	if err == nil {
		return
	}
	select {
	case c.errs <- err.Error():
	default:
	}
}
