// Package api is the typed HTTP client for the conversational-agent backend.
// It covers the three surfaces the widget core needs: session creation,
// event append, and long-poll event listing with offset-based resumption,
// plus customer resolve-or-create.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"parlor.chat/widget/internal/model"
)

// waitSlack pads the client-side deadline past the server's long-poll wait
// budget so the server, not the transport, decides when a poll expires.
const waitSlack = 5 * time.Second

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type Option func(*Client)

// WithToken attaches a bearer token to every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient overrides the underlying transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type CreateSessionParams struct {
	AgentID    string `json:"agent_id"`
	CustomerID string `json:"customer_id,omitempty"`
	Title      string `json:"title,omitempty"`
}

func (c *Client) CreateSession(ctx context.Context, params CreateSessionParams) (*model.Session, error) {
	var session model.Session
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", nil, params, &session, 0); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return &session, nil
}

// ListEvents long-polls the session's event stream from minOffset. The
// server holds the request open up to wait for new data and returns an empty
// batch on expiry; an empty batch is a normal outcome, not an error.
func (c *Client) ListEvents(ctx context.Context, sessionID string, minOffset int64, wait time.Duration) ([]model.Event, error) {
	query := url.Values{}
	query.Set("min_offset", strconv.FormatInt(minOffset, 10))
	query.Set("wait_for_data", strconv.Itoa(int(wait.Seconds())))

	var resp struct {
		Events []model.Event `json:"events"`
	}
	path := fmt.Sprintf("/api/v1/sessions/%s/events", sessionID)
	if err := c.do(ctx, http.MethodGet, path, query, nil, &resp, wait+waitSlack); err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return resp.Events, nil
}

type appendEventRequest struct {
	Kind    model.EventKind   `json:"kind"`
	Source  model.EventSource `json:"source"`
	Message string            `json:"message"`
}

// AppendMessage appends a customer message event to the session.
func (c *Client) AppendMessage(ctx context.Context, sessionID, text string) (*model.Event, error) {
	req := appendEventRequest{
		Kind:    model.EventKindMessage,
		Source:  model.SourceCustomer,
		Message: text,
	}
	var event model.Event
	path := fmt.Sprintf("/api/v1/sessions/%s/events", sessionID)
	if err := c.do(ctx, http.MethodPost, path, nil, req, &event, 0); err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}
	return &event, nil
}

// FindCustomer looks up a customer record by its display identifier.
// Returns a not_found categorized error when no record exists.
func (c *Client) FindCustomer(ctx context.Context, name string) (*model.Customer, error) {
	query := url.Values{}
	query.Set("name", name)

	var customer model.Customer
	if err := c.do(ctx, http.MethodGet, "/api/v1/customers", query, nil, &customer, 0); err != nil {
		return nil, fmt.Errorf("finding customer: %w", err)
	}
	return &customer, nil
}

func (c *Client) CreateCustomer(ctx context.Context, id, name string) (*model.Customer, error) {
	req := map[string]string{"id": id, "name": name}
	var customer model.Customer
	if err := c.do(ctx, http.MethodPost, "/api/v1/customers", nil, req, &customer, 0); err != nil {
		return nil, fmt.Errorf("creating customer: %w", err)
	}
	return &customer, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		message := readErrorMessage(resp.Body)
		return &Error{
			Status:   resp.StatusCode,
			Category: categoryForStatus(resp.StatusCode),
			Message:  message,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Category: CategoryOther, Message: "decoding response: " + err.Error()}
	}
	return nil
}

func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return "request failed"
	}
	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	return string(raw)
}
