// Package devserver is an in-memory conversational-agent backend for local
// development and tests: the session/customer/event API the widget core
// talks to, including server-side long-polling and a simulated agent
// pipeline that answers customer messages with correlated status and reply
// events. It is dev/test infrastructure, not a production server.
package devserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"parlor.chat/widget/internal/model"
)

const (
	defaultWait = 30 * time.Second
	maxWait     = 60 * time.Second
)

type Server struct {
	store *Store
	agent *Agent
}

func New(store *Store, agent *Agent) *Server {
	return &Server{
		store: store,
		agent: agent,
	}
}

// Routes mounts the API surface the widget core consumes.
func (s *Server) Routes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/sessions", s.createSession)
		v1.GET("/sessions/:id/events", s.listEvents)
		v1.POST("/sessions/:id/events", s.appendEvent)
		v1.GET("/customers", s.findCustomer)
		v1.POST("/customers", s.createCustomer)
	}
}

type createSessionRequest struct {
	AgentID    string `json:"agent_id" binding:"required"`
	CustomerID string `json:"customer_id"`
	Title      string `json:"title"`
}

func (s *Server) createSession(c *gin.Context) {
	ctx := c.Request.Context()

	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid session request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session := s.store.CreateSession(req.AgentID, req.CustomerID, req.Title)
	slog.InfoContext(ctx, "session created",
		"session_id", session.ID,
		"agent_id", session.AgentID)
	c.JSON(http.StatusCreated, session)
}

func (s *Server) listEvents(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	minOffset, err := strconv.ParseInt(c.DefaultQuery("min_offset", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_offset"})
		return
	}

	wait := defaultWait
	if raw := c.Query("wait_for_data"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wait_for_data"})
			return
		}
		wait = time.Duration(seconds) * time.Second
		if wait > maxWait {
			wait = maxWait
		}
	}

	events, err := s.store.ListEvents(ctx, sessionID, minOffset, wait)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		// Client went away mid-poll; nothing to answer.
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

type appendEventRequest struct {
	Kind    model.EventKind   `json:"kind" binding:"required"`
	Source  model.EventSource `json:"source" binding:"required"`
	Message string            `json:"message"`
}

func (s *Server) appendEvent(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	var req appendEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid event request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Kind != model.EventKindMessage {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only message events may be appended"})
		return
	}

	// The correlation base groups this message with the agent's resulting
	// status and reply events.
	correlation := uuid.NewString()

	event, err := s.store.Append(sessionID, model.EventKindMessage, req.Source, correlation, model.MessageData{
		Message: req.Message,
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to append event", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to append event"})
		return
	}

	if req.Source == model.SourceCustomer && s.agent != nil {
		s.agent.Engage(sessionID, correlation, req.Message)
	}

	c.JSON(http.StatusCreated, event)
}

func (s *Server) findCustomer(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	customer, ok := s.store.FindCustomerByName(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "customer not found"})
		return
	}
	c.JSON(http.StatusOK, customer)
}

type createCustomerRequest struct {
	ID   string `json:"id"`
	Name string `json:"name" binding:"required"`
}

func (s *Server) createCustomer(c *gin.Context) {
	var req createCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	customer := s.store.CreateCustomer(req.ID, req.Name)
	c.JSON(http.StatusCreated, customer)
}
