// Package server exposes the conversation runtime over HTTP. Turn
// progress is streamed as server-sent events, one JSON event per frame.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/jarz/rentagent/pkg/api"
	"github.com/jarz/rentagent/pkg/chat"
	"github.com/jarz/rentagent/pkg/conversation"
	"github.com/jarz/rentagent/pkg/model/provider"
	"github.com/jarz/rentagent/pkg/runtime"
	"github.com/jarz/rentagent/pkg/scansan"
)

const maxTitleLength = 48

// TurnRunner runs one user turn and streams its events.
type TurnRunner interface {
	RunStream(ctx context.Context, conversationID, userMessage string) <-chan runtime.Event
}

// Locator resolves free-text area queries.
type Locator interface {
	SearchAreaCodes(ctx context.Context, query string) (*scansan.ResolvedLocation, error)
}

type Server struct {
	e       *echo.Echo
	runner  TurnRunner
	store   conversation.Store
	locator Locator
	titler  provider.Provider
}

type Opt func(*Server)

// WithTitler enables model-generated conversation titles. Without it the
// first user message is truncated instead.
func WithTitler(p provider.Provider) Opt {
	return func(s *Server) { s.titler = p }
}

func New(runner TurnRunner, store conversation.Store, locator Locator, opts ...Opt) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORS())

	s := &Server{
		e:       e,
		runner:  runner,
		store:   store,
		locator: locator,
	}
	for _, opt := range opts {
		opt(s)
	}

	group := e.Group("/api")

	// List conversations, most recently updated first
	group.GET("/conversations", s.listConversations)
	// Create a new conversation
	group.POST("/conversations", s.createConversation)
	// Get a conversation with its messages
	group.GET("/conversations/:id", s.getConversation)
	// Update a conversation title
	group.PATCH("/conversations/:id/title", s.updateTitle)
	// Run one user turn, streaming events
	group.POST("/conversations/:id/stream", s.streamTurn)

	// Resolve an area query without starting a conversation
	group.GET("/areas/search", s.searchAreas)

	// Health check endpoint
	group.GET("/ping", func(c echo.Context) error {
		return c.JSON(http.StatusOK, api.Ping{Status: "ok"})
	})

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Serve runs the server until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.e}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) listConversations(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
		}
		limit = parsed
	}

	summaries, err := s.store.List(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to list conversations: %v", err))
	}
	if summaries == nil {
		summaries = []conversation.Summary{}
	}
	return c.JSON(http.StatusOK, summaries)
}

func (s *Server) createConversation(c echo.Context) error {
	var req api.CreateConversationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}

	conv, err := s.store.Create(c.Request().Context(), req.Title)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to create conversation: %v", err))
	}
	return c.JSON(http.StatusCreated, conv)
}

func (s *Server) getConversation(c echo.Context) error {
	conv, err := s.store.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, conversation.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to load conversation: %v", err))
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *Server) updateTitle(c echo.Context) error {
	var req api.CreateConversationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	if strings.TrimSpace(req.Title) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title cannot be empty")
	}

	err := s.store.SetTitle(c.Request().Context(), c.Param("id"), req.Title)
	if errors.Is(err, conversation.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to update title: %v", err))
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) streamTurn(c echo.Context) error {
	var req api.ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message cannot be empty")
	}

	ctx := c.Request().Context()
	id := c.Param("id")

	conv, err := s.store.Get(ctx, id)
	if errors.Is(err, conversation.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to load conversation: %v", err))
	}

	if conv.Title == "" {
		s.setInitialTitle(ctx, id, req.Message)
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().WriteHeader(http.StatusOK)

	for event := range s.runner.RunStream(ctx, id, req.Message) {
		data, err := json.Marshal(event)
		if err != nil {
			slog.Error("Failed to marshal event", "error", err)
			continue
		}
		fmt.Fprintf(c.Response(), "data: %s\n\n", data)
		c.Response().Flush()
	}
	return nil
}

// setInitialTitle names a conversation from its first message, asking the
// model when a titler is configured and truncating otherwise.
func (s *Server) setInitialTitle(ctx context.Context, id, message string) {
	title := truncateTitle(message)

	if s.titler != nil {
		titleCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		generated, err := s.titler.CreateChatCompletion(titleCtx, []chat.Message{
			chat.NewSystemMessage("Generate a title of at most six words for the conversation that starts with the user message below. Reply with the title only."),
			chat.NewUserMessage(message),
		})
		if err != nil {
			slog.Warn("Title generation failed, using truncated message", "conversation_id", id, "error", err)
		} else if trimmed := strings.TrimSpace(generated); trimmed != "" {
			title = truncateTitle(trimmed)
		}
	}

	if err := s.store.SetTitle(ctx, id, title); err != nil {
		slog.Warn("Failed to set conversation title", "conversation_id", id, "error", err)
	}
}

func truncateTitle(message string) string {
	title := strings.Join(strings.Fields(message), " ")
	if len(title) > maxTitleLength {
		title = strings.TrimSpace(title[:maxTitleLength]) + "..."
	}
	return title
}

func (s *Server) searchAreas(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q parameter is required")
	}

	location, err := s.locator.SearchAreaCodes(c.Request().Context(), query)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("area search failed: %v", err))
	}
	if location == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no matching area")
	}
	return c.JSON(http.StatusOK, location)
}
