// Package stream serves experiment generation over WebSocket.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ashureev/physics-lab/internal/domain"
	"github.com/ashureev/physics-lab/internal/export"
)

const previewLength = 500

// Generator runs one experiment generation.
type Generator interface {
	Generate(ctx context.Context, req domain.ExperimentRequest) (*domain.Session, error)
}

// WebSocketHandler handles streaming experiment generation sessions.
type WebSocketHandler struct {
	gen           Generator
	allowedOrigin string
	isDev         bool
	logger        *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(gen Generator, allowedOrigin string, isDev bool, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		gen:           gen,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		logger:        logger,
	}
}

// clientMessage is either a ping or an experiment request.
type clientMessage struct {
	Type string `json:"type,omitempty"`
	domain.ExperimentRequest
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("WebSocket connection request", "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &conn{ws: ws, ctx: ctx, logger: h.logger}
	requests := make(chan domain.ExperimentRequest)
	var busy atomic.Bool

	go func() {
		defer cancel()
		h.readLoop(ctx, c, &busy, requests)
	}()

	// Requests are processed one at a time so each run's events form one
	// contiguous block.
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("WebSocket session ended", "ip", r.RemoteAddr)
			return
		case req := <-requests:
			events := h.generate(ctx, c, req)
			busy.Store(false)
			for _, ev := range events {
				c.send(ev)
			}
		}
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// readLoop answers pings and rejects invalid input inline. A valid request
// is handed to the connection's run loop unless a run is in progress.
func (h *WebSocketHandler) readLoop(ctx context.Context, c *conn, busy *atomic.Bool, requests chan<- domain.ExperimentRequest) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				h.logger.Debug("WebSocket closed by client")
			} else {
				h.logger.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.send(map[string]any{"type": "error", "message": fmt.Sprintf("Invalid message: %v", err)})
			continue
		}

		if msg.Type == "ping" {
			c.send(map[string]any{"type": "pong"})
			continue
		}

		req := msg.ExperimentRequest
		if strings.TrimSpace(req.Description) == "" {
			c.send(map[string]any{"type": "error", "message": "Experiment description is required"})
			continue
		}
		if req.RequestedSessionID() == "" {
			id := "ws_exp_" + uuid.NewString()
			req.SessionID = &id
		}

		if !busy.CompareAndSwap(false, true) {
			c.send(map[string]any{
				"type":       "error",
				"message":    "Generation already in progress",
				"session_id": req.RequestedSessionID(),
			})
			continue
		}

		select {
		case requests <- req:
		case <-ctx.Done():
			return
		}
	}
}

// generate acknowledges and runs one request and returns the events that
// report its outcome. A closed connection stops emission only; the service
// finishes and stores the run.
func (h *WebSocketHandler) generate(ctx context.Context, c *conn, req domain.ExperimentRequest) []map[string]any {
	sessionID := req.RequestedSessionID()
	c.send(map[string]any{
		"type":       "status",
		"message":    "Starting experiment generation...",
		"session_id": sessionID,
	})

	session, err := h.gen.Generate(ctx, req)
	if err != nil {
		h.logger.Warn("Streaming generation failed", "session_id", sessionID, "error", err)
		return []map[string]any{{
			"type":       "error",
			"message":    fmt.Sprintf("Error during generation: %v", err),
			"session_id": sessionID,
		}}
	}
	session.EnsureCollections()

	var events []map[string]any
	if len(session.Images) > 0 {
		events = append(events, map[string]any{"type": "images_update", "images": session.Images, "session_id": session.ID})
	}
	for _, name := range export.OrderedNames(session.Files) {
		content := session.Files[name]
		events = append(events, map[string]any{
			"type":       "file_update",
			"filename":   name,
			"content":    content,
			"preview":    Preview(content),
			"session_id": session.ID,
		})
	}
	events = append(events,
		map[string]any{"type": "todos_update", "todos": session.Todos, "session_id": session.ID},
		map[string]any{
			"type":       "completion",
			"message":    fmt.Sprintf("Experiment guide complete! Generated %d files and %d images.", len(session.Files), len(session.Images)),
			"session_id": session.ID,
			"files":      session.Files,
			"todos":      session.Todos,
			"images":     session.Images,
		},
	)
	return events
}

// Preview returns the first 500 characters of content, with "..." appended
// when it was cut.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength]) + "..."
}

// conn serializes event writes so each generation's events stay in order.
type conn struct {
	mu     sync.Mutex
	ws     *websocket.Conn
	ctx    context.Context
	logger *slog.Logger
}

func (c *conn) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to encode event", "error", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx.Err() != nil {
		return
	}
	if err := c.ws.Write(c.ctx, websocket.MessageText, data); err != nil {
		c.logger.Debug("WebSocket write error", "error", err)
	}
}
