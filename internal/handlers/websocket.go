package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/common"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/matching"
	"github.com/ternarybob/comparo/internal/models"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// Close codes for job sockets
const (
	CloseInvalidJobID   = 4001
	CloseHubUnavailable = 4000
)

// WSMessage is the frame envelope for all outbound messages
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// LogEntry is one streamed log line for the global socket
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// WebSocketHandler owns all websocket traffic: a global stream for logs and
// status, and per-job groups receiving matching job events. Sockets are
// broadcast-only; inbound frames are read and discarded to detect closure.
type WebSocketHandler struct {
	logger       arbor.ILogger
	eventService interfaces.EventService

	mu          sync.RWMutex
	global      map[*websocket.Conn]bool
	groups      map[string]map[*websocket.Conn]bool
	clientMutex map[*websocket.Conn]*sync.Mutex

	allowedEvents    map[string]bool
	throttlers       map[string]*rate.Limiter
	serverInstanceID string
}

// NewWebSocketHandler creates the hub and subscribes it to matching job
// update events
func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		eventService:     eventService,
		global:           make(map[*websocket.Conn]bool),
		groups:           make(map[string]map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		allowedEvents:    make(map[string]bool),
		throttlers:       make(map[string]*rate.Limiter),
		serverInstanceID: uuid.New().String(),
	}

	if config != nil {
		for _, eventType := range config.AllowedEvents {
			h.allowedEvents[eventType] = true
		}
		for eventType, intervalStr := range config.ThrottleIntervals {
			duration, err := time.ParseDuration(intervalStr)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("event_type", eventType).
					Str("interval", intervalStr).
					Msg("Invalid throttle interval, throttling disabled for event")
				continue
			}
			h.throttlers[eventType] = rate.NewLimiter(rate.Every(duration), 1)
		}
	}

	if eventService != nil {
		if err := eventService.Subscribe(interfaces.EventMatchingJobUpdate, h.handleJobUpdate); err != nil {
			logger.Error().Err(err).Msg("Failed to subscribe websocket hub to job updates")
		}
	}

	logger.Info().
		Str("server_instance_id", h.serverInstanceID).
		Int("throttled_events", len(h.throttlers)).
		Msg("WebSocket hub initialized")
	return h
}

// HandleWebSocket serves the global log/status stream at /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.register(conn, "")
	defer h.unregister(conn, "")

	h.sendTo(conn, WSMessage{
		Type: "status",
		Payload: map[string]interface{}{
			"server_instance_id": h.serverInstanceID,
			"connected_at":       time.Now().UTC().Format(time.RFC3339),
		},
	})

	h.readLoop(conn)
}

// HandleJobSocket serves the per-job event stream at /ws/matching-jobs/{id}.
// A malformed job uuid closes with 4001; a hub without an event bus closes
// with 4000.
func (h *WebSocketHandler) HandleJobSocket(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/ws/matching-jobs/")
	jobID = strings.Trim(jobID, "/")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	if _, err := uuid.Parse(jobID); err != nil {
		h.closeWith(conn, CloseInvalidJobID, "invalid job id")
		return
	}
	if h.eventService == nil {
		h.closeWith(conn, CloseHubUnavailable, "event hub unavailable")
		return
	}

	group := matching.GroupName(jobID)
	h.register(conn, group)
	defer h.unregister(conn, group)

	h.logger.Debug().
		Str("job_id", jobID).
		Str("group", group).
		Msg("Job socket connected")

	h.readLoop(conn)
}

// handleJobUpdate forwards a persisted job update to its group
func (h *WebSocketHandler) handleJobUpdate(ctx context.Context, event interfaces.Event) error {
	update, ok := event.Payload.(*models.MatchingJobUpdate)
	if !ok {
		return nil
	}

	if len(h.allowedEvents) > 0 && !h.allowedEvents[update.EventType] {
		return nil
	}
	if limiter, ok := h.throttlers[update.EventType]; ok && !limiter.Allow() {
		return nil
	}

	h.broadcastToGroup(matching.GroupName(update.JobID), WSMessage{
		Type:    update.EventType,
		Payload: update,
	})
	return nil
}

// BroadcastLog streams a log line to all global clients
func (h *WebSocketHandler) BroadcastLog(entry LogEntry) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.global))
	for conn := range h.global {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return
	}
	msg := WSMessage{Type: "log_entry", Payload: entry}
	for _, conn := range conns {
		h.sendTo(conn, msg)
	}
	// No logging here: a log line per broadcast would feed back into the stream
}

// GroupClientCount reports connected clients for a job, used by status
func (h *WebSocketHandler) GroupClientCount(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[matching.GroupName(jobID)])
}

func (h *WebSocketHandler) broadcastToGroup(group string, msg WSMessage) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.groups[group]))
	for conn := range h.groups[group] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		h.sendTo(conn, msg)
	}
}

func (h *WebSocketHandler) sendTo(conn *websocket.Conn, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal websocket message")
		return
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()
	if mutex == nil {
		return
	}

	mutex.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	mutex.Unlock()
	if err != nil {
		h.logger.Debug().Err(err).Msg("Failed to write websocket message")
	}
}

func (h *WebSocketHandler) register(conn *websocket.Conn, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clientMutex[conn] = &sync.Mutex{}
	if group == "" {
		h.global[conn] = true
		return
	}
	if h.groups[group] == nil {
		h.groups[group] = make(map[*websocket.Conn]bool)
	}
	h.groups[group][conn] = true
}

func (h *WebSocketHandler) unregister(conn *websocket.Conn, group string) {
	h.mu.Lock()
	if group == "" {
		delete(h.global, conn)
	} else if members, ok := h.groups[group]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
	delete(h.clientMutex, conn)
	h.mu.Unlock()

	conn.Close()
}

// readLoop discards inbound frames until the peer goes away
func (h *WebSocketHandler) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}
	}
}

func (h *WebSocketHandler) closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		h.logger.Debug().Err(err).Int("code", code).Msg("Failed to send close frame")
	}
	conn.Close()
}
