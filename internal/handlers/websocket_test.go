package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/common"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
	"github.com/ternarybob/comparo/internal/services/events"
)

func dialJobSocket(t *testing.T, server *httptest.Server, jobID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/matching-jobs/" + jobID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial job socket: %v", err)
	}
	return conn
}

func newJobSocketServer(handler *WebSocketHandler) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/matching-jobs/", handler.HandleJobSocket)
	return httptest.NewServer(mux)
}

func readCloseCode(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("Expected the server to close the connection")
	}
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("Expected a close error, got %v", err)
	}
	return closeErr.Code
}

func TestJobSocketRejectsMalformedJobID(t *testing.T) {
	handler := NewWebSocketHandler(events.NewService(arbor.NewLogger()), arbor.NewLogger(), &common.WebSocketConfig{})
	server := newJobSocketServer(handler)
	defer server.Close()

	conn := dialJobSocket(t, server, "not-a-uuid")
	defer conn.Close()

	if code := readCloseCode(t, conn); code != CloseInvalidJobID {
		t.Errorf("Expected close code %d, got %d", CloseInvalidJobID, code)
	}
}

func TestJobSocketClosesWithoutEventBus(t *testing.T) {
	handler := NewWebSocketHandler(nil, arbor.NewLogger(), &common.WebSocketConfig{})
	server := newJobSocketServer(handler)
	defer server.Close()

	conn := dialJobSocket(t, server, uuid.New().String())
	defer conn.Close()

	if code := readCloseCode(t, conn); code != CloseHubUnavailable {
		t.Errorf("Expected close code %d, got %d", CloseHubUnavailable, code)
	}
}

func TestJobSocketReceivesGroupEvents(t *testing.T) {
	bus := events.NewService(arbor.NewLogger())
	handler := NewWebSocketHandler(bus, arbor.NewLogger(), &common.WebSocketConfig{})
	server := newJobSocketServer(handler)
	defer server.Close()

	jobID := uuid.New().String()
	conn := dialJobSocket(t, server, jobID)
	defer conn.Close()

	// The subscription happens in the connection handler goroutine
	deadline := time.Now().Add(2 * time.Second)
	for handler.GroupClientCount(jobID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Client never joined the job group")
		}
		time.Sleep(10 * time.Millisecond)
	}

	update := models.NewMatchingJobUpdate(jobID, "", "matching.job.status", map[string]interface{}{"status": "running"})
	if err := bus.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventMatchingJobUpdate,
		Payload: update,
	}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read broadcast frame: %v", err)
	}
	if msg.Type != "matching.job.status" {
		t.Errorf("Expected a status frame, got %q", msg.Type)
	}
}

func TestJobSocketDoesNotLeakAcrossGroups(t *testing.T) {
	bus := events.NewService(arbor.NewLogger())
	handler := NewWebSocketHandler(bus, arbor.NewLogger(), &common.WebSocketConfig{})
	server := newJobSocketServer(handler)
	defer server.Close()

	jobA := uuid.New().String()
	jobB := uuid.New().String()
	conn := dialJobSocket(t, server, jobA)
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for handler.GroupClientCount(jobA) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Client never joined the job group")
		}
		time.Sleep(10 * time.Millisecond)
	}

	update := models.NewMatchingJobUpdate(jobB, "", "matching.job.status", map[string]interface{}{"status": "running"})
	bus.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventMatchingJobUpdate,
		Payload: update,
	})

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("Received a frame for another job's group")
	}
}
