package handlers

import (
	"strings"

	plog "github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/levels"
	"github.com/ternarybob/arbor/models"
	"github.com/ternarybob/arbor/writers"

	"github.com/ternarybob/comparo/internal/common"
)

const (
	// Default buffer size for the websocket log queue
	defaultWebSocketBufferSize = 1000
)

// Patterns excluded by default so the stream does not feed itself: socket
// lifecycle, HTTP access lines and event bus chatter
var defaultExcludePatterns = []string{
	"WebSocket",
	"HTTP request",
	"HTTP response",
	"Publishing event",
}

// WebSocketWriter is an arbor writer that streams log lines to the global
// websocket clients. It drains the logger's "websocket" context channel and
// also satisfies writers.IWriter for direct attachment.
type WebSocketWriter struct {
	handler         *WebSocketHandler
	writer          writers.IChannelWriter
	config          models.WriterConfiguration
	minLevel        levels.LogLevel
	excludePatterns []string
	events          chan []models.LogEvent
	done            chan struct{}
}

// NewWebSocketWriter creates the websocket log writer, registers it on the
// logger's "websocket" channel and starts draining. Events are filtered by
// level and message pattern before broadcasting.
func NewWebSocketWriter(handler *WebSocketHandler, logger arbor.ILogger, wsConfig *common.WebSocketConfig) (*WebSocketWriter, error) {
	minLevel := levels.InfoLevel
	excludePatterns := defaultExcludePatterns
	if wsConfig != nil {
		minLevel = parseLogLevel(wsConfig.MinLevel)
		if len(wsConfig.ExcludePatterns) > 0 {
			excludePatterns = wsConfig.ExcludePatterns
		}
	}

	w := &WebSocketWriter{
		handler: handler,
		config: models.WriterConfiguration{
			Type:       models.LogWriterTypeConsole,
			TimeFormat: "15:04:05",
		},
		minLevel:        minLevel,
		excludePatterns: excludePatterns,
		events:          make(chan []models.LogEvent, defaultWebSocketBufferSize),
		done:            make(chan struct{}),
	}

	processor := func(entry models.LogEvent) error {
		w.broadcast(entry)
		return nil
	}

	cw, err := writers.NewChannelWriter(w.config, defaultWebSocketBufferSize, processor)
	if err != nil {
		return nil, err
	}
	cw.Start()
	w.writer = cw

	if logger != nil {
		logger.SetChannel("websocket", w.events)
		go w.drain()
	}

	return w, nil
}

// drain forwards batches from the logger channel until Close
func (w *WebSocketWriter) drain() {
	for {
		select {
		case batch := <-w.events:
			for _, entry := range batch {
				w.broadcast(entry)
			}
		case <-w.done:
			return
		}
	}
}

// broadcast applies the level and pattern filters and ships the entry to the
// global websocket clients
func (w *WebSocketWriter) broadcast(entry models.LogEvent) {
	arborLevel := plogToArborLevel(entry.Level)
	if arborLevel < w.minLevel {
		return
	}
	for _, pattern := range w.excludePatterns {
		if strings.Contains(entry.Message, pattern) {
			return
		}
	}

	w.handler.BroadcastLog(LogEntry{
		Timestamp: entry.Timestamp.Format("15:04:05"),
		Level:     levelName(arborLevel),
		Message:   entry.Message,
	})
}

// plogToArborLevel converts phuslu/log.Level to arbor levels.LogLevel
func plogToArborLevel(level plog.Level) levels.LogLevel {
	switch level {
	case plog.ErrorLevel:
		return levels.ErrorLevel
	case plog.WarnLevel:
		return levels.WarnLevel
	case plog.InfoLevel:
		return levels.InfoLevel
	case plog.DebugLevel:
		return levels.DebugLevel
	default:
		return levels.InfoLevel
	}
}

// parseLogLevel converts a config string to an arbor level
func parseLogLevel(level string) levels.LogLevel {
	switch strings.ToLower(level) {
	case "error":
		return levels.ErrorLevel
	case "warn", "warning":
		return levels.WarnLevel
	case "info":
		return levels.InfoLevel
	case "debug":
		return levels.DebugLevel
	default:
		return levels.InfoLevel
	}
}

// levelName maps arbor log levels to wire strings
func levelName(level levels.LogLevel) string {
	switch level {
	case levels.ErrorLevel:
		return "error"
	case levels.WarnLevel:
		return "warn"
	case levels.InfoLevel:
		return "info"
	case levels.DebugLevel:
		return "debug"
	default:
		return "info"
	}
}

// Write implements the IWriter interface, delegating to the channel writer
func (w *WebSocketWriter) Write(data []byte) (int, error) {
	return w.writer.Write(data)
}

// WithLevel updates the minimum log level and returns self
func (w *WebSocketWriter) WithLevel(level plog.Level) writers.IWriter {
	w.minLevel = plogToArborLevel(level)
	return w
}

// GetFilePath returns empty string (not file-based)
func (w *WebSocketWriter) GetFilePath() string {
	return ""
}

// Close performs graceful shutdown with buffer draining
func (w *WebSocketWriter) Close() error {
	close(w.done)
	return w.writer.Close()
}
