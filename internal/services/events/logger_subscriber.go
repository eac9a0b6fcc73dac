package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
)

// NewLoggerSubscriber creates an event handler that logs all events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		switch payload := event.Payload.(type) {
		case *models.MatchingJobUpdate:
			logEvent = logEvent.
				Str("job_id", payload.JobID).
				Str("update_type", payload.EventType)
			if payload.RunID != "" {
				logEvent = logEvent.Str("run_id", payload.RunID)
			}
		case map[string]interface{}:
			if id, ok := payload["document_id"].(string); ok {
				logEvent = logEvent.Str("document_id", id)
			}
			if id, ok := payload["entity_id"].(string); ok {
				logEvent = logEvent.Str("entity_id", id)
			}
		}

		logEvent.Msg("Event published")
		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := []interfaces.EventType{
		interfaces.EventMatchingJobUpdate,
		interfaces.EventDocumentIngested,
	}

	for _, eventType := range eventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Info().
		Int("event_type_count", len(eventTypes)).
		Msg("Logger subscribed to all event types")

	return nil
}
