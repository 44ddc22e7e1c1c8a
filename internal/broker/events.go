package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/segmentio/kafka-go"

	"pos-service/internal/models"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishSaleCreated publishes a SaleCreated event
func (ep *EventPublisher) PublishSaleCreated(ctx context.Context, event *models.SaleCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("sale-%s", event.SaleID), event)
}

// PublishReturnProcessed publishes a ReturnProcessed event
func (ep *EventPublisher) PublishReturnProcessed(ctx context.Context, event *models.ReturnProcessedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("sale-%s", event.SaleID), event)
}

// PublishReturnRecovered publishes a ReturnRecovered event
func (ep *EventPublisher) PublishReturnRecovered(ctx context.Context, event *models.ReturnRecoveredEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("sale-%s", event.SaleID), event)
}

// EventHandler routes incoming events to registered handlers
type EventHandler struct {
	onSaleCreated     func(context.Context, *models.SaleCreatedEvent) error
	onReturnProcessed func(context.Context, *models.ReturnProcessedEvent) error
	onReturnRecovered func(context.Context, *models.ReturnRecoveredEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnSaleCreated registers a handler for SaleCreated events
func (eh *EventHandler) OnSaleCreated(handler func(context.Context, *models.SaleCreatedEvent) error) {
	eh.onSaleCreated = handler
}

// OnReturnProcessed registers a handler for ReturnProcessed events
func (eh *EventHandler) OnReturnProcessed(handler func(context.Context, *models.ReturnProcessedEvent) error) {
	eh.onReturnProcessed = handler
}

// OnReturnRecovered registers a handler for ReturnRecovered events
func (eh *EventHandler) OnReturnRecovered(handler func(context.Context, *models.ReturnRecoveredEvent) error) {
	eh.onReturnRecovered = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	log.Printf("Handling event: type=%s, id=%s", baseEvent.EventType, baseEvent.EventID)

	switch baseEvent.EventType {
	case models.EventTypeSaleCreated:
		if eh.onSaleCreated != nil {
			var event models.SaleCreatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal SaleCreated event: %w", err)
			}
			return eh.onSaleCreated(ctx, &event)
		}

	case models.EventTypeReturnProcessed:
		if eh.onReturnProcessed != nil {
			var event models.ReturnProcessedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ReturnProcessed event: %w", err)
			}
			return eh.onReturnProcessed(ctx, &event)
		}

	case models.EventTypeReturnRecovered:
		if eh.onReturnRecovered != nil {
			var event models.ReturnRecoveredEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ReturnRecovered event: %w", err)
			}
			return eh.onReturnRecovered(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
