// Package registry maps outbox event types to their Pub/Sub topic and
// decodes stored envelopes before they leave the database.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// EventDescriptor routes one event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string

	decode func(data json.RawMessage, aggregateID uuid.UUID) (any, error)
}

// ResolvedEvent is an outbox row that passed validation.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks rows that can never be published as stored.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// route builds a descriptor whose payload decodes into T. ownerOf returns the
// aggregate the payload claims to belong to; it must match the row.
func route[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string, ownerOf func(*T) uuid.UUID) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		Topic:         topic,
		decode: func(data json.RawMessage, aggregateID uuid.UUID) (any, error) {
			payload := new(T)
			if err := json.Unmarshal(data, payload); err != nil {
				return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
			}
			if owner := ownerOf(payload); owner != aggregateID {
				return nil, fmt.Errorf("%s payload belongs to %s, row aggregate is %s", eventType, owner, aggregateID)
			}
			return payload, nil
		},
	}
}

// EventRegistry holds one descriptor per supported event type.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry routes order events to the orders topic and subscription
// events to the billing topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	orders, billing := cfg.OrdersTopic, cfg.BillingTopic
	if orders == "" || billing == "" {
		return nil, errors.New("orders and billing topics are required")
	}

	descriptors := []EventDescriptor{
		route(enums.EventOrderCreated, enums.AggregateOrder, orders,
			func(p *payloads.OrderCreatedEvent) uuid.UUID { return p.OrderID }),
		route(enums.EventOrderPaymentInitiated, enums.AggregateOrder, orders,
			func(p *payloads.OrderPaymentInitiatedEvent) uuid.UUID { return p.OrderID }),
		route(enums.EventOrderPaid, enums.AggregateOrder, orders,
			func(p *payloads.OrderPaidEvent) uuid.UUID { return p.OrderID }),
		route(enums.EventOrderPaidOversold, enums.AggregateOrder, orders,
			func(p *payloads.OrderPaidOversoldEvent) uuid.UUID { return p.OrderID }),
		route(enums.EventOrderCanceled, enums.AggregateOrder, orders,
			func(p *payloads.OrderCanceledEvent) uuid.UUID { return p.OrderID }),
		route(enums.EventSubscriptionUpdated, enums.AggregateSubscription, billing,
			func(p *payloads.SubscriptionUpdatedEvent) uuid.UUID { return p.SubscriptionID }),
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, d := range descriptors {
		reg.entries[d.EventType] = d
	}
	return reg, nil
}

func (r *EventRegistry) Lookup(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	d, ok := r.entries[eventType]
	return d, ok
}

// Resolve checks routing, envelope and payload. Every failure is
// non-retryable: the row will not change by waiting.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	resolved, err := r.resolve(event)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	return resolved, nil
}

func (r *EventRegistry) resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, fmt.Errorf("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, fmt.Errorf("aggregate mismatch: %s expects %s, got %s", event.EventType, desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, errors.New("missing aggregate_id")
	}

	envelope, _, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", event.EventType, err)
	}

	payload, err := desc.decode(envelope.Data, event.AggregateID)
	if err != nil {
		return nil, err
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
