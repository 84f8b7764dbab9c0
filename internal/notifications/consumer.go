package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const orderEmailConsumer = "order-emails"

type processedTracker interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (idempotency.Claim, error)
	Complete(ctx context.Context, consumer string, eventID uuid.UUID) error
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// ConsumerParams groups consumer dependencies.
type ConsumerParams struct {
	Subscription *pubsub.Subscriber
	Idempotency  *idempotency.Manager
	Sender       Sender
	Logger       *logger.Logger
	// Disabled acknowledges order events without sending email.
	Disabled bool
}

// Consumer emails buyers when their order is paid or canceled.
type Consumer struct {
	subscription *pubsub.Subscriber
	processed    processedTracker
	sender       Sender
	logg         *logger.Logger
	disabled     bool
}

// NewConsumer builds the order email consumer.
func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if params.Sender == nil && !params.Disabled {
		return nil, fmt.Errorf("email sender required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscription: params.Subscription,
		processed:    params.Idempotency,
		sender:       params.Sender,
		logg:         params.Logger,
		disabled:     params.Disabled,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Attributes, msg.Data).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, messageID string, attrs map[string]string, data []byte) processResult {
	eventType := enums.OutboxEventType(attrs["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	if eventType != enums.EventOrderPaid && eventType != enums.EventOrderCanceled {
		return processResult{ack: true}
	}
	if c.disabled {
		c.logg.Info(logCtx, "order emails disabled; skipping")
		return processResult{ack: true}
	}

	envelope, eventID, err := outbox.DecodeEnvelope(data)
	if err != nil {
		c.logg.Error(logCtx, "discarding malformed envelope", err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	claim, err := c.processed.Claim(ctx, orderEmailConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency claim failed", err)
		return processResult{nack: true}
	}
	switch claim {
	case idempotency.Done:
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	case idempotency.InFlight:
		c.logg.Warn(logCtx, "event held by another delivery")
		return processResult{nack: true}
	}

	email, err := buildEmail(eventType, envelope.Data)
	if err != nil {
		// a payload that cannot be decoded will never succeed
		c.logg.Error(logCtx, "failed to build email", err)
		_ = c.processed.Complete(ctx, orderEmailConsumer, eventID)
		return processResult{ack: true}
	}
	if err := c.sender.Send(ctx, email); err != nil {
		c.logg.Error(logCtx, "order email failed", err)
		if relErr := c.processed.Release(ctx, orderEmailConsumer, eventID); relErr != nil {
			c.logg.Warn(c.logg.WithField(logCtx, "error", relErr.Error()), "failed to release idempotency claim")
		}
		return processResult{nack: true}
	}
	if err := c.processed.Complete(ctx, orderEmailConsumer, eventID); err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "failed to record processed event")
	}
	c.logg.Info(logCtx, "order email sent")
	return processResult{ack: true}
}

func buildEmail(eventType enums.OutboxEventType, data json.RawMessage) (Email, error) {
	switch eventType {
	case enums.EventOrderPaid:
		var payload payloads.OrderPaidEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return Email{}, fmt.Errorf("decode order_paid: %w", err)
		}
		subject, body, err := render(paidSubject, paidBody, orderMail{
			BuyerName: payload.BuyerName,
			OrderID:   payload.OrderID.String(),
			Total:     payload.Total.StringFixed(2),
		})
		if err != nil {
			return Email{}, err
		}
		return Email{To: payload.BuyerEmail, Subject: subject, Text: body}, nil
	case enums.EventOrderCanceled:
		var payload payloads.OrderCanceledEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return Email{}, fmt.Errorf("decode order_canceled: %w", err)
		}
		subject, body, err := render(canceledSubject, canceledBody, orderMail{
			BuyerName: payload.BuyerName,
			OrderID:   payload.OrderID.String(),
			Reason:    payload.Reason,
		})
		if err != nil {
			return Email{}, err
		}
		return Email{To: payload.BuyerEmail, Subject: subject, Text: body}, nil
	}
	return Email{}, fmt.Errorf("unsupported event %s", eventType)
}
