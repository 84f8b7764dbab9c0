package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

type canceledData struct {
	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason"`
}

func TestEmitWritesEnvelopeInTransaction(t *testing.T) {
	conn := newOutboxDB(t)
	svc := NewService(NewRepository(conn), nil)
	fixed := time.Date(2026, 7, 4, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	orderID := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &ActorRef{UserID: orderID, Role: "customer"},
			Data:          canceledData{OrderID: orderID, Reason: "expired"},
		})
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row, "aggregate_id = ?", orderID).Error)
	require.Nil(t, row.PublishedAt)
	require.Zero(t, row.AttemptCount)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	require.Equal(t, 1, envelope.Version)
	require.True(t, envelope.OccurredAt.Equal(fixed))
	_, err = uuid.Parse(envelope.EventID)
	require.NoError(t, err)

	var data canceledData
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Equal(t, "expired", data.Reason)
}

func TestEmitRollsBackWithCaller(t *testing.T) {
	conn := newOutboxDB(t)
	svc := NewService(NewRepository(conn), nil)

	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          map[string]any{"item_count": 1},
		}); err != nil {
			return err
		}
		return errors.New("stock reservation failed")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestEmitValidatesEvent(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	valid := DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Data:          map[string]any{},
	}

	require.Error(t, svc.Emit(context.Background(), nil, valid), "nil tx")

	tx := &gorm.DB{}
	for name, mutate := range map[string]func(*DomainEvent){
		"event type":   func(e *DomainEvent) { e.EventType = "order_shipped" },
		"aggregate":    func(e *DomainEvent) { e.AggregateType = "cart" },
		"aggregate id": func(e *DomainEvent) { e.AggregateID = uuid.Nil },
		"data":         func(e *DomainEvent) { e.Data = nil },
	} {
		event := valid
		mutate(&event)
		require.Error(t, svc.Emit(context.Background(), tx, event), name)
	}
}
