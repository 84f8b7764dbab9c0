package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

func TestProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{
		orderEvent(t, uuid.New(), enums.EventOrderCreated, 0),
		orderEvent(t, uuid.New(), enums.EventOrderCreated, 0),
	}}
	topics := &fakeTopics{errs: []error{errors.New("transient"), nil}}
	service := newTestService(t, repo, topics, &fakeRegistry{topic: "orders-topic"}, &fakeDLQRepo{}, nil)

	seen, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if seen != 2 {
		t.Fatalf("expected 2 rows seen, got %d", seen)
	}
	if len(repo.failed) != 1 || repo.failed[0] != repo.events[0].ID {
		t.Fatalf("unexpected failed rows: %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != repo.events[1].ID {
		t.Fatalf("unexpected published rows: %v", repo.published)
	}
}

func TestProcessBatchHoldsLaterEventsForFailedAggregate(t *testing.T) {
	orderID := uuid.New()
	other := uuid.New()
	repo := &fakeRepo{events: []models.OutboxEvent{
		orderEvent(t, orderID, enums.EventOrderCreated, 0),
		orderEvent(t, orderID, enums.EventOrderPaid, 0),
		orderEvent(t, other, enums.EventOrderCreated, 0),
	}}
	topics := &fakeTopics{errs: []error{errors.New("unavailable")}}
	service := newTestService(t, repo, topics, &fakeRegistry{topic: "orders-topic"}, &fakeDLQRepo{}, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(topics.sent) != 2 {
		t.Fatalf("expected 2 publish attempts, got %d", len(topics.sent))
	}
	if len(repo.failed) != 1 || repo.failed[0] != repo.events[0].ID {
		t.Fatalf("expected only the first order event marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != repo.events[2].ID {
		t.Fatalf("expected the unrelated order published, got %v", repo.published)
	}
}

func TestPublishSetsOrderingKeyAndAttributes(t *testing.T) {
	orderID := uuid.New()
	event := orderEvent(t, orderID, enums.EventOrderPaid, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	topics := &fakeTopics{}
	service := newTestService(t, repo, topics, &fakeRegistry{topic: "orders-topic"}, &fakeDLQRepo{}, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(topics.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(topics.sent))
	}
	sent := topics.sent[0]
	if sent.topic != "orders-topic" {
		t.Fatalf("unexpected topic %q", sent.topic)
	}
	if sent.msg.OrderingKey != "order:"+orderID.String() {
		t.Fatalf("unexpected ordering key %q", sent.msg.OrderingKey)
	}
	if got := sent.msg.Attributes["event_type"]; got != string(enums.EventOrderPaid) {
		t.Fatalf("unexpected event_type attribute %q", got)
	}
	if got := sent.msg.Attributes["aggregate_id"]; got != orderID.String() {
		t.Fatalf("unexpected aggregate_id attribute %q", got)
	}
	if got := sent.msg.Attributes["schema_version"]; got != "1" {
		t.Fatalf("unexpected schema_version attribute %q", got)
	}
	if !bytes.Equal(sent.msg.Data, event.Payload) {
		t.Fatalf("message data should be the stored envelope")
	}
}

func TestProcessBatchWritesDLQOnNonRetryable(t *testing.T) {
	event := orderEvent(t, uuid.New(), enums.EventOrderCreated, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	reg := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, &fakeTopics{}, reg, dlqRepo, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if got := len(dlqRepo.entries); got != 1 {
		t.Fatalf("expected dlq entry, got %d", got)
	}
	entry := dlqRepo.entries[0]
	if entry.EventID != event.ID {
		t.Fatalf("dlq event_id mismatch: %s", entry.EventID)
	}
	if !bytes.Equal(entry.Payload, event.Payload) {
		t.Fatalf("dlq payload mismatch")
	}
	if entry.ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected error reason: %s", entry.ErrorReason)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected row marked terminal")
	}
}

func TestProcessBatchWritesDLQOnMaxAttempts(t *testing.T) {
	event := orderEvent(t, uuid.New(), enums.EventOrderCanceled, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	topics := &fakeTopics{errs: []error{errors.New("transient")}}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, topics, &fakeRegistry{topic: "orders-topic"}, dlqRepo, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if got := len(dlqRepo.entries); got != 1 {
		t.Fatalf("expected dlq entry, got %d", got)
	}
	if dlqRepo.entries[0].ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected error reason: %s", dlqRepo.entries[0].ErrorReason)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("terminal rows should not be marked failed")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	topics := &fakeTopics{}
	service := newTestService(t, &fakeRepo{}, topics, &fakeRegistry{topic: "orders-topic"}, &fakeDLQRepo{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := service.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if !topics.stopped {
		t.Fatalf("expected publishers stopped on exit")
	}
}

func newTestService(t *testing.T, repo outboxRepository, topics topicPublishers, reg registryResolver, dlq dlqRepository, outboxCfgOverride *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{
		BatchSize:      5,
		PollIntervalMS: 10,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	service, err := NewService(ServiceParams{
		Config:        &config.Config{Outbox: outboxCfg},
		Logger:        logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:            fakeDB{},
		PubSub:        fakeDB{},
		Topics:        topics,
		Repository:    repo,
		Registry:      reg,
		DLQRepository: dlq,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func orderEvent(tb testing.TB, orderID uuid.UUID, eventType enums.OutboxEventType, attempts int) models.OutboxEvent {
	tb.Helper()
	data, err := json.Marshal(payloads.OrderCreatedEvent{OrderID: orderID})
	if err != nil {
		tb.Fatalf("marshal payload: %v", err)
	}
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       data,
	})
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       payload,
		AttemptCount:  attempts,
	}
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type sentMessage struct {
	topic string
	msg   *gcppubsub.Message
}

type fakeTopics struct {
	errs    []error
	sent    []sentMessage
	stopped bool
}

func (f *fakeTopics) Publish(_ context.Context, topic string, msg *gcppubsub.Message) (string, error) {
	f.sent = append(f.sent, sentMessage{topic: topic, msg: msg})
	if len(f.errs) == 0 {
		return "msg-1", nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return "", err
}

func (f *fakeTopics) Stop() { f.stopped = true }

type fakeRegistry struct {
	topic string
	err   error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, registry.NewNonRetryableError(err)
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			Topic:         f.topic,
		},
		Envelope: envelope,
	}, nil
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
