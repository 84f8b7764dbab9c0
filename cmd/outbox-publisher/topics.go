package main

import (
	"context"
	"fmt"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

type topicPublishers interface {
	Publish(ctx context.Context, topic string, msg *gcppubsub.Message) (string, error)
	Stop()
}

type publisherSource interface {
	Publisher(name string) *gcppubsub.Publisher
}

// pubsubTopics keeps one ordered publisher per topic for the life of the process.
type pubsubTopics struct {
	source publisherSource

	mu         sync.Mutex
	publishers map[string]*gcppubsub.Publisher
}

func newPubSubTopics(source publisherSource) *pubsubTopics {
	return &pubsubTopics{source: source, publishers: map[string]*gcppubsub.Publisher{}}
}

func (t *pubsubTopics) publisher(topic string) *gcppubsub.Publisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.publishers[topic]; ok {
		return p
	}
	p := t.source.Publisher(topic)
	if p == nil {
		return nil
	}
	p.EnableMessageOrdering = true
	t.publishers[topic] = p
	return p
}

func (t *pubsubTopics) Publish(ctx context.Context, topic string, msg *gcppubsub.Message) (string, error) {
	p := t.publisher(topic)
	if p == nil {
		return "", registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}
	id, err := p.Publish(ctx, msg).Get(ctx)
	if err != nil && msg.OrderingKey != "" {
		// a failed ordered publish pauses the key until resumed
		p.ResumePublish(msg.OrderingKey)
	}
	return id, err
}

func (t *pubsubTopics) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for topic, p := range t.publishers {
		p.Stop()
		delete(t.publishers, topic)
	}
}
