package provider

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/zenGate-Global/palmyra-directory/domains/notifications/be/service"
)

// PubSubPublisher publishes email requests to a Pub/Sub topic.
type PubSubPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubPublisher publishes to topicID through client. The topic is not
// created; it is expected to exist.
func NewPubSubPublisher(client *pubsub.Client, topicID string) *PubSubPublisher {
	if client == nil {
		panic("pubsub client is required")
	}
	return &PubSubPublisher{topic: client.Topic(topicID)}
}

// Publish waits for the server to accept the message and returns its id.
func (p *PubSubPublisher) Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error) {
	res := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attributes})
	id, err := res.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish to topic %s: %w", p.topic.ID(), err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *PubSubPublisher) Stop() {
	p.topic.Stop()
}

var _ service.Publisher = (*PubSubPublisher)(nil)
