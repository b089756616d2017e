package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSubNotifier publishes notifications as JSON messages to a Google Pub/Sub topic.
type PubSubNotifier struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubNotifier creates a Pub/Sub client for projectID.
func NewPubSubNotifier(ctx context.Context, projectID, topic string) (*PubSubNotifier, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Pub/Sub client: %w", err)
	}
	return &PubSubNotifier{client: client, topic: client.Topic(topic)}, nil
}

func (p *PubSubNotifier) NotifyPayment(ctx context.Context, n PaymentNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal payment notification: %w", err)
	}
	if _, err := p.Publish(ctx, payload); err != nil {
		return err
	}
	return nil
}

// Publish sends the payload to the notifier's topic and returns the message ID.
func (p *PubSubNotifier) Publish(ctx context.Context, payload []byte) (string, error) {
	result := p.topic.Publish(ctx, &pubsub.Message{Data: payload})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to publish message to topic %s: %w", p.topic.ID(), err)
	}
	return id, nil
}

// Close flushes pending messages and releases the client.
func (p *PubSubNotifier) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
