// Package pubsub implements the queue fabric on Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/pagescope/pagescope/internal/analysis"
)

// Publisher implements analysis.Publisher for one Pub/Sub topic.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPublisher creates a Pub/Sub client and verifies the topic exists.
// It authenticates using Application Default Credentials. A missing
// topic or unreachable fabric is a startup error, not a runtime one.
func NewPublisher(ctx context.Context, projectID, topicID string) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	ok, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !ok {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}
	return &Publisher{client: client, topic: topic}, nil
}

// Publish sends one message and blocks until the fabric accepts it.
// Blocking on the publish result is what lets stage runners publish
// downstream before acknowledging upstream.
func (p *Publisher) Publish(ctx context.Context, body []byte) error {
	res := p.topic.Publish(ctx, &pubsub.Message{Data: body})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic.ID(), err)
	}
	return nil
}

// Close flushes pending publishes and closes the client.
func (p *Publisher) Close() error {
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

// Consumer implements analysis.Consumer over one Pub/Sub subscription.
type Consumer struct {
	client *pubsub.Client
	sub    *pubsub.Subscription
}

// NewConsumer creates a Pub/Sub client and verifies the subscription
// exists. Prefetch bounds concurrent in-flight deliveries via
// MaxOutstandingMessages.
func NewConsumer(ctx context.Context, projectID, subscriptionID string, prefetch int) (*Consumer, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	sub := client.Subscription(subscriptionID)
	ok, err := sub.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check pubsub subscription %q: %w", subscriptionID, err)
	}
	if !ok {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub subscription %q does not exist in project %q", subscriptionID, projectID)
	}
	if prefetch > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = prefetch
		sub.ReceiveSettings.NumGoroutines = 1
	}
	return &Consumer{client: client, sub: sub}, nil
}

// Consume blocks, dispatching deliveries to the handler until the
// context ends. A handler error nacks the message; redelivery limits
// and dead-lettering belong to the subscription's policy.
func (c *Consumer) Consume(ctx context.Context, handler analysis.MessageHandler) error {
	err := c.sub.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
		if herr := handler(msgCtx, msg.Data); herr != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("receive on %s: %w", c.sub.ID(), err)
	}
	return nil
}

// Close closes the underlying client connection.
func (c *Consumer) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
