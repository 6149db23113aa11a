// Package memory provides an in-process queue fabric for local
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/pagescope/pagescope/internal/analysis"
)

// Broker holds bounded in-memory topics. It approximates the fabric's
// at-least-once contract closely enough for tests: acks remove the
// message, nacks divert it to a per-topic dead-letter list instead of
// requeueing.
type Broker struct {
	mu     sync.Mutex
	depth  int
	topics map[string]chan []byte
	dead   map[string][][]byte
}

// NewBroker constructs a broker whose topics hold up to depth messages.
func NewBroker(depth int) *Broker {
	if depth <= 0 {
		depth = 64
	}
	return &Broker{
		depth:  depth,
		topics: make(map[string]chan []byte),
		dead:   make(map[string][][]byte),
	}
}

func (b *Broker) topic(name string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.topics[name]
	if !ok {
		ch = make(chan []byte, b.depth)
		b.topics[name] = ch
	}
	return ch
}

func (b *Broker) deadLetter(topic string, body []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dead[topic] = append(b.dead[topic], body)
}

// DeadLetters returns the messages nacked on a topic, in arrival order.
func (b *Broker) DeadLetters(topic string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.dead[topic]))
	copy(out, b.dead[topic])
	return out
}

// Publisher returns a publisher bound to one topic.
func (b *Broker) Publisher(topic string) *Publisher {
	return &Publisher{broker: b, topic: topic}
}

// Consumer returns a consumer bound to one topic with the given
// prefetch (concurrent handler) bound.
func (b *Broker) Consumer(topic string, prefetch int) *Consumer {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &Consumer{broker: b, topic: topic, prefetch: prefetch}
}

// Publisher pushes messages into a broker topic.
type Publisher struct {
	broker *Broker
	topic  string
}

// Publish enqueues a copy of body or returns if the context ends.
func (p *Publisher) Publish(ctx context.Context, body []byte) error {
	msg := make([]byte, len(body))
	copy(msg, body)
	select {
	case <-ctx.Done():
		return fmt.Errorf("publish canceled: %w", ctx.Err())
	case p.broker.topic(p.topic) <- msg:
		return nil
	}
}

// Close is a no-op for the in-memory publisher.
func (p *Publisher) Close() error { return nil }

// Consumer dispatches topic messages across prefetch handler slots.
type Consumer struct {
	broker   *Broker
	topic    string
	prefetch int
}

// Consume blocks until the context ends, running up to prefetch
// handlers concurrently. Handler errors dead-letter the message.
func (c *Consumer) Consume(ctx context.Context, handler analysis.MessageHandler) error {
	ch := c.broker.topic(c.topic)
	var wg sync.WaitGroup
	for i := 0; i < c.prefetch; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case body := <-ch:
					if err := handler(ctx, body); err != nil {
						c.broker.deadLetter(c.topic, body)
					}
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

// Close is a no-op for the in-memory consumer.
func (c *Consumer) Close() error { return nil }
