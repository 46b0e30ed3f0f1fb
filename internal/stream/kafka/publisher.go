// Package kafka streams scanner events to a Kafka topic with segmentio/kafka-go.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// DefaultTopic receives opportunity and spread events when no topic is set.
const DefaultTopic = "triarb.opportunities"

var _ domain.Publisher = (*Publisher)(nil)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes keyed JSON payloads to one topic.
type Publisher struct {
	w     messageWriter
	topic string
}

// Config holds producer parameters.
type Config struct {
	Brokers []string
	Topic   string
}

// New creates a Publisher. The writer connects lazily on the first Publish.
func New(cfg Config) (*Publisher, error) {
	brokers := cleanBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{w: newWriter(brokers, topic), topic: topic}, nil
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 100 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

// Topic returns the destination topic.
func (p *Publisher) Topic() string { return p.topic }

// Publish writes one message. Messages with the same key land on the same
// partition, so events of one session stay ordered.
func (p *Publisher) Publish(ctx context.Context, key string, payload []byte) error {
	msg := kafka.Message{Key: []byte(key), Value: payload, Time: time.Now().UTC()}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: publish %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}

func cleanBrokers(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, b := range raw {
		for _, part := range strings.Split(b, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
