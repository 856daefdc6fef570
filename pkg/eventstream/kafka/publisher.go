// Package kafka provides an eventstream publisher backed by Apache Kafka.
// Events are JSON-encoded with the subject as the message key so one
// subject's progress stays ordered within a partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/spool/pkg/eventstream"
)

// Config holds connection settings for the Kafka publisher.
type Config struct {
	// Brokers is the list of bootstrap broker addresses.
	Brokers []string

	// Topic is the topic progress events are written to.
	Topic string
}

// Publisher implements eventstream.Publisher on a kafka-go writer.
type Publisher struct {
	writer *kafkago.Writer
}

// NewPublisher creates a Kafka-backed publisher.
func NewPublisher(config Config) *Publisher {
	return &Publisher{
		writer: &kafkago.Writer{
			Addr:     kafkago.TCP(config.Brokers...),
			Topic:    config.Topic,
			Balancer: &kafkago.Hash{},
		},
	}
}

// PublishProgress writes one progress event.
func (p *Publisher) PublishProgress(ctx context.Context, event *eventstream.HydrationProgressEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding progress event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(event.Subject),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("publishing progress event: %w", err)
	}

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
