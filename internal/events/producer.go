// Package events publishes transaction lifecycle audit events to Kafka.
// The event stream is observational: publish failures are reported to the
// caller for logging but must never veto an orchestration pipeline.
package events

import (
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// Producer wraps a Sarama sync producer with the small surface the
// publisher needs.
type Producer struct {
	logger   zerolog.Logger
	client   sarama.Client
	producer sarama.SyncProducer
}

// NewProducer connects to the brokers and constructs a sync producer.
func NewProducer(brokers []string, logger zerolog.Logger) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("events: at least one broker is required")
	}

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1

	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("events: create kafka client: %w", err)
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("events: create sync producer: %w", err)
	}

	return &Producer{logger: logger, client: client, producer: producer}, nil
}

// PublishSync writes one message and waits for the broker acknowledgement.
func (p *Producer) PublishSync(topic string, key, payload []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("events: send message: %w", err)
	}

	p.logger.Debug().
		Str("topic", topic).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("event published")
	return nil
}

// Close releases the producer and the underlying client.
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		p.client.Close()
		return fmt.Errorf("events: close producer: %w", err)
	}
	if err := p.client.Close(); err != nil && !errors.Is(err, sarama.ErrClosedClient) {
		return fmt.Errorf("events: close client: %w", err)
	}
	return nil
}
