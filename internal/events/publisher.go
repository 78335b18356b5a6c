package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"
)

// Lifecycle event types emitted by the orchestration handlers.
const (
	TypeTransactionReceived  = "transaction_received"
	TypePayerResolved        = "payer_resolved"
	TypeQuoteIssued          = "quote_issued"
	TypeFinancialRequestSent = "financial_request_sent"
	TypeTransferCommitted    = "transfer_committed"
	TypeTransferAborted      = "transfer_aborted"
	TypeTransactionCompleted = "transaction_completed"
	TypeTransactionAborted   = "transaction_aborted"
)

var errProducerNotInitialised = errors.New("events: producer not initialised")

// SyncProducer captures the producer behaviour the publisher relies on.
type SyncProducer interface {
	PublishSync(topic string, key, payload []byte) error
}

// Event is the envelope written to the audit topic, keyed by correlation id
// so events for one transaction stay ordered within a partition.
type Event struct {
	Type          string    `json:"type"`
	CorrelationID string    `json:"correlationId"`
	OccurredAt    time.Time `json:"occurredAt"`
	Payload       any       `json:"payload,omitempty"`
}

// Publisher emits lifecycle events to a single audit topic.
type Publisher struct {
	producer SyncProducer
	topic    string
	logger   zerolog.Logger
	now      func() time.Time
}

// NewPublisher constructs a publisher over the supplied producer.
func NewPublisher(producer SyncProducer, topic string, logger zerolog.Logger) *Publisher {
	if producer == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Publisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
		now:      time.Now,
	}
}

// Emit marshals and publishes one lifecycle event.
func (p *Publisher) Emit(_ context.Context, eventType, correlationID string, payload any) error {
	if p == nil || p.producer == nil {
		return errProducerNotInitialised
	}

	event := Event{
		Type:          eventType,
		CorrelationID: correlationID,
		OccurredAt:    p.now(),
		Payload:       payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal event: %w", err)
	}

	if err := p.producer.PublishSync(p.topic, []byte(correlationID), data); err != nil {
		return err
	}

	p.logger.Debug().
		Str("event_type", eventType).
		Str("correlation_id", correlationID).
		Msg("lifecycle event emitted")
	return nil
}
