// Package kafka announces committed sales on a Kafka topic for receipt
// printers and document storage.
package kafka

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/jewellery-pos/internal/domain/receipt"
	"github.com/xenking/jewellery-pos/internal/domain/sale"
	"github.com/xenking/jewellery-pos/internal/wire"
)

// EventSaleCommitted is the event_type header of every published message.
const EventSaleCommitted = "sale.committed"

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ receipt.Publisher = (*Publisher)(nil)

// Publisher writes one message per committed sale, keyed by sale id.
type Publisher struct {
	w       MessageWriter
	timeout time.Duration
}

// NewWriter returns a writer for topic on the given brokers.
func NewWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// NewPublisher returns a Publisher over w. Each publish is bounded by
// timeout.
func NewPublisher(w MessageWriter, timeout time.Duration) *Publisher {
	return &Publisher{w: w, timeout: timeout}
}

// Publish sends s to the topic.
func (p *Publisher) Publish(ctx context.Context, s *sale.Committed) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	msg := kafka.Message{
		Key:   []byte(s.ID),
		Value: wire.MarshalSale(s),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventSaleCommitted)},
			{Key: "register_id", Value: []byte(s.RegisterID)},
		},
		Time: s.CreatedAt,
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "publish sale %s", s.ID)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}
