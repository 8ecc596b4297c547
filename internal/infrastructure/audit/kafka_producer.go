// Package audit publishes loan audit events. Events always land in the
// database trail; Kafka is an optional second sink for downstream consumers.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/covenantwatch/internal/config"
	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/internal/domain/service"
	"github.com/turtacn/covenantwatch/pkg/errors"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

const (
	eventTypeHeader = "event-type"
	writeTimeout    = 5 * time.Second
	batchTimeout    = 10 * time.Millisecond
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer is a Kafka-backed implementation of the AuditService.
// Messages are keyed by loan id so a loan's events stay in one partition.
type KafkaProducer struct {
	writer     messageWriter
	signingKey string
	logger     logger.Logger
}

var _ service.AuditService = (*KafkaProducer)(nil)

// NewKafkaProducer creates a new KafkaProducer.
func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.ErrInvalidRequest("kafka brokers and topic are required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: batchTimeout,
	}
	return newKafkaProducer(writer, cfg.SigningKey, log), nil
}

func newKafkaProducer(w messageWriter, signingKey string, log logger.Logger) *KafkaProducer {
	return &KafkaProducer{
		writer:     w,
		signingKey: signingKey,
		logger:     log.WithComponent("KafkaProducer"),
	}
}

// LogEvent sends an audit event to the Kafka topic.
func (p *KafkaProducer) LogEvent(ctx context.Context, event models.AuditEvent) error {
	msg, err := p.message(event)
	if err != nil {
		p.logger.Error(ctx, "failed to marshal audit event", err)
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error(ctx, "failed to write message to Kafka", err,
			logger.String("loan_id", event.LoanID),
			logger.String("event_type", string(event.EventType)),
		)
		return errors.WrapError(err, errors.ErrCodeServiceUnavailable, "audit publish failed")
	}
	return nil
}

func (p *KafkaProducer) message(event models.AuditEvent) (kafka.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	msg := kafka.Message{
		Key:   []byte(event.LoanID),
		Value: payload,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: eventTypeHeader, Value: []byte(event.EventType)},
		},
	}
	if p.signingKey != "" {
		msg.Headers = append(msg.Headers, kafka.Header{
			Key:   SignatureHeader,
			Value: []byte(SignPayload(payload, p.signingKey)),
		})
	}
	return msg, nil
}

// Close closes the underlying Kafka writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
