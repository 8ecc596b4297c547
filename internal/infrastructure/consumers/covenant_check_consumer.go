// Package consumers contains Kafka consumers for background ingestion.
package consumers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/covenantwatch/internal/application/dto"
	"github.com/turtacn/covenantwatch/internal/config"
	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/errors"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

const (
	minRetryBackoff = 200 * time.Millisecond
	maxRetryBackoff = 30 * time.Second
)

// CheckRecorder records a covenant check. LoanAppService implements it.
type CheckRecorder interface {
	RecordCovenantCheck(ctx context.Context, loanID string, req *dto.RecordCovenantCheckRequest) (*models.CovenantCheck, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// covenantCheckMessage is the payload upstream monitoring publishes.
type covenantCheckMessage struct {
	LoanID string `json:"loan_id"`
	dto.RecordCovenantCheckRequest
}

// CovenantCheckConsumer ingests covenant measurements from Kafka and records
// them on the loan twin. Malformed or rejected messages are committed and
// dropped; storage failures are retried until they succeed or the consumer
// stops, so a restart redelivers the message.
// CovenantCheckConsumer 从 Kafka 消费契约检查结果并写入贷款孪生。
type CovenantCheckConsumer struct {
	reader   messageReader
	recorder CheckRecorder
	actor    string
	logger   logger.Logger
	backoff  time.Duration
}

// NewCovenantCheckConsumer creates a consumer for cfg.ChecksTopic. All
// instances share cfg.ConsumerGroup.
func NewCovenantCheckConsumer(cfg config.KafkaConfig, recorder CheckRecorder, log logger.Logger) *CovenantCheckConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.ChecksTopic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
	})
	return newCovenantCheckConsumer(reader, recorder, "kafka:"+cfg.ChecksTopic, log)
}

func newCovenantCheckConsumer(r messageReader, recorder CheckRecorder, actor string, log logger.Logger) *CovenantCheckConsumer {
	return &CovenantCheckConsumer{
		reader:   r,
		recorder: recorder,
		actor:    actor,
		logger:   log.WithComponent("CovenantCheckConsumer"),
		backoff:  minRetryBackoff,
	}
}

// Run consumes until ctx is cancelled.
func (c *CovenantCheckConsumer) Run(ctx context.Context) error {
	c.logger.Info(ctx, "starting covenant check consumer", logger.String("actor", c.actor))
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info(context.Background(), "stopping covenant check consumer")
				return nil
			}
			c.logger.Error(ctx, "failed to fetch message from kafka", err)
			if !c.sleep(ctx, c.backoff) {
				return nil
			}
			continue
		}

		if !c.process(ctx, msg) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error(ctx, "failed to commit kafka message", err, logger.Int64("offset", msg.Offset))
		}
	}
}

// Close releases the reader.
func (c *CovenantCheckConsumer) Close() error {
	return c.reader.Close()
}

// process handles one message. It returns false only when ctx ended while a
// retryable failure was pending; the message is then left uncommitted.
func (c *CovenantCheckConsumer) process(ctx context.Context, msg kafka.Message) bool {
	var in covenantCheckMessage
	if err := json.Unmarshal(msg.Value, &in); err != nil || in.LoanID == "" {
		// Poison pill: commit so the partition keeps moving.
		c.logger.Warn(ctx, "dropping malformed covenant check message",
			logger.Int64("offset", msg.Offset), logger.String("payload", truncate(msg.Value, 256)))
		return true
	}

	ctx = context.WithValue(ctx, constants.ContextKeyActor, c.actor)
	backoff := c.backoff
	for {
		check, err := c.recorder.RecordCovenantCheck(ctx, in.LoanID, &in.RecordCovenantCheckRequest)
		if err == nil {
			c.logger.Debug(ctx, "covenant check ingested",
				logger.String("loan_id", in.LoanID), logger.String("check_id", check.ID))
			return true
		}
		if appErr, ok := errors.AsAppError(err); ok && appErr.HTTPStatus() < 500 {
			c.logger.Warn(ctx, "covenant check rejected, dropping message",
				logger.String("loan_id", in.LoanID), logger.String("covenant_id", in.CovenantID), logger.Err(err))
			return true
		}

		c.logger.Error(ctx, "failed to record covenant check, retrying", err,
			logger.String("loan_id", in.LoanID), logger.Duration("backoff", backoff))
		if !c.sleep(ctx, backoff) {
			return false
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}
}

func (c *CovenantCheckConsumer) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
