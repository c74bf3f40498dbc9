// Package notify publishes enrollment lifecycle outcomes to the messaging
// provider. Delivery is best-effort: a broker outage is logged and never
// changes a session's outcome.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/presentio/presentio/internal/config"
	"github.com/presentio/presentio/internal/domain/models"
	"github.com/presentio/presentio/internal/domain/service"
	"github.com/presentio/presentio/pkg/logger"
)

// KafkaNotifier writes terminal-session events to a kafka topic, keyed by
// tenant so one tenant's events stay ordered within a partition.
type KafkaNotifier struct {
	writer *kafka.Writer
	log    logger.Logger
}

// NewKafkaNotifier creates the notifier.
func NewKafkaNotifier(cfg *config.KafkaConfig, log logger.Logger) *KafkaNotifier {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 100 * time.Millisecond,
	}
	return &KafkaNotifier{writer: writer, log: log.WithComponent("kafka_notifier")}
}

// SessionFinished implements service.EnrollmentNotifier.
func (n *KafkaNotifier) SessionFinished(ctx context.Context, event models.ProgressEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		n.log.Error(ctx, "failed to marshal session event", err,
			logger.String("session_id", event.SessionID.String()),
		)
		return
	}

	msg := kafka.Message{
		Key:   []byte(event.TenantID.String()),
		Value: payload,
		Time:  time.Now(),
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		n.log.Error(ctx, "failed to publish session event", err,
			logger.String("session_id", event.SessionID.String()),
			logger.String("type", string(event.Type)),
		)
		return
	}

	n.log.Debug(ctx, "session event published",
		logger.String("session_id", event.SessionID.String()),
		logger.String("type", string(event.Type)),
	)
}

// Close flushes and closes the writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// NoopNotifier discards events. Used when kafka is disabled.
type NoopNotifier struct{}

// NewNoopNotifier creates a notifier that does nothing.
func NewNoopNotifier() service.EnrollmentNotifier { return &NoopNotifier{} }

// SessionFinished implements service.EnrollmentNotifier.
func (n *NoopNotifier) SessionFinished(context.Context, models.ProgressEvent) {}
