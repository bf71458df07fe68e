// Package notify publishes the report of a finished warehouse batch so downstream jobs
// (dashboards refresh, data-quality review) can react to a new load.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	headerEventType  = "event_type"
	eventBatchReport = "rcm.warehouse.batch_report"
	defaultTimeout   = 10 * time.Second
)

var (
	// ErrNoBrokers is returned when a publisher is configured without brokers.
	ErrNoBrokers = errors.New("kafka publisher needs at least one broker")

	// ErrNoTopic is returned when a publisher is configured without a topic.
	ErrNoTopic = errors.New("kafka publisher needs a topic")
)

type (
	// MessageWriter is the part of *kafka.Writer the publisher uses.
	MessageWriter interface {
		WriteMessages(ctx context.Context, msgs ...kafka.Message) error
		Close() error
	}

	// KafkaPublisher writes one JSON message per batch, keyed by run id.
	KafkaPublisher struct {
		writer  MessageWriter
		topic   string
		timeout time.Duration
		logger  *slog.Logger
	}

	// KafkaOption configures a KafkaPublisher.
	KafkaOption func(*kafkaSettings)

	kafkaSettings struct {
		writer          MessageWriter
		timeout         time.Duration
		logger          *slog.Logger
		autoCreateTopic bool
	}
)

// WithMessageWriter replaces the kafka-go writer, for tests.
func WithMessageWriter(w MessageWriter) KafkaOption {
	return func(s *kafkaSettings) {
		s.writer = w
	}
}

// WithPublishTimeout bounds one publish call. Defaults to 10s.
func WithPublishTimeout(d time.Duration) KafkaOption {
	return func(s *kafkaSettings) {
		s.timeout = d
	}
}

// WithAutoCreateTopic lets the broker create a missing topic on first write.
func WithAutoCreateTopic() KafkaOption {
	return func(s *kafkaSettings) {
		s.autoCreateTopic = true
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) KafkaOption {
	return func(s *kafkaSettings) {
		s.logger = logger
	}
}

// NewKafkaPublisher returns a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, opts ...KafkaOption) (*KafkaPublisher, error) {
	settings := kafkaSettings{timeout: defaultTimeout, logger: slog.Default()}

	for _, opt := range opts {
		opt(&settings)
	}

	if topic == "" {
		return nil, ErrNoTopic
	}

	writer := settings.writer
	if writer == nil {
		if len(brokers) == 0 {
			return nil, ErrNoBrokers
		}

		writer = &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: settings.autoCreateTopic,
		}
	}

	return &KafkaPublisher{
		writer:  writer,
		topic:   topic,
		timeout: settings.timeout,
		logger:  settings.logger,
	}, nil
}

// Publish marshals report as JSON and writes it keyed by runID.
func (p *KafkaPublisher) Publish(ctx context.Context, runID string, report any) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal batch report: %w", err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)

		defer cancel()
	}

	msg := kafka.Message{
		Key:   []byte(runID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(eventBatchReport)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish batch report to %s: %w", p.topic, err)
	}

	p.logger.Info("published batch report",
		slog.String("topic", p.topic),
		slog.String("run_id", runID),
		slog.Int("bytes", len(payload)))

	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
