package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// DLQTopicPrefix prefixes every dead-letter topic.
const DLQTopicPrefix = TopicPrefix + ".dlq"

// DLQTopic returns the dead-letter topic for originalTopic.
func DLQTopic(originalTopic string) string {
	return DLQTopicPrefix + "." + originalTopic
}

// DLQProducer republishes messages that exhausted their retries.
type DLQProducer struct {
	writer MessageWriter
	logger *slog.Logger
	now    func() time.Time
}

// NewDLQProducer writes one message per request so a dead letter is never
// held back behind a batch.
func NewDLQProducer(brokers []string, logger *slog.Logger) *DLQProducer {
	cfg := DefaultProducerConfig(brokers)
	cfg.BatchSize = 1
	w := cfg.writer()
	w.Balancer = &kafka.LeastBytes{}
	return NewDLQProducerWithWriter(w, logger)
}

func NewDLQProducerWithWriter(w MessageWriter, logger *slog.Logger) *DLQProducer {
	return &DLQProducer{writer: w, logger: logger, now: time.Now}
}

// Publish copies msg to its DLQ topic. The original headers are kept and
// dlq.* headers record where the message came from and why it failed.
func (d *DLQProducer) Publish(ctx context.Context, msg kafka.Message, cause error, consumerGroup string) error {
	letter := deadLetter(msg, cause, consumerGroup, d.now())

	if err := d.writer.WriteMessages(ctx, letter); err != nil {
		d.logger.ErrorContext(ctx, "failed to publish message to DLQ",
			slog.String("dlq_topic", letter.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("publish to DLQ %s: %w", letter.Topic, err)
	}

	ConsumerDLQPublished.WithLabelValues(msg.Topic, consumerGroup).Inc()
	d.logger.WarnContext(ctx, "message sent to DLQ",
		slog.String("dlq_topic", letter.Topic),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
		slog.String("consumer_group", consumerGroup),
	)
	return nil
}

func deadLetter(msg kafka.Message, cause error, consumerGroup string, failedAt time.Time) kafka.Message {
	headers := append(make([]kafka.Header, 0, len(msg.Headers)+6), msg.Headers...)
	add := func(key, value string) {
		headers = append(headers, kafka.Header{Key: "dlq." + key, Value: []byte(value)})
	}
	add("original_topic", msg.Topic)
	add("original_partition", strconv.Itoa(msg.Partition))
	add("original_offset", strconv.FormatInt(msg.Offset, 10))
	add("consumer_group", consumerGroup)
	add("failed_at", failedAt.UTC().Format(time.RFC3339))
	if cause != nil {
		add("error", cause.Error())
	}

	return kafka.Message{
		Topic:   DLQTopic(msg.Topic),
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	}
}

func (d *DLQProducer) Close() error {
	return d.writer.Close()
}
