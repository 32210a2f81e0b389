package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricNamespace = "kafka"

var (
	consumerLabels = []string{"topic", "consumer_group"}
	producerLabels = []string{"topic"}
)

func consumerCounter(name, help string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricNamespace,
		Subsystem: "consumer",
		Name:      name,
		Help:      help,
	}, consumerLabels)
}

func producerCounter(name, help string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricNamespace,
		Subsystem: "producer",
		Name:      name,
		Help:      help,
	}, producerLabels)
}

var (
	ConsumerMessagesReceived  = consumerCounter("messages_received_total", "Messages fetched from the broker.")
	ConsumerMessagesProcessed = consumerCounter("messages_processed_total", "Messages handled successfully.")
	ConsumerMessagesFailed    = consumerCounter("messages_failed_total", "Messages that failed every handler attempt.")
	ConsumerDLQPublished      = consumerCounter("dlq_published_total", "Messages forwarded to a dead-letter topic.")

	// Processing includes handler retries, so the buckets reach past a
	// full reindex.
	ConsumerProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricNamespace,
		Subsystem: "consumer",
		Name:      "processing_duration_seconds",
		Help:      "Time spent handling one message, retries included.",
		Buckets:   []float64{.05, .1, .5, 1, 5, 15, 30, 60, 120, 300},
	}, consumerLabels)

	// Keyed by event type: the idempotency guard wraps the handler and never
	// sees the topic.
	ConsumerMessagesDuplicate = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricNamespace,
		Subsystem: "consumer",
		Name:      "messages_duplicate_total",
		Help:      "Redelivered events skipped by the idempotency guard.",
	}, []string{"event_type"})

	ProducerMessagesPublished = producerCounter("messages_published_total", "Events written to the broker.")
	ProducerPublishErrors     = producerCounter("publish_errors_total", "Failed event writes.")

	ProducerPublishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricNamespace,
		Subsystem: "producer",
		Name:      "publish_duration_seconds",
		Help:      "Time spent writing one event.",
		Buckets:   prometheus.DefBuckets,
	}, producerLabels)
)
