// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "interview_turn"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Recording metrics
	RecordingsTotal   prometheus.Counter
	RecordingsActive  prometheus.Gauge
	RecordingsSealed  *prometheus.CounterVec
	RecordingDuration prometheus.Histogram

	// Recognition metrics
	FragmentsReceived   *prometheus.CounterVec
	AudioBytesReceived  prometheus.Counter
	AudioFramesReceived prometheus.Counter
	RecognitionErrors   *prometheus.CounterVec

	// Diagram metrics
	Captures          *prometheus.CounterVec
	CaptureFailures   *prometheus.CounterVec
	EncodingFallbacks prometheus.Counter

	// Submission metrics
	Submissions       *prometheus.CounterVec
	SubmissionLatency prometheus.Histogram
	AudioFetches      *prometheus.CounterVec

	// Queue metrics
	QueueDepth    prometheus.Gauge
	QueueEnqueued prometheus.Counter
	QueueAcked    prometheus.Counter

	// Turn metrics
	Turns        *prometheus.CounterVec
	TurnDuration prometheus.Histogram

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// gRPC metrics
	GRPCCalls *prometheus.CounterVec

	// Backpressure metrics
	RecordingLimitExceeded *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Recording metrics
		RecordingsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_total",
			Help:      "Total number of recordings started",
		}),
		RecordingsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recordings_active",
			Help:      "Number of recordings currently listening",
		}),
		RecordingsSealed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_sealed_total",
			Help:      "Total number of sealed utterances by outcome",
		}, []string{"outcome"}),
		RecordingDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recording_duration_seconds",
			Help:      "Duration of recordings in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),

		// Recognition metrics
		FragmentsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_received_total",
			Help:      "Total number of recognition fragments received",
		}, []string{"type"}),
		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received",
		}),
		AudioFramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames received",
		}),
		RecognitionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_errors_total",
			Help:      "Total number of recognition errors",
		}, []string{"engine", "kind"}),

		// Diagram metrics
		Captures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagram_captures_total",
			Help:      "Total number of diagram captures by source",
		}, []string{"source"}),
		CaptureFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagram_capture_failures_total",
			Help:      "Total number of absorbed capture failures",
		}, []string{"stage"}),
		EncodingFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encoding_fallbacks_total",
			Help:      "Total number of times the last-resort image was sent",
		}),

		// Submission metrics
		Submissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Total number of analysis submissions by outcome",
		}, []string{"outcome"}),
		SubmissionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_latency_seconds",
			Help:      "Analysis backend round trip in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		AudioFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_fetches_total",
			Help:      "Total number of reply audio resolutions",
		}, []string{"source", "result"}),

		// Queue metrics
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of response messages awaiting acknowledgement",
		}),
		QueueEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_enqueued_total",
			Help:      "Total number of response messages enqueued",
		}),
		QueueAcked: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_acknowledged_total",
			Help:      "Total number of response messages acknowledged",
		}),

		// Turn metrics
		Turns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of turns by outcome",
		}, []string{"outcome"}),
		TurnDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time from seal to enqueue in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// gRPC metrics
		GRPCCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_calls_total",
			Help:      "Total number of gRPC calls",
		}, []string{"method", "code"}),

		// Backpressure metrics
		RecordingLimitExceeded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_limit_exceeded_total",
			Help:      "Total number of times recording limits were exceeded",
		}, []string{"limit_type"}),
	}
}

// RecordRecordingStart records a new recording starting.
func (m *Metrics) RecordRecordingStart() {
	m.RecordingsTotal.Inc()
	m.RecordingsActive.Inc()
}

// RecordRecordingEnd records a recording sealing with the given outcome
// ("spoken", "empty" or "forced").
func (m *Metrics) RecordRecordingEnd(outcome string, durationSeconds float64) {
	m.RecordingsActive.Dec()
	m.RecordingDuration.Observe(durationSeconds)
	m.RecordingsSealed.WithLabelValues(outcome).Inc()
}

// RecordFragment records a recognition fragment received.
func (m *Metrics) RecordFragment(final bool) {
	if final {
		m.FragmentsReceived.WithLabelValues("final").Inc()
		return
	}
	m.FragmentsReceived.WithLabelValues("interim").Inc()
}

// RecordAudioReceived records audio bytes and frames received.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioFramesReceived.Inc()
}

// RecordRecognitionError records a recognition error.
func (m *Metrics) RecordRecognitionError(engine, kind string) {
	m.RecognitionErrors.WithLabelValues(engine, kind).Inc()
}

// RecordCapture records which source a diagram capture resolved to.
func (m *Metrics) RecordCapture(source string) {
	m.Captures.WithLabelValues(source).Inc()
}

// RecordCaptureFailure records an absorbed failure in a capture stage.
func (m *Metrics) RecordCaptureFailure(stage string) {
	m.CaptureFailures.WithLabelValues(stage).Inc()
}

// RecordEncodingFallback records the last-resort image being used.
func (m *Metrics) RecordEncodingFallback() {
	m.EncodingFallbacks.Inc()
}

// RecordSubmission records an analysis submission.
func (m *Metrics) RecordSubmission(outcome string, latencySeconds float64) {
	m.Submissions.WithLabelValues(outcome).Inc()
	m.SubmissionLatency.Observe(latencySeconds)
}

// RecordAudioFetch records a reply audio resolution.
func (m *Metrics) RecordAudioFetch(source string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.AudioFetches.WithLabelValues(source, result).Inc()
}

// RecordEnqueue records a message entering the response queue.
func (m *Metrics) RecordEnqueue(depth int) {
	m.QueueEnqueued.Inc()
	m.QueueDepth.Set(float64(depth))
}

// RecordAck records the queue head being acknowledged.
func (m *Metrics) RecordAck(depth int) {
	m.QueueAcked.Inc()
	m.QueueDepth.Set(float64(depth))
}

// RecordTurn records a finished turn.
func (m *Metrics) RecordTurn(outcome string, durationSeconds float64) {
	m.Turns.WithLabelValues(outcome).Inc()
	m.TurnDuration.Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordGRPCCall records a completed gRPC call.
func (m *Metrics) RecordGRPCCall(method, code string) {
	m.GRPCCalls.WithLabelValues(method, code).Inc()
}

// RecordLimitExceeded records when a recording limit is exceeded.
func (m *Metrics) RecordLimitExceeded(limitType string) {
	m.RecordingLimitExceeded.WithLabelValues(limitType).Inc()
}
