// Package events publishes transcript and turn events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"interview-turn-service/internal/observability/metrics"
)

// Event type names carried in payloads and the eventType header.
const (
	EventTranscriptPartial = "interview.transcript.partial"
	EventTranscriptFinal   = "interview.transcript.final"
	EventTurnCompleted     = "interview.turn.completed"
)

// Family groups events that share a topic.
type Family int

const (
	FamilyPartial Family = iota
	FamilyFinal
	FamilyTurns
)

func (f Family) String() string {
	switch f {
	case FamilyPartial:
		return "partial"
	case FamilyFinal:
		return "final"
	case FamilyTurns:
		return "turns"
	default:
		return "unknown"
	}
}

// messageWriter is the part of kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type route struct {
	topic     string
	eventType string
	writer    messageWriter // nil in log-only mode
}

// Publisher writes each event family to its own Kafka topic, or only logs when disabled.
type Publisher struct {
	routes    map[Family]*route
	principal string
	enabled   bool
	metrics   *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	TopicTurns   string
	Principal    string
	Enabled      bool
}

// New creates a publisher. A nil config, Enabled=false or no brokers yields log-only mode.
func New(cfg *Config) *Publisher {
	if cfg == nil {
		cfg = &Config{}
	}
	p := &Publisher{
		routes: map[Family]*route{
			FamilyPartial: {topic: cfg.TopicPartial, eventType: EventTranscriptPartial},
			FamilyFinal:   {topic: cfg.TopicFinal, eventType: EventTranscriptFinal},
			FamilyTurns:   {topic: cfg.TopicTurns, eventType: EventTurnCompleted},
		},
		principal: cfg.Principal,
		metrics:   metrics.DefaultMetrics,
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{Dial: dialer.DialFunc}

	for _, r := range p.routes {
		r.writer = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        r.topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}
	p.enabled = true

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicPartial", cfg.TopicPartial).
		Str("topicFinal", cfg.TopicFinal).
		Str("topicTurns", cfg.TopicTurns).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")
	return p
}

// PublishPartial publishes an interim transcript event keyed by recording.
func (p *Publisher) PublishPartial(ctx context.Context, key string, event any) error {
	return p.publish(ctx, FamilyPartial, key, event)
}

// PublishFinal publishes a sealed transcript event keyed by recording.
func (p *Publisher) PublishFinal(ctx context.Context, key string, event any) error {
	return p.publish(ctx, FamilyFinal, key, event)
}

// PublishTurn publishes a finished turn keyed by session code, so one
// interview's turns stay in order on a single partition.
func (p *Publisher) PublishTurn(ctx context.Context, key string, event any) error {
	return p.publish(ctx, FamilyTurns, key, event)
}

func (p *Publisher) publish(ctx context.Context, family Family, key string, event any) error {
	r := p.routes[family]
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("family", family.String()).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("topic", r.topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if r.writer == nil {
		p.metrics.RecordKafkaPublish(r.topic, r.eventType, nil, time.Since(start).Seconds())
		return nil
	}

	err = r.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(r.eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	})
	p.metrics.RecordKafkaPublish(r.topic, r.eventType, err, time.Since(start).Seconds())
	if err != nil {
		log.Error().Err(err).Str("topic", r.topic).Str("key", key).Msg("Failed to write to Kafka")
		return err
	}
	return nil
}

// Enabled reports whether events are written to Kafka rather than only logged.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// Close flushes and closes all Kafka writers.
func (p *Publisher) Close() error {
	var errs []error
	for family, r := range p.routes {
		if r.writer == nil {
			continue
		}
		if err := r.writer.Close(); err != nil {
			log.Error().Err(err).Str("family", family.String()).Msg("Error closing Kafka writer")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
