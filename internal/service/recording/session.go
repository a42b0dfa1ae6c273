// Package recording runs one microphone recording: it pumps recognition
// events from a speech stream into a transcript accumulator and seals the
// utterance on stop.
package recording

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"interview-turn-service/internal/events"
	"interview-turn-service/internal/models"
	"interview-turn-service/internal/observability/logging"
	"interview-turn-service/internal/observability/metrics"
	"interview-turn-service/internal/service/speech"
	"interview-turn-service/internal/service/transcript"
)

// Errors returned by a Session.
var (
	ErrLimitExceeded  = errors.New("recording limit exceeded")
	ErrAlreadyStopped = errors.New("recording already stopped")
)

// Limits defines safety guardrails for a single recording.
type Limits struct {
	MaxFragments int           // Max recognition fragments per recording
	MaxDuration  time.Duration // Max recording duration
	DrainTimeout time.Duration // Max wait for in-flight results on stop
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxFragments: 2000,
		MaxDuration:  10 * time.Minute,
		DrainTimeout: 2 * time.Second,
	}
}

// Publisher receives transcript events.
type Publisher interface {
	PublishPartial(ctx context.Context, key string, event any) error
	PublishFinal(ctx context.Context, key string, event any) error
}

// Session is a single listening period, from start to seal.
type Session struct {
	id          string
	sessionCode string
	engineName  string
	stream      speech.Stream
	acc         *transcript.Accumulator
	publisher   Publisher
	limits      Limits
	metrics     *metrics.Metrics
	log         zerolog.Logger

	cancel    context.CancelFunc
	pumpDone  chan struct{}
	timer     *time.Timer
	startedAt time.Time

	mu         sync.Mutex
	fragments  int
	audioBytes int64
	stopped    bool
	closeOnce  sync.Once
}

// Start opens a recognition stream on engine and begins accumulating.
// The stream is bound to ctx, not to the caller's request.
func Start(ctx context.Context, engine speech.Engine, sessionCode string, publisher Publisher, limits Limits) (*Session, error) {
	id := uuid.NewString()
	streamCtx, cancel := context.WithCancel(ctx)

	stream, err := engine.Open(streamCtx)
	if err != nil {
		cancel()
		return nil, err
	}

	acc := transcript.NewAccumulator()
	if err := acc.Start(); err != nil {
		cancel()
		stream.Close()
		return nil, err
	}

	s := &Session{
		id:          id,
		sessionCode: sessionCode,
		engineName:  engine.Name(),
		stream:      stream,
		acc:         acc,
		publisher:   publisher,
		limits:      limits,
		metrics:     metrics.DefaultMetrics,
		log:         logging.WithEngine(id, sessionCode, engine.Name()),
		cancel:      cancel,
		pumpDone:    make(chan struct{}),
		startedAt:   time.Now(),
	}
	if limits.MaxDuration > 0 {
		s.timer = time.AfterFunc(limits.MaxDuration, func() {
			s.forceLimit(fmt.Sprintf("max duration exceeded: %v", limits.MaxDuration), "duration")
		})
	}

	s.metrics.RecordRecordingStart()
	s.log.Info().Msg("Recording started")

	go s.pump()
	return s, nil
}

// ID returns the recording identifier.
func (s *Session) ID() string {
	return s.id
}

// SessionCode returns the interview session code supplied at start.
func (s *Session) SessionCode() string {
	return s.sessionCode
}

// State returns the accumulator state.
func (s *Session) State() transcript.State {
	return s.acc.State()
}

// Utterance returns the current transcript snapshot.
func (s *Session) Utterance() models.Utterance {
	return s.acc.Utterance()
}

// Push feeds client-side recognition results into the stream.
// Returns speech.ErrNotAccepted for engines that recognize audio server-side.
func (s *Session) Push(batch ...models.RecognitionFragment) error {
	sink, ok := s.stream.(speech.FragmentSink)
	if !ok {
		return speech.ErrNotAccepted
	}
	return sink.Push(batch...)
}

// Report feeds a client-side recognition error into the stream.
func (s *Session) Report(kind models.RecognitionErrorKind, err error) error {
	sink, ok := s.stream.(speech.FragmentSink)
	if !ok {
		return speech.ErrNotAccepted
	}
	return sink.Report(kind, err)
}

// SendAudio forwards audio to engines that recognize server-side.
func (s *Session) SendAudio(ctx context.Context, audio []byte) error {
	sink, ok := s.stream.(speech.AudioSink)
	if !ok {
		return speech.ErrNotAccepted
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrAlreadyStopped
	}
	s.audioBytes += int64(len(audio))
	s.mu.Unlock()

	s.metrics.RecordAudioReceived(len(audio))
	return sink.SendAudio(ctx, audio)
}

// Stop closes the recognition stream, waits for in-flight results, and seals
// the utterance. The seal is returned exactly once.
func (s *Session) Stop() (transcript.Seal, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return transcript.Seal{}, ErrAlreadyStopped
	}
	s.stopped = true
	s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.closeStream()

	drain := s.limits.DrainTimeout
	if drain <= 0 {
		drain = DefaultLimits().DrainTimeout
	}
	select {
	case <-s.pumpDone:
	case <-time.After(drain):
		s.log.Warn().Dur("timeout", drain).Msg("Recognition stream did not drain, sealing what arrived")
	}
	s.cancel()

	seal, err := s.acc.Stop()
	if err != nil {
		return seal, err
	}

	outcome := "spoken"
	switch {
	case seal.Forced:
		outcome = "forced"
	case seal.Text == "":
		outcome = "empty"
	}
	stats := s.Stats()
	s.metrics.RecordRecordingEnd(outcome, stats.Duration.Seconds())

	s.log.Info().
		Str("outcome", outcome).
		Int("fragments", stats.Fragments).
		Int64("audioBytes", stats.AudioBytes).
		Dur("duration", stats.Duration.Round(time.Millisecond)).
		AnErr("cause", seal.Cause).
		Msg("Recording sealed")

	if seal.Text != "" {
		s.publishFinal(seal.Text)
	}
	return seal, nil
}

// pump delivers stream events to the accumulator until the stream closes.
func (s *Session) pump() {
	defer close(s.pumpDone)
	for ev := range s.stream.Events() {
		if ev.IsError() {
			s.handleError(ev)
			continue
		}
		s.handleFragments(ev.Fragments)
	}
}

func (s *Session) handleFragments(batch []models.RecognitionFragment) {
	s.mu.Lock()
	s.fragments += len(batch)
	count := s.fragments
	s.mu.Unlock()

	if s.limits.MaxFragments > 0 && count > s.limits.MaxFragments {
		s.forceLimit(fmt.Sprintf("max fragments exceeded: %d > %d", count, s.limits.MaxFragments), "fragments")
		return
	}

	if err := s.acc.OnFragments(batch...); err != nil {
		s.log.Debug().Err(err).Str("state", s.acc.State().String()).Msg("Fragments ignored")
		return
	}

	last := 0
	for _, f := range batch {
		s.metrics.RecordFragment(f.IsFinal)
		last = f.Sequence
	}
	s.publishPartial(last)
}

func (s *Session) handleError(ev speech.Event) {
	s.metrics.RecordRecognitionError(s.engineName, string(ev.ErrorKind))
	if !s.acc.OnRecoverableError(ev.ErrorKind) {
		s.log.Debug().Str("kind", string(ev.ErrorKind)).Msg("Recoverable recognition error ignored")
		return
	}
	s.log.Warn().
		Err(ev.Err).
		Str("kind", string(ev.ErrorKind)).
		Msg("Recognition error, utterance DROPPED")
	go s.closeStream()
}

// forceLimit drops the utterance without a transcript.
func (s *Session) forceLimit(reason, limitType string) {
	if !s.acc.Fail(fmt.Errorf("%w: %s", ErrLimitExceeded, reason)) {
		return
	}
	s.metrics.RecordLimitExceeded(limitType)
	s.log.Warn().Str("reason", reason).Msg("Recording limit exceeded, utterance DROPPED")
	go s.closeStream()
}

func (s *Session) closeStream() {
	s.closeOnce.Do(func() {
		if err := s.stream.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Error closing recognition stream")
		}
	})
}

func (s *Session) fragmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fragments
}

// Stats holds current recording usage.
type Stats struct {
	Fragments  int
	AudioBytes int64
	Duration   time.Duration
}

// Stats returns current recording usage for observability.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Fragments:  s.fragments,
		AudioBytes: s.audioBytes,
		Duration:   time.Since(s.startedAt),
	}
}

func (s *Session) publishPartial(sequence int) {
	if s.publisher == nil {
		return
	}
	u := s.acc.Utterance()
	ev := models.TranscriptPartial{
		EventType:   events.EventTranscriptPartial,
		RecordingID: s.id,
		SessionCode: s.sessionCode,
		Timestamp:   time.Now().UnixMilli(),
		Sequence:    sequence,
		Text:        strings.TrimSpace(strings.TrimSpace(u.FinalText) + " " + strings.TrimSpace(u.InterimText)),
	}
	if err := s.publisher.PublishPartial(context.Background(), s.id, ev); err != nil {
		s.log.Error().Err(err).Msg("Failed to publish partial")
	}
}

func (s *Session) publishFinal(text string) {
	if s.publisher == nil {
		return
	}
	ev := models.TranscriptFinal{
		EventType:   events.EventTranscriptFinal,
		RecordingID: s.id,
		SessionCode: s.sessionCode,
		Timestamp:   time.Now().UnixMilli(),
		Sequence:    s.fragmentCount(),
		Text:        text,
	}
	if err := s.publisher.PublishFinal(context.Background(), s.id, ev); err != nil {
		s.log.Error().Err(err).Msg("Failed to publish final")
	}
}
