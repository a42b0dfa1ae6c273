// Package mock provides a simulated speech engine for demos and tests without a browser or cloud credentials.
// It simulates realistic recognition behavior with progressive interim fragments and
// exactly one final fragment per utterance.
package mock

import (
	"context"
	"sync"
	"time"

	"interview-turn-service/internal/models"
	"interview-turn-service/internal/service/speech"
)

// SimulatedUtterance represents a mock answer with progressive transcripts.
type SimulatedUtterance struct {
	Partials []string // Progressive interim transcripts
	Final    string   // Final transcript text
}

// DefaultUtterances provides sample interview answers for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials: []string{"I would", "I would start with", "I would start with the API"},
		Final:    "I would start with the API design for creating short links",
	},
	{
		Partials: []string{"We put", "We put a cache", "We put a cache in front"},
		Final:    "We put a cache in front of the database to absorb reads",
	},
	{
		Partials: []string{"Writes go", "Writes go through", "Writes go through a queue"},
		Final:    "Writes go through a queue so the workers can batch them",
	},
	{
		Partials: []string{"For scale", "For scale we shard", "For scale we shard by user"},
		Final:    "For scale we shard by user id and replicate each shard",
	},
	{
		Partials: []string{"That's", "That's my design"},
		Final:    "That's my design, happy to go deeper on any part",
	},
}

// Engine implements speech.Engine with simulated recognition.
// Each Open cycles to the next default utterance.
type Engine struct {
	mu       sync.Mutex
	counter  int
	interval time.Duration
}

// New creates a mock engine. A positive interval advances the simulation on a
// timer; otherwise it advances once per audio frame.
func New(interval time.Duration) *Engine {
	return &Engine{interval: interval}
}

// Name returns the engine identifier.
func (e *Engine) Name() string {
	return "mock"
}

// Open starts a simulated recognition stream.
func (e *Engine) Open(ctx context.Context) (speech.Stream, error) {
	e.mu.Lock()
	utt := DefaultUtterances[e.counter%len(DefaultUtterances)]
	e.counter++
	e.mu.Unlock()

	s := &Stream{
		pipe:      speech.NewPipe(16),
		utterance: utt,
		stop:      make(chan struct{}),
	}
	if e.interval > 0 {
		go s.tick(ctx, e.interval)
	} else {
		go func() {
			select {
			case <-ctx.Done():
				s.Close()
			case <-s.stop:
			}
		}()
	}
	return s, nil
}

// Stream is a simulated recognition session.
// It emits partials one step at a time, then the final.
type Stream struct {
	pipe      *speech.Pipe
	mu        sync.Mutex
	utterance SimulatedUtterance
	step      int  // Next partial to send
	finalSent bool // Ensures only one final per utterance
	closed    bool
	stop      chan struct{}
}

// Events implements speech.Stream.
func (s *Stream) Events() <-chan speech.Event {
	return s.pipe.Events()
}

// SendAudio advances the simulation by one step per frame.
func (s *Stream) SendAudio(ctx context.Context, audio []byte) error {
	s.advance()
	return nil
}

// Utterance returns the answer this stream simulates.
func (s *Stream) Utterance() SimulatedUtterance {
	return s.utterance
}

func (s *Stream) tick(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-s.stop:
			return
		case <-t.C:
			s.advance()
		}
	}
}

func (s *Stream) advance() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.finalSent {
		return
	}
	if s.step < len(s.utterance.Partials) {
		s.pipe.Push(models.RecognitionFragment{Text: s.utterance.Partials[s.step], Sequence: s.step})
		s.step++
		return
	}
	s.finalSent = true
	s.pipe.Push(models.RecognitionFragment{Text: s.utterance.Final, IsFinal: true, Sequence: s.step})
}

// Close ends the simulated session.
// If the final wasn't sent yet (stopped mid-utterance), it is delivered before the stream closes.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.stop)

	if !s.finalSent && s.step > 0 {
		s.finalSent = true
		s.pipe.Push(models.RecognitionFragment{Text: s.utterance.Final, IsFinal: true, Sequence: s.step})
	}
	return s.pipe.Close()
}
