// Package speech defines the recognition stream consumed by a recording.
//
// A platform speech engine (browser, Google Cloud, simulator) is modeled as a
// cancellable stream of recognition events instead of start/result/error/end
// callbacks. Closing the stream is the explicit stop signal; the event channel
// is closed once the engine has delivered everything it still had in flight.
package speech

import (
	"context"
	"errors"

	"interview-turn-service/internal/models"
)

// Common errors
var (
	ErrUnsupported   = errors.New("speech recognition is not supported on this platform")
	ErrStreamClosed  = errors.New("recognition stream is closed")
	ErrNotAccepted   = errors.New("recognition stream does not accept this input")
	ErrUnknownEngine = errors.New("unknown speech engine")
)

// Event is one delivery from the engine: a batch of fragments or an error.
type Event struct {
	Fragments []models.RecognitionFragment
	ErrorKind models.RecognitionErrorKind
	Err       error
}

// IsError reports whether the event carries an engine error.
func (e Event) IsError() bool {
	return e.ErrorKind != ""
}

// Stream is a single continuous recognition session.
type Stream interface {
	// Events delivers batches in arrival order. Closed after Close once drained.
	Events() <-chan Event

	// Close stops recognition and releases the underlying resource. Idempotent.
	Close() error
}

// Engine opens recognition streams (continuous mode, interim results, one alternative).
type Engine interface {
	// Name returns the engine identifier (e.g., "browser", "google").
	Name() string

	// Open starts a recognition stream. Returns ErrUnsupported if the capability is absent.
	Open(ctx context.Context) (Stream, error)
}

// FragmentSink is implemented by streams whose recognizer runs on the client
// and pushes results in.
type FragmentSink interface {
	Push(batch ...models.RecognitionFragment) error
	Report(kind models.RecognitionErrorKind, err error) error
}

// AudioSink is implemented by streams that recognize raw audio server-side.
type AudioSink interface {
	SendAudio(ctx context.Context, audio []byte) error
}

type unsupported struct{}

// Unsupported returns an engine whose Open always fails with ErrUnsupported.
func Unsupported() Engine {
	return unsupported{}
}

func (unsupported) Name() string { return "none" }

func (unsupported) Open(context.Context) (Stream, error) {
	return nil, ErrUnsupported
}
