// Package push provides a speech engine whose recognizer runs in the client.
// The browser's SpeechRecognition results are pushed in over HTTP or WebSocket.
package push

import (
	"context"

	"interview-turn-service/internal/service/speech"
)

// Engine implements speech.Engine for client-side recognition.
type Engine struct {
	buffer int
}

// New creates a push engine with the given per-stream event buffer.
func New(buffer int) *Engine {
	return &Engine{buffer: buffer}
}

// Name returns the engine identifier.
func (e *Engine) Name() string {
	return "browser"
}

// Open returns a stream that accepts pushed fragments until closed or ctx ends.
func (e *Engine) Open(ctx context.Context) (speech.Stream, error) {
	pipe := speech.NewPipe(e.buffer)
	go func() {
		select {
		case <-ctx.Done():
			pipe.Close()
		case <-pipe.Done():
		}
	}()
	return pipe, nil
}
