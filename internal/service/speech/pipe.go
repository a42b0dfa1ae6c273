package speech

import (
	"sync"

	"interview-turn-service/internal/models"
)

// Pipe is a buffered Stream fed by its owner.
// Sends and Close are serialized, so nothing is delivered after Close.
type Pipe struct {
	mu     sync.Mutex
	events chan Event
	done   chan struct{}
	closed bool
}

// NewPipe creates an open pipe with the given event buffer.
func NewPipe(buffer int) *Pipe {
	if buffer <= 0 {
		buffer = 64
	}
	return &Pipe{
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
}

// Events implements Stream.
func (p *Pipe) Events() <-chan Event {
	return p.events
}

// Done is closed when the pipe is closed.
func (p *Pipe) Done() <-chan struct{} {
	return p.done
}

// Push delivers one recognition batch.
func (p *Pipe) Push(batch ...models.RecognitionFragment) error {
	if len(batch) == 0 {
		return nil
	}
	return p.deliver(Event{Fragments: batch})
}

// Report delivers an engine error.
func (p *Pipe) Report(kind models.RecognitionErrorKind, err error) error {
	return p.deliver(Event{ErrorKind: kind, Err: err})
}

func (p *Pipe) deliver(ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrStreamClosed
	}
	p.events <- ev
	return nil
}

// Close implements Stream.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.events)
	close(p.done)
	return nil
}

// Closed reports whether Close has been called.
func (p *Pipe) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
