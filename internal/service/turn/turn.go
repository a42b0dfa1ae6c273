package turn

import (
	"context"
	"sync"
	"time"

	"interview-turn-service/internal/models"
)

// Turn is one spoken answer on its way to the avatar queue.
type Turn struct {
	ID          string
	SessionCode string
	Transcript  string
	StartedAt   time.Time

	done chan struct{}

	mu      sync.Mutex
	outcome models.TurnOutcome
	message *models.ResponseMessage
	err     error
}

func newTurn(id, sessionCode, transcript string) *Turn {
	return &Turn{
		ID:          id,
		SessionCode: sessionCode,
		Transcript:  transcript,
		StartedAt:   time.Now(),
		done:        make(chan struct{}),
	}
}

// Done is closed once the turn reaches a terminal outcome.
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Outcome returns the terminal outcome, or "" while still running.
func (t *Turn) Outcome() models.TurnOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome
}

// Message returns the enqueued message, if any.
func (t *Turn) Message() *models.ResponseMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.message
}

// Err returns why the turn failed, if it did.
func (t *Turn) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Wait blocks until the turn finishes or ctx ends.
func (t *Turn) Wait(ctx context.Context) (*models.ResponseMessage, error) {
	select {
	case <-t.done:
		return t.Message(), t.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Turn) isDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *Turn) finish(outcome models.TurnOutcome, msg *models.ResponseMessage, err error) {
	t.mu.Lock()
	t.outcome = outcome
	t.message = msg
	t.err = err
	t.mu.Unlock()
	close(t.done)
}
