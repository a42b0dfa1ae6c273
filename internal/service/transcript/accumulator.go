// Package transcript turns a stream of recognition fragments into one sealed utterance per recording.
package transcript

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"interview-turn-service/internal/models"
)

// State represents the lifecycle state of an accumulator.
type State int

const (
	// StateIdle - no recording has started yet.
	StateIdle State = iota
	// StateListening - fragments are being accumulated.
	StateListening
	// StateSealed - the utterance is final and immutable.
	StateSealed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateSealed:
		return "SEALED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Errors for invalid state transitions.
var (
	ErrAlreadyListening = errors.New("accumulator is already listening")
	ErrNotListening     = errors.New("accumulator is not listening")
	ErrAlreadySealed    = errors.New("sealed utterance already handed off")
)

// Seal is the finalized transcript of one recording.
// Forced seals are produced by a non-recoverable engine error and are always empty.
type Seal struct {
	Text   string
	Forced bool
	Cause  error
}

// Accumulator manages the state machine for a single recording.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	IDLE → LISTENING → SEALED
//	          │           │
//	          │           └── Stop() hands the seal off exactly once
//	          │
//	          └── OnFragments() ──→ multiple times
//
// Rules:
//   - LISTENING: finals append to FinalText, non-finals replace InterimText
//   - a non-recoverable error seals with empty text
//   - SEALED: no fragments are accepted; Start() begins a fresh recording
type Accumulator struct {
	mu        sync.RWMutex
	state     State
	final     strings.Builder
	interim   string
	seal      Seal
	handedOff bool
}

// NewAccumulator creates an accumulator in IDLE state.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// State returns the current state.
func (a *Accumulator) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Utterance returns a snapshot of the accumulated text.
func (a *Accumulator) Utterance() models.Utterance {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return models.Utterance{
		FinalText:   a.final.String(),
		InterimText: a.interim,
	}
}

// Start transitions to LISTENING and clears any previous text.
func (a *Accumulator) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateListening {
		return ErrAlreadyListening
	}
	a.state = StateListening
	a.final.Reset()
	a.interim = ""
	a.seal = Seal{}
	a.handedOff = false
	return nil
}

// OnFragments applies one recognition batch.
// Finals are appended with a separating space; the interim text becomes the
// space-joined non-final texts of this batch, which may be empty.
func (a *Accumulator) OnFragments(batch ...models.RecognitionFragment) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateListening {
		return ErrNotListening
	}

	var interim []string
	for _, f := range batch {
		if f.IsFinal {
			a.final.WriteString(f.Text)
			a.final.WriteString(" ")
			continue
		}
		if t := strings.TrimSpace(f.Text); t != "" {
			interim = append(interim, t)
		}
	}
	a.interim = strings.Join(interim, " ")
	return nil
}

// OnRecoverableError handles an engine error.
// No-speech keeps the recording alive; anything else seals it empty.
// Returns true if the accumulator was sealed by this call.
func (a *Accumulator) OnRecoverableError(kind models.RecognitionErrorKind) bool {
	if kind.IsRecoverable() {
		return false
	}
	return a.Fail(fmt.Errorf("recognition error: %s", kind))
}

// Fail forces LISTENING → SEALED with an empty seal.
// Returns false if the accumulator was not listening.
func (a *Accumulator) Fail(cause error) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateListening {
		return false
	}
	a.state = StateSealed
	a.seal = Seal{Forced: true, Cause: cause}
	return true
}

// Stop seals the utterance and hands it off.
// A forced seal that was not yet handed off is returned once as well.
func (a *Accumulator) Stop() (Seal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case StateListening:
		a.state = StateSealed
		a.seal = Seal{Text: sealText(a.final.String(), a.interim)}
	case StateSealed:
		if a.handedOff {
			return Seal{}, ErrAlreadySealed
		}
	default:
		return Seal{}, ErrNotListening
	}
	a.handedOff = true
	return a.seal, nil
}

func sealText(final, interim string) string {
	text := strings.TrimSpace(final)
	if in := strings.TrimSpace(interim); in != "" {
		text = text + " " + in
	}
	return strings.TrimSpace(text)
}
