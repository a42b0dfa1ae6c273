// Package turn coordinates an interview turn end to end:
//
//	StartRecording ──► fragments ──► StopRecording (seal)
//	    ──► capture diagram ──► encode PNG ──► submit ──► resolve audio ──► enqueue
//
// Only one recording or turn is active at a time: a recording cannot start
// or stop while a turn is being submitted, and a direct turn cannot run while
// a recording is open, so queue order equals turn order.
package turn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"interview-turn-service/internal/events"
	"interview-turn-service/internal/models"
	"interview-turn-service/internal/observability/logging"
	"interview-turn-service/internal/observability/metrics"
	"interview-turn-service/internal/service/diagram"
	"interview-turn-service/internal/service/imaging"
	"interview-turn-service/internal/service/recording"
	"interview-turn-service/internal/service/speech"
)

// Controller errors.
var (
	ErrRecordingActive = errors.New("a recording is already active")
	ErrTurnInFlight    = errors.New("previous turn is still being submitted")
	ErrNoRecording     = errors.New("no active recording")
	ErrEmptyTranscript = errors.New("transcript is empty")
)

// Capturer resolves the diagram for a turn.
type Capturer interface {
	Capture(ctx context.Context, manual *models.ManualImage, surface diagram.Surface) models.DiagramSnapshot
}

// Encoder rasterizes a diagram snapshot.
type Encoder interface {
	ToRaster(snap models.DiagramSnapshot) ([]byte, error)
}

// Submitter sends a turn to the analysis backend.
type Submitter interface {
	Submit(ctx context.Context, req models.InterviewTurnRequest) (*models.FeedbackReply, error)
	ResolveAudio(ctx context.Context, src models.AudioSource) ([]byte, error)
}

// Enqueuer accepts messages for the avatar.
type Enqueuer interface {
	Enqueue(msg models.ResponseMessage)
}

// Publisher receives transcript and turn events.
type Publisher interface {
	recording.Publisher
	PublishTurn(ctx context.Context, key string, event any) error
}

// History persists finished turns.
type History interface {
	SaveTurn(ctx context.Context, turn models.TurnRecord) error
}

// Deps are the collaborators of a Controller. Publisher and History are optional.
type Deps struct {
	Engine    speech.Engine
	Capturer  Capturer
	Encoder   Encoder
	Submitter Submitter
	Queue     Enqueuer
	Publisher Publisher
	History   History
	Limits    recording.Limits
}

// Controller owns the recording, the manual diagram override and the in-flight turn.
type Controller struct {
	deps    Deps
	baseCtx context.Context
	ids     *IDGenerator
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu        sync.Mutex
	recording *recording.Session
	inFlight  *Turn
	manual    *models.ManualImage
	surface   diagram.Surface
	wg        sync.WaitGroup
}

// New creates a controller. Turns and recognition streams run on ctx, not on
// the context of the call that started them.
func New(ctx context.Context, deps Deps) *Controller {
	if deps.Engine == nil {
		deps.Engine = speech.Unsupported()
	}
	return &Controller{
		deps:    deps,
		baseCtx: ctx,
		ids:     NewIDGenerator(),
		metrics: metrics.DefaultMetrics,
		log:     logging.WithComponent("turn"),
	}
}

// EngineName returns the configured speech engine.
func (c *Controller) EngineName() string {
	return c.deps.Engine.Name()
}

// StartRecording begins listening for a new answer.
func (c *Controller) StartRecording(ctx context.Context, sessionCode string) (*recording.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recording != nil {
		return nil, ErrRecordingActive
	}
	if c.inFlight != nil && !c.inFlight.isDone() {
		return nil, ErrTurnInFlight
	}

	var pub recording.Publisher
	if c.deps.Publisher != nil {
		pub = c.deps.Publisher
	}
	rec, err := recording.Start(c.baseCtx, c.deps.Engine, sessionCode, pub, c.deps.Limits)
	if err != nil {
		return nil, err
	}
	c.recording = rec
	return rec, nil
}

// Recording returns the active recording, or nil.
func (c *Controller) Recording() *recording.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// StopRecording seals the active recording. A non-empty transcript starts a
// turn in the background; an empty one yields an already-finished skipped turn.
func (c *Controller) StopRecording(ctx context.Context) (*Turn, error) {
	c.mu.Lock()
	rec := c.recording
	if rec == nil {
		c.mu.Unlock()
		return nil, ErrNoRecording
	}
	if c.inFlight != nil && !c.inFlight.isDone() {
		c.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	c.mu.Unlock()

	seal, err := rec.Stop()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.recording == rec {
		c.recording = nil
	}
	t := newTurn(c.ids.Next(rec.SessionCode()), rec.SessionCode(), seal.Text)
	if seal.Text == "" {
		c.mu.Unlock()
		c.complete(t, models.TurnSkipped, nil, seal.Cause, "")
		return t, nil
	}
	c.inFlight = t
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.process(c.baseCtx, t)
	}()
	return t, nil
}

// RunTurn submits transcript directly, without a recording, and waits for the
// result. It fails with ErrRecordingActive while a recording is open.
func (c *Controller) RunTurn(ctx context.Context, transcript, sessionCode string) (*models.ResponseMessage, error) {
	if transcript == "" {
		return nil, ErrEmptyTranscript
	}

	c.mu.Lock()
	if c.recording != nil {
		c.mu.Unlock()
		return nil, ErrRecordingActive
	}
	if c.inFlight != nil && !c.inFlight.isDone() {
		c.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	t := newTurn(c.ids.Next(sessionCode), sessionCode, transcript)
	c.inFlight = t
	c.wg.Add(1)
	c.mu.Unlock()

	defer c.wg.Done()
	c.process(ctx, t)
	return t.Message(), t.Err()
}

// InFlight returns the turn currently being submitted, or nil.
func (c *Controller) InFlight() *Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight == nil || c.inFlight.isDone() {
		return nil
	}
	return c.inFlight
}

// SetManualImage installs an uploaded diagram. It applies to every turn until cleared.
func (c *Controller) SetManualImage(img models.ManualImage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manual = &img
}

// ClearManualImage returns to capturing the whiteboard.
func (c *Controller) ClearManualImage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manual = nil
}

// ManualImage returns the current override, or nil.
func (c *Controller) ManualImage() *models.ManualImage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manual
}

// SetSurface sets the drawing surface captured when no override is set.
func (c *Controller) SetSurface(s diagram.Surface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.surface = s
}

// Close discards an active recording and waits for in-flight turns.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	rec := c.recording
	c.recording = nil
	c.mu.Unlock()

	if rec != nil {
		if _, err := rec.Stop(); err != nil && !errors.Is(err, recording.ErrAlreadyStopped) {
			c.log.Warn().Err(err).Msg("Error discarding recording on close")
		}
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// process runs capture, encode, submit, resolve and enqueue for one turn.
func (c *Controller) process(ctx context.Context, t *Turn) {
	log := logging.WithTurn(t.ID, t.SessionCode)

	c.mu.Lock()
	manual, surface := c.manual, c.surface
	c.mu.Unlock()

	snap := c.deps.Capturer.Capture(ctx, manual, surface)
	source := snap.SourceKind.String()

	image, err := c.deps.Encoder.ToRaster(snap)
	if err != nil {
		log.Warn().Err(err).Str("source", source).Msg("Diagram encoding failed, sending last-resort image")
		c.metrics.RecordEncodingFallback()
		image = imaging.LastResort()
	}

	reply, err := c.deps.Submitter.Submit(ctx, models.InterviewTurnRequest{
		Transcript:  t.Transcript,
		SessionCode: t.SessionCode,
		Image:       image,
	})
	if err != nil {
		log.Error().Err(err).Msg("Turn submission failed")
		c.complete(t, models.TurnFailed, nil, err, source)
		return
	}

	audio, err := c.deps.Submitter.ResolveAudio(ctx, reply.Audio)
	if err != nil {
		log.Error().Err(err).Msg("Reply audio could not be resolved")
		c.complete(t, models.TurnFailed, nil, fmt.Errorf("resolve audio: %w", err), source)
		return
	}

	msg := models.ResponseMessage{
		TurnID:           t.ID,
		Text:             reply.FeedbackText,
		Audio:            audio,
		LipSync:          reply.LipSync,
		FacialExpression: reply.FacialExpression,
		Animation:        reply.Animation,
	}
	c.deps.Queue.Enqueue(msg)

	log.Info().
		Str("source", source).
		Int("audioBytes", len(audio)).
		Dur("elapsed", time.Since(t.StartedAt)).
		Msg("Turn enqueued")
	c.complete(t, models.TurnEnqueued, &msg, nil, source)
}

// complete records and publishes t, then marks it done.
func (c *Controller) complete(t *Turn, outcome models.TurnOutcome, msg *models.ResponseMessage, cause error, source string) {
	finished := time.Now()
	c.metrics.RecordTurn(string(outcome), finished.Sub(t.StartedAt).Seconds())

	rec := models.TurnRecord{
		TurnID:        t.ID,
		SessionCode:   t.SessionCode,
		Transcript:    t.Transcript,
		DiagramSource: source,
		Outcome:       outcome,
		StartedAt:     t.StartedAt,
		FinishedAt:    finished,
	}
	if msg != nil {
		rec.FeedbackText = msg.Text
	}
	if cause != nil {
		rec.Error = cause.Error()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.baseCtx), 5*time.Second)
	defer cancel()

	if c.deps.History != nil {
		if err := c.deps.History.SaveTurn(ctx, rec); err != nil {
			c.log.Error().Err(err).Str("turnId", t.ID).Msg("Failed to save turn history")
		}
	}
	if c.deps.Publisher != nil {
		ev := models.TurnCompleted{
			EventType: events.EventTurnCompleted,
			Timestamp: finished.UnixMilli(),
			Turn:      rec,
		}
		if err := c.deps.Publisher.PublishTurn(ctx, t.SessionCode, ev); err != nil {
			c.log.Error().Err(err).Str("turnId", t.ID).Msg("Failed to publish turn")
		}
	}

	var turnErr error
	if outcome == models.TurnFailed {
		turnErr = cause
	}
	t.finish(outcome, msg, turnErr)
}
