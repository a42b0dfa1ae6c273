package turn

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interview-turn-service/internal/models"
	"interview-turn-service/internal/service/diagram"
	"interview-turn-service/internal/service/imaging"
	"interview-turn-service/internal/service/queue"
	"interview-turn-service/internal/service/recording"
	"interview-turn-service/internal/service/speech"
	"interview-turn-service/internal/service/speech/push"
	"interview-turn-service/internal/service/submission"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	requests []models.InterviewTurnRequest
	reply    *models.FeedbackReply
	err      error
	audioErr error
	block    chan struct{}
}

func (f *fakeSubmitter) Submit(ctx context.Context, req models.InterviewTurnRequest) (*models.FeedbackReply, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.reply != nil {
		return f.reply, nil
	}
	return &models.FeedbackReply{
		FeedbackText:     "feedback for " + req.Transcript,
		Audio:            models.InlineAudio{Base64: base64.StdEncoding.EncodeToString([]byte(req.Transcript))},
		FacialExpression: "smile",
		Animation:        "Talking",
	}, nil
}

func (f *fakeSubmitter) ResolveAudio(ctx context.Context, src models.AudioSource) ([]byte, error) {
	if f.audioErr != nil {
		return nil, f.audioErr
	}
	if a, ok := src.(models.InlineAudio); ok {
		return base64.StdEncoding.DecodeString(a.Base64)
	}
	return nil, nil
}

func (f *fakeSubmitter) sent() []models.InterviewTurnRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.InterviewTurnRequest(nil), f.requests...)
}

type fakePublisher struct {
	mu    sync.Mutex
	turns []models.TurnCompleted
}

func (f *fakePublisher) PublishPartial(ctx context.Context, key string, event any) error { return nil }
func (f *fakePublisher) PublishFinal(ctx context.Context, key string, event any) error   { return nil }

func (f *fakePublisher) PublishTurn(ctx context.Context, key string, event any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, event.(models.TurnCompleted))
	return nil
}

type fakeHistory struct {
	mu    sync.Mutex
	saved []models.TurnRecord
}

func (f *fakeHistory) SaveTurn(ctx context.Context, turn models.TurnRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, turn)
	return nil
}

type failingEncoder struct{}

func (failingEncoder) ToRaster(models.DiagramSnapshot) ([]byte, error) {
	return nil, imaging.ErrEncoding
}

type harness struct {
	ctrl      *Controller
	queue     *queue.Queue
	submitter *fakeSubmitter
	publisher *fakePublisher
	history   *fakeHistory
}

func newHarness(t *testing.T, sub Submitter) *harness {
	t.Helper()
	fs, _ := sub.(*fakeSubmitter)
	if sub == nil {
		fs = &fakeSubmitter{}
		sub = fs
	}
	enc := imaging.New(800, 600)
	h := &harness{
		queue:     queue.New(),
		submitter: fs,
		publisher: &fakePublisher{},
		history:   &fakeHistory{},
	}
	h.ctrl = New(context.Background(), Deps{
		Engine:    push.New(0),
		Capturer:  diagram.NewCapturer(diagram.DefaultConfig(), enc),
		Encoder:   enc,
		Submitter: sub,
		Queue:     h.queue,
		Publisher: h.publisher,
		History:   h.history,
		Limits:    recording.DefaultLimits(),
	})
	t.Cleanup(func() { h.ctrl.Close(context.Background()) })
	return h
}

func (h *harness) speak(t *testing.T, text string) *Turn {
	t.Helper()
	rec, err := h.ctrl.StartRecording(context.Background(), "abc123")
	require.NoError(t, err)
	if text != "" {
		require.NoError(t, rec.Push(models.RecognitionFragment{Text: text, IsFinal: true}))
	}
	turn, err := h.ctrl.StopRecording(context.Background())
	require.NoError(t, err)
	return turn
}

func wait(t *testing.T, turn *Turn) (*models.ResponseMessage, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := turn.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return msg, err
}

func TestController_EndToEnd_AgainstBackend(t *testing.T) {
	var gotText string
	var gotImage []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		gotText = r.FormValue("audio_text")
		if f, _, err := r.FormFile("image"); err == nil {
			gotImage, _ = io.ReadAll(f)
			f.Close()
		}
		json.NewEncoder(w).Encode(map[string]any{"feedback": "ok", "audioBase64": "QQ=="})
	}))
	defer srv.Close()

	client, err := submission.New(submission.Config{BaseURL: srv.URL}, nil)
	require.NoError(t, err)
	h := newHarness(t, client)

	turn := h.speak(t, "hello")
	msg, err := wait(t, turn)

	require.NoError(t, err)
	assert.Equal(t, "hello", gotText)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), gotImage[:8], "placeholder PNG should be sent for an empty board")
	assert.Equal(t, "ok", msg.Text)
	assert.Equal(t, []byte("A"), msg.Audio)
	assert.Equal(t, "smile", msg.FacialExpression)
	assert.Equal(t, "Talking", msg.Animation)

	head, ok := h.queue.PeekHead()
	require.True(t, ok)
	assert.Equal(t, *msg, head)
	assert.Equal(t, models.TurnEnqueued, turn.Outcome())
}

func TestController_BackendError_NothingEnqueued(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := submission.New(submission.Config{BaseURL: srv.URL}, nil)
	require.NoError(t, err)
	h := newHarness(t, client)

	turn := h.speak(t, "hello")
	_, err = wait(t, turn)

	var serr *submission.StatusError
	require.True(t, errors.As(err, &serr), "expected StatusError, got %v", err)
	assert.Equal(t, 500, serr.StatusCode)
	assert.Zero(t, h.queue.Len())
	assert.Equal(t, models.TurnFailed, turn.Outcome())

	require.Len(t, h.publisher.turns, 1)
	assert.Equal(t, models.TurnFailed, h.publisher.turns[0].Turn.Outcome)
	require.Len(t, h.history.saved, 1)
	assert.NotEmpty(t, h.history.saved[0].Error)
}

func TestController_EmptyTranscript_NotSubmitted(t *testing.T) {
	h := newHarness(t, nil)

	turn := h.speak(t, "")
	_, err := wait(t, turn)

	require.NoError(t, err)
	assert.Equal(t, models.TurnSkipped, turn.Outcome())
	assert.Empty(t, h.submitter.sent())
	assert.Zero(t, h.queue.Len())
}

func TestController_ForcedSeal_NotSubmitted(t *testing.T) {
	h := newHarness(t, nil)

	rec, err := h.ctrl.StartRecording(context.Background(), "abc123")
	require.NoError(t, err)
	rec.Push(models.RecognitionFragment{Text: "half", IsFinal: true})
	rec.Report(models.ErrorKindAudio, errors.New("mic unplugged"))

	turn, err := h.ctrl.StopRecording(context.Background())
	require.NoError(t, err)
	_, err = wait(t, turn)

	require.NoError(t, err)
	assert.Equal(t, models.TurnSkipped, turn.Outcome())
	assert.Empty(t, h.submitter.sent())
	require.Len(t, h.history.saved, 1)
	assert.Contains(t, h.history.saved[0].Error, "audio-capture")
}

func TestController_SingleActiveRecording(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.ctrl.StartRecording(context.Background(), "abc123")
	require.NoError(t, err)

	_, err = h.ctrl.StartRecording(context.Background(), "abc123")
	assert.ErrorIs(t, err, ErrRecordingActive)
}

func TestController_StopWithoutRecording(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.ctrl.StopRecording(context.Background())
	assert.ErrorIs(t, err, ErrNoRecording)
}

func TestController_RejectsRecordingWhileTurnInFlight(t *testing.T) {
	sub := &fakeSubmitter{block: make(chan struct{})}
	h := newHarness(t, sub)

	turn := h.speak(t, "first answer")
	require.Eventually(t, func() bool { return len(sub.sent()) == 1 }, time.Second, 5*time.Millisecond)

	_, err := h.ctrl.StartRecording(context.Background(), "abc123")
	assert.ErrorIs(t, err, ErrTurnInFlight)
	assert.Equal(t, turn, h.ctrl.InFlight())

	close(sub.block)
	_, err = wait(t, turn)
	require.NoError(t, err)

	_, err = h.ctrl.StartRecording(context.Background(), "abc123")
	assert.NoError(t, err)
}

func TestController_RunTurnRejectedWhileRecording(t *testing.T) {
	sub := &fakeSubmitter{block: make(chan struct{})}
	h := newHarness(t, sub)

	rec, err := h.ctrl.StartRecording(context.Background(), "abc123")
	require.NoError(t, err)
	require.NoError(t, rec.Push(models.RecognitionFragment{Text: "spoken", IsFinal: true}))

	_, err = h.ctrl.RunTurn(context.Background(), "typed", "abc123")
	assert.ErrorIs(t, err, ErrRecordingActive)

	spoken, err := h.ctrl.StopRecording(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(sub.sent()) == 1 }, time.Second, 5*time.Millisecond)

	_, err = h.ctrl.RunTurn(context.Background(), "typed", "abc123")
	assert.ErrorIs(t, err, ErrTurnInFlight)

	close(sub.block)
	_, err = wait(t, spoken)
	require.NoError(t, err)

	_, err = h.ctrl.RunTurn(context.Background(), "typed", "abc123")
	require.NoError(t, err)

	var order []string
	for h.queue.Len() > 0 {
		head, _ := h.queue.PeekHead()
		order = append(order, string(head.Audio))
		h.queue.AcknowledgeHead()
	}
	assert.Equal(t, []string{"spoken", "typed"}, order)
	assert.Len(t, sub.sent(), 2)
}

func TestController_StopRejectedWhileTurnInFlight(t *testing.T) {
	h := newHarness(t, nil)

	rec, err := h.ctrl.StartRecording(context.Background(), "abc123")
	require.NoError(t, err)
	require.NoError(t, rec.Push(models.RecognitionFragment{Text: "later", IsFinal: true}))

	pending := newTurn("abc123-pending", "abc123", "earlier")
	h.ctrl.mu.Lock()
	h.ctrl.inFlight = pending
	h.ctrl.mu.Unlock()

	_, err = h.ctrl.StopRecording(context.Background())
	assert.ErrorIs(t, err, ErrTurnInFlight)
	assert.Same(t, rec, h.ctrl.Recording(), "recording stays open")
	assert.Empty(t, h.submitter.sent())

	pending.finish(models.TurnEnqueued, nil, nil)
	turn, err := h.ctrl.StopRecording(context.Background())
	require.NoError(t, err)
	_, err = wait(t, turn)
	require.NoError(t, err)
	assert.Equal(t, "later", turn.Transcript)
}

func TestController_QueueOrderMatchesTurnOrder(t *testing.T) {
	h := newHarness(t, nil)

	for _, answer := range []string{"one", "two", "three"} {
		_, err := wait(t, h.speak(t, answer))
		require.NoError(t, err)
	}

	var got []string
	for h.queue.Len() > 0 {
		head, _ := h.queue.PeekHead()
		got = append(got, string(head.Audio))
		h.queue.AcknowledgeHead()
	}
	assert.Equal(t, []string{"one", "two", "three"}, got)
}

func TestController_ManualImageIsSticky(t *testing.T) {
	h := newHarness(t, nil)
	manual := models.ManualImage{Raster: []byte("\x89PNG\r\n\x1a\nuploaded"), ContentType: "image/png"}

	h.ctrl.SetManualImage(manual)
	for _, answer := range []string{"one", "two"} {
		_, err := h.ctrl.RunTurn(context.Background(), answer, "abc123")
		require.NoError(t, err)
	}
	h.ctrl.ClearManualImage()
	_, err := h.ctrl.RunTurn(context.Background(), "three", "abc123")
	require.NoError(t, err)

	sent := h.submitter.sent()
	require.Len(t, sent, 3)
	assert.Equal(t, manual.Raster, sent[0].Image)
	assert.Equal(t, manual.Raster, sent[1].Image)
	assert.NotEqual(t, manual.Raster, sent[2].Image)
	assert.Nil(t, h.ctrl.ManualImage())
}

func TestController_SurfaceIsCaptured(t *testing.T) {
	h := newHarness(t, nil)
	mirror := diagram.NewMirror(0)
	mirror.Update(diagram.BoardState{
		ShapeIDs: []string{"shape:1"},
		SVG:      `<svg xmlns="http://www.w3.org/2000/svg" width="40" height="30"><rect width="10" height="10"/></svg>`,
	})
	h.ctrl.SetSurface(mirror)

	_, err := h.ctrl.RunTurn(context.Background(), "with a drawing", "abc123")
	require.NoError(t, err)

	require.Len(t, h.history.saved, 1)
	assert.Equal(t, models.SourceAutoCapture.String(), h.history.saved[0].DiagramSource)
}

func TestController_EncodingFailure_SendsLastResort(t *testing.T) {
	sub := &fakeSubmitter{}
	h := newHarness(t, sub)
	h.ctrl.deps.Encoder = failingEncoder{}

	_, err := h.ctrl.RunTurn(context.Background(), "hello", "")
	require.NoError(t, err)

	sent := sub.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, imaging.LastResort(), sent[0].Image)
	assert.Equal(t, 1, h.queue.Len())
}

func TestController_AudioFailure_NothingEnqueued(t *testing.T) {
	sub := &fakeSubmitter{audioErr: &submission.NetworkError{Op: "fetch audio", Err: errors.New("reset")}}
	h := newHarness(t, sub)

	_, err := h.ctrl.RunTurn(context.Background(), "hello", "abc123")

	var nerr *submission.NetworkError
	assert.True(t, errors.As(err, &nerr))
	assert.Zero(t, h.queue.Len())
}

func TestController_TextOnlyReply(t *testing.T) {
	sub := &fakeSubmitter{reply: &models.FeedbackReply{FeedbackText: "no audio today", FacialExpression: "smile", Animation: "Talking"}}
	h := newHarness(t, sub)

	msg, err := h.ctrl.RunTurn(context.Background(), "hello", "abc123")

	require.NoError(t, err)
	assert.Equal(t, "no audio today", msg.Text)
	assert.Empty(t, msg.Audio)
	assert.Equal(t, 1, h.queue.Len())
}

func TestController_RunTurn_EmptyTranscript(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.ctrl.RunTurn(context.Background(), "", "abc123")
	assert.ErrorIs(t, err, ErrEmptyTranscript)
}

func TestController_UnsupportedEngine(t *testing.T) {
	ctrl := New(context.Background(), Deps{})

	_, err := ctrl.StartRecording(context.Background(), "abc123")
	assert.ErrorIs(t, err, speech.ErrUnsupported)
	assert.Equal(t, "none", ctrl.EngineName())
}

func TestController_TurnIDsAreScopedBySession(t *testing.T) {
	h := newHarness(t, nil)

	turn := h.speak(t, "hello")
	_, err := wait(t, turn)
	require.NoError(t, err)

	assert.Regexp(t, `^abc123-[0-9a-f]{8}-turn-1$`, turn.ID)
	assert.Equal(t, turn.ID, turn.Message().TurnID)
}
