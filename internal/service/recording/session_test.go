package recording

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"interview-turn-service/internal/models"
	"interview-turn-service/internal/service/speech"
	"interview-turn-service/internal/service/speech/mock"
	"interview-turn-service/internal/service/speech/push"
	"interview-turn-service/internal/service/transcript"
)

// testPublisher records published events.
type testPublisher struct {
	mu       sync.Mutex
	partials []models.TranscriptPartial
	finals   []models.TranscriptFinal
}

func (p *testPublisher) PublishPartial(ctx context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.partials = append(p.partials, event.(models.TranscriptPartial))
	return nil
}

func (p *testPublisher) PublishFinal(ctx context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finals = append(p.finals, event.(models.TranscriptFinal))
	return nil
}

func interim(text string) models.RecognitionFragment {
	return models.RecognitionFragment{Text: text}
}

func final(text string) models.RecognitionFragment {
	return models.RecognitionFragment{Text: text, IsFinal: true}
}

func startPush(t *testing.T, limits Limits, pub Publisher) *Session {
	t.Helper()
	s, err := Start(context.Background(), push.New(0), "abc123", pub, limits)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return s
}

func TestSession_SealsFinalAndPendingInterim(t *testing.T) {
	pub := &testPublisher{}
	s := startPush(t, DefaultLimits(), pub)

	s.Push(interim("design"))
	s.Push(final("Design a cache"))
	s.Push(interim("with eviction"))

	seal, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if seal.Text != "Design a cache with eviction" {
		t.Errorf("expected sealed text 'Design a cache with eviction', got %q", seal.Text)
	}
	if seal.Forced {
		t.Error("expected a normal seal")
	}
	if s.State() != transcript.StateSealed {
		t.Errorf("expected SEALED, got %s", s.State())
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.partials) != 3 {
		t.Errorf("expected 3 partial events, got %d", len(pub.partials))
	}
	if len(pub.finals) != 1 || pub.finals[0].Text != seal.Text {
		t.Errorf("expected one final event with sealed text, got %+v", pub.finals)
	}
	if pub.finals[0].SessionCode != "abc123" || pub.finals[0].RecordingID != s.ID() {
		t.Errorf("unexpected final event identity: %+v", pub.finals[0])
	}
}

func TestSession_StopTwice(t *testing.T) {
	s := startPush(t, DefaultLimits(), nil)

	if _, err := s.Stop(); err != nil {
		t.Fatalf("first Stop failed: %v", err)
	}
	if _, err := s.Stop(); err != ErrAlreadyStopped {
		t.Errorf("expected ErrAlreadyStopped, got %v", err)
	}
}

func TestSession_EmptyRecording_NoFinalEvent(t *testing.T) {
	pub := &testPublisher{}
	s := startPush(t, DefaultLimits(), pub)

	seal, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if seal.Text != "" {
		t.Errorf("expected empty seal, got %q", seal.Text)
	}
	if len(pub.finals) != 0 {
		t.Errorf("expected no final event for empty seal, got %d", len(pub.finals))
	}
}

func TestSession_EngineError_ForcesEmptySeal(t *testing.T) {
	s := startPush(t, DefaultLimits(), nil)

	s.Push(final("half an answer"))
	s.Report(models.ErrorKindNetwork, errors.New("connection reset"))

	seal, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !seal.Forced || seal.Text != "" {
		t.Errorf("expected forced empty seal, got %+v", seal)
	}
}

func TestSession_NoSpeech_Ignored(t *testing.T) {
	s := startPush(t, DefaultLimits(), nil)

	s.Push(final("still here"))
	s.Report(models.ErrorKindNoSpeech, nil)
	s.Push(final("after silence"))

	seal, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if seal.Text != "still here after silence" {
		t.Errorf("expected no-speech to be ignored, got %q", seal.Text)
	}
}

func TestSession_MaxFragmentsLimit(t *testing.T) {
	limits := Limits{MaxFragments: 2, MaxDuration: time.Hour}
	s := startPush(t, limits, nil)

	s.Push(interim("one"))
	s.Push(interim("one two"))
	s.Push(interim("one two three")) // one too many

	seal, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !seal.Forced || seal.Text != "" {
		t.Fatalf("expected forced empty seal, got %+v", seal)
	}
	if !errors.Is(seal.Cause, ErrLimitExceeded) {
		t.Errorf("expected ErrLimitExceeded cause, got %v", seal.Cause)
	}
}

func TestSession_MaxDurationLimit(t *testing.T) {
	limits := Limits{MaxFragments: 1000, MaxDuration: 20 * time.Millisecond}
	s := startPush(t, limits, nil)

	s.Push(final("a long answer"))
	time.Sleep(80 * time.Millisecond)

	if s.State() != transcript.StateSealed {
		t.Fatalf("expected SEALED after duration limit, got %s", s.State())
	}
	seal, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !errors.Is(seal.Cause, ErrLimitExceeded) {
		t.Errorf("expected ErrLimitExceeded cause, got %v", seal.Cause)
	}
}

func TestSession_InputRouting(t *testing.T) {
	s := startPush(t, DefaultLimits(), nil)
	defer s.Stop()

	if err := s.SendAudio(context.Background(), []byte{0, 1}); err != speech.ErrNotAccepted {
		t.Errorf("expected ErrNotAccepted for audio on a push stream, got %v", err)
	}

	m, err := Start(context.Background(), mock.New(0), "", nil, DefaultLimits())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()
	if err := m.Push(final("x")); err != speech.ErrNotAccepted {
		t.Errorf("expected ErrNotAccepted for fragments on an audio stream, got %v", err)
	}
	if err := m.Report(models.ErrorKindAborted, nil); err != speech.ErrNotAccepted {
		t.Errorf("expected ErrNotAccepted for errors on an audio stream, got %v", err)
	}
}

func TestSession_MockEngine_AudioDriven(t *testing.T) {
	s, err := Start(context.Background(), mock.New(0), "abc123", nil, DefaultLimits())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.SendAudio(context.Background(), make([]byte, 320)); err != nil {
			t.Fatalf("SendAudio failed: %v", err)
		}
	}
	if stats := s.Stats(); stats.AudioBytes != 640 {
		t.Errorf("expected 640 audio bytes, got %d", stats.AudioBytes)
	}

	seal, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if seal.Text != mock.DefaultUtterances[0].Final {
		t.Errorf("expected mock final %q, got %q", mock.DefaultUtterances[0].Final, seal.Text)
	}
	if err := s.SendAudio(context.Background(), []byte{1}); err != ErrAlreadyStopped {
		t.Errorf("expected ErrAlreadyStopped after stop, got %v", err)
	}
}

func TestStart_UnsupportedEngine(t *testing.T) {
	_, err := Start(context.Background(), speech.Unsupported(), "", nil, DefaultLimits())
	if err != speech.ErrUnsupported {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestDefaultLimits(t *testing.T) {
	limits := DefaultLimits()

	if limits.MaxFragments != 2000 {
		t.Errorf("expected default max fragments 2000, got %d", limits.MaxFragments)
	}
	if limits.MaxDuration != 10*time.Minute {
		t.Errorf("expected default max duration 10m, got %v", limits.MaxDuration)
	}
	if limits.DrainTimeout != 2*time.Second {
		t.Errorf("expected default drain timeout 2s, got %v", limits.DrainTimeout)
	}
}
