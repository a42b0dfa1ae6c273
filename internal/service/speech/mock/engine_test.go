package mock

import (
	"context"
	"sync"
	"testing"
	"time"

	"interview-turn-service/internal/models"
	"interview-turn-service/internal/service/speech"
)

func collect(t *testing.T, events <-chan speech.Event) []models.RecognitionFragment {
	t.Helper()
	var out []models.RecognitionFragment
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev.Fragments...)
		case <-timeout:
			t.Fatal("timed out waiting for stream to close")
			return out
		}
	}
}

func TestEngine_Name(t *testing.T) {
	if New(0).Name() != "mock" {
		t.Error("expected engine name 'mock'")
	}
}

func TestStream_SendAudio_EmitsPartialsThenFinal(t *testing.T) {
	engine := New(0)
	s, err := engine.Open(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stream := s.(*Stream)
	utt := stream.Utterance()

	for i := 0; i < len(utt.Partials)+3; i++ {
		if err := stream.SendAudio(context.Background(), []byte("audio")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	stream.Close()

	frags := collect(t, stream.Events())
	if len(frags) != len(utt.Partials)+1 {
		t.Fatalf("expected %d fragments, got %d", len(utt.Partials)+1, len(frags))
	}
	for i, p := range utt.Partials {
		if frags[i].IsFinal || frags[i].Text != p {
			t.Errorf("fragment %d: expected interim %q, got %+v", i, p, frags[i])
		}
	}
	last := frags[len(frags)-1]
	if !last.IsFinal || last.Text != utt.Final {
		t.Errorf("expected final %q, got %+v", utt.Final, last)
	}
}

func TestStream_Close_SendsFinalIfStarted(t *testing.T) {
	s, _ := New(0).Open(context.Background())
	stream := s.(*Stream)

	stream.SendAudio(context.Background(), []byte("audio"))
	stream.Close()

	frags := collect(t, stream.Events())
	if len(frags) != 2 {
		t.Fatalf("expected partial + final, got %d fragments", len(frags))
	}
	if !frags[1].IsFinal {
		t.Error("expected final delivered on close")
	}
}

func TestStream_Close_WithoutAudio_SendsNothing(t *testing.T) {
	s, _ := New(0).Open(context.Background())
	s.Close()

	if frags := collect(t, s.Events()); len(frags) != 0 {
		t.Errorf("expected no fragments, got %d", len(frags))
	}
}

func TestStream_Close_Idempotent(t *testing.T) {
	s, _ := New(0).Open(context.Background())
	s.Close()
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}
}

func TestStream_SendAudio_AfterClose(t *testing.T) {
	s, _ := New(0).Open(context.Background())
	stream := s.(*Stream)
	stream.Close()

	// Should not panic or error
	if err := stream.SendAudio(context.Background(), []byte("audio")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStream_TimerDriven(t *testing.T) {
	s, _ := New(5 * time.Millisecond).Open(context.Background())
	stream := s.(*Stream)

	time.Sleep(100 * time.Millisecond)
	stream.Close()

	frags := collect(t, stream.Events())
	if len(frags) == 0 || !frags[len(frags)-1].IsFinal {
		t.Fatalf("expected timer-driven fragments ending in a final, got %+v", frags)
	}
}

func TestStream_ContextCancelCloses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, _ := New(0).Open(ctx)
	cancel()

	collect(t, s.Events())
}

func TestEngine_CyclesThroughUtterances(t *testing.T) {
	engine := New(0)
	s1, _ := engine.Open(context.Background())
	s2, _ := engine.Open(context.Background())
	defer s1.Close()
	defer s2.Close()

	if s1.(*Stream).Utterance().Final == s2.(*Stream).Utterance().Final {
		t.Error("expected consecutive streams to simulate different answers")
	}
}

func TestDefaultUtterances(t *testing.T) {
	if len(DefaultUtterances) != 5 {
		t.Errorf("expected 5 default utterances, got %d", len(DefaultUtterances))
	}
	for i, utt := range DefaultUtterances {
		if len(utt.Partials) == 0 {
			t.Errorf("utterance %d has no partials", i)
		}
		if utt.Final == "" {
			t.Errorf("utterance %d has empty final", i)
		}
	}
}

func TestStream_ThreadSafety(t *testing.T) {
	s, _ := New(0).Open(context.Background())
	stream := s.(*Stream)

	go collect(t, stream.Events())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				stream.SendAudio(context.Background(), []byte("audio"))
			}
		}()
	}
	wg.Wait()
	stream.Close()
}
