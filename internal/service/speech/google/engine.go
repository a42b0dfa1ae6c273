// Package google provides a Google Cloud Speech-to-Text engine.
package google

import (
	"context"
	"errors"
	"io"
	"sync"

	gspeech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"interview-turn-service/internal/models"
	"interview-turn-service/internal/service/speech"
)

// Config holds Google STT configuration.
type Config struct {
	LanguageCode    string
	SampleRateHz    int32
	InterimResults  bool
	AudioEncoding   string
	MaxAlternatives int32
}

// DefaultConfig returns sensible defaults for browser microphone audio.
func DefaultConfig() Config {
	return Config{
		LanguageCode:    "en-US",
		SampleRateHz:    16000,
		InterimResults:  true,
		AudioEncoding:   "LINEAR16",
		MaxAlternatives: 1,
	}
}

// recognizeStream is the subset of the streaming RPC used by a session.
type recognizeStream interface {
	Send(*speechpb.StreamingRecognizeRequest) error
	Recv() (*speechpb.StreamingRecognizeResponse, error)
	CloseSend() error
}

// Engine implements speech.Engine using Google Cloud Speech-to-Text.
type Engine struct {
	client *gspeech.Client
	cfg    Config
	log    zerolog.Logger
}

// New creates a new Google STT engine.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Engine, error) {
	c, err := gspeech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Engine{client: c, cfg: cfg, log: log}, nil
}

// Name returns the engine identifier.
func (e *Engine) Name() string {
	return "google"
}

// Open begins a streaming recognition session and sends the initial config.
func (e *Engine) Open(ctx context.Context) (speech.Stream, error) {
	rpc, err := e.client.StreamingRecognize(ctx)
	if err != nil {
		return nil, err
	}
	if err := rpc.Send(configRequest(e.cfg)); err != nil {
		return nil, err
	}

	s := newStream(rpc, e.log)
	go s.listen()
	return s, nil
}

// Shutdown releases the underlying client connection.
func (e *Engine) Shutdown() error {
	return e.client.Close()
}

func configRequest(cfg Config) *speechpb.StreamingRecognizeRequest {
	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   parseAudioEncoding(cfg.AudioEncoding),
					SampleRateHertz:            cfg.SampleRateHz,
					LanguageCode:               cfg.LanguageCode,
					MaxAlternatives:            cfg.MaxAlternatives,
					EnableAutomaticPunctuation: true,
				},
				InterimResults:  cfg.InterimResults,
				SingleUtterance: false,
			},
		},
	}
}

// parseAudioEncoding converts a string to the Google Speech encoding enum.
// Unknown values fall back to LINEAR16.
func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	if v, ok := speechpb.RecognitionConfig_AudioEncoding_value[s]; ok && v != 0 {
		return speechpb.RecognitionConfig_AudioEncoding(v)
	}
	return speechpb.RecognitionConfig_LINEAR16
}

// Stream is one recognition session against the streaming RPC.
type Stream struct {
	rpc  recognizeStream
	pipe *speech.Pipe
	log  zerolog.Logger

	mu       sync.Mutex
	sendDone bool
	seq      int
}

func newStream(rpc recognizeStream, log zerolog.Logger) *Stream {
	return &Stream{rpc: rpc, pipe: speech.NewPipe(0), log: log}
}

// Events implements speech.Stream.
func (s *Stream) Events() <-chan speech.Event {
	return s.pipe.Events()
}

// SendAudio sends audio bytes to Google Speech-to-Text.
func (s *Stream) SendAudio(ctx context.Context, audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendDone {
		return speech.ErrStreamClosed
	}
	return s.rpc.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Close half-closes the RPC. Results already in flight are still delivered;
// the event channel closes once the server finishes.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendDone {
		return nil
	}
	s.sendDone = true
	return s.rpc.CloseSend()
}

// listen receives responses until the server ends the stream. Audio sent
// after that fails with speech.ErrStreamClosed.
func (s *Stream) listen() {
	defer s.pipe.Close()
	defer func() {
		s.mu.Lock()
		s.sendDone = true
		s.mu.Unlock()
	}()
	for {
		resp, err := s.rpc.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			kind := errorKind(err)
			s.log.Warn().Err(err).Str("kind", string(kind)).Msg("recognition stream failed")
			s.pipe.Report(kind, err)
			return
		}
		if batch := s.batch(resp); len(batch) > 0 {
			s.pipe.Push(batch...)
		}
	}
}

func (s *Stream) batch(resp *speechpb.StreamingRecognizeResponse) []models.RecognitionFragment {
	var out []models.RecognitionFragment
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		out = append(out, models.RecognitionFragment{
			Text:     r.GetAlternatives()[0].GetTranscript(),
			IsFinal:  r.GetIsFinal(),
			Sequence: s.seq,
		})
		s.seq++
	}
	return out
}

// errorKind maps gRPC status codes to recognition error kinds.
func errorKind(err error) models.RecognitionErrorKind {
	switch status.Code(err) {
	case codes.Canceled:
		return models.ErrorKindAborted
	case codes.Unavailable, codes.DeadlineExceeded:
		return models.ErrorKindNetwork
	case codes.PermissionDenied, codes.Unauthenticated:
		return models.ErrorKindDenied
	case codes.OutOfRange:
		// Google ends a stream past its maximum duration with OUT_OF_RANGE.
		return models.ErrorKindLimit
	default:
		return models.ErrorKindEngine
	}
}
