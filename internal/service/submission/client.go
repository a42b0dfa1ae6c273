// Package submission sends a finished turn to the interview analysis backend
// and normalizes the reply's audio.
package submission

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"interview-turn-service/internal/models"
	"interview-turn-service/internal/observability/logging"
	"interview-turn-service/internal/observability/metrics"
	"interview-turn-service/internal/schema"
)

var (
	// ErrMalformedReply is returned when the backend answers 2xx with an unreadable body.
	ErrMalformedReply = errors.New("malformed analysis reply")
	// ErrAudioTooLarge is returned when referenced audio exceeds the fetch limit.
	ErrAudioTooLarge = errors.New("reply audio exceeds size limit")
)

const (
	maxReplyBytes = 16 << 20
	maxAudioBytes = 64 << 20
	maxErrorBody  = 4 << 10
)

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: backend returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.StatusCode, e.Body)
}

// NetworkError is a transport-level failure (connect, timeout, reset).
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Config holds analysis backend settings.
type Config struct {
	BaseURL           string
	AnalyzePath       string
	Username          string
	Password          string
	Timeout           time.Duration
	DefaultExpression string
	DefaultAnimation  string
}

// Client talks to the analysis backend. It does not retry.
type Client struct {
	cfg       Config
	base      *url.URL
	http      *http.Client
	validator *schema.Validator
	metrics   *metrics.Metrics
	log       zerolog.Logger

	audioLimit int64
}

// New creates a client. A nil httpClient gets one with cfg.Timeout.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid analysis base URL %q", cfg.BaseURL)
	}
	if cfg.AnalyzePath == "" {
		cfg.AnalyzePath = "/interview/analyze"
	}
	if cfg.DefaultExpression == "" {
		cfg.DefaultExpression = "smile"
	}
	if cfg.DefaultAnimation == "" {
		cfg.DefaultAnimation = "Talking"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:       cfg,
		base:      base,
		http:      httpClient,
		validator: schema.New(),
		metrics:   metrics.DefaultMetrics,
		log:       logging.WithComponent("submission"),

		audioLimit: maxAudioBytes,
	}, nil
}

type analyzeReply struct {
	Feedback         string          `json:"feedback"`
	AudioBase64      string          `json:"audioBase64"`
	AudioURL         string          `json:"audioUrl"`
	LipSyncData      json.RawMessage `json:"lipSyncData"`
	FacialExpression string          `json:"facialExpression"`
	Animation        string          `json:"animation"`
}

// Submit sends transcript and image as one multipart request.
func (c *Client) Submit(ctx context.Context, req models.InterviewTurnRequest) (*models.FeedbackReply, error) {
	const op = "submit turn"
	start := time.Now()

	if err := c.validator.ValidateRequest(req); err != nil {
		c.metrics.RecordSubmission("invalid", 0)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	body, contentType, err := encodeMultipart(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(c.cfg.AnalyzePath), body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	requestID := c.authorize(httpReq)

	log := c.log.With().Str("requestId", requestID).Str("sessionCode", req.SessionCode).Logger()

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.RecordSubmission("network_error", time.Since(start).Seconds())
		log.Error().Err(err).Msg("Analysis request failed")
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.RecordSubmission("status_error", time.Since(start).Seconds())
		serr := &StatusError{Op: op, StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
		log.Error().Int("status", resp.StatusCode).Str("body", serr.Body).Msg("Analysis backend rejected turn")
		return nil, serr
	}

	var raw analyzeReply
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReplyBytes)).Decode(&raw); err != nil {
		c.metrics.RecordSubmission("malformed", time.Since(start).Seconds())
		return nil, fmt.Errorf("%s: %w: %v", op, ErrMalformedReply, err)
	}

	reply := c.toReply(raw)
	if err := c.validator.ValidateReply(reply); err != nil {
		c.metrics.RecordSubmission("malformed", time.Since(start).Seconds())
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c.metrics.RecordSubmission("ok", time.Since(start).Seconds())
	log.Info().
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Bool("inlineAudio", raw.AudioBase64 != "").
		Msg("Analysis reply received")
	return reply, nil
}

func (c *Client) toReply(raw analyzeReply) *models.FeedbackReply {
	reply := &models.FeedbackReply{
		FeedbackText:     raw.Feedback,
		LipSync:          raw.LipSyncData,
		FacialExpression: raw.FacialExpression,
		Animation:        raw.Animation,
	}
	switch {
	case raw.AudioBase64 != "":
		reply.Audio = models.InlineAudio{Base64: raw.AudioBase64}
	case raw.AudioURL != "":
		reply.Audio = models.ReferencedAudio{URL: raw.AudioURL}
	}
	if reply.FacialExpression == "" {
		reply.FacialExpression = c.cfg.DefaultExpression
	}
	if reply.Animation == "" {
		reply.Animation = c.cfg.DefaultAnimation
	}
	if string(reply.LipSync) == "null" {
		reply.LipSync = nil
	}
	return reply
}

// ResolveAudio turns either audio form into raw bytes. A nil source yields nil.
func (c *Client) ResolveAudio(ctx context.Context, src models.AudioSource) ([]byte, error) {
	switch a := src.(type) {
	case nil:
		return nil, nil
	case models.InlineAudio:
		data, err := base64.StdEncoding.DecodeString(a.Base64)
		c.metrics.RecordAudioFetch("inline", err)
		if err != nil {
			return nil, fmt.Errorf("decode inline audio: %w", err)
		}
		return data, nil
	case models.ReferencedAudio:
		data, err := c.fetch(ctx, a.URL)
		c.metrics.RecordAudioFetch("url", err)
		return data, err
	default:
		return nil, fmt.Errorf("unsupported audio source %T", src)
	}
}

func (c *Client) fetch(ctx context.Context, ref string) ([]byte, error) {
	const op = "fetch audio"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(ref), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.audioLimit+1))
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	if int64(len(data)) > c.audioLimit {
		return nil, fmt.Errorf("%s: %w (%d bytes)", op, ErrAudioTooLarge, c.audioLimit)
	}
	return data, nil
}

// resolve makes ref absolute against the base URL.
func (c *Client) resolve(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if !u.IsAbs() && !strings.HasPrefix(ref, "/") && c.base.Path != "" {
		// Keep relative paths under a base URL that has its own path prefix.
		u.Path = strings.TrimSuffix(c.base.Path, "/") + "/" + u.Path
	}
	return c.base.ResolveReference(u).String()
}

// authorize attaches a fresh request ID, and credentials when req targets the backend origin.
func (c *Client) authorize(req *http.Request) string {
	if c.cfg.Username != "" && c.sameOrigin(req.URL) {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	} else if c.cfg.Username != "" {
		c.log.Debug().Str("host", req.URL.Host).Msg("Withholding credentials from foreign host")
	}
	id := uuid.NewString()
	req.Header.Set("X-Request-ID", id)
	return id
}

func (c *Client) sameOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, c.base.Scheme) && strings.EqualFold(u.Host, c.base.Host)
}

func encodeMultipart(req models.InterviewTurnRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("audio_text", req.Transcript); err != nil {
		return nil, "", err
	}
	if req.SessionCode != "" {
		if err := w.WriteField("session_code", req.SessionCode); err != nil {
			return nil, "", err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="whiteboard.png"`)
	h.Set("Content-Type", "image/png")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Image); err != nil {
		return nil, "", err
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(b))
}
