package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"interview-turn-service/internal/app"
	"interview-turn-service/internal/models"
	"interview-turn-service/internal/observability/logging"
	"interview-turn-service/internal/service/diagram"
	"interview-turn-service/internal/service/imaging"
	"interview-turn-service/internal/service/recording"
	"interview-turn-service/internal/service/speech"
	"interview-turn-service/internal/service/submission"
	"interview-turn-service/internal/service/turn"
	"interview-turn-service/internal/store"
)

const (
	maxJSONBody   = 1 << 20
	maxUploadBody = 10 << 20
)

type handler struct {
	app      *app.Application
	upgrader *websocket.Upgrader
	log      zerolog.Logger
}

func newHandler(a *app.Application) *handler {
	var origins []string
	if a.Cfg != nil {
		origins = a.Cfg.Service.AllowedOrigins
	}
	return &handler{
		app:      a,
		upgrader: newUpgrader(origins),
		log:      logging.WithComponent("http"),
	}
}

type errorBody struct {
	Error string `json:"error"`
}

type startRequest struct {
	SessionCode string `json:"sessionCode"`
}

type startResponse struct {
	RecordingID string `json:"recordingId"`
	SessionCode string `json:"sessionCode,omitempty"`
	Engine      string `json:"engine"`
}

type recordingResponse struct {
	RecordingID string           `json:"recordingId"`
	SessionCode string           `json:"sessionCode,omitempty"`
	State       string           `json:"state"`
	Utterance   models.Utterance `json:"utterance"`
}

type stopResponse struct {
	TurnID     string             `json:"turnId"`
	Transcript string             `json:"transcript"`
	Submitted  bool               `json:"submitted"`
	Outcome    models.TurnOutcome `json:"outcome,omitempty"`
	Error      string             `json:"error,omitempty"`
}

type fragmentsRequest struct {
	Fragments []models.RecognitionFragment `json:"fragments"`
}

type errorRequest struct {
	Kind    models.RecognitionErrorKind `json:"kind"`
	Message string                      `json:"message,omitempty"`
}

type turnRequest struct {
	Transcript  string `json:"transcript"`
	SessionCode string `json:"sessionCode"`
}

type ackResponse struct {
	Acknowledged bool `json:"acknowledged"`
	Remaining    int  `json:"remaining"`
}

func (h *handler) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.app.Ready(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (h *handler) speechInfo(w http.ResponseWriter, _ *http.Request) {
	name := h.app.Turns.EngineName()
	writeJSON(w, http.StatusOK, map[string]any{
		"engine":    name,
		"supported": name != speech.Unsupported().Name(),
	})
}

func (h *handler) startRecording(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	rec, err := h.app.Turns.StartRecording(r.Context(), req.SessionCode)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, startResponse{
		RecordingID: rec.ID(),
		SessionCode: rec.SessionCode(),
		Engine:      h.app.Turns.EngineName(),
	})
}

func (h *handler) currentRecording(w http.ResponseWriter, _ *http.Request) {
	rec := h.app.Turns.Recording()
	if rec == nil {
		h.fail(w, turn.ErrNoRecording)
		return
	}
	writeJSON(w, http.StatusOK, recordingResponse{
		RecordingID: rec.ID(),
		SessionCode: rec.SessionCode(),
		State:       rec.State().String(),
		Utterance:   rec.Utterance(),
	})
}

// stopRecording seals the active recording. With ?wait=true it blocks until
// the turn has been submitted and enqueued.
func (h *handler) stopRecording(w http.ResponseWriter, r *http.Request) {
	t, err := h.app.Turns.StopRecording(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}

	resp := stopResponse{
		TurnID:     t.ID,
		Transcript: t.Transcript,
		Submitted:  t.Transcript != "",
	}
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		if _, err := t.Wait(r.Context()); err != nil && r.Context().Err() == nil {
			resp.Error = err.Error()
		}
		resp.Outcome = t.Outcome()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) pushFragments(w http.ResponseWriter, r *http.Request) {
	var req fragmentsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec := h.app.Turns.Recording()
	if rec == nil {
		h.fail(w, turn.ErrNoRecording)
		return
	}
	if err := rec.Push(req.Fragments...); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) reportError(w http.ResponseWriter, r *http.Request) {
	var req errorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Kind == "" {
		writeError(w, http.StatusBadRequest, errors.New("kind is required"))
		return
	}
	rec := h.app.Turns.Recording()
	if rec == nil {
		h.fail(w, turn.ErrNoRecording)
		return
	}
	var cause error
	if req.Message != "" {
		cause = errors.New(req.Message)
	}
	if err := rec.Report(req.Kind, cause); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) setManualImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	manual, err := imaging.DecodeUpload(data, h.app.Mirror.MaxSide())
	if err != nil {
		writeError(w, http.StatusUnsupportedMediaType, err)
		return
	}
	h.app.Turns.SetManualImage(manual)

	h.log.Info().Int("width", manual.Width).Int("height", manual.Height).Msg("Manual diagram set")
	writeJSON(w, http.StatusOK, map[string]int{"width": manual.Width, "height": manual.Height})
}

func (h *handler) clearManualImage(w http.ResponseWriter, _ *http.Request) {
	h.app.Turns.ClearManualImage()
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) updateSurface(w http.ResponseWriter, r *http.Request) {
	var state diagram.BoardState
	if err := decodeJSON(r, &state); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.app.Mirror.Update(state); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) clearSurface(w http.ResponseWriter, _ *http.Request) {
	h.app.Mirror.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) queueHead(w http.ResponseWriter, _ *http.Request) {
	msg, ok := h.app.Queue.PeekHead()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *handler) queueAck(w http.ResponseWriter, _ *http.Request) {
	ok := h.app.Queue.AcknowledgeHead()
	writeJSON(w, http.StatusOK, ackResponse{Acknowledged: ok, Remaining: h.app.Queue.Len()})
}

func (h *handler) listTurns(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}

	turns, err := h.app.History.ListTurns(r.Context(), r.URL.Query().Get("sessionCode"), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

// runTurn submits a typed answer without recording and returns the enqueued message.
func (h *handler) runTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	msg, err := h.app.Turns.RunTurn(r.Context(), req.Transcript, req.SessionCode)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// fail maps pipeline errors to HTTP statuses.
func (h *handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	writeError(w, status, err)
}

func statusFor(err error) int {
	var statusErr *submission.StatusError
	var netErr *submission.NetworkError
	switch {
	case errors.Is(err, turn.ErrRecordingActive),
		errors.Is(err, turn.ErrTurnInFlight),
		errors.Is(err, recording.ErrAlreadyStopped),
		errors.Is(err, speech.ErrStreamClosed):
		return http.StatusConflict
	case errors.Is(err, turn.ErrNoRecording):
		return http.StatusNotFound
	case errors.Is(err, speech.ErrUnsupported):
		return http.StatusServiceUnavailable
	case errors.Is(err, turn.ErrEmptyTranscript),
		errors.Is(err, speech.ErrNotAccepted):
		return http.StatusBadRequest
	case errors.As(err, &statusErr), errors.As(err, &netErr),
		errors.Is(err, submission.ErrMalformedReply):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}
