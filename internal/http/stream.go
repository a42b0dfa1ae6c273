package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"interview-turn-service/internal/models"
	"interview-turn-service/internal/service/turn"
)

// Frame types on the recording stream.
const (
	frameFragments = "fragments"
	frameError     = "error"
	frameStop      = "stop"
	frameStopped   = "stopped"
)

const streamWriteTimeout = 5 * time.Second

// newUpgrader accepts cross-origin browsers only from allowed. With no
// allowed origins, gorilla's same-origin check applies; requests without an
// Origin header (non-browser clients) are accepted either way.
func newUpgrader(allowed []string) *websocket.Upgrader {
	u := &websocket.Upgrader{
		ReadBufferSize:  32 * 1024,
		WriteBufferSize: 4 * 1024,
	}
	if len(allowed) == 0 {
		return u
	}
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		origins[strings.ToLower(strings.TrimSuffix(o, "/"))] = struct{}{}
	}
	u.CheckOrigin = func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := origins[strings.ToLower(origin)]; ok {
			return true
		}
		parsed, err := url.Parse(origin)
		return err == nil && strings.EqualFold(parsed.Host, r.Host)
	}
	return u
}

// streamFrame is a text frame on the recording stream. Binary frames carry raw audio.
type streamFrame struct {
	Type      string                       `json:"type"`
	Fragments []models.RecognitionFragment `json:"fragments,omitempty"`
	Kind      models.RecognitionErrorKind  `json:"kind,omitempty"`
	Message   string                       `json:"message,omitempty"`
	TurnID    string                       `json:"turnId,omitempty"`
	Text      string                       `json:"transcript,omitempty"`
	Submitted bool                         `json:"submitted,omitempty"`
	Error     string                       `json:"error,omitempty"`
}

// stream feeds the active recording from a WebSocket until the client sends
// "stop" or disconnects. A disconnect without "stop" leaves the recording open.
func (h *handler) stream(w http.ResponseWriter, r *http.Request) {
	rec := h.app.Turns.Recording()
	if rec == nil {
		h.fail(w, turn.ErrNoRecording)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	log := h.log.With().Str("recordingId", rec.ID()).Logger()
	log.Info().Msg("Recording stream connected")

	reply := func(f streamFrame) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := conn.WriteJSON(f); err != nil {
			log.Debug().Err(err).Msg("Recording stream write failed")
			return false
		}
		return true
	}

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("Recording stream read ended")
			}
			return
		}

		if mt == websocket.BinaryMessage {
			if err := rec.SendAudio(r.Context(), data); err != nil {
				if !reply(streamFrame{Type: frameError, Error: err.Error()}) {
					return
				}
			}
			continue
		}

		var f streamFrame
		if err := json.Unmarshal(data, &f); err != nil {
			if !reply(streamFrame{Type: frameError, Error: "malformed frame: " + err.Error()}) {
				return
			}
			continue
		}

		switch f.Type {
		case frameFragments:
			err = rec.Push(f.Fragments...)
		case frameError:
			var cause error
			if f.Message != "" {
				cause = errors.New(f.Message)
			}
			err = rec.Report(f.Kind, cause)
		case frameStop:
			t, err := h.app.Turns.StopRecording(r.Context())
			if err != nil {
				reply(streamFrame{Type: frameError, Error: err.Error()})
				return
			}
			reply(streamFrame{
				Type:      frameStopped,
				TurnID:    t.ID,
				Text:      t.Transcript,
				Submitted: t.Transcript != "",
			})
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stopped"),
				time.Now().Add(streamWriteTimeout))
			return
		default:
			err = errors.New("unknown frame type " + f.Type)
		}
		if err != nil && !reply(streamFrame{Type: frameError, Error: err.Error()}) {
			return
		}
	}
}
