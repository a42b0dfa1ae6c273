package models

import "encoding/json"

// InterviewTurnRequest is what gets submitted to the analysis backend for one turn.
type InterviewTurnRequest struct {
	Transcript  string
	SessionCode string
	Image       []byte // PNG
}

// AudioSource is either inline audio bytes or a reference to fetch them from.
type AudioSource interface {
	audioSource()
}

// InlineAudio carries base64-encoded audio delivered in the reply itself.
type InlineAudio struct {
	Base64 string
}

// ReferencedAudio points at audio that must be fetched with a follow-up request.
type ReferencedAudio struct {
	URL string
}

func (InlineAudio) audioSource()     {}
func (ReferencedAudio) audioSource() {}

// FeedbackReply is the parsed analysis response.
type FeedbackReply struct {
	FeedbackText     string
	Audio            AudioSource // nil when the backend sent no audio
	LipSync          json.RawMessage
	FacialExpression string
	Animation        string
}

// ResponseMessage is a playable item for the avatar.
// The JSON shape (audio as base64) is what the renderer consumes.
type ResponseMessage struct {
	TurnID           string          `json:"turnId,omitempty"`
	Text             string          `json:"text"`
	Audio            []byte          `json:"audio"`
	LipSync          json.RawMessage `json:"lipsync,omitempty"`
	FacialExpression string          `json:"facialExpression"`
	Animation        string          `json:"animation"`
}
