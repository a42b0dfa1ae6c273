// Package schema validates analysis requests before sending and replies after parsing.
package schema

import (
	"bytes"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"interview-turn-service/internal/models"
)

// Validation errors.
var (
	ErrEmptyTranscript = errors.New("transcript is empty")
	ErrInvalidImage    = errors.New("image is not a PNG")
	ErrEmptyReply      = errors.New("reply has neither feedback text nor audio")
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// Validator checks analysis payloads.
type Validator struct{}

// New creates a validator.
func New() *Validator {
	return &Validator{}
}

// ValidateRequest rejects requests the backend would refuse.
func (v *Validator) ValidateRequest(req models.InterviewTurnRequest) error {
	if strings.TrimSpace(req.Transcript) == "" {
		return ErrEmptyTranscript
	}
	if !bytes.HasPrefix(req.Image, pngSignature) {
		return ErrInvalidImage
	}
	log.Debug().
		Int("transcriptLen", len(req.Transcript)).
		Int("imageBytes", len(req.Image)).
		Str("sessionCode", req.SessionCode).
		Msg("Request validated")
	return nil
}

// ValidateReply requires something the avatar can present.
func (v *Validator) ValidateReply(reply *models.FeedbackReply) error {
	if reply == nil || (strings.TrimSpace(reply.FeedbackText) == "" && reply.Audio == nil) {
		return ErrEmptyReply
	}
	return nil
}
