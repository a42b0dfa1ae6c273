// Package models defines the data structures that flow through an interview turn.
package models

// RecognitionFragment is one incremental speech-recognition result.
// Fragments are processed in arrival order; Sequence is informational only.
type RecognitionFragment struct {
	Text     string `json:"text"`
	IsFinal  bool   `json:"isFinal"`
	Sequence int    `json:"sequence"`
}

// Utterance is the accumulated transcript of the current recording.
type Utterance struct {
	FinalText   string `json:"finalText"`
	InterimText string `json:"interimText"`
}

// TranscriptPartial represents an interim transcript update for a recording.
type TranscriptPartial struct {
	EventType   string `json:"eventType"`
	RecordingID string `json:"recordingId"`
	SessionCode string `json:"sessionCode,omitempty"`
	Timestamp   int64  `json:"timestamp"`
	Sequence    int    `json:"sequence"`
	Text        string `json:"text"`
}

// TranscriptFinal represents a final fragment appended to the utterance.
type TranscriptFinal struct {
	EventType   string `json:"eventType"`
	RecordingID string `json:"recordingId"`
	SessionCode string `json:"sessionCode,omitempty"`
	Timestamp   int64  `json:"timestamp"`
	Sequence    int    `json:"sequence"`
	Text        string `json:"text"`
}

// RecognitionErrorKind classifies errors reported by a speech engine.
type RecognitionErrorKind string

const (
	// ErrorKindNoSpeech means no speech was detected. It does not end the recording.
	ErrorKindNoSpeech RecognitionErrorKind = "no-speech"
	ErrorKindAborted  RecognitionErrorKind = "aborted"
	ErrorKindAudio    RecognitionErrorKind = "audio-capture"
	ErrorKindNetwork  RecognitionErrorKind = "network"
	ErrorKindDenied   RecognitionErrorKind = "not-allowed"
	ErrorKindLimit    RecognitionErrorKind = "limit-exceeded"
	ErrorKindEngine   RecognitionErrorKind = "engine"
)

// IsRecoverable reports whether the recording may continue after this error.
func (k RecognitionErrorKind) IsRecoverable() bool {
	return k == ErrorKindNoSpeech
}
