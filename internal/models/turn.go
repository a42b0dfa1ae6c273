package models

import "time"

// TurnOutcome is the terminal status of a turn.
type TurnOutcome string

const (
	TurnEnqueued TurnOutcome = "enqueued"
	TurnSkipped  TurnOutcome = "skipped" // empty transcript, nothing submitted
	TurnFailed   TurnOutcome = "failed"
)

// TurnRecord is the persisted summary of one turn.
type TurnRecord struct {
	TurnID        string      `json:"turnId"`
	SessionCode   string      `json:"sessionCode"`
	Transcript    string      `json:"transcript"`
	FeedbackText  string      `json:"feedbackText,omitempty"`
	DiagramSource string      `json:"diagramSource"`
	Outcome       TurnOutcome `json:"outcome"`
	Error         string      `json:"error,omitempty"`
	StartedAt     time.Time   `json:"startedAt"`
	FinishedAt    time.Time   `json:"finishedAt"`
}

// TurnCompleted is the event published when a turn reaches a terminal state.
type TurnCompleted struct {
	EventType string     `json:"eventType"`
	Timestamp int64      `json:"timestamp"`
	Turn      TurnRecord `json:"turn"`
}
