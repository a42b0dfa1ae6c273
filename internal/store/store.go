// Package store persists interview turn history.
package store

import (
	"context"

	"interview-turn-service/internal/models"
)

// DefaultListLimit caps ListTurns when the caller passes no limit.
const DefaultListLimit = 50

// Repository stores and lists completed turns.
type Repository interface {
	// SaveTurn inserts or replaces a turn record.
	SaveTurn(ctx context.Context, turn models.TurnRecord) error

	// ListTurns returns the most recent turns first. An empty sessionCode lists all sessions.
	ListTurns(ctx context.Context, sessionCode string, limit int) ([]models.TurnRecord, error)

	Ping(ctx context.Context) error
	Close() error
}

type nopRepository struct{}

// Nop returns a repository that keeps nothing, used when history is disabled.
func Nop() Repository {
	return nopRepository{}
}

func (nopRepository) SaveTurn(context.Context, models.TurnRecord) error { return nil }

func (nopRepository) ListTurns(context.Context, string, int) ([]models.TurnRecord, error) {
	return []models.TurnRecord{}, nil
}

func (nopRepository) Ping(context.Context) error { return nil }

func (nopRepository) Close() error { return nil }
