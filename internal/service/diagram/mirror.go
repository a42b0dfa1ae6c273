package diagram

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"interview-turn-service/internal/models"
)

var (
	// ErrNothingToExport is returned by Mirror when no drawing has been pushed.
	ErrNothingToExport = errors.New("whiteboard has nothing to export")
	// ErrBoardTooLarge is returned by Update for a declared size beyond the mirror's limit.
	ErrBoardTooLarge = errors.New("whiteboard size exceeds limit")
)

// DefaultMaxSide bounds a pushed board's declared width and height.
const DefaultMaxSide = 4096

// BoardState is the whiteboard state the client last pushed.
type BoardState struct {
	ShapeIDs []string `json:"shapeIds"`
	SVG      string   `json:"svg"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
}

// Mirror implements Surface over the most recent state pushed by the client.
type Mirror struct {
	maxSide int

	mu    sync.RWMutex
	state BoardState
}

// NewMirror creates an empty mirror accepting boards up to maxSide per side.
// maxSide <= 0 means DefaultMaxSide.
func NewMirror(maxSide int) *Mirror {
	if maxSide <= 0 {
		maxSide = DefaultMaxSide
	}
	return &Mirror{maxSide: maxSide}
}

// MaxSide returns the largest accepted width or height.
func (m *Mirror) MaxSide() int {
	return m.maxSide
}

// Update replaces the mirrored state. A state declaring a side longer than
// MaxSide is rejected and the previous state kept.
func (m *Mirror) Update(state BoardState) error {
	if state.Width > m.maxSide || state.Height > m.maxSide {
		return fmt.Errorf("%w: %dx%d, limit %d", ErrBoardTooLarge, state.Width, state.Height, m.maxSide)
	}
	if state.Width < 0 || state.Height < 0 {
		state.Width, state.Height = 0, 0
	}
	state.ShapeIDs = slices.Clone(state.ShapeIDs)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	return nil
}

// Clear forgets the mirrored state.
func (m *Mirror) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = BoardState{}
}

// CurrentPageShapeIDs implements Surface.
func (m *Mirror) CurrentPageShapeIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.state.ShapeIDs), nil
}

// ExportSVG implements Surface. The client exports the whole current page,
// so ids only gates whether there is anything to export.
func (m *Mirror) ExportSVG(ctx context.Context, ids []string) (*models.VectorImage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(ids) == 0 || m.state.SVG == "" {
		return nil, ErrNothingToExport
	}
	return &models.VectorImage{
		Markup: []byte(m.state.SVG),
		Width:  m.state.Width,
		Height: m.state.Height,
	}, nil
}
