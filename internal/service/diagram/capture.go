// Package diagram produces one whiteboard snapshot per interview turn.
//
// Capture never fails. Sources are tried in priority order:
//
//	manual override ──► live whiteboard (SVG export) ──► blank placeholder
//
// A failing or panicking whiteboard export falls through to the placeholder.
package diagram

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"interview-turn-service/internal/models"
	"interview-turn-service/internal/observability/logging"
	"interview-turn-service/internal/observability/metrics"
)

// Surface is a drawing surface that can enumerate and export its shapes.
type Surface interface {
	// CurrentPageShapeIDs lists the shapes on the page currently shown.
	CurrentPageShapeIDs(ctx context.Context) ([]string, error)

	// ExportSVG exports the given shapes as a vector image.
	ExportSVG(ctx context.Context, ids []string) (*models.VectorImage, error)
}

// PlaceholderRenderer draws the blank-board image.
type PlaceholderRenderer interface {
	Placeholder(w, h int, label string) ([]byte, error)
}

// Config holds placeholder settings.
type Config struct {
	Width  int
	Height int
	Label  string
}

// DefaultConfig returns an 800x600 "No drawing" placeholder.
func DefaultConfig() Config {
	return Config{Width: 800, Height: 600, Label: "No drawing"}
}

// Capturer resolves the diagram for a turn.
type Capturer struct {
	cfg         Config
	placeholder PlaceholderRenderer
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

// NewCapturer creates a capturer that draws blanks with placeholder.
func NewCapturer(cfg Config, placeholder PlaceholderRenderer) *Capturer {
	return &Capturer{
		cfg:         cfg,
		placeholder: placeholder,
		metrics:     metrics.DefaultMetrics,
		log:         logging.WithComponent("diagram"),
	}
}

// Capture returns a fresh snapshot. manual, when set, wins over the surface.
func (c *Capturer) Capture(ctx context.Context, manual *models.ManualImage, surface Surface) models.DiagramSnapshot {
	if manual != nil && len(manual.Raster) > 0 {
		c.metrics.RecordCapture(models.SourceManual.String())
		return models.DiagramSnapshot{
			SourceKind: models.SourceManual,
			Raster:     manual.Raster,
			Width:      manual.Width,
			Height:     manual.Height,
		}
	}

	if surface != nil {
		vec, err := c.exportSurface(ctx, surface)
		switch {
		case err != nil:
			c.metrics.RecordCaptureFailure("export")
			c.log.Warn().Err(err).Msg("Whiteboard export failed, using placeholder")
		case vec != nil:
			c.metrics.RecordCapture(models.SourceAutoCapture.String())
			return models.DiagramSnapshot{
				SourceKind: models.SourceAutoCapture,
				Vector:     vec,
				Width:      vec.Width,
				Height:     vec.Height,
			}
		}
	}

	c.metrics.RecordCapture(models.SourceBlank.String())
	return c.blank()
}

// exportSurface returns nil, nil when the page has nothing to export.
func (c *Capturer) exportSurface(ctx context.Context, surface Surface) (vec *models.VectorImage, err error) {
	defer func() {
		if r := recover(); r != nil {
			vec, err = nil, fmt.Errorf("surface panic: %v", r)
		}
	}()

	ids, err := surface.CurrentPageShapeIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list shapes: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	vec, err = surface.ExportSVG(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("export svg: %w", err)
	}
	if vec == nil || len(vec.Markup) == 0 {
		return nil, fmt.Errorf("export svg: empty markup")
	}
	return vec, nil
}

func (c *Capturer) blank() models.DiagramSnapshot {
	snap := models.DiagramSnapshot{
		SourceKind: models.SourceBlank,
		Width:      c.cfg.Width,
		Height:     c.cfg.Height,
	}
	if c.placeholder == nil {
		return snap
	}
	raster, err := c.placeholder.Placeholder(c.cfg.Width, c.cfg.Height, c.cfg.Label)
	if err != nil {
		// Left empty; the encoder substitutes its last-resort image.
		c.metrics.RecordCaptureFailure("placeholder")
		c.log.Warn().Err(err).Msg("Placeholder render failed")
		return snap
	}
	snap.Raster = raster
	return snap
}
