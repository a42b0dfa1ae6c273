package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interview-turn-service/internal/models"
)

const boxSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="200" height="100" viewBox="0 0 200 100">
  <rect x="80" y="30" width="40" height="40" fill="#000000"/>
</svg>`

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func isWhite(c color.Color) bool {
	r, g, b, a := c.RGBA()
	return r == 0xffff && g == 0xffff && b == 0xffff && a == 0xffff
}

func TestToRaster_RasterPassesThrough(t *testing.T) {
	enc := New(800, 600)
	raster := []byte("\x89PNG\r\n\x1a\nnot-really-a-png")

	out, err := enc.ToRaster(models.DiagramSnapshot{SourceKind: models.SourceManual, Raster: raster})

	require.NoError(t, err)
	assert.Equal(t, raster, out)
}

func TestToRaster_EmptyRaster(t *testing.T) {
	_, err := New(800, 600).ToRaster(models.DiagramSnapshot{SourceKind: models.SourceBlank})

	assert.True(t, errors.Is(err, ErrEncoding))
}

func TestToRaster_VectorUsesDeclaredSize(t *testing.T) {
	enc := New(800, 600)
	snap := models.DiagramSnapshot{
		SourceKind: models.SourceAutoCapture,
		Vector:     &models.VectorImage{Markup: []byte(boxSVG), Width: 400, Height: 200},
	}

	out, err := enc.ToRaster(snap)
	require.NoError(t, err)

	img := decode(t, out)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
	assert.True(t, isWhite(img.At(0, 0)), "background should be opaque white")
	assert.False(t, isWhite(img.At(200, 100)), "center should be covered by the box")
}

func TestToRaster_VectorFallsBackToRootAttributes(t *testing.T) {
	snap := models.DiagramSnapshot{
		SourceKind: models.SourceAutoCapture,
		Vector:     &models.VectorImage{Markup: []byte(boxSVG)},
	}

	out, err := New(800, 600).ToRaster(snap)
	require.NoError(t, err)

	img := decode(t, out)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())
}

func TestToRaster_VectorFallsBackToDefaultSize(t *testing.T) {
	markup := `<svg xmlns="http://www.w3.org/2000/svg"><circle cx="10" cy="10" r="5"/></svg>`
	snap := models.DiagramSnapshot{
		SourceKind: models.SourceAutoCapture,
		Vector:     &models.VectorImage{Markup: []byte(markup)},
	}

	out, err := New(800, 600).ToRaster(snap)
	require.NoError(t, err)

	img := decode(t, out)
	assert.Equal(t, 800, img.Bounds().Dx())
	assert.Equal(t, 600, img.Bounds().Dy())
}

func TestToRaster_OversizedVectorIsScaledDown(t *testing.T) {
	enc := New(800, 600).WithMaxSide(64)

	for name, snap := range map[string]models.DiagramSnapshot{
		"declared by client": {
			SourceKind: models.SourceAutoCapture,
			Vector:     &models.VectorImage{Markup: []byte(boxSVG), Width: 50000, Height: 25000},
		},
		"declared by root": {
			SourceKind: models.SourceAutoCapture,
			Vector: &models.VectorImage{Markup: []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="50000" height="25000">` +
				`<rect x="20000" y="7500" width="10000" height="10000"/></svg>`)},
		},
	} {
		t.Run(name, func(t *testing.T) {
			out, err := enc.ToRaster(snap)
			require.NoError(t, err)

			img := decode(t, out)
			assert.Equal(t, 64, img.Bounds().Dx())
			assert.Equal(t, 32, img.Bounds().Dy())
			assert.True(t, isWhite(img.At(0, 0)))
			assert.False(t, isWhite(img.At(32, 16)), "drawing should be scaled, not cropped")
		})
	}
}

func TestPlaceholder_ClampedToMaxSide(t *testing.T) {
	out, err := New(800, 600).WithMaxSide(100).Placeholder(1000, 200, "No drawing")
	require.NoError(t, err)

	img := decode(t, out)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 20, img.Bounds().Dy())
}

func TestToRaster_InvalidVector(t *testing.T) {
	tests := []struct {
		name   string
		markup string
	}{
		{"empty", ""},
		{"whitespace", "   \n"},
		{"truncated", `<svg xmlns="http://www.w3.org/2000/svg"><rect`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := models.DiagramSnapshot{
				SourceKind: models.SourceAutoCapture,
				Vector:     &models.VectorImage{Markup: []byte(tt.markup)},
			}
			_, err := New(800, 600).ToRaster(snap)
			assert.True(t, errors.Is(err, ErrEncoding), "got %v", err)
		})
	}
}

func TestPlaceholder(t *testing.T) {
	out, err := New(800, 600).Placeholder(320, 240, "No drawing")
	require.NoError(t, err)

	img := decode(t, out)
	require.Equal(t, image.Rect(0, 0, 320, 240), img.Bounds())
	assert.True(t, isWhite(img.At(0, 0)))

	inked := 0
	for y := 100; y < 140; y++ {
		for x := 100; x < 220; x++ {
			if !isWhite(img.At(x, y)) {
				inked++
			}
		}
	}
	assert.Greater(t, inked, 0, "label should be drawn near the center")
}

func TestPlaceholder_DefaultSize(t *testing.T) {
	out, err := New(640, 480).Placeholder(0, 0, "")
	require.NoError(t, err)

	img := decode(t, out)
	assert.Equal(t, 640, img.Bounds().Dx())
	assert.Equal(t, 480, img.Bounds().Dy())
}

func TestLastResort(t *testing.T) {
	out := LastResort()
	img := decode(t, out)

	assert.Equal(t, image.Rect(0, 0, 1, 1), img.Bounds())
	assert.True(t, isWhite(img.At(0, 0)))

	out[0] = 0
	assert.NotEqual(t, out[0], LastResort()[0], "callers must not share the cached bytes")
}

func TestParseLength(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"800", 800},
		{"800px", 800},
		{" 12.5 ", 13},
		{"50%", 0},
		{"10cm", 0},
		{"-4", 0},
		{"", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLength(tt.in))
		})
	}
}
