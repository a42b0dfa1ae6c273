// Package imaging converts diagram snapshots into PNG bytes for submission.
package imaging

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"interview-turn-service/internal/models"
)

// ErrEncoding is returned when a snapshot cannot be turned into a non-empty PNG.
var ErrEncoding = errors.New("diagram encoding failed")

// Default render size when neither the snapshot nor the SVG declares one.
const (
	DefaultWidth  = 800
	DefaultHeight = 600

	// DefaultMaxSide bounds either side of a rendered image.
	DefaultMaxSide = 4096
)

// Encoder rasterizes diagram snapshots.
type Encoder struct {
	width   int
	height  int
	maxSide int
}

// New creates an encoder with the given fallback render size.
func New(width, height int) *Encoder {
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	e := &Encoder{maxSide: DefaultMaxSide}
	e.width, e.height = e.fit(width, height)
	return e
}

// WithMaxSide sets the largest side a render may have. Larger declared sizes
// are scaled down to fit, keeping the aspect ratio.
func (e *Encoder) WithMaxSide(n int) *Encoder {
	if n > 0 {
		e.maxSide = n
		e.width, e.height = e.fit(e.width, e.height)
	}
	return e
}

// fit scales w x h down so neither side exceeds maxSide.
func (e *Encoder) fit(w, h int) (int, int) {
	if w <= e.maxSide && h <= e.maxSide {
		return w, h
	}
	scale := float64(e.maxSide) / float64(max(w, h))
	return max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale))
}

// ToRaster returns PNG bytes for the snapshot. Raster snapshots pass through
// unchanged; vector snapshots are rendered over an opaque white background.
func (e *Encoder) ToRaster(snap models.DiagramSnapshot) ([]byte, error) {
	if !snap.IsVector() {
		if len(snap.Raster) == 0 {
			return nil, fmt.Errorf("%w: empty raster", ErrEncoding)
		}
		return snap.Raster, nil
	}

	w, h := snap.Vector.Width, snap.Vector.Height
	if w <= 0 || h <= 0 {
		w, h = snap.Width, snap.Height
	}
	return e.renderSVG(snap.Vector.Markup, w, h)
}

func (e *Encoder) renderSVG(markup []byte, w, h int) (out []byte, err error) {
	if len(bytes.TrimSpace(markup)) == 0 {
		return nil, fmt.Errorf("%w: empty markup", ErrEncoding)
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: render panic: %v", ErrEncoding, r)
		}
	}()

	icon, err := oksvg.ReadIconStream(bytes.NewReader(markup), oksvg.WarnErrorMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}

	if w <= 0 || h <= 0 {
		w, h = rootSize(markup)
	}
	if (w <= 0 || h <= 0) && icon.ViewBox.W > 0 && icon.ViewBox.H > 0 {
		w, h = int(icon.ViewBox.W+0.5), int(icon.ViewBox.H+0.5)
	}
	if w <= 0 || h <= 0 {
		w, h = e.width, e.height
	}

	if icon.ViewBox.W <= 0 || icon.ViewBox.H <= 0 {
		icon.ViewBox.X, icon.ViewBox.Y = 0, 0
		icon.ViewBox.W, icon.ViewBox.H = float64(w), float64(h)
	}
	w, h = e.fit(w, h)

	img := whiteCanvas(w, h)
	icon.SetTarget(0, 0, float64(w), float64(h))
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1.0)

	return encodePNG(img)
}

// Placeholder renders a white image with label centered on it.
func (e *Encoder) Placeholder(w, h int, label string) ([]byte, error) {
	if w <= 0 || h <= 0 {
		w, h = e.width, e.height
	}
	w, h = e.fit(w, h)
	img := whiteCanvas(w, h)

	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Gray{Y: 0x70}),
		Face: face,
	}
	ascent := face.Metrics().Ascent.Ceil()
	d.Dot = fixed.Point26_6{
		X: (fixed.I(w) - d.MeasureString(label)) / 2,
		Y: fixed.I((h + ascent) / 2),
	}
	d.DrawString(label)

	return encodePNG(img)
}

var lastResort = sync.OnceValue(func() []byte {
	out, err := encodePNG(whiteCanvas(1, 1))
	if err != nil {
		panic(err)
	}
	return out
})

// LastResort returns a 1x1 white PNG, sent when nothing else could be encoded.
func LastResort() []byte {
	return bytes.Clone(lastResort())
}

func whiteCanvas(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	return img
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	if buf.Len() == 0 {
		return nil, ErrEncoding
	}
	return buf.Bytes(), nil
}

// rootSize reads width and height from the root <svg> element.
// Units other than px are not resolved and yield zero.
func rootSize(markup []byte) (int, int) {
	dec := xml.NewDecoder(bytes.NewReader(markup))
	for {
		tok, err := dec.Token()
		if err != nil {
			return 0, 0
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		var w, h int
		for _, a := range start.Attr {
			switch a.Name.Local {
			case "width":
				w = parseLength(a.Value)
			case "height":
				h = parseLength(a.Value)
			}
		}
		return w, h
	}
}

func parseLength(v string) int {
	v = strings.TrimSuffix(strings.TrimSpace(v), "px")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0
	}
	return int(f + 0.5)
}
