package models

import (
	"encoding/json"
	"fmt"
)

// SourceKind identifies where a diagram snapshot came from.
type SourceKind int

const (
	// SourceBlank is the synthesized "no drawing" placeholder.
	SourceBlank SourceKind = iota
	// SourceAutoCapture is a vector export of the live whiteboard.
	SourceAutoCapture
	// SourceManual is a user-uploaded image that overrides the whiteboard.
	SourceManual
)

// String returns the wire name of the source kind.
func (k SourceKind) String() string {
	switch k {
	case SourceBlank:
		return "blank"
	case SourceAutoCapture:
		return "auto_capture"
	case SourceManual:
		return "manual"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// MarshalJSON encodes the kind by name.
func (k SourceKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// VectorImage is SVG markup exported from the whiteboard.
// Width and Height are the declared dimensions; zero means unknown.
type VectorImage struct {
	Markup []byte
	Width  int
	Height int
}

// ManualImage is an uploaded raster image. It stays in effect until replaced or cleared.
type ManualImage struct {
	Raster      []byte
	Width       int
	Height      int
	ContentType string
}

// DiagramSnapshot is one captured still of the whiteboard for a single turn.
// Exactly one of Raster or Vector is set.
type DiagramSnapshot struct {
	SourceKind SourceKind
	Raster     []byte
	Vector     *VectorImage
	Width      int
	Height     int
}

// IsVector reports whether the snapshot still needs rasterization.
func (s DiagramSnapshot) IsVector() bool {
	return s.Vector != nil && len(s.Raster) == 0
}
