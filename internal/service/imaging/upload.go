package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"interview-turn-service/internal/models"
)

// ErrUnsupportedImage is returned for uploads that are not a decodable raster image.
var ErrUnsupportedImage = errors.New("unsupported image upload")

// DecodeUpload turns an uploaded image into a manual override. PNG uploads are
// kept byte for byte; JPEG, GIF, BMP and WebP are re-encoded as PNG. Images
// with a side longer than maxSide are rejected; maxSide <= 0 means DefaultMaxSide.
func DecodeUpload(data []byte, maxSide int) (models.ManualImage, error) {
	if maxSide <= 0 {
		maxSide = DefaultMaxSide
	}
	if len(data) == 0 {
		return models.ManualImage{}, fmt.Errorf("%w: empty upload", ErrUnsupportedImage)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return models.ManualImage{}, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return models.ManualImage{}, fmt.Errorf("%w: zero-sized image", ErrUnsupportedImage)
	}
	if cfg.Width > maxSide || cfg.Height > maxSide {
		return models.ManualImage{}, fmt.Errorf("%w: %dx%d exceeds %d per side", ErrUnsupportedImage, cfg.Width, cfg.Height, maxSide)
	}

	manual := models.ManualImage{
		Raster:      data,
		Width:       cfg.Width,
		Height:      cfg.Height,
		ContentType: "image/png",
	}
	if format == "png" {
		return manual, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return models.ManualImage{}, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return models.ManualImage{}, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	manual.Raster = buf.Bytes()
	return manual, nil
}
