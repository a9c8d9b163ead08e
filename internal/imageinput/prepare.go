package imageinput

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// PrepareOptions controls conversion for the engine.
type PrepareOptions struct {
	// MaxSide downscales images whose longer side exceeds it; 0 disables.
	MaxSide int
}

// Prepare decodes img and re-encodes it as PNG, the one format every
// engine backend accepts. PNG input within MaxSide passes through as is.
func Prepare(img Image, opts PrepareOptions) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	resize := opts.MaxSide > 0 && (b.Dx() > opts.MaxSide || b.Dy() > opts.MaxSide)
	if format == "png" && !resize {
		return img.Data, nil
	}

	out := src
	if resize {
		out = imaging.Fit(src, opts.MaxSide, opts.MaxSide, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
