package imageinput

import (
	"bytes"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	"github.com/MeKo-Tech/evalocr/internal/ocrerr"
	_ "golang.org/x/image/bmp" // register BMP decoder
)

const (
	// DefaultMaxBytes is the default payload ceiling (5 MiB).
	DefaultMaxBytes int64 = 5 << 20
	// DefaultMaxPixels is the default decoded size ceiling (50 megapixels).
	DefaultMaxPixels int64 = 50_000_000
)

// allowedTypes maps accepted MIME types to their canonical format.
var allowedTypes = map[string]string{
	"image/png":      "png",
	"image/jpeg":     "jpeg",
	"image/jpg":      "jpeg",
	"image/pjpeg":    "jpeg",
	"image/gif":      "gif",
	"image/bmp":      "bmp",
	"image/x-bmp":    "bmp",
	"image/x-ms-bmp": "bmp",
}

// AllowedTypes lists the canonical accepted MIME types.
func AllowedTypes() []string {
	return []string{"image/png", "image/jpeg", "image/gif", "image/bmp"}
}

// ValidationResult describes a validated image.
type ValidationResult struct {
	Valid    bool   `json:"valid"`
	Format   string `json:"format,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Size     int64  `json:"size"`
	Err      error  `json:"-"`
}

// Validator checks images against the allow-list and the payload and
// pixel ceilings.
type Validator struct {
	maxBytes  int64
	maxPixels int64
}

// NewValidator creates a validator; maxBytes <= 0 uses DefaultMaxBytes.
// The pixel ceiling starts at DefaultMaxPixels.
func NewValidator(maxBytes int64) *Validator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Validator{maxBytes: maxBytes, maxPixels: DefaultMaxPixels}
}

// WithMaxPixels sets the ceiling on width*height; n <= 0 keeps the current one.
func (v *Validator) WithMaxPixels(n int64) *Validator {
	if n > 0 {
		v.maxPixels = n
	}
	return v
}

// MaxPixels returns the decoded size ceiling.
func (v *Validator) MaxPixels() int64 {
	return v.maxPixels
}

// MaxBytes returns the configured ceiling.
func (v *Validator) MaxBytes() int64 {
	return v.maxBytes
}

// Validate checks, in order: non-empty payload, allowed MIME type, size
// ceiling, decodable header and pixel ceiling. Only the header is decoded,
// so a payload that would inflate past the ceiling is rejected before any
// pixel buffer exists. It has no side effects.
func (v *Validator) Validate(img Image) ValidationResult {
	res := ValidationResult{Size: img.Size()}

	if res.Size == 0 {
		res.Err = ocrerr.InvalidImage("image payload is empty", nil)
		return res
	}

	res.MIMEType = img.ContentType()
	format, ok := allowedTypes[res.MIMEType]
	if !ok {
		res.Err = ocrerr.UnsupportedFormat(res.MIMEType)
		return res
	}
	res.Format = format

	if res.Size > v.maxBytes {
		res.Err = ocrerr.PayloadTooLarge(res.Size, v.maxBytes)
		return res
	}

	cfg, decoded, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		res.Err = ocrerr.InvalidImage("image data could not be decoded", err)
		return res
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		res.Err = ocrerr.InvalidImage("image has no pixels", nil)
		return res
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > v.maxPixels {
		res.Err = ocrerr.ImageTooLarge(cfg.Width, cfg.Height, v.maxPixels)
		return res
	}

	res.Format = decoded
	res.Width = cfg.Width
	res.Height = cfg.Height
	res.Valid = true
	return res
}

// Check is Validate reduced to its error.
func (v *Validator) Check(img Image) error {
	return v.Validate(img).Err
}
