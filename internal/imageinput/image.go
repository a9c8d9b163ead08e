// Package imageinput turns user-supplied image payloads into a common
// Image value and validates them before any engine work starts.
package imageinput

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/evalocr/internal/ocrerr"
)

// Image is an encoded image payload with its declared content type.
type Image struct {
	Data     []byte
	MIMEType string
	Name     string
	// DeclaredSize is the size reported by the source when Data was
	// truncated on read.
	DeclaredSize int64
}

// FromBytes wraps raw bytes. An empty mimeType is sniffed on validation.
func FromBytes(data []byte, mimeType string) Image {
	return Image{Data: data, MIMEType: mimeType}
}

// FromFile reads an image file. The MIME type comes from the extension
// when known.
func FromFile(path string) (Image, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: reading a user-provided image path is expected
	if err != nil {
		return Image{}, fmt.Errorf("read image %s: %w", path, err)
	}
	return Image{
		Data:     data,
		MIMEType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
		Name:     filepath.Base(path),
	}, nil
}

// FromReader reads at most limit+1 bytes from r so oversized payloads
// are detected without buffering them whole. limit <= 0 reads everything.
func FromReader(r io.Reader, name, mimeType string, limit int64) (Image, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Image{}, fmt.Errorf("read image %s: %w", name, err)
	}
	return Image{Data: data, MIMEType: mimeType, Name: name}, nil
}

// FromDataURI decodes a data: URI such as "data:image/png;base64,....".
func FromDataURI(uri string) (Image, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "data:")
	if !ok {
		return Image{}, ocrerr.InvalidImage("not a data URI", nil)
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Image{}, ocrerr.InvalidImage("data URI has no payload separator", nil)
	}

	params := strings.Split(header, ";")
	mimeType := params[0]
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(p, "base64") {
			isBase64 = true
		}
	}

	var data []byte
	var err error
	if isBase64 {
		data, err = decodeBase64(payload)
	} else {
		var s string
		s, err = url.PathUnescape(payload)
		data = []byte(s)
	}
	if err != nil {
		return Image{}, ocrerr.InvalidImage("data URI payload could not be decoded", err)
	}
	return Image{Data: data, MIMEType: mimeType, Name: "data-uri"}, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// Size returns the payload size in bytes.
func (img Image) Size() int64 {
	if img.DeclaredSize > int64(len(img.Data)) {
		return img.DeclaredSize
	}
	return int64(len(img.Data))
}

// ContentType returns the declared MIME type without parameters, or the
// sniffed type when none was declared.
func (img Image) ContentType() string {
	if img.MIMEType != "" {
		if mt, _, err := mime.ParseMediaType(img.MIMEType); err == nil {
			return strings.ToLower(mt)
		}
		return strings.ToLower(strings.TrimSpace(img.MIMEType))
	}
	if len(img.Data) == 0 {
		return ""
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(img.Data))
	return mt
}
