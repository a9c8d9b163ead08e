package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/evalocr/internal/imageinput"
	"github.com/MeKo-Tech/evalocr/internal/ocrerr"
	"github.com/MeKo-Tech/evalocr/internal/pipeline"
)

var errServerBusy = errors.New("server busy: too many recognitions in progress")

// ImagePayload is the JSON form of an image upload. Image is a data URI
// or plain base64.
type ImagePayload struct {
	Name       string   `json:"name,omitempty"`
	Image      string   `json:"image"`
	Strategies []string `json:"strategies,omitempty"`
	Profile    string   `json:"profile,omitempty"`
	// Timeout is a Go duration ("30s") or milliseconds.
	Timeout string `json:"timeout,omitempty"`
}

// parseRecognizeRequest reads the image from a multipart form (field
// "image"), a JSON body or the raw body, plus the strategies, profile and
// timeout parameters.
func (s *Server) parseRecognizeRequest(w http.ResponseWriter, r *http.Request) (pipeline.Request, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes())

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		return s.parseMultipart(r)
	case "application/json":
		var p ImagePayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			if tooLarge(err) {
				return pipeline.Request{}, s.payloadTooLarge(r)
			}
			return pipeline.Request{}, ocrerr.InvalidRequest("failed to parse JSON request: %v", err)
		}
		return p.toRequest()
	default:
		img, err := imageinput.FromReader(r.Body, "upload", declaredType(r.Header.Get("Content-Type")), 0)
		if err != nil {
			if tooLarge(err) {
				return pipeline.Request{}, s.payloadTooLarge(r)
			}
			return pipeline.Request{}, ocrerr.InvalidRequest("failed to read request body: %v", err)
		}
		return withParams(img, r.URL.Query()["strategies"], r.URL.Query().Get("profile"), r.URL.Query().Get("timeout"))
	}
}

func (s *Server) parseMultipart(r *http.Request) (pipeline.Request, error) {
	if err := r.ParseMultipartForm(s.maxUploadBytes()); err != nil {
		if tooLarge(err) {
			return pipeline.Request{}, s.payloadTooLarge(r)
		}
		return pipeline.Request{}, ocrerr.InvalidRequest("failed to parse form data")
	}

	var img imageinput.Image
	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		defer func() { _ = file.Close() }()
		img, err = imageinput.FromReader(file, header.Filename, declaredType(header.Header.Get("Content-Type")), 0)
		if err != nil {
			return pipeline.Request{}, ocrerr.InvalidRequest("failed to read image data: %v", err)
		}
	case strings.HasPrefix(r.FormValue("image"), "data:"):
		img, err = imageinput.FromDataURI(r.FormValue("image"))
		if err != nil {
			return pipeline.Request{}, err
		}
	default:
		return pipeline.Request{}, ocrerr.InvalidRequest("no image provided")
	}

	strategies := r.MultipartForm.Value["strategies"]
	if len(strategies) == 0 {
		strategies = r.URL.Query()["strategies"]
	}
	return withParams(img, strategies, r.FormValue("profile"), r.FormValue("timeout"))
}

func (p ImagePayload) toRequest() (pipeline.Request, error) {
	img, err := decodeImage(p.Image)
	if err != nil {
		return pipeline.Request{}, err
	}
	img.Name = p.Name
	return withParams(img, p.Strategies, p.Profile, p.Timeout)
}

// decodeImage accepts a data URI or bare base64.
func decodeImage(s string) (imageinput.Image, error) {
	if s == "" {
		return imageinput.Image{}, ocrerr.InvalidRequest("no image provided")
	}
	if strings.HasPrefix(s, "data:") {
		return imageinput.FromDataURI(s)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return imageinput.Image{}, ocrerr.InvalidImage("image is neither a data URI nor base64", err)
	}
	return imageinput.FromBytes(data, ""), nil
}

func withParams(img imageinput.Image, strategies []string, profile, timeout string) (pipeline.Request, error) {
	d, err := parseTimeout(timeout)
	if err != nil {
		return pipeline.Request{}, err
	}
	return pipeline.Request{
		Image:      img,
		Strategies: splitList(strategies),
		Profile:    profile,
		Timeout:    d,
	}, nil
}

// splitList flattens repeated and comma-separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// parseTimeout accepts "" (default), a Go duration, or milliseconds.
func parseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		ms, convErr := strconv.ParseInt(s, 10, 64)
		if convErr != nil {
			return 0, ocrerr.InvalidRequest("invalid timeout %q", s)
		}
		d = time.Duration(ms) * time.Millisecond
	}
	if d <= 0 {
		return 0, ocrerr.InvalidRequest("timeout must be positive, got %s", s)
	}
	return d, nil
}

// declaredType drops generic content types so the payload gets sniffed.
func declaredType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil || mt == "application/octet-stream" {
		return ""
	}
	return ct
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}

func (s *Server) payloadTooLarge(r *http.Request) error {
	size := r.ContentLength
	if size <= s.maxUploadBytes() {
		size = s.maxUploadBytes() + 1
	}
	return ocrerr.PayloadTooLarge(size, s.maxUploadBytes())
}

// acquireSlot waits for a free recognition slot. It gives up with
// errServerBusy after the server timeout.
func (s *Server) acquireSlot(r *http.Request) (func(), error) {
	if s.slots == nil {
		return func() {}, nil
	}
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case s.slots <- struct{}{}:
		return func() { <-s.slots }, nil
	case <-r.Context().Done():
		return nil, ocrerr.Canceled("", "queue", r.Context().Err())
	case <-timer.C:
		return nil, fmt.Errorf("%w (limit %d)", errServerBusy, cap(s.slots))
	}
}
