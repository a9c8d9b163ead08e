package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MeKo-Tech/evalocr/internal/models"
	"github.com/MeKo-Tech/evalocr/internal/ocrerr"
	"github.com/MeKo-Tech/evalocr/internal/version"
)

// StatusError is a non-success HTTP response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Unwrap maps 404 and 410 onto ErrNotFound.
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusNotFound || e.Code == http.StatusGone {
		return ErrNotFound
	}
	return nil
}

// Unreachable reports whether code means the asset cannot be served.
// Authorization failures count as reachable.
func Unreachable(code int) bool {
	return code == http.StatusNotFound || code == http.StatusGone || code >= 500
}

// HTTPSource downloads assets from per-variant base URLs.
type HTTPSource struct {
	client *http.Client
	bases  map[models.Variant]string
}

// NewHTTPSource creates a source. Missing variants fall back to
// models.DefaultAssetBases; a nil client gets a 2 minute timeout.
func NewHTTPSource(bases map[models.Variant]string, client *http.Client) *HTTPSource {
	merged := make(map[models.Variant]string, len(models.DefaultAssetBases))
	for v, b := range models.DefaultAssetBases {
		merged[v] = b
	}
	for v, b := range bases {
		if b != "" {
			merged[v] = b
		}
	}
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &HTTPSource{client: client, bases: merged}
}

// Name implements Source.
func (s *HTTPSource) Name() string { return "http" }

// Location implements Source.
func (s *HTTPSource) Location(asset models.Asset) string {
	return asset.URL(s.bases[asset.Variant])
}

// Open implements Source.
func (s *HTTPSource) Open(ctx context.Context, asset models.Asset) (io.ReadCloser, int64, error) {
	url := s.Location(asset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, ocrerr.Network(err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, 0, ocrerr.Network(&StatusError{URL: url, Code: resp.StatusCode})
	}
	return resp.Body, resp.ContentLength, nil
}

// Probe implements Source: HEAD, or a one-byte ranged GET when HEAD is
// refused.
func (s *HTTPSource) Probe(ctx context.Context, asset models.Asset) error {
	url := s.Location(asset)
	code, err := s.status(ctx, http.MethodHead, url)
	if err != nil {
		return ocrerr.Network(err)
	}
	if code == http.StatusMethodNotAllowed || code == http.StatusNotImplemented {
		code, err = s.status(ctx, http.MethodGet, url)
		if err != nil {
			return ocrerr.Network(err)
		}
	}
	if Unreachable(code) {
		return ocrerr.Network(&StatusError{URL: url, Code: code})
	}
	return nil
}

func (s *HTTPSource) status(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}
