package assets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MeKo-Tech/evalocr/internal/models"
	"github.com/MeKo-Tech/evalocr/internal/ocrerr"
	"github.com/MeKo-Tech/evalocr/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var eng = models.Asset{Language: "eng", Variant: models.VariantFast}

func serveAssets(t *testing.T, files map[string]string, status map[string]int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		if code, ok := status[name]; ok {
			w.WriteHeader(code)
			return
		}
		body, ok := files[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fastSource(srv *httptest.Server) *HTTPSource {
	return NewHTTPSource(map[models.Variant]string{models.VariantFast: srv.URL}, srv.Client())
}

func TestHTTPSource_Download(t *testing.T) {
	payload := strings.Repeat("x", 4096)
	srv := serveAssets(t, map[string]string{"eng.traineddata": payload}, nil)
	src := fastSource(srv)

	var (
		mu     sync.Mutex
		events []float64
	)
	emit := progress.Emitter(func(raw progress.RawEvent) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, DownloadStatus, raw.Status)
		events = append(events, raw.Progress)
	})

	dir := t.TempDir()
	path, err := Download(context.Background(), src, eng, dir, emit)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "eng.traineddata"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))

	require.NotEmpty(t, events)
	assert.Equal(t, 0.0, events[0])
	assert.Equal(t, 1.0, events[len(events)-1])

	leftovers, _ := filepath.Glob(filepath.Join(dir, "*.part"))
	assert.Empty(t, leftovers)
}

func TestHTTPSource_DownloadMissingIsNetworkError(t *testing.T) {
	srv := serveAssets(t, nil, nil)
	_, err := Download(context.Background(), fastSource(srv), eng, t.TempDir(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, ocrerr.ReasonNetwork, ocrerr.Classify(err))

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
}

func TestHTTPSource_DownloadConnectionRefused(t *testing.T) {
	srv := serveAssets(t, nil, nil)
	src := fastSource(srv)
	srv.Close()

	_, err := Download(context.Background(), src, eng, t.TempDir(), nil)
	require.Error(t, err)
	assert.Equal(t, ocrerr.ReasonNetwork, ocrerr.Classify(err))
}

func TestHTTPSource_Probe(t *testing.T) {
	srv := serveAssets(t,
		map[string]string{"eng.traineddata": "data"},
		map[string]int{
			"deu.traineddata": http.StatusForbidden,
			"fra.traineddata": http.StatusGone,
			"spa.traineddata": http.StatusServiceUnavailable,
			"ita.traineddata": http.StatusUnauthorized,
		})
	src := fastSource(srv)
	ctx := context.Background()

	tests := []struct {
		lang      string
		reachable bool
	}{
		{"eng", true},
		{"deu", true},
		{"ita", true},
		{"fra", false},
		{"spa", false},
		{"chi_sim", false},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			err := src.Probe(ctx, models.Asset{Language: tt.lang, Variant: models.VariantFast})
			if tt.reachable {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestHTTPSource_ProbeFallsBackToRangedGet(t *testing.T) {
	var gotRange, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		gotRange = r.Header.Get("Range")
		gotAgent = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	require.NoError(t, fastSource(srv).Probe(context.Background(), eng))
	assert.Equal(t, "bytes=0-0", gotRange)
	assert.True(t, strings.HasPrefix(gotAgent, "evalocr/"), gotAgent)
}

func TestHTTPSource_Location(t *testing.T) {
	src := NewHTTPSource(nil, nil)
	assert.Equal(t,
		models.DefaultAssetBases[models.VariantStandard]+"/chi_sim.traineddata",
		src.Location(models.Asset{Language: "chi_sim", Variant: models.VariantStandard}))
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "eng.traineddata"), []byte("local"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.traineddata"), nil, 0o600))
	src := NewDirSource(dir)
	ctx := context.Background()

	assert.Equal(t, dir, src.Dir())
	assert.NoError(t, src.Probe(ctx, eng))
	assert.ErrorIs(t, src.Probe(ctx, models.Asset{Language: "deu", Variant: models.VariantFast}), ErrNotFound)
	assert.ErrorIs(t, src.Probe(ctx, models.Asset{Language: "empty", Variant: models.VariantFast}), ErrNotFound)

	out := t.TempDir()
	path, err := Download(ctx, src, eng, out, nil)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "local", string(data))
}

func s3Server(t *testing.T, objects map[string]string, denied map[string]bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/")
		if denied[key] {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusForbidden)
			return
		}
		body, ok := objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method != http.MethodHead {
				_, _ = fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message><Key>%s</Key></Error>`, key)
			}
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.Header().Set("ETag", `"abc"`)
		w.Header().Set("Content-Type", "application/octet-stream")
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestS3Source_Probe(t *testing.T) {
	srv := s3Server(t,
		map[string]string{"lang/fast/eng.traineddata": "data"},
		map[string]bool{"lang/fast/deu.traineddata": true})

	src, err := NewS3Source(S3Config{
		Endpoint: strings.TrimPrefix(srv.URL, "http://"),
		Bucket:   "lang",
	})
	require.NoError(t, err)
	assert.Equal(t, "s3://lang/fast/eng.traineddata", src.Location(eng))

	ctx := context.Background()
	assert.NoError(t, src.Probe(ctx, eng))
	assert.NoError(t, src.Probe(ctx, models.Asset{Language: "deu", Variant: models.VariantFast}))

	err = src.Probe(ctx, models.Asset{Language: "fra", Variant: models.VariantFast})
	require.Error(t, err)
	assert.Equal(t, ocrerr.ReasonNetwork, ocrerr.Classify(err))
}

func TestNew(t *testing.T) {
	src, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, KindHTTP, src.Name())

	src, err = New(Config{Source: KindDir, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, KindDir, src.Name())

	_, err = New(Config{Source: KindS3})
	assert.Error(t, err)

	_, err = New(Config{Source: "ftp"})
	assert.Error(t, err)

	_, err = New(Config{BaseURLs: map[string]string{"huge": "http://x"}})
	assert.Error(t, err)
}
