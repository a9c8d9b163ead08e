package server

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MeKo-Tech/evalocr/internal/assets"
	"github.com/MeKo-Tech/evalocr/internal/engine/enginetest"
	"github.com/MeKo-Tech/evalocr/internal/models"
	"github.com/MeKo-Tech/evalocr/internal/pipeline"
	"github.com/stretchr/testify/require"
)

// newAssetServer serves every traineddata file except those of the
// missing languages.
func newAssetServer(t *testing.T, missing ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, lang := range missing {
			if strings.HasSuffix(r.URL.Path, "/"+lang+models.AssetExt) {
				http.NotFound(w, r)
				return
			}
		}
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		_, _ = w.Write([]byte("traineddata"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// testPipeline builds a pipeline on the fake engine.
func testPipeline(t *testing.T, f *enginetest.Factory, missing ...string) *pipeline.Pipeline {
	t.Helper()
	srv := newAssetServer(t, missing...)
	src := assets.NewHTTPSource(map[models.Variant]string{
		models.VariantFast:     srv.URL + "/fast",
		models.VariantStandard: srv.URL + "/standard",
		models.VariantBest:     srv.URL + "/best",
	}, srv.Client())
	p, err := pipeline.NewBuilder().
		WithAssetSource(src).
		WithFactory(f.WithAssets(src)).
		WithMaxImageBytes(1 << 20).
		Build()
	require.NoError(t, err)
	return p
}

// helloWorldFactory recognizes the mixed-script sample with the primary
// set and only its Latin part otherwise.
func helloWorldFactory() *enginetest.Factory {
	return enginetest.NewFactory("Hello World").
		Script(models.PrimaryMixed, enginetest.Behavior{Text: "Hello  World 测 试"})
}

// newTestServer returns a server on the fake engine and its router.
func newTestServer(t *testing.T, cfg Config, f *enginetest.Factory, missing ...string) (*Server, http.Handler) {
	t.Helper()
	s, err := NewServer(cfg, testPipeline(t, f, missing...))
	require.NoError(t, err)
	return s, s.Handler()
}

// multipartBody encodes data as the "image" field plus extra fields.
func multipartBody(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if data != nil {
		fw, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}
