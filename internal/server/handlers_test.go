package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MeKo-Tech/evalocr/internal/engine/enginetest"
	"github.com/MeKo-Tech/evalocr/internal/models"
	"github.com/MeKo-Tech/evalocr/internal/ocrerr"
	"github.com/MeKo-Tech/evalocr/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer_RequiresPipeline(t *testing.T) {
	_, err := NewServer(Config{}, nil)
	require.Error(t, err)
}

func TestServer_HealthHandler(t *testing.T) {
	_, h := newTestServer(t, Config{Version: "1.2.3"}, helloWorldFactory())

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{"GET request success", http.MethodGet, http.StatusOK},
		{"POST request not allowed", http.MethodPost, http.StatusMethodNotAllowed},
		{"PUT request not allowed", http.MethodPut, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health", nil)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus != http.StatusOK {
				return
			}
			var response HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, "healthy", response.Status)
			assert.Equal(t, "1.2.3", response.Version)
			assert.NotEmpty(t, response.Time)
			assert.Zero(t, response.ActiveEngines)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}

func TestServer_StrategiesHandler(t *testing.T) {
	_, h := newTestServer(t, Config{}, helloWorldFactory())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/strategies", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var response StrategiesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Strategies, 3)
	assert.Equal(t, models.PrimaryMixed, response.Strategies[0].ID)
	assert.Equal(t, []string{"chi_sim", "eng"}, response.Strategies[0].Languages)
	assert.Len(t, response.Profiles, 4)
	assert.Equal(t, models.ProfileDefault, response.DefaultProfile)
}

func TestServer_DiagnosticsHandler(t *testing.T) {
	_, h := newTestServer(t, Config{}, helloWorldFactory(), "chi_sim")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/diagnostics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Healthy bool `json:"healthy"`
		Report  struct {
			WorkerSupported   bool            `json:"worker_supported"`
			AssetReachability map[string]bool `json:"asset_reachability"`
			Recommendations   []string        `json:"recommendations"`
		} `json:"report"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.False(t, response.Healthy)
	assert.True(t, response.Report.WorkerSupported)
	assert.NotEmpty(t, response.Report.Recommendations)

	reachable := 0
	for name, ok := range response.Report.AssetReachability {
		if strings.Contains(name, "chi_sim") {
			assert.False(t, ok, name)
		} else if ok {
			reachable++
		}
	}
	assert.Positive(t, reachable)
}

func TestServer_RecognizeMultipart(t *testing.T) {
	f := helloWorldFactory()
	_, h := newTestServer(t, Config{}, f)

	body, ct := multipartBody(t, "hello.png", testutil.TextPNG(t, "Hello World 测试"), nil)
	req := httptest.NewRequest(http.MethodPost, "/recognize", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var response OCRResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response.Success)
	require.NotNil(t, response.Result)
	assert.Equal(t, "Hello World 测试", response.Result.Text)
	assert.Equal(t, models.PrimaryMixed, response.Result.StrategyUsed)
	assert.NotEmpty(t, response.Result.RequestID)
	assert.Equal(t, f.Acquires(), f.Releases())
}

func TestServer_RecognizeFallsBackWhenChineseDataMissing(t *testing.T) {
	_, h := newTestServer(t, Config{}, helloWorldFactory(), "chi_sim")

	req := httptest.NewRequest(http.MethodPost, "/recognize", bytes.NewReader(testutil.TextPNG(t, "Hello World 测试")))
	req.Header.Set("Content-Type", "image/png")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var response OCRResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "Hello World", response.Result.Text)
	assert.Equal(t, models.FallbackLatin, response.Result.StrategyUsed)
	require.Len(t, response.Result.Attempts, 2)
	assert.Equal(t, string(ocrerr.ReasonNetwork), response.Result.Attempts[0].Reason)
}

func TestServer_RecognizeJSONDataURI(t *testing.T) {
	_, h := newTestServer(t, Config{}, helloWorldFactory())

	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(testutil.TextPNG(t, "Hello"))
	payload, err := json.Marshal(ImagePayload{Image: uri, Profile: models.ProfileSimple, Timeout: "5s"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/recognize", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var response OCRResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, models.FallbackLatin, response.Result.StrategyUsed)
}

func TestServer_RecognizeErrors(t *testing.T) {
	png := testutil.TextPNG(t, "Hello")

	tests := []struct {
		name     string
		factory  *enginetest.Factory
		missing  []string
		body     func(t *testing.T) (*bytes.Buffer, string)
		query    string
		wantCode int
		wantKind ocrerr.Kind
	}{
		{
			name:    "no image field",
			factory: helloWorldFactory(),
			body: func(t *testing.T) (*bytes.Buffer, string) {
				return multipartBody(t, "", nil, map[string]string{"profile": "default"})
			},
			wantCode: http.StatusBadRequest,
			wantKind: ocrerr.KindInvalidRequest,
		},
		{
			name:    "unsupported format",
			factory: helloWorldFactory(),
			body: func(t *testing.T) (*bytes.Buffer, string) {
				return bytes.NewBufferString("%PDF-1.4 not an image"), "application/pdf"
			},
			wantCode: http.StatusUnsupportedMediaType,
			wantKind: ocrerr.KindUnsupportedFormat,
		},
		{
			name:    "corrupt image",
			factory: helloWorldFactory(),
			body: func(t *testing.T) (*bytes.Buffer, string) {
				return bytes.NewBuffer(png[:20]), "image/png"
			},
			wantCode: http.StatusBadRequest,
			wantKind: ocrerr.KindInvalidImage,
		},
		{
			name:    "unknown strategy",
			factory: helloWorldFactory(),
			body: func(t *testing.T) (*bytes.Buffer, string) {
				return bytes.NewBuffer(png), "image/png"
			},
			query:    "?strategies=klingon",
			wantCode: http.StatusBadRequest,
			wantKind: ocrerr.KindInvalidRequest,
		},
		{
			name:    "bad timeout",
			factory: helloWorldFactory(),
			body: func(t *testing.T) (*bytes.Buffer, string) {
				return bytes.NewBuffer(png), "image/png"
			},
			query:    "?timeout=soon",
			wantCode: http.StatusBadRequest,
			wantKind: ocrerr.KindInvalidRequest,
		},
		{
			name:    "all strategies exhausted",
			factory: enginetest.NewFactory("x"),
			missing: []string{"eng"},
			body: func(t *testing.T) (*bytes.Buffer, string) {
				return bytes.NewBuffer(png), "image/png"
			},
			wantCode: http.StatusUnprocessableEntity,
			wantKind: ocrerr.KindAllStrategiesExhausted,
		},
		{
			name:    "engine failure on a single strategy",
			factory: enginetest.NewFactory("x").Script(models.Minimal, enginetest.Behavior{RecognizeErr: errors.New("segfault")}),
			body: func(t *testing.T) (*bytes.Buffer, string) {
				return bytes.NewBuffer(png), "image/png"
			},
			query:    "?profile=fast",
			wantCode: http.StatusUnprocessableEntity,
			wantKind: ocrerr.KindAllStrategiesExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, h := newTestServer(t, Config{}, tt.factory, tt.missing...)
			body, ct := tt.body(t)
			req := httptest.NewRequest(http.MethodPost, "/recognize"+tt.query, body)
			req.Header.Set("Content-Type", ct)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			var response OCRResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.False(t, response.Success)
			assert.Equal(t, string(tt.wantKind), response.Kind)
			assert.NotEmpty(t, response.Error)
			assert.Equal(t, tt.factory.Acquires(), tt.factory.Releases())
		})
	}
}

func TestServer_RecognizeExhaustedListsAttempts(t *testing.T) {
	_, h := newTestServer(t, Config{}, enginetest.NewFactory("x"), "eng")

	req := httptest.NewRequest(http.MethodPost, "/recognize", bytes.NewReader(testutil.TextPNG(t, "Hello")))
	req.Header.Set("Content-Type", "image/png")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var response OCRResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, string(ocrerr.ReasonNetwork), response.Reason)
	assert.Contains(t, response.Error, "network")
	require.Len(t, response.Attempts, 3)
	for _, a := range response.Attempts {
		assert.Equal(t, string(ocrerr.KindEngineAcquisitionFailed), a.Kind)
	}
}

func TestServer_RecognizeUploadTooLarge(t *testing.T) {
	f := helloWorldFactory()
	_, h := newTestServer(t, Config{MaxUploadMB: 1}, f)

	big := bytes.Repeat([]byte{0x89}, 2<<20)
	req := httptest.NewRequest(http.MethodPost, "/recognize", bytes.NewReader(big))
	req.Header.Set("Content-Type", "image/png")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Zero(t, f.Acquires())
}

func TestServer_ValidateHandler(t *testing.T) {
	f := helloWorldFactory()
	_, h := newTestServer(t, Config{}, f)

	t.Run("valid png", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewReader(testutil.TextPNG(t, "Hi")))
		req.Header.Set("Content-Type", "image/png")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var response ValidateResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.True(t, response.Valid)
		assert.Equal(t, "png", response.Format)
		assert.Positive(t, response.Width)
		assert.Empty(t, response.Error)
	})

	t.Run("unsupported type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/validate", strings.NewReader("plain text"))
		req.Header.Set("Content-Type", "text/plain")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var response ValidateResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.False(t, response.Valid)
		assert.Equal(t, string(ocrerr.KindUnsupportedFormat), response.Kind)
	})

	assert.Zero(t, f.Acquires())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ocrerr.InvalidRequest("bad"), http.StatusBadRequest},
		{ocrerr.InvalidImage("bad", nil), http.StatusBadRequest},
		{ocrerr.UnsupportedFormat("image/tiff"), http.StatusUnsupportedMediaType},
		{ocrerr.PayloadTooLarge(10, 5), http.StatusRequestEntityTooLarge},
		{ocrerr.EmptyResult("minimal"), http.StatusUnprocessableEntity},
		{ocrerr.Canceled("", "", nil), StatusClientClosedRequest},
		{ocrerr.RecognitionFailed("minimal", errors.New("x")), http.StatusBadGateway},
		{fmt.Errorf("wrapped: %w", errServerBusy), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	_, h := newTestServer(t, Config{}, helloWorldFactory())

	// Generate one recorded request first.
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "evalocr_http_requests_total")
}
