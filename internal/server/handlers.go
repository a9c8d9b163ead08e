package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/MeKo-Tech/evalocr/internal/ocrerr"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusClientClosedRequest is reported when the client went away.
const StatusClientClosedRequest = 499

// Handler returns the router with every endpoint registered.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.SetupRoutes(r)
	return r
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(r *mux.Router) {
	r.HandleFunc("/health", s.corsMiddleware(s.healthHandler)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/strategies", s.corsMiddleware(s.strategiesHandler)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/diagnostics", s.corsMiddleware(s.diagnosticsHandler)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/validate", s.corsMiddleware(s.validateHandler)).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/recognize", s.corsMiddleware(s.rateLimitMiddleware(s.recognizeHandler))).
		Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/recognize/batch", s.corsMiddleware(s.rateLimitMiddleware(s.batchHandler))).
		Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/ws/recognize", s.rateLimitMiddleware(s.ocrWebSocketHandler)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "healthy",
		Version:       s.version,
		Time:          time.Now().UTC().Format(time.RFC3339),
		ActiveEngines: s.pipeline.ActiveEngines(),
	})
}

// strategiesHandler lists the language sets and profiles.
func (s *Server) strategiesHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, StrategiesResponse{
		Strategies:     s.pipeline.Strategies(),
		Profiles:       s.pipeline.Profiles(),
		DefaultProfile: s.pipeline.Config().Profile,
	})
}

// diagnosticsHandler runs the capability checks.
func (s *Server) diagnosticsHandler(w http.ResponseWriter, r *http.Request) {
	report := s.pipeline.ProbeEnvironment(r.Context())
	s.writeJSON(w, http.StatusOK, struct {
		Healthy bool `json:"healthy"`
		Report  any  `json:"report"`
	}{Healthy: report.Healthy(), Report: report})
}

// validateHandler checks an uploaded image without recognizing it.
func (s *Server) validateHandler(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseRecognizeRequest(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	res := s.pipeline.ValidateImage(req.Image)
	resp := ValidateResponse{ValidationResult: res}
	if res.Err != nil {
		resp.Error = ocrerr.UserMessage(res.Err)
		resp.Kind = string(ocrerr.KindOf(res.Err))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// recognizeHandler runs the strategy cascade on one image.
func (s *Server) recognizeHandler(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseRecognizeRequest(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	uploadSizeBytes.Observe(float64(req.Image.Size()))

	release, err := s.acquireSlot(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer release()

	start := time.Now()
	res, err := s.pipeline.Recognize(r.Context(), req)
	ocrProcessingDuration.WithLabelValues("image").Observe(time.Since(start).Seconds())
	if err != nil {
		ocrRequestsTotal.WithLabelValues("image", "error").Inc()
		s.logger.Info("recognition failed", "kind", ocrerr.KindOf(err), "error", err)
		s.writeError(w, err)
		return
	}
	ocrRequestsTotal.WithLabelValues("image", "success").Inc()
	s.writeJSON(w, http.StatusOK, OCRResponse{Success: true, Result: res})
}

// statusFor maps a pipeline error onto an HTTP status.
func statusFor(err error) int {
	switch ocrerr.KindOf(err) {
	case ocrerr.KindInvalidRequest, ocrerr.KindInvalidImage:
		return http.StatusBadRequest
	case ocrerr.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case ocrerr.KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case ocrerr.KindEmptyResult, ocrerr.KindAllStrategiesExhausted:
		return http.StatusUnprocessableEntity
	case ocrerr.KindCanceled:
		return StatusClientClosedRequest
	case ocrerr.KindEngineAcquisitionFailed, ocrerr.KindRecognitionFailed, ocrerr.KindCleanupFailed:
		return http.StatusBadGateway
	case ocrerr.KindRecognitionTimeout:
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, errServerBusy) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// errorResponse builds the JSON body for err.
func errorResponse(err error) OCRResponse {
	resp := OCRResponse{
		Error:  ocrerr.UserMessage(err),
		Kind:   string(ocrerr.KindOf(err)),
		Reason: string(ocrerr.ReasonOf(err)),
	}
	var e *ocrerr.Error
	if errors.As(err, &e) {
		for _, a := range e.Attempts {
			resp.Attempts = append(resp.Attempts, AttemptError{
				Strategy: a.Strategy,
				Kind:     string(a.Kind),
				Phase:    a.Phase,
				Reason:   string(a.Reason),
				Message:  a.Message,
			})
		}
	}
	return resp
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusFor(err), errorResponse(err))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}
