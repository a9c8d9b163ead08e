package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/evalocr/internal/diagnostics"
	"github.com/MeKo-Tech/evalocr/internal/imageinput"
	"github.com/MeKo-Tech/evalocr/internal/models"
	"github.com/MeKo-Tech/evalocr/internal/pipeline"
)

// recognizer is the part of the pipeline the server uses.
type recognizer interface {
	Recognize(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	RecognizeBatch(ctx context.Context, reqs []pipeline.Request, cfg pipeline.BatchConfig) ([]pipeline.BatchItem, error)
	ProbeEnvironment(ctx context.Context) diagnostics.Report
	ValidateImage(img imageinput.Image) imageinput.ValidationResult
	Strategies() []models.LanguageSet
	Profiles() []models.Profile
	Config() pipeline.Config
	ActiveEngines() int64
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipeline     recognizer
	corsOrigin   string
	maxUploadMB  int64
	timeout      time.Duration
	batchWorkers int
	maxBatch     int
	version      string
	rateLimiter  *RateLimiter
	slots        chan struct{}
	logger       *slog.Logger

	wsPongWait     time.Duration
	wsPingInterval time.Duration
}

// Config holds server configuration.
type Config struct {
	Host          string
	Port          int
	CORSOrigin    string
	MaxUploadMB   int64
	TimeoutSec    int
	MaxConcurrent int
	BatchWorkers  int
	MaxBatchSize  int
	Version       string
	RateLimit     RateLimitConfig
	Logger        *slog.Logger
}

// RateLimitConfig holds per-client limits; zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64
}

// Response types for API endpoints.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version,omitempty"`
	Time          string `json:"time"`
	ActiveEngines int64  `json:"active_engines"`
}

type StrategiesResponse struct {
	Strategies     []models.LanguageSet `json:"strategies"`
	Profiles       []models.Profile     `json:"profiles"`
	DefaultProfile string               `json:"default_profile"`
}

type ValidateResponse struct {
	imageinput.ValidationResult
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

type OCRResponse struct {
	Success bool             `json:"success"`
	Result  *pipeline.Result `json:"result,omitempty"`
	Error   string           `json:"error,omitempty"`
	Kind    string           `json:"kind,omitempty"`
	Reason  string           `json:"reason,omitempty"`
	// Attempts lists per-strategy failures when every strategy failed.
	Attempts []AttemptError `json:"attempts,omitempty"`
}

// AttemptError describes one failed strategy.
type AttemptError struct {
	Strategy string `json:"strategy"`
	Kind     string `json:"kind"`
	Phase    string `json:"phase,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Message  string `json:"message"`
}

const (
	defaultMaxUploadMB = 5
	defaultTimeoutSec  = 120
	defaultMaxBatch    = 10
)

// NewServer creates a server around a built pipeline.
func NewServer(config Config, p *pipeline.Pipeline) (*Server, error) {
	if p == nil {
		return nil, errors.New("server: pipeline is required")
	}
	return newServer(config, p), nil
}

func newServer(config Config, p recognizer) *Server {
	s := &Server{
		pipeline:     p,
		corsOrigin:   config.CORSOrigin,
		maxUploadMB:  config.MaxUploadMB,
		timeout:      time.Duration(config.TimeoutSec) * time.Second,
		batchWorkers: config.BatchWorkers,
		maxBatch:     config.MaxBatchSize,
		version:      config.Version,
		logger:       config.Logger,

		wsPongWait:     wsPongWait,
		wsPingInterval: wsPingInterval,
	}
	if s.corsOrigin == "" {
		s.corsOrigin = "*"
	}
	if s.maxUploadMB <= 0 {
		s.maxUploadMB = defaultMaxUploadMB
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeoutSec * time.Second
	}
	if s.batchWorkers <= 0 {
		s.batchWorkers = pipeline.DefaultBatchConfig().MaxWorkers
	}
	if s.maxBatch <= 0 {
		s.maxBatch = defaultMaxBatch
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if config.MaxConcurrent > 0 {
		s.slots = make(chan struct{}, config.MaxConcurrent)
	}
	if rl := config.RateLimit; rl.Enabled {
		s.rateLimiter = NewRateLimiter(rl)
	}
	return s
}

// maxUploadBytes is the request body ceiling.
func (s *Server) maxUploadBytes() int64 {
	return s.maxUploadMB * 1024 * 1024
}
