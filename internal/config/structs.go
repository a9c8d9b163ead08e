//nolint:lll
package config

import (
	"time"

	"github.com/MeKo-Tech/evalocr/internal/assets"
)

// Config represents the complete configuration for the evalocr application.
// It covers every command (recognize, probe, validate, serve) and is
// loaded from configuration files, environment variables and command-line
// flags.
type Config struct {
	// Global settings
	LogLevel     string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose      bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`
	ProfilesFile string `mapstructure:"profiles_file" yaml:"profiles_file" json:"profiles_file"`

	Engine      EngineConfig      `mapstructure:"engine" yaml:"engine" json:"engine"`
	Recognition RecognitionConfig `mapstructure:"recognition" yaml:"recognition" json:"recognition"`
	Validation  ValidationConfig  `mapstructure:"validation" yaml:"validation" json:"validation"`
	Assets      assets.Config     `mapstructure:"assets" yaml:"assets" json:"assets"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics" yaml:"diagnostics" json:"diagnostics"`
	Output      OutputConfig      `mapstructure:"output" yaml:"output" json:"output"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server" json:"server"`
	Batch       BatchConfig       `mapstructure:"batch" yaml:"batch" json:"batch"`
}

// EngineConfig contains engine lifecycle settings.
type EngineConfig struct {
	ReleaseGrace time.Duration `mapstructure:"release_grace" yaml:"release_grace" json:"release_grace"`
	TempDir      string        `mapstructure:"temp_dir" yaml:"temp_dir" json:"temp_dir"`
	TessdataDir  string        `mapstructure:"tessdata_dir" yaml:"tessdata_dir" json:"tessdata_dir"`
}

// RecognitionConfig contains strategy cascade and text cleaning settings.
type RecognitionConfig struct {
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	DeadlineMode  string        `mapstructure:"deadline_mode" yaml:"deadline_mode" json:"deadline_mode"`
	RequireText   bool          `mapstructure:"require_text" yaml:"require_text" json:"require_text"`
	Profile       string        `mapstructure:"profile" yaml:"profile" json:"profile"`
	MaxImageSide  int           `mapstructure:"max_image_side" yaml:"max_image_side" json:"max_image_side"`
	Spacing       string        `mapstructure:"spacing" yaml:"spacing" json:"spacing"`
	NormalizeForm string        `mapstructure:"normalize_form" yaml:"normalize_form" json:"normalize_form"`
}

// ValidationConfig contains image validation settings.
type ValidationConfig struct {
	MaxBytes  int64 `mapstructure:"max_bytes" yaml:"max_bytes" json:"max_bytes"`
	MaxPixels int64 `mapstructure:"max_pixels" yaml:"max_pixels" json:"max_pixels"`
}

// DiagnosticsConfig contains capability check settings.
type DiagnosticsConfig struct {
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency" json:"concurrency"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format              string `mapstructure:"format" yaml:"format" json:"format"`
	File                string `mapstructure:"file" yaml:"file" json:"file"`
	ConfidencePrecision int    `mapstructure:"confidence_precision" yaml:"confidence_precision" json:"confidence_precision"`
	Progress            bool   `mapstructure:"progress" yaml:"progress" json:"progress"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string          `mapstructure:"host" yaml:"host" json:"host"`
	Port            int             `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int             `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int             `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int             `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MaxConcurrent   int             `mapstructure:"max_concurrent" yaml:"max_concurrent" json:"max_concurrent"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains per-client request limits; zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool  `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDay     int64 `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"`
}

// BatchConfig contains settings for recognizing several files at once.
type BatchConfig struct {
	Workers         int  `mapstructure:"workers" yaml:"workers" json:"workers"`
	ContinueOnError bool `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
}
