package config

import (
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/evalocr/internal/assets"
	"github.com/MeKo-Tech/evalocr/internal/cascade"
	"github.com/MeKo-Tech/evalocr/internal/diagnostics"
	"github.com/MeKo-Tech/evalocr/internal/engine"
	"github.com/MeKo-Tech/evalocr/internal/imageinput"
	"github.com/MeKo-Tech/evalocr/internal/models"
	"github.com/MeKo-Tech/evalocr/internal/pipeline"
	"github.com/MeKo-Tech/evalocr/internal/textnorm"
	"gopkg.in/yaml.v3"
)

const redacted = "********"

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Engine: EngineConfig{
			ReleaseGrace: engine.DefaultReleaseGrace,
		},
		Recognition: RecognitionConfig{
			Timeout:       cascade.DefaultTimeout,
			DeadlineMode:  string(cascade.PerAttempt),
			Profile:       models.ProfileDefault,
			Spacing:       "preserve",
			NormalizeForm: "NFC",
		},
		Validation: ValidationConfig{
			MaxBytes:  imageinput.DefaultMaxBytes,
			MaxPixels: imageinput.DefaultMaxPixels,
		},
		Assets: assets.Config{
			Source:  assets.KindHTTP,
			Timeout: 2 * time.Minute,
		},
		Diagnostics: DiagnosticsConfig{
			Timeout:     diagnostics.DefaultCheckTimeout,
			Concurrency: diagnostics.DefaultConcurrency,
		},
		Output: OutputConfig{
			Format:              "text",
			ConfidencePrecision: 2,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     5,
			TimeoutSec:      120,
			ShutdownTimeout: 10,
			MaxConcurrent:   runtime.NumCPU(),
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				RequestsPerHour:   1000,
			},
		},
		Batch: BatchConfig{
			Workers: 4,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"text", "json", "csv"}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}

	if c.Recognition.Timeout <= 0 {
		return fmt.Errorf("invalid recognition timeout: %v (must be positive)", c.Recognition.Timeout)
	}
	if _, err := cascade.ParseDeadlineMode(c.Recognition.DeadlineMode); err != nil {
		return fmt.Errorf("invalid recognition deadline mode: %w", err)
	}
	if _, ok := textnorm.SpacingPolicyByName(c.Recognition.Spacing); !ok {
		return fmt.Errorf("invalid spacing policy: %s (must be one of: preserve, insert)", c.Recognition.Spacing)
	}
	validForms := []string{"", "NFC", "NFKC", "NFD", "NFKD", "none"}
	if !slices.Contains(validForms, c.Recognition.NormalizeForm) {
		return fmt.Errorf("invalid normalize form: %s", c.Recognition.NormalizeForm)
	}
	if c.Recognition.MaxImageSide < 0 {
		return fmt.Errorf("invalid max image side: %d (must not be negative)", c.Recognition.MaxImageSide)
	}
	if c.Validation.MaxBytes <= 0 {
		return fmt.Errorf("invalid max image bytes: %d (must be positive)", c.Validation.MaxBytes)
	}
	if c.Validation.MaxPixels <= 0 {
		return fmt.Errorf("invalid max image pixels: %d (must be positive)", c.Validation.MaxPixels)
	}
	if c.Engine.ReleaseGrace <= 0 {
		return fmt.Errorf("invalid engine release grace: %v (must be positive)", c.Engine.ReleaseGrace)
	}

	validSources := []string{"", assets.KindHTTP, assets.KindDir, assets.KindS3}
	if !slices.Contains(validSources, c.Assets.Source) {
		return fmt.Errorf("invalid asset source: %s (must be one of: %s)", c.Assets.Source, strings.Join(validSources[1:], ", "))
	}
	for k := range c.Assets.BaseURLs {
		if !models.Variant(k).Valid() {
			return fmt.Errorf("invalid asset base url variant: %s", k)
		}
	}
	if c.Assets.Source == assets.KindS3 && c.Assets.S3.Bucket == "" {
		return fmt.Errorf("asset source s3 requires assets.s3.bucket")
	}

	if c.Diagnostics.Concurrency <= 0 {
		return fmt.Errorf("invalid diagnostics concurrency: %d (must be positive)", c.Diagnostics.Concurrency)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.MaxConcurrent <= 0 {
		return fmt.Errorf("invalid server max concurrent: %d (must be positive)", c.Server.MaxConcurrent)
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}
	return nil
}

// ToPipelineConfig converts the config to the pipeline configuration.
func (c *Config) ToPipelineConfig() pipeline.Config {
	mode, _ := cascade.ParseDeadlineMode(c.Recognition.DeadlineMode)
	return pipeline.Config{
		Assets:                 c.Assets,
		TessdataDir:            c.Engine.TessdataDir,
		ProfilesFile:           c.ProfilesFile,
		TempDir:                c.Engine.TempDir,
		MaxImageBytes:          c.Validation.MaxBytes,
		MaxImagePixels:         c.Validation.MaxPixels,
		MaxImageSide:           c.Recognition.MaxImageSide,
		Timeout:                c.Recognition.Timeout,
		DeadlineMode:           mode,
		RequireText:            c.Recognition.RequireText,
		Profile:                c.Recognition.Profile,
		ReleaseGrace:           c.Engine.ReleaseGrace,
		Spacing:                c.Recognition.Spacing,
		NormalizeForm:          c.Recognition.NormalizeForm,
		DiagnosticsTimeout:     c.Diagnostics.Timeout,
		DiagnosticsConcurrency: c.Diagnostics.Concurrency,
	}
}

// Redacted returns a copy with credentials masked.
func (c Config) Redacted() Config {
	if c.Assets.S3.AccessKey != "" {
		c.Assets.S3.AccessKey = redacted
	}
	if c.Assets.S3.SecretKey != "" {
		c.Assets.S3.SecretKey = redacted
	}
	return c
}

// YAML renders the configuration as YAML.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
