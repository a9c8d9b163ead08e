package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "evalocr"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "EVALOCR"

	// DefaultConfigFile is written by GenerateDefaultConfigFile when no name is given.
	DefaultConfigFile = "evalocr.yaml"
)

// Loader reads configuration from a file, EVALOCR_* variables and any
// flags bound to its viper instance.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on v, or on a fresh instance when v is nil.
func NewLoader(v *viper.Viper) *Loader {
	if v == nil {
		v = viper.New()
	}
	return &Loader{v: v}
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped. With no arguments ".env" is tried.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load reads configFile, or searches GetConfigSearchPaths for
// evalocr.yaml when configFile is empty, and validates the result. A
// missing search-path file is not an error; a missing explicit one is.
func (l *Loader) Load(configFile string) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return nil, fmt.Errorf("config file %s: %w", configFile, err)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		for _, p := range GetConfigSearchPaths() {
			l.v.AddConfigPath(p)
		}
	}

	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	l.v.AutomaticEnv()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the file Load read, or "" when none was found.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// setDefaults registers every key so environment variables can override
// values that no config file mentions.
func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	l.v.SetDefault("log_level", defaults.LogLevel)
	l.v.SetDefault("verbose", defaults.Verbose)
	l.v.SetDefault("profiles_file", defaults.ProfilesFile)

	l.v.SetDefault("engine.release_grace", defaults.Engine.ReleaseGrace)
	l.v.SetDefault("engine.temp_dir", defaults.Engine.TempDir)
	l.v.SetDefault("engine.tessdata_dir", defaults.Engine.TessdataDir)

	l.v.SetDefault("recognition.timeout", defaults.Recognition.Timeout)
	l.v.SetDefault("recognition.deadline_mode", defaults.Recognition.DeadlineMode)
	l.v.SetDefault("recognition.require_text", defaults.Recognition.RequireText)
	l.v.SetDefault("recognition.profile", defaults.Recognition.Profile)
	l.v.SetDefault("recognition.max_image_side", defaults.Recognition.MaxImageSide)
	l.v.SetDefault("recognition.spacing", defaults.Recognition.Spacing)
	l.v.SetDefault("recognition.normalize_form", defaults.Recognition.NormalizeForm)

	l.v.SetDefault("validation.max_bytes", defaults.Validation.MaxBytes)
	l.v.SetDefault("validation.max_pixels", defaults.Validation.MaxPixels)

	l.v.SetDefault("assets.source", defaults.Assets.Source)
	l.v.SetDefault("assets.dir", defaults.Assets.Dir)
	l.v.SetDefault("assets.timeout", defaults.Assets.Timeout)
	l.v.SetDefault("assets.s3.endpoint", defaults.Assets.S3.Endpoint)
	l.v.SetDefault("assets.s3.access_key", defaults.Assets.S3.AccessKey)
	l.v.SetDefault("assets.s3.secret_key", defaults.Assets.S3.SecretKey)
	l.v.SetDefault("assets.s3.bucket", defaults.Assets.S3.Bucket)
	l.v.SetDefault("assets.s3.prefix", defaults.Assets.S3.Prefix)
	l.v.SetDefault("assets.s3.region", defaults.Assets.S3.Region)
	l.v.SetDefault("assets.s3.use_ssl", defaults.Assets.S3.UseSSL)

	l.v.SetDefault("diagnostics.timeout", defaults.Diagnostics.Timeout)
	l.v.SetDefault("diagnostics.concurrency", defaults.Diagnostics.Concurrency)

	l.v.SetDefault("output.format", defaults.Output.Format)
	l.v.SetDefault("output.file", defaults.Output.File)
	l.v.SetDefault("output.confidence_precision", defaults.Output.ConfidencePrecision)
	l.v.SetDefault("output.progress", defaults.Output.Progress)

	l.v.SetDefault("server.host", defaults.Server.Host)
	l.v.SetDefault("server.port", defaults.Server.Port)
	l.v.SetDefault("server.cors_origin", defaults.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", defaults.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", defaults.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)
	l.v.SetDefault("server.max_concurrent", defaults.Server.MaxConcurrent)
	l.v.SetDefault("server.rate_limit.enabled", defaults.Server.RateLimit.Enabled)
	l.v.SetDefault("server.rate_limit.requests_per_minute", defaults.Server.RateLimit.RequestsPerMinute)
	l.v.SetDefault("server.rate_limit.requests_per_hour", defaults.Server.RateLimit.RequestsPerHour)
	l.v.SetDefault("server.rate_limit.max_requests_per_day", defaults.Server.RateLimit.MaxRequestsPerDay)
	l.v.SetDefault("server.rate_limit.max_data_per_day", defaults.Server.RateLimit.MaxDataPerDay)

	l.v.SetDefault("batch.workers", defaults.Batch.Workers)
	l.v.SetDefault("batch.continue_on_error", defaults.Batch.ContinueOnError)
}

// GenerateDefaultConfigFile writes the default configuration as YAML.
// It refuses to overwrite an existing file.
func GenerateDefaultConfigFile(filename string) error {
	if filename == "" {
		filename = DefaultConfigFile
	}
	if _, err := os.Stat(filename); err == nil {
		return fmt.Errorf("config file already exists: %s", filename)
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}

	paths = append(paths, filepath.Join("/etc", ConfigFileName))

	return paths
}

// PrintConfigInfo prints where configuration is read from.
func (l *Loader) PrintConfigInfo(w io.Writer) {
	used := l.ConfigFileUsed()
	if used == "" {
		used = "(none, using defaults)"
	}
	_, _ = fmt.Fprintf(w, "Configuration file used: %s\n", used)
	_, _ = fmt.Fprintf(w, "Configuration search paths: %v\n", GetConfigSearchPaths())
	_, _ = fmt.Fprintf(w, "Environment prefix: %s\n", EnvPrefix)
}
