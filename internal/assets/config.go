package assets

import (
	"fmt"
	"net/http"
	"time"

	"github.com/MeKo-Tech/evalocr/internal/models"
)

// Source kinds.
const (
	KindHTTP = "http"
	KindDir  = "dir"
	KindS3   = "s3"
)

// Config selects and configures a Source.
type Config struct {
	Source   string            `mapstructure:"source" yaml:"source" json:"source"`
	BaseURLs map[string]string `mapstructure:"base_urls" yaml:"base_urls" json:"base_urls"`
	Dir      string            `mapstructure:"dir" yaml:"dir" json:"dir"`
	Timeout  time.Duration     `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	S3       S3Config          `mapstructure:"s3" yaml:"s3" json:"s3"`
}

// New builds the configured source.
func New(cfg Config) (Source, error) {
	switch cfg.Source {
	case "", KindHTTP:
		bases := make(map[models.Variant]string, len(cfg.BaseURLs))
		for k, v := range cfg.BaseURLs {
			variant := models.Variant(k)
			if !variant.Valid() {
				return nil, fmt.Errorf("assets: unknown variant %q in base_urls", k)
			}
			bases[variant] = v
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		return NewHTTPSource(bases, &http.Client{Timeout: timeout}), nil
	case KindDir:
		return NewDirSource(cfg.Dir), nil
	case KindS3:
		return NewS3Source(cfg.S3)
	default:
		return nil, fmt.Errorf("assets: unknown source %q", cfg.Source)
	}
}
