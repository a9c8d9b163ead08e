package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/MeKo-Tech/evalocr/internal/models"
	"github.com/MeKo-Tech/evalocr/internal/ocrerr"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config configures an S3-compatible language data bucket.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key" json:"-"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key" json:"-"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket" json:"bucket"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix" json:"prefix"`
	Region    string `mapstructure:"region" yaml:"region" json:"region"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl" json:"use_ssl"`
}

// S3Source reads assets stored as <prefix>/<variant>/<lang>.traineddata.
type S3Source struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Source creates a minio client for cfg.
func NewS3Source(cfg S3Config) (*S3Source, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 endpoint and bucket are required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return &S3Source{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Name implements Source.
func (s *S3Source) Name() string { return "s3" }

func (s *S3Source) key(asset models.Asset) string {
	return path.Join(s.prefix, string(asset.Variant), asset.FileName())
}

// Location implements Source.
func (s *S3Source) Location(asset models.Asset) string {
	return "s3://" + s.bucket + "/" + s.key(asset)
}

// Open implements Source.
func (s *S3Source) Open(ctx context.Context, asset models.Asset) (io.ReadCloser, int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.key(asset), minio.StatObjectOptions{})
	if err != nil {
		return nil, 0, s.wrap(asset, err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(asset), minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, s.wrap(asset, err)
	}
	return obj, info.Size, nil
}

// Probe implements Source. Access-denied answers count as reachable.
func (s *S3Source) Probe(ctx context.Context, asset models.Asset) error {
	_, err := s.client.StatObject(ctx, s.bucket, s.key(asset), minio.StatObjectOptions{})
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil
	}
	return s.wrap(asset, err)
}

func (s *S3Source) wrap(asset models.Asset, err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == http.StatusNotFound:
		return ocrerr.Network(fmt.Errorf("%s: %w", s.Location(asset), ErrNotFound))
	case resp.StatusCode != 0 && !Unreachable(resp.StatusCode):
		return fmt.Errorf("%s: %w", s.Location(asset), err)
	}
	return ocrerr.Network(fmt.Errorf("%s: %w", s.Location(asset), err))
}
