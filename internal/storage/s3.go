package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// ErrNoBucket is returned when neither the call nor the config names a bucket
var ErrNoBucket = errors.New("no bucket configured")

// Config holds the S3 connection settings
type Config struct {
	// Endpoint is the URL used by the server, e.g. http://minio:9000
	Endpoint string
	// PublicEndpoint, when set, is the URL presigned links are signed for
	PublicEndpoint string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
}

// Ref locates a stored object
type Ref struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// PresignOptions control the response headers baked into a presigned URL
type PresignOptions struct {
	Inline      bool
	ContentType string
	Filename    string
}

// S3 stores invoice documents in an S3 compatible bucket
type S3 struct {
	cfg    Config
	client *minio.Client
	signer *minio.Client
	logger zerolog.Logger
}

// New creates the S3 clients. No request is made until the first call.
func New(cfg Config, logger zerolog.Logger) (*S3, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	client, err := newClient(cfg.Endpoint, cfg)
	if err != nil {
		return nil, err
	}
	signer := client
	if cfg.PublicEndpoint != "" {
		signer, err = newClient(cfg.PublicEndpoint, cfg)
		if err != nil {
			return nil, err
		}
	}
	return &S3{cfg: cfg, client: client, signer: signer, logger: logger}, nil
}

func newClient(endpoint string, cfg Config) (*minio.Client, error) {
	host, secure, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(host, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       secure,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client for %s: %w", host, err)
	}
	return client, nil
}

// parseEndpoint splits an endpoint URL into host and TLS flag. A bare
// host:port is accepted as plain HTTP.
func parseEndpoint(raw string) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("s3 endpoint cannot be empty")
	}
	if !strings.Contains(raw, "://") {
		return strings.TrimRight(raw, "/"), false, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("invalid s3 endpoint %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("invalid s3 endpoint %q: missing host", raw)
	}
	return u.Host, strings.EqualFold(u.Scheme, "https"), nil
}

// ObjectKey builds the storage key for an uploaded document
func ObjectKey(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	return "invoices/" + uuid.NewString() + "_" + name
}

// Bucket returns the default bucket
func (s *S3) Bucket() string {
	return s.cfg.Bucket
}

// Endpoint returns the internal endpoint
func (s *S3) Endpoint() string {
	return s.cfg.Endpoint
}

// Upload stores data under key in the default bucket, creating the bucket
// when it does not exist
func (s *S3) Upload(ctx context.Context, key string, data []byte, contentType string) (Ref, error) {
	bucket := s.cfg.Bucket
	if bucket == "" {
		return Ref{}, ErrNoBucket
	}
	if err := s.ensureBucket(ctx, bucket); err != nil {
		return Ref{}, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return Ref{}, fmt.Errorf("upload to %s failed: %w", s.cfg.Endpoint, err)
	}

	s.logger.Debug().Str("bucket", bucket).Str("key", key).Int("size", len(data)).Msg("object uploaded")
	return Ref{Bucket: bucket, Key: key}, nil
}

func (s *S3) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	s.logger.Info().Str("bucket", bucket).Msg("bucket created")
	return nil
}

// PresignedURL returns a time limited GET link for ref, signed against the
// public endpoint when one is configured
func (s *S3) PresignedURL(ctx context.Context, ref Ref, expires time.Duration, opts PresignOptions) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", contentDisposition(opts))
	if opts.ContentType != "" {
		params.Set("response-content-type", opts.ContentType)
	}

	u, err := s.signer.PresignedGetObject(ctx, ref.Bucket, ref.Key, expires, params)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s/%s: %w", ref.Bucket, ref.Key, err)
	}
	return u.String(), nil
}

func contentDisposition(opts PresignOptions) string {
	disposition := "attachment"
	if opts.Inline {
		disposition = "inline"
	}
	if opts.Filename != "" {
		disposition += fmt.Sprintf("; filename=%q", opts.Filename)
	}
	return disposition
}

// Ping lists the buckets to check the endpoint and credentials
func (s *S3) Ping(ctx context.Context) error {
	if _, err := s.client.ListBuckets(ctx); err != nil {
		return fmt.Errorf("s3 ping failed: %w", err)
	}
	return nil
}
