package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/briefcast/briefcast-go/config"
	"github.com/briefcast/briefcast-go/internal/core"
	apperrors "github.com/briefcast/briefcast-go/internal/errors"
)

// S3StoreOptions groups dependencies for the S3-compatible store.
type S3StoreOptions struct {
	Config config.StorageConfig
	Logger *slog.Logger // Optional
	Secure bool
}

// S3Store uploads audio files to S3-compatible object storage.
type S3Store struct {
	client    *minio.Client
	bucket    string
	keyPrefix string
	baseURL   string
	logger    *slog.Logger
}

// NewS3Store constructs an S3Store.
func NewS3Store(opts S3StoreOptions) (*S3Store, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("storage config: %w", err)
	}

	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: opts.Secure,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}

	baseURL := strings.TrimRight(cfg.S3PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s/%s", cfg.S3Endpoint, cfg.S3Bucket)
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "s3_store")
	}

	return &S3Store{
		client:    client,
		bucket:    cfg.S3Bucket,
		keyPrefix: strings.TrimLeft(cfg.S3KeyPrefix, "/"),
		baseURL:   baseURL,
		logger:    logger,
	}, nil
}

var _ core.BlobStore = (*S3Store)(nil)

// Put uploads the object and returns its public URL.
func (s *S3Store) Put(ctx context.Context, params core.PutObjectParams) (string, error) {
	name, err := sanitizeObjectName(params.Name)
	if err != nil {
		return "", err
	}
	if len(params.Data) == 0 {
		return "", fmt.Errorf("s3 store: empty object data")
	}

	key := s.keyPrefix + name
	_, err = s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(params.Data), int64(len(params.Data)),
		minio.PutObjectOptions{ContentType: params.ContentType})
	if err != nil {
		return "", apperrors.Wrapf(err, apperrors.ErrCodeUnavailable, "upload %s", key)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "audio file uploaded",
			"bucket", s.bucket,
			"key", key,
			"bytes", len(params.Data),
		)
	}
	return s.baseURL + "/" + key, nil
}
