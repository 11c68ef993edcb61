// Package storage provides BlobStore implementations for rendered audio:
// a local filesystem driver for development and an S3-compatible driver
// for production.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/briefcast/briefcast-go/internal/core"
)

// LocalStoreOptions groups dependencies for the local filesystem store.
type LocalStoreOptions struct {
	Dir       string
	URLPrefix string
	Logger    *slog.Logger // Optional
}

// LocalStore writes audio files under a base directory and serves them from
// a URL path prefix.
type LocalStore struct {
	dir       string
	urlPrefix string
	logger    *slog.Logger
}

// NewLocalStore constructs a LocalStore and ensures the base directory exists.
func NewLocalStore(opts LocalStoreOptions) (*LocalStore, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("local store: dir is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", opts.Dir, err)
	}

	prefix := "/" + strings.Trim(opts.URLPrefix, "/")

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "local_store")
	}

	return &LocalStore{
		dir:       opts.Dir,
		urlPrefix: prefix,
		logger:    logger,
	}, nil
}

var _ core.BlobStore = (*LocalStore)(nil)

// Dir returns the base directory, for wiring a static file handler.
func (s *LocalStore) Dir() string { return s.dir }

// URLPrefix returns the public path prefix mapped to Dir.
func (s *LocalStore) URLPrefix() string { return s.urlPrefix }

// Put writes the object and returns its public URL path.
func (s *LocalStore) Put(ctx context.Context, params core.PutObjectParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name, err := sanitizeObjectName(params.Name)
	if err != nil {
		return "", err
	}
	if len(params.Data) == 0 {
		return "", errors.New("local store: empty object data")
	}

	dest := filepath.Join(s.dir, name)
	if err := os.WriteFile(dest, params.Data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", dest, err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "audio file written", "path", dest, "bytes", len(params.Data))
	}
	return s.urlPrefix + "/" + name, nil
}

// sanitizeObjectName rejects names that could escape the base directory.
func sanitizeObjectName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("storage: object name is required")
	}
	cleaned := path.Clean(name)
	if cleaned != name || strings.Contains(name, "/") || strings.Contains(name, "\\") ||
		strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("storage: invalid object name %q", name)
	}
	return cleaned, nil
}
