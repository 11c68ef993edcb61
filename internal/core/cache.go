// Package core provides the business logic and service layer for the briefcast job system.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/briefcast/briefcast-go/internal/domain/model"
)

// CacheRepository defines the interface for caching operations.
// This follows the hexagonal architecture pattern where the core defines interfaces
// and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists checks if a key exists in the cache.
	Exists(ctx context.Context, key string) (bool, error)

	// SetIfNotExists atomically sets a key only if it doesn't already exist.
	// Returns true if the key was set, false if it already existed.
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

// ExtractionCacheService caches extracted article content keyed by URL so a
// link shared in several threads is fetched once per TTL window.
type ExtractionCacheService struct {
	cache CacheRepository
	ttl   time.Duration
}

// ExtractionCacheConfig holds configuration for extraction caching.
type ExtractionCacheConfig struct {
	TTL time.Duration `json:"ttl"`
}

// ExtractionCacheServiceOptions bundles dependencies for NewExtractionCacheService.
type ExtractionCacheServiceOptions struct {
	Cache  CacheRepository
	Config ExtractionCacheConfig
}

// DefaultExtractionCacheConfig returns an ExtractionCacheConfig with sensible defaults.
func DefaultExtractionCacheConfig() ExtractionCacheConfig {
	return ExtractionCacheConfig{
		TTL: 6 * time.Hour,
	}
}

// NewExtractionCacheService creates a new ExtractionCacheService.
func NewExtractionCacheService(opts ExtractionCacheServiceOptions) *ExtractionCacheService {
	ttl := opts.Config.TTL
	if ttl <= 0 {
		ttl = DefaultExtractionCacheConfig().TTL
	}
	return &ExtractionCacheService{
		cache: opts.Cache,
		ttl:   ttl,
	}
}

// Get returns the cached extraction for a URL, or nil on a miss. Stub content
// is never served from cache so a later attempt can retry the real fetch.
func (s *ExtractionCacheService) Get(ctx context.Context, url string) (*model.ExtractedContent, error) {
	if s == nil || s.cache == nil || url == "" {
		return nil, nil
	}

	raw, err := s.cache.Get(ctx, s.key(url))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var content model.ExtractedContent
	if err := json.Unmarshal(raw, &content); err != nil {
		// A corrupt entry is treated as a miss; drop it so it is rewritten.
		_, _ = s.cache.Delete(ctx, s.key(url))
		return nil, nil
	}
	if content.Stub {
		return nil, nil
	}
	return &content, nil
}

// Put stores an extraction result. Stub content is not cached.
func (s *ExtractionCacheService) Put(ctx context.Context, content *model.ExtractedContent) error {
	if s == nil || s.cache == nil || content == nil || content.URL == "" || content.Stub {
		return nil
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("encode extraction cache entry: %w", err)
	}
	return s.cache.Set(ctx, s.key(content.URL), raw, s.ttl)
}

// Invalidate removes the cached extraction for a URL.
func (s *ExtractionCacheService) Invalidate(ctx context.Context, url string) error {
	if s == nil || s.cache == nil || url == "" {
		return nil
	}
	_, err := s.cache.Delete(ctx, s.key(url))
	return err
}

func (s *ExtractionCacheService) key(url string) string {
	return "extraction:content:" + url
}
