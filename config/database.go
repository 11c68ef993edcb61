package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"briefcast"`
	Password string `env:"PASSWORD" envDefault:"briefcast"`
	Name     string `env:"NAME"     envDefault:"briefcast"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI      string `env:"URI"      envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`
}

// CacheConfig contains the extraction cache configuration (Redis-based).
type CacheConfig struct {
	// Enabled controls whether extracted content is cached by URL.
	Enabled bool `env:"CACHE_ENABLED" envDefault:"true"`

	// ExtractionTTL is the TTL for cached extraction results.
	ExtractionTTL time.Duration `env:"CACHE_EXTRACTION_TTL" envDefault:"6h"`
}
