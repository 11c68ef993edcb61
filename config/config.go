package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and cache configuration
//   - http.go: HTTP server configuration
//   - pipeline.go: Content pipeline stage configuration
//   - services.go: Service mode, worker, fallback, and reaper configuration
type AppConfig struct {
	// IsDev controls development mode behavior (local audio storage, relaxed validation).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Cache    CacheConfig

	// HTTP server configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http,worker,reaper"`

	// Worker configuration
	Worker WorkerConfig

	// Fallback executor configuration
	Fallback FallbackConfig

	// Reaper configuration
	Reaper ReaperConfig

	// Pipeline stage configuration
	Extraction ExtractionConfig
	Summarize  SummarizeConfig
	Speech     SpeechConfig
	Storage    StorageConfig
	Notify     NotifyConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Worker.Sanitize()
	c.Fallback.Sanitize()
	c.Reaper.Sanitize()
	c.Extraction.Sanitize()
	c.Summarize.Sanitize()
	c.Speech.Sanitize()
	c.Storage.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// Validate checks that required inputs are present for the enabled services.
// Missing credentials fail fast with a descriptive error instead of letting
// a pipeline stage degrade silently at runtime.
func (c *AppConfig) Validate() error {
	services, err := c.GetEnabledServices()
	if err != nil {
		return err
	}

	if services[ServiceModeWorker] {
		if err := c.Extraction.Validate(); err != nil {
			return err
		}
		if err := c.Summarize.Validate(); err != nil {
			return err
		}
		if err := c.Storage.Validate(); err != nil {
			return err
		}
		if err := c.Notify.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (the dashboard tooling sets it).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeHTTP]
}

// IsWorkerEnabled returns true if the link worker service is enabled.
func (c *AppConfig) IsWorkerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeWorker]
}

// IsReaperEnabled returns true if the job reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeReaper]
}
