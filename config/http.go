package config

// HTTPConfig contains HTTP server configuration for the ops/API surface.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// DashboardBaseURL is the base URL of the dashboard web application
	// (e.g., "https://app.briefcast.fm"). Used for generating the brief
	// links embedded in thread notifications.
	DashboardBaseURL string `env:"DASHBOARD_BASE_URL" envDefault:"http://localhost:3000"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.Addr == "" {
		h.Addr = ":8080"
	}
}
