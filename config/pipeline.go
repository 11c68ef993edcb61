package config

import (
	"errors"
	"strings"
	"time"
)

// ExtractionConfig contains the remote fetch/render service configuration.
type ExtractionConfig struct {
	// Endpoint is the fetch/render service URL. The service returns fully
	// rendered HTML for a target URL.
	Endpoint string `env:"EXTRACTION_ENDPOINT" envDefault:"https://app.scrapingbee.com/api/v1/"`

	// APIKey authenticates against the fetch/render service.
	APIKey string `env:"EXTRACTION_API_KEY"`

	// PrimaryTimeout is the HTTP timeout for the primary (JS-rendered) fetch.
	PrimaryTimeout time.Duration `env:"EXTRACTION_PRIMARY_TIMEOUT" envDefault:"45s"`

	// FallbackTimeout is the HTTP timeout for the cheaper fallback fetch.
	FallbackTimeout time.Duration `env:"EXTRACTION_FALLBACK_TIMEOUT" envDefault:"15s"`

	// RenderWait is how long the fetch service waits for dynamic content
	// before capturing the page on the primary attempt.
	RenderWait time.Duration `env:"EXTRACTION_RENDER_WAIT" envDefault:"2500ms"`

	// MinContentChars is the minimum extracted text length accepted on the
	// primary attempt; shorter results count as insufficient content.
	MinContentChars int `env:"EXTRACTION_MIN_CONTENT_CHARS" envDefault:"500"`

	// FallbackMinContentChars is the more lenient threshold for the fallback
	// attempt: degraded input is better than none.
	FallbackMinContentChars int `env:"EXTRACTION_FALLBACK_MIN_CONTENT_CHARS" envDefault:"200"`
}

// Sanitize applies guardrails to extraction configuration values.
func (e *ExtractionConfig) Sanitize() {
	if e.PrimaryTimeout < 5*time.Second {
		e.PrimaryTimeout = 5 * time.Second
	}
	if e.FallbackTimeout < 2*time.Second {
		e.FallbackTimeout = 2 * time.Second
	}
	if e.MinContentChars < 1 {
		e.MinContentChars = 1
	}
	if e.FallbackMinContentChars < 1 {
		e.FallbackMinContentChars = 1
	}
	if e.FallbackMinContentChars > e.MinContentChars {
		e.FallbackMinContentChars = e.MinContentChars
	}
}

// Validate checks required extraction inputs.
func (e *ExtractionConfig) Validate() error {
	if strings.TrimSpace(e.Endpoint) == "" {
		return errors.New("EXTRACTION_ENDPOINT is required")
	}
	if strings.TrimSpace(e.APIKey) == "" {
		return errors.New("EXTRACTION_API_KEY is required")
	}
	return nil
}

// SummarizeConfig contains narration script generation configuration.
type SummarizeConfig struct {
	// APIKey authenticates summarization and speech calls. The two stages
	// share one upstream account.
	APIKey string `env:"OPENAI_API_KEY"`

	// Model is the chat completion model used to compress article text.
	Model string `env:"SUMMARIZE_MODEL" envDefault:"gpt-4o-mini"`

	// MaxWords bounds the narration script; the default reads in roughly one
	// minute at narration cadence.
	MaxWords int `env:"SUMMARIZE_MAX_WORDS" envDefault:"150"`

	// MaxSourceWords bounds the article text handed to the model. Oversized
	// sources are truncated before the call, never after it.
	MaxSourceWords int `env:"SUMMARIZE_MAX_SOURCE_WORDS" envDefault:"2500"`

	// Temperature keeps generation close to deterministic.
	Temperature float32 `env:"SUMMARIZE_TEMPERATURE" envDefault:"0.3"`
}

// Sanitize applies guardrails to summarization configuration values.
func (s *SummarizeConfig) Sanitize() {
	if s.MaxWords < 10 {
		s.MaxWords = 10
	}
	if s.MaxSourceWords < s.MaxWords {
		s.MaxSourceWords = s.MaxWords
	}
	if s.Temperature < 0 {
		s.Temperature = 0
	}
}

// Validate checks required summarization inputs.
func (s *SummarizeConfig) Validate() error {
	if strings.TrimSpace(s.APIKey) == "" {
		return errors.New("OPENAI_API_KEY is required")
	}
	return nil
}

// SpeechConfig contains speech synthesis configuration.
type SpeechConfig struct {
	// Model is the speech synthesis model.
	Model string `env:"SPEECH_MODEL" envDefault:"tts-1"`

	// Voice is the fixed narration voice.
	Voice string `env:"SPEECH_VOICE" envDefault:"alloy"`

	// Speed applies a slight speed-up so briefs stay tight.
	Speed float64 `env:"SPEECH_SPEED" envDefault:"1.05"`
}

// Sanitize applies guardrails to speech configuration values.
func (s *SpeechConfig) Sanitize() {
	if s.Speed < 0.5 || s.Speed > 2.0 {
		s.Speed = 1.0
	}
}

// StorageDriver selects the audio storage backend at composition time.
type StorageDriver string

const (
	// StorageDriverLocal writes audio files to the local filesystem (development).
	StorageDriverLocal StorageDriver = "local"
	// StorageDriverS3 uploads audio files to S3-compatible object storage (production).
	StorageDriverS3 StorageDriver = "s3"
)

// StorageConfig contains audio artifact storage configuration.
type StorageConfig struct {
	// Driver selects the backend: "local" or "s3".
	Driver StorageDriver `env:"STORAGE_DRIVER" envDefault:"local"`

	// LocalDir is the base directory for the local driver.
	LocalDir string `env:"STORAGE_LOCAL_DIR" envDefault:"./uploads/audio"`

	// LocalURLPrefix is the public path prefix mapped to LocalDir.
	LocalURLPrefix string `env:"STORAGE_LOCAL_URL_PREFIX" envDefault:"/uploads/audio"`

	// S3 object storage settings, used when Driver is "s3".
	S3Endpoint  string `env:"STORAGE_S3_ENDPOINT"   envDefault:"s3.amazonaws.com"`
	S3Region    string `env:"STORAGE_S3_REGION"     envDefault:"us-east-1"`
	S3Bucket    string `env:"STORAGE_S3_BUCKET"`
	S3AccessKey string `env:"STORAGE_S3_ACCESS_KEY"`
	S3SecretKey string `env:"STORAGE_S3_SECRET_KEY"`
	S3KeyPrefix string `env:"STORAGE_S3_KEY_PREFIX" envDefault:"audio/"`
	// S3PublicBaseURL overrides the generated object URL (e.g. a CDN host).
	S3PublicBaseURL string `env:"STORAGE_S3_PUBLIC_BASE_URL"`
}

// Sanitize applies guardrails to storage configuration values.
func (s *StorageConfig) Sanitize() {
	if s.Driver != StorageDriverLocal && s.Driver != StorageDriverS3 {
		s.Driver = StorageDriverLocal
	}
	if s.LocalDir == "" {
		s.LocalDir = "./uploads/audio"
	}
	s.LocalURLPrefix = "/" + strings.Trim(s.LocalURLPrefix, "/")
}

// Validate checks required storage inputs for the selected driver.
func (s *StorageConfig) Validate() error {
	if s.Driver != StorageDriverS3 {
		return nil
	}
	if strings.TrimSpace(s.S3Bucket) == "" {
		return errors.New("STORAGE_S3_BUCKET is required when STORAGE_DRIVER=s3")
	}
	if strings.TrimSpace(s.S3AccessKey) == "" || strings.TrimSpace(s.S3SecretKey) == "" {
		return errors.New("STORAGE_S3_ACCESS_KEY and STORAGE_S3_SECRET_KEY are required when STORAGE_DRIVER=s3")
	}
	return nil
}

// NotifyConfig contains thread notification configuration.
type NotifyConfig struct {
	// BotToken is the workspace bot token used to post thread replies.
	BotToken string `env:"SLACK_BOT_TOKEN"`

	// DashboardBaseURL is the web dashboard base used in brief links.
	DashboardBaseURL string `env:"DASHBOARD_BASE_URL" envDefault:"https://app.briefcast.local"`

	// Timeout bounds one notification post.
	Timeout time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`
}

// Validate checks required notification inputs.
func (n *NotifyConfig) Validate() error {
	if strings.TrimSpace(n.BotToken) == "" {
		return errors.New("SLACK_BOT_TOKEN is required")
	}
	return nil
}
