package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	StorageBackendPostgres = "postgres"
	StorageBackendMemory   = "memory"

	TTSProviderElevenLabs = "elevenlabs"
	TTSProviderOpenAI     = "openai"
)

type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	Env      string `envconfig:"ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`

	// Storage settings
	StorageBackend     string `envconfig:"STORAGE_BACKEND" default:"postgres"`
	DBConnectionString string `envconfig:"DB_CONNECTION_STRING"`

	// Session settings
	SessionTTL         time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	SessionRolling     bool          `envconfig:"SESSION_ROLLING" default:"false"`
	SessionCookieName  string        `envconfig:"SESSION_COOKIE_NAME" default:"sid"`
	CookieSecure       bool          `envconfig:"COOKIE_SECURE" default:"false"`
	FrontendURL        string        `envconfig:"FRONTEND_URL" default:"/"`
	CORSAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	// TTS provider settings
	TTSProvider       string        `envconfig:"TTS_PROVIDER" default:"elevenlabs"`
	ElevenLabsAPIKey  string        `envconfig:"ELEVENLABS_API_KEY"`
	ElevenLabsBaseURL string        `envconfig:"ELEVENLABS_BASE_URL" default:"https://api.elevenlabs.io/v1"`
	ElevenLabsModelID string        `envconfig:"ELEVENLABS_MODEL_ID" default:"eleven_monolingual_v1"`
	OpenAIAPIKey      string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL     string        `envconfig:"OPENAI_BASE_URL"`
	OpenAITTSModel    string        `envconfig:"OPENAI_TTS_MODEL" default:"tts-1"`
	TTSRequestTimeout time.Duration `envconfig:"TTS_REQUEST_TIMEOUT" default:"60s"`

	// Stripe settings
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	StripeCurrency      string `envconfig:"STRIPE_CURRENCY" default:"usd"`

	// OAuth settings
	GitHubClientID     string `envconfig:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `envconfig:"GITHUB_CLIENT_SECRET"`
	GitHubRedirectURL  string `envconfig:"GITHUB_REDIRECT_URL"`
	GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `envconfig:"GOOGLE_REDIRECT_URL"`

	// Payment notifications
	SlackWebhookURL    string `envconfig:"SLACK_WEBHOOK_URL"`
	GCPProjectID       string `envconfig:"GCP_PROJECT_ID"`
	PubSubPaymentTopic string `envconfig:"PUBSUB_PAYMENT_TOPIC" default:"payments"`

	// Values prefixed with sm:// are read from Secret Manager at startup
	SecretManagerEndpoint string `envconfig:"SECRET_MANAGER_ENDPOINT"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.StorageBackend = strings.ToLower(c.StorageBackend)
	c.TTSProvider = strings.ToLower(c.TTSProvider)

	switch c.StorageBackend {
	case StorageBackendPostgres:
		if c.DBConnectionString == "" {
			return fmt.Errorf("DB_CONNECTION_STRING is required when STORAGE_BACKEND=%s", StorageBackendPostgres)
		}
	case StorageBackendMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	switch c.TTSProvider {
	case TTSProviderElevenLabs, TTSProviderOpenAI:
	default:
		return fmt.Errorf("unknown TTS_PROVIDER %q", c.TTSProvider)
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// StripeEnabled reports whether subscription creation and status reads can reach Stripe.
func (c *Config) StripeEnabled() bool {
	return c.StripeSecretKey != ""
}

// StripeWebhookEnabled reports whether webhook signatures can be verified.
func (c *Config) StripeWebhookEnabled() bool {
	return c.StripeSecretKey != "" && c.StripeWebhookSecret != ""
}

func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func (c *Config) SlackEnabled() bool {
	return c.SlackWebhookURL != ""
}

func (c *Config) PubSubEnabled() bool {
	return c.GCPProjectID != "" && c.PubSubPaymentTopic != ""
}

// TTSAPIKey returns the API key of the selected TTS provider.
func (c *Config) TTSAPIKey() string {
	if c.TTSProvider == TTSProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.ElevenLabsAPIKey
}
