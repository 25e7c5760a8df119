// Package config loads process configuration from the environment, per
// spec.md §6's "Process configuration" seam.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config mirrors the environment variables named in spec.md §6.
type Config struct {
	MongoURI       string `envconfig:"MONGODB_URI" required:"true"`
	DatabaseName   string `envconfig:"DATABASE_NAME" required:"true"`
	ServerPort     string `envconfig:"SERVER_PORT" default:"8080"`
	Network        string `envconfig:"NETWORK" default:"testnet"`
	AddressManager string `envconfig:"ADDRESS_MANAGER" required:"true"`

	Bank  BankConfig
	Chain ChainConfig
	Email EmailConfig
	Trello TrelloConfig
	GCS   GCSConfig

	Dispatcher DispatcherConfig
}

// BankConfig configures the EFI Pay client.
type BankConfig struct {
	BaseURL      string `envconfig:"BANK_BASE_URL"`
	ClientID     string `envconfig:"BANK_CLIENT_ID"`
	ClientSecret string `envconfig:"BANK_CLIENT_SECRET"`
	Timeout      time.Duration `envconfig:"BANK_TIMEOUT" default:"30s"`
}

// ChainConfig configures the Bolt/Stacks client.
type ChainConfig struct {
	BaseURL string        `envconfig:"CHAIN_BASE_URL"`
	Timeout time.Duration `envconfig:"CHAIN_TIMEOUT" default:"30s"`
}

// EmailConfig configures the outbound email sink. Recipients is the
// operations distribution list notified on a confirmed sale — neither
// Advertisement nor BankCredentials track a seller's email address, so
// this notification goes to the team reviewing settlements, not the
// seller directly.
type EmailConfig struct {
	SMTPHost   string   `envconfig:"EMAIL_SMTP_HOST"`
	SMTPPort   int      `envconfig:"EMAIL_SMTP_PORT" default:"587"`
	From       string   `envconfig:"EMAIL_FROM"`
	APIKey     string   `envconfig:"EMAIL_API_KEY"`
	Recipients []string `envconfig:"EMAIL_RECIPIENTS"`
}

// TrelloConfig configures the dispute-notification Trello sink.
type TrelloConfig struct {
	APIKey  string `envconfig:"TRELLO_API_KEY"`
	Token   string `envconfig:"TRELLO_TOKEN"`
	BoardID string `envconfig:"TRELLO_BOARD_ID"`
	ListID  string `envconfig:"TRELLO_LIST_ID"`
}

// GCSConfig configures the user-certificate object store. AccessToken is
// a static bearer token; gcsobjects.Client does not own OAuth token
// exchange, so rotating it is an operational concern outside this process.
type GCSConfig struct {
	Bucket      string `envconfig:"GCS_BUCKET"`
	AccessToken string `envconfig:"GCS_ACCESS_TOKEN"`
}

// DispatcherConfig tunes the event dispatcher, per spec.md §4.3.
type DispatcherConfig struct {
	BatchSize             int           `envconfig:"DISPATCHER_BATCH_SIZE" default:"50"`
	PollInterval          time.Duration `envconfig:"DISPATCHER_POLL_INTERVAL" default:"5s"`
	MaxConcurrentConsumers int64        `envconfig:"DISPATCHER_MAX_CONCURRENT" default:"10"`
	MaxRetries             int          `envconfig:"DISPATCHER_MAX_RETRIES" default:"10"`
	BackoffBase            time.Duration `envconfig:"DISPATCHER_BACKOFF_BASE" default:"1s"`
	BackoffCeiling         time.Duration `envconfig:"DISPATCHER_BACKOFF_CEILING" default:"10m"`
}

// Load reads a local .env file (non-production only) then overlays the
// real environment, matching the nhbchain-style "env beats file" load
// order.
func Load() (Config, error) {
	var cfg Config
	if os.Getenv("NETWORK") != "mainnet" {
		_ = godotenv.Load() // local .env is optional; real env always wins below
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsProduction reports whether NETWORK names the production chain.
func (c Config) IsProduction() bool {
	return c.Network == "mainnet"
}
