// Package config holds the process configuration: a JSON5 file overlaid
// with OMNIBOT_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Config is the full process configuration.
type Config struct {
	Database DatabaseConfig `json:"database"`
	HTTP     HTTPConfig     `json:"http"`
	OpenAI   OpenAIConfig   `json:"openai"`
	Media    MediaConfig    `json:"media"`
	Channels ChannelsConfig `json:"channels"`
	Verbose  bool           `json:"verbose"`
}

// DatabaseConfig selects the Postgres instance.
type DatabaseConfig struct {
	PostgresDSN   string `json:"postgres_dsn"`
	MigrationsDir string `json:"migrations_dir"`
}

// HTTPConfig configures the webhook/status HTTP listener.
type HTTPConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// PublicBaseURL is the externally reachable origin used when
	// building media links handed to channel transports.
	PublicBaseURL string `json:"public_base_url"`
}

// OpenAIConfig is the platform-level LLM fallback configuration.
// Tenants may override the API key through their settings.
type OpenAIConfig struct {
	APIKey    string `json:"api_key"`
	ChatModel string `json:"chat_model"`
}

// MediaConfig configures inbound media persistence.
type MediaConfig struct {
	Dir        string `json:"dir"`
	MaxBytes   int64  `json:"max_bytes"`
	FFmpegPath string `json:"ffmpeg_path"`
}

// ChannelsConfig holds transport credentials for the global bot.
// Per-tenant credentials live in the settings table.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Meta     MetaConfig     `json:"meta"`
}

// TelegramConfig configures the global Telegram bot.
type TelegramConfig struct {
	Token string `json:"token"`
}

// WhatsAppConfig configures the WhatsApp socket layer.
type WhatsAppConfig struct {
	Enabled  bool   `json:"enabled"`
	StoreDir string `json:"store_dir"`
}

// MetaConfig configures the Messenger/Instagram webhook.
type MetaConfig struct {
	VerifyToken string `json:"verify_token"`
	AccessToken string `json:"access_token"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			MigrationsDir: "migrations",
		},
		HTTP: HTTPConfig{
			Host: "0.0.0.0",
			Port: 18850,
		},
		OpenAI: OpenAIConfig{
			ChatModel: "gpt-4o",
		},
		Media: MediaConfig{
			Dir:        "data/media",
			MaxBytes:   25 * 1024 * 1024,
			FFmpegPath: "ffmpeg",
		},
		Channels: ChannelsConfig{
			WhatsApp: WhatsAppConfig{
				StoreDir: "data/whatsapp",
			},
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("OMNIBOT_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("OMNIBOT_MIGRATIONS_DIR", &c.Database.MigrationsDir)
	envStr("OMNIBOT_HOST", &c.HTTP.Host)
	if v := os.Getenv("OMNIBOT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.HTTP.Port = port
		}
	}
	envStr("OMNIBOT_PUBLIC_BASE_URL", &c.HTTP.PublicBaseURL)

	envStr("OMNIBOT_OPENAI_API_KEY", &c.OpenAI.APIKey)
	envStr("OMNIBOT_OPENAI_CHAT_MODEL", &c.OpenAI.ChatModel)

	envStr("OMNIBOT_MEDIA_DIR", &c.Media.Dir)
	envStr("OMNIBOT_FFMPEG_PATH", &c.Media.FFmpegPath)

	envStr("OMNIBOT_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	envStr("OMNIBOT_WHATSAPP_STORE_DIR", &c.Channels.WhatsApp.StoreDir)
	if v := os.Getenv("OMNIBOT_WHATSAPP_ENABLED"); v != "" {
		c.Channels.WhatsApp.Enabled = v == "true" || v == "1"
	}
	envStr("OMNIBOT_META_VERIFY_TOKEN", &c.Channels.Meta.VerifyToken)
	envStr("OMNIBOT_META_ACCESS_TOKEN", &c.Channels.Meta.AccessToken)

	if v := os.Getenv("OMNIBOT_VERBOSE"); v != "" {
		c.Verbose = v == "true" || v == "1"
	}
}
