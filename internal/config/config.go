package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

type Config struct {
	Server   ServerConfig
	Telegram TelegramConfig
	OpenAI   OpenAIConfig
	Storage  StorageConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int
}

type TelegramConfig struct {
	BotToken string
	// PollTimeout is the long-poll wait in seconds.
	PollTimeout int
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Telegram: TelegramConfig{
			PollTimeout: 50,
		},
		OpenAI: OpenAIConfig{
			Model:   "gpt-4o",
			BaseURL: "https://api.openai.com/v1",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.sente.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/sente/config.json
// and secrets live in a file under $XDG_DATA_HOME/sente.
//
// Environment variables (SENTE_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain())
}

// Keychain abstracts the platform secret store.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

const keychainService = "sente"

func loadWith(b ConfigBackend, kc Keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Secrets absent from the environment fall back to the platform store.
	if cfg.Telegram.BotToken == "" {
		if v, err := kc.Get(keychainService, "telegram_bot_token"); err == nil && v != "" {
			cfg.Telegram.BotToken = v
		}
	}
	if cfg.OpenAI.APIKey == "" {
		if v, err := kc.Get(keychainService, "openai_api_key"); err == nil && v != "" {
			cfg.OpenAI.APIKey = v
		}
	}

	if cfg.Telegram.BotToken == "" {
		return Config{}, fmt.Errorf("missing required config: Telegram bot token. "+
			"Set it via environment variable SENTE_TELEGRAM_BOT_TOKEN%s", secretHint())
	}
	if cfg.OpenAI.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: OpenAI API key. "+
			"Set it via environment variable SENTE_OPENAI_API_KEY%s", secretHint())
	}

	return cfg, nil
}

// GetAPIToken returns the bearer token protecting the management API,
// generating and persisting one on first use.
func GetAPIToken(kc Keychain) (string, error) {
	if tok, err := kc.Get(keychainService, "api_token"); err == nil && strings.TrimSpace(tok) != "" {
		return strings.TrimSpace(tok), nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	tok := hex.EncodeToString(buf)

	if err := kc.Set(keychainService, "api_token", tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}

// keychainReader is the platform-backed Keychain implementation.
type keychainReader struct{}

// NewKeychain returns the platform secret store.
func NewKeychain() Keychain {
	return keychainReader{}
}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (keychainReader) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}
