package config

import (
	"strings"
	"testing"
)

// memBackend is an in-memory ConfigBackend for tests.
type memBackend struct {
	strings map[string]string
	ints    map[string]int
}

func newMemBackend() *memBackend {
	return &memBackend{strings: make(map[string]string), ints: make(map[string]int)}
}

func (b *memBackend) GetString(key string) (string, bool, error) {
	v, ok := b.strings[key]
	return v, ok, nil
}

func (b *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.ints[key]
	return v, ok, nil
}

func (b *memBackend) SetString(key, val string) error { b.strings[key] = val; return nil }
func (b *memBackend) SetInt(key string, val int) error { b.ints[key] = val; return nil }
func (b *memBackend) Delete(key string) error {
	delete(b.strings, key)
	delete(b.ints, key)
	return nil
}

// mockKeychain is a test double for the Keychain interface.
type mockKeychain struct {
	data map[string]string
	err  error
}

func newMockKeychain() *mockKeychain {
	return &mockKeychain{data: make(map[string]string)}
}

func (m *mockKeychain) Get(service, account string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.data[service+"/"+account], nil
}

func (m *mockKeychain) Set(service, account, value string) error {
	if m.err != nil {
		return m.err
	}
	m.data[service+"/"+account] = value
	return nil
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		if s.env != "" {
			t.Setenv(s.env, "")
		}
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("SENTE_TELEGRAM_BOT_TOKEN", "bot-token")
	t.Setenv("SENTE_OPENAI_API_KEY", "api-key")

	cfg, err := loadWith(newMemBackend(), newMockKeychain())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.Telegram.PollTimeout != 50 {
		t.Errorf("Telegram.PollTimeout = %d, want 50", cfg.Telegram.PollTimeout)
	}
	if cfg.OpenAI.Model != "gpt-4o" {
		t.Errorf("OpenAI.Model = %q, want %q", cfg.OpenAI.Model, "gpt-4o")
	}
	if cfg.OpenAI.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("OpenAI.BaseURL = %q", cfg.OpenAI.BaseURL)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("SENTE_TELEGRAM_BOT_TOKEN", "bot-token")
	t.Setenv("SENTE_OPENAI_API_KEY", "api-key")

	b := newMemBackend()
	b.ints["server.port"] = 5000
	b.strings["openai.model"] = "gpt-4o-mini"
	b.strings["storage.data_dir"] = "/tmp/sente-test"

	cfg, err := loadWith(b, newMockKeychain())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("OpenAI.Model = %q", cfg.OpenAI.Model)
	}
	if cfg.Storage.DataDir != "/tmp/sente-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("SENTE_TELEGRAM_BOT_TOKEN", "bot-token")
	t.Setenv("SENTE_OPENAI_API_KEY", "api-key")
	t.Setenv("SENTE_OPENAI_MODEL", "env-model")

	b := newMemBackend()
	b.strings["openai.model"] = "backend-model"

	cfg, err := loadWith(b, newMockKeychain())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.OpenAI.Model != "env-model" {
		t.Errorf("OpenAI.Model = %q, want %q", cfg.OpenAI.Model, "env-model")
	}
}

func TestSecretsFallBackToKeychain(t *testing.T) {
	clearEnv(t)

	kc := newMockKeychain()
	kc.data["sente/telegram_bot_token"] = "kc-bot-token"
	kc.data["sente/openai_api_key"] = "kc-api-key"

	cfg, err := loadWith(newMemBackend(), kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Telegram.BotToken != "kc-bot-token" {
		t.Errorf("BotToken = %q", cfg.Telegram.BotToken)
	}
	if cfg.OpenAI.APIKey != "kc-api-key" {
		t.Errorf("APIKey = %q", cfg.OpenAI.APIKey)
	}
}

func TestMissingBotToken(t *testing.T) {
	clearEnv(t)
	t.Setenv("SENTE_OPENAI_API_KEY", "api-key")

	_, err := loadWith(newMemBackend(), newMockKeychain())
	if err == nil {
		t.Fatal("expected error for missing bot token, got nil")
	}
	if !strings.Contains(err.Error(), "missing required config") {
		t.Errorf("error = %q", err)
	}
}

func TestMissingAPIKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("SENTE_TELEGRAM_BOT_TOKEN", "bot-token")

	_, err := loadWith(newMemBackend(), newMockKeychain())
	if err == nil {
		t.Fatal("expected error for missing API key, got nil")
	}
	if !strings.Contains(err.Error(), "OpenAI API key") {
		t.Errorf("error = %q", err)
	}
}

func TestGetAPITokenGeneratesAndPersists(t *testing.T) {
	kc := newMockKeychain()

	tok, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if len(tok) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(tok))
	}

	again, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("GetAPIToken (second): %v", err)
	}
	if again != tok {
		t.Errorf("second call returned a different token")
	}
}

func TestSetKeyRejectsSecrets(t *testing.T) {
	err := SetKey("openai.api_key", "nope")
	if err == nil {
		t.Fatal("expected error setting a secret key")
	}
	if !strings.Contains(err.Error(), "cannot set secret") {
		t.Errorf("error = %q", err)
	}
}

func TestValidKeysExcludeSecrets(t *testing.T) {
	for _, k := range ValidKeys() {
		if k == "telegram.bot_token" || k == "openai.api_key" {
			t.Errorf("ValidKeys contains secret %q", k)
		}
	}
}
