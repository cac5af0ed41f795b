package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// mockKeychain is a test double for the secrets reader.
type mockKeychain struct {
	value string
	err   error
}

func (m mockKeychain) Get(service, account string) (string, error) {
	return m.value, m.err
}

func writeTempConfig(t *testing.T, content string) *fileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return newFileBackend(path)
}

func clearKeyEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MOCKMATE_LLM_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "")
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	clearKeyEnv(t)
	b := writeTempConfig(t, `{}`)

	cfg, err := loadWith(b, mockKeychain{err: ErrSecretNotFound}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.LLM.BaseURL != "https://api.groq.com/openai/v1" {
		t.Errorf("LLM.BaseURL = %q", cfg.LLM.BaseURL)
	}
	if cfg.LLM.Model != "llama-3.3-70b-versatile" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.LLM.Temperature != 0.7 {
		t.Errorf("LLM.Temperature = %v, want 0.7", cfg.LLM.Temperature)
	}
	if cfg.LLM.MaxTokens != 2000 {
		t.Errorf("LLM.MaxTokens = %d, want 2000", cfg.LLM.MaxTokens)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Storage.Backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if cfg.Interview.NumQuestions != 10 {
		t.Errorf("Interview.NumQuestions = %d, want 10", cfg.Interview.NumQuestions)
	}
	if cfg.User.ID != "default" {
		t.Errorf("User.ID = %q, want default", cfg.User.ID)
	}
	if got := cfg.LLM.TimeoutDuration().String(); got != "1m0s" {
		t.Errorf("TimeoutDuration = %s, want 1m0s", got)
	}
}

func TestFileValues_ZeroTemperature(t *testing.T) {
	clearKeyEnv(t)
	b := writeTempConfig(t, `{"llm.temperature": 0}`)

	cfg, err := loadWith(b, mockKeychain{err: ErrSecretNotFound}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Temperature != 0 {
		t.Errorf("LLM.Temperature = %v, want 0 from the file", cfg.LLM.Temperature)
	}
}

func TestFileValues(t *testing.T) {
	clearKeyEnv(t)
	b := writeTempConfig(t, `{
  "server.port": 5000,
  "llm.model": "mixtral-8x7b",
  "llm.temperature": 0.2,
  "storage.backend": "redis",
  "storage.redis_addr": "cache:6379",
  "interview.num_questions": "5",
  "llm.api_key": "ignored-secret"
}`)

	cfg, err := loadWith(b, mockKeychain{err: ErrSecretNotFound}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.LLM.Model != "mixtral-8x7b" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.LLM.Temperature != 0.2 {
		t.Errorf("LLM.Temperature = %v, want 0.2", cfg.LLM.Temperature)
	}
	if cfg.Storage.Backend != "redis" || cfg.Storage.RedisAddr != "cache:6379" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Interview.NumQuestions != 5 {
		t.Errorf("Interview.NumQuestions = %d, want 5", cfg.Interview.NumQuestions)
	}
	if cfg.LLM.APIKey != "" {
		t.Errorf("secret read from config file: %q", cfg.LLM.APIKey)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearKeyEnv(t)
	b := writeTempConfig(t, `{"llm.model": "file-model"}`)

	t.Setenv("MOCKMATE_LLM_MODEL", "env-model")
	t.Setenv("MOCKMATE_LLM_API_KEY", "env-key")
	t.Setenv("MOCKMATE_SERVER_PORT", "not-a-number")

	cfg, err := loadWith(b, mockKeychain{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Model != "env-model" {
		t.Errorf("LLM.Model = %q, want env-model", cfg.LLM.Model)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("LLM.APIKey = %q, want env-key", cfg.LLM.APIKey)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("invalid env port should keep default, got %d", cfg.Server.Port)
	}
}

func TestGroqKeyAlias(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv("GROQ_API_KEY", "gsk-alias")

	cfg, err := loadWith(writeTempConfig(t, `{}`), mockKeychain{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "gsk-alias" {
		t.Errorf("LLM.APIKey = %q, want gsk-alias", cfg.LLM.APIKey)
	}
}

func TestDotEnvFile(t *testing.T) {
	clearKeyEnv(t)
	os.Unsetenv("MOCKMATE_LOG_LEVEL")
	t.Cleanup(func() { os.Unsetenv("MOCKMATE_LOG_LEVEL") })

	envPath := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envPath, []byte("MOCKMATE_LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadWith(writeTempConfig(t, `{}`), mockKeychain{}, []string{filepath.Join(t.TempDir(), "missing.env"), envPath})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

// TestMissingAPIKey verifies Validate reports a missing key clearly.
func TestMissingAPIKey(t *testing.T) {
	clearKeyEnv(t)

	cfg, err := loadWith(writeTempConfig(t, `{}`), mockKeychain{err: errors.New("no secrets")}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing API key, got nil")
	}
	if want := "missing required config"; !strings.Contains(err.Error(), want) {
		t.Errorf("error = %q, want it to contain %q", err.Error(), want)
	}
}

// TestKeychainFallback verifies the secrets file is consulted when no API key is in env.
func TestKeychainFallback(t *testing.T) {
	clearKeyEnv(t)

	cfg, err := loadWith(writeTempConfig(t, `{}`), mockKeychain{value: "keychain-secret"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "keychain-secret" {
		t.Errorf("LLM.APIKey = %q, want keychain-secret", cfg.LLM.APIKey)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestInvalidStorageBackend(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv("MOCKMATE_STORAGE_BACKEND", "postgres")

	if _, err := loadWith(writeTempConfig(t, `{}`), mockKeychain{}, nil); err == nil {
		t.Fatal("expected error for unknown storage backend")
	}
}

func TestSetKey(t *testing.T) {
	b := writeTempConfig(t, `{}`)

	if err := setKeyWith(b, "server.port", "4200"); err != nil {
		t.Fatalf("setKeyWith port: %v", err)
	}
	if err := setKeyWith(b, "llm.temperature", "0.3"); err != nil {
		t.Fatalf("setKeyWith temperature: %v", err)
	}
	if err := setKeyWith(b, "server.port", "abc"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if err := setKeyWith(b, "llm.api_key", "x"); err == nil {
		t.Error("expected error when setting a secret")
	}
	if err := setKeyWith(b, "nope", "x"); err == nil {
		t.Error("expected error for unknown key")
	}

	reloaded := newFileBackend(b.path)
	port, ok, err := reloaded.GetInt("server.port")
	if err != nil || !ok || port != 4200 {
		t.Errorf("server.port = %d ok=%v err=%v, want 4200", port, ok, err)
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.LLM.APIKey = "super-secret"
	for _, k := range ShowAll(cfg) {
		if k.Key == "llm.api_key" || k.Value == "super-secret" {
			t.Errorf("ShowAll leaked secret: %+v", k)
		}
	}
	if len(ShowAll(cfg)) != len(ValidKeys()) {
		t.Errorf("ShowAll and ValidKeys disagree")
	}
}

func TestGetAPIToken(t *testing.T) {
	kc := NewKeychainAt(filepath.Join(t.TempDir(), "secrets.json"))

	tok, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if len(tok) != 64 {
		t.Errorf("token length = %d, want 64", len(tok))
	}

	again, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("second GetAPIToken: %v", err)
	}
	if again != tok {
		t.Errorf("token changed between calls: %q != %q", again, tok)
	}

	info, err := os.Stat(kc.path)
	if err != nil {
		t.Fatalf("stat secrets: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("secrets file mode = %o, want 600", perm)
	}
}

func TestSetLLMAPIKey(t *testing.T) {
	kc := NewKeychainAt(filepath.Join(t.TempDir(), "secrets.json"))
	if err := SetLLMAPIKey(kc, "gsk-stored"); err != nil {
		t.Fatalf("SetLLMAPIKey: %v", err)
	}
	got, err := kc.Get("mockmate", "llm_api_key")
	if err != nil || got != "gsk-stored" {
		t.Errorf("Get = %q, %v", got, err)
	}
}
