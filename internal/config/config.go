package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Storage   StorageConfig
	Interview InterviewConfig
	User      UserConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port           int
	AllowedOrigins string
}

type LLMConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     string
}

type StorageConfig struct {
	Backend   string
	DataDir   string
	RedisAddr string
}

// InterviewConfig holds the defaults used when a start request omits them.
type InterviewConfig struct {
	QuestionType string
	NumQuestions int
	Difficulty   string
}

type UserConfig struct {
	ID string
}

type LogConfig struct {
	Level string
}

// TimeoutDuration parses LLM.Timeout, falling back to 60s.
func (c LLMConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           4100,
			AllowedOrigins: "http://localhost:4200",
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			Model:       "llama-3.3-70b-versatile",
			Temperature: 0.7,
			MaxTokens:   2000,
			Timeout:     "60s",
		},
		Storage: StorageConfig{
			Backend:   "sqlite",
			DataDir:   dataDir(),
			RedisAddr: "localhost:6379",
		},
		Interview: InterviewConfig{
			QuestionType: "all",
			NumQuestions: 10,
			Difficulty:   "medium",
		},
		User: UserConfig{ID: "default"},
		Log:  LogConfig{Level: "info"},
	}
}

// Load reads configuration from the JSON config file, a .env file, the
// environment, and the secrets file, in increasing order of precedence
// (the secrets file only fills an API key that is still empty).
//
// The .env file is looked up in the working directory and in
// $XDG_CONFIG_HOME/mockmate/.env. Variables already set in the environment
// win over .env entries.
func Load() (Config, error) {
	envFiles := []string{".env", filepath.Join(configDir(), ".env")}
	return loadWith(newDefaultBackend(), NewKeychain(), envFiles)
}

type secretReader interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc secretReader, envFiles []string) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(envFiles); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if cfg.LLM.APIKey == "" {
		if key, err := kc.Get(keychainService, "llm_api_key"); err == nil && key != "" {
			cfg.LLM.APIKey = key
		}
	}

	switch cfg.Storage.Backend {
	case "sqlite", "redis", "memory":
	default:
		return Config{}, fmt.Errorf("invalid storage.backend %q: want sqlite, redis or memory", cfg.Storage.Backend)
	}

	return cfg, nil
}

func loadDotEnv(files []string) error {
	for _, f := range files {
		err := godotenv.Load(f)
		if err == nil || errors.Is(err, os.ErrNotExist) {
			continue
		}
		return fmt.Errorf("loading %s: %w", f, err)
	}
	return nil
}

// Validate reports config that is required to talk to the LLM backend.
func (c Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("missing required config: LLM API key. " +
			"Set it via environment variable MOCKMATE_LLM_API_KEY (or GROQ_API_KEY), " +
			"a .env file, or `mockmate config set-key`")
	}
	return nil
}
