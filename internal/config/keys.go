package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	alias   string // secondary env var, consulted when env is unset
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "MOCKMATE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.allowed_origins", typ: kString, env: "MOCKMATE_SERVER_ALLOWED_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.AllowedOrigins = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AllowedOrigins },
	},
	{
		key: "llm.base_url", typ: kString, env: "MOCKMATE_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.model", typ: kString, env: "MOCKMATE_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.api_key", typ: kString, env: "MOCKMATE_LLM_API_KEY", alias: "GROQ_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "llm.temperature", typ: kFloat, env: "MOCKMATE_LLM_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.LLM.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.LLM.Temperature },
	},
	{
		key: "llm.max_tokens", typ: kInt, env: "MOCKMATE_LLM_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.LLM.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.LLM.MaxTokens },
	},
	{
		key: "llm.timeout", typ: kString, env: "MOCKMATE_LLM_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.LLM.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Timeout },
	},
	{
		key: "storage.backend", typ: kString, env: "MOCKMATE_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.data_dir", typ: kString, env: "MOCKMATE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.redis_addr", typ: kString, env: "MOCKMATE_STORAGE_REDIS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Storage.RedisAddr = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.RedisAddr },
	},
	{
		key: "interview.question_type", typ: kString, env: "MOCKMATE_INTERVIEW_QUESTION_TYPE",
		apply:   func(cfg *Config, v any) { cfg.Interview.QuestionType = v.(string) },
		extract: func(cfg Config) any { return cfg.Interview.QuestionType },
	},
	{
		key: "interview.num_questions", typ: kInt, env: "MOCKMATE_INTERVIEW_NUM_QUESTIONS",
		apply:   func(cfg *Config, v any) { cfg.Interview.NumQuestions = v.(int) },
		extract: func(cfg Config) any { return cfg.Interview.NumQuestions },
	},
	{
		key: "interview.difficulty", typ: kString, env: "MOCKMATE_INTERVIEW_DIFFICULTY",
		apply:   func(cfg *Config, v any) { cfg.Interview.Difficulty = v.(string) },
		extract: func(cfg Config) any { return cfg.Interview.Difficulty },
	},
	{
		key: "user.id", typ: kString, env: "MOCKMATE_USER_ID",
		apply:   func(cfg *Config, v any) { cfg.User.ID = v.(string) },
		extract: func(cfg Config) any { return cfg.User.ID },
	},
	{
		key: "log.level", typ: kString, env: "MOCKMATE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" && s.alias != "" {
			raw = os.Getenv(s.alias)
		}
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
