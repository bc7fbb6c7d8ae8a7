package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	ProviderOpenAI  = "openai"
	ProviderBedrock = "bedrock"
)

// Config is the process configuration shared by every binary. Each field is
// set from the upper-cased environment variable of its koanf key
// (sessions_table -> SESSIONS_TABLE). Secrets never live here; they are read
// from SSM under ParamPrefix.
type Config struct {
	SessionsTable   string `koanf:"sessions_table"`
	ParamPrefix     string `koanf:"param_prefix" validate:"required,startswith=/"`
	ChatHandlerName string `koanf:"chat_handler_name"`

	LLMProvider    string `koanf:"llm_provider" validate:"oneof=openai bedrock"`
	OpenAIModel    string `koanf:"openai_model" validate:"required_if=LLMProvider openai"`
	OpenAIBaseURL  string `koanf:"openai_base_url" validate:"omitempty,url"`
	BedrockModelID string `koanf:"bedrock_model_id" validate:"required_if=LLMProvider bedrock"`

	TMDBBaseURL           string  `koanf:"tmdb_base_url" validate:"required,url"`
	TMDBImageBaseURL      string  `koanf:"tmdb_image_base_url" validate:"required,url"`
	TMDBLanguage          string  `koanf:"tmdb_language" validate:"required"`
	TMDBRequestsPerSecond float64 `koanf:"tmdb_requests_per_second" validate:"gte=0"`

	HTTPTimeout          time.Duration `koanf:"http_timeout" validate:"gt=0"`
	LLMTimeout           time.Duration `koanf:"llm_timeout" validate:"gt=0"`
	SummaryRetryInterval time.Duration `koanf:"summary_retry_interval" validate:"gt=0"`
	LogLevel             string        `koanf:"log_level" validate:"oneof=debug info warn error"`

	LocalAddr    string `koanf:"local_addr" validate:"required"`
	LocalDataDir string `koanf:"local_data_dir"`
}

func defaultConfig() *Config {
	return &Config{
		ParamPrefix:           "/filmate",
		ChatHandlerName:       "filmChatFlow",
		LLMProvider:           ProviderBedrock,
		OpenAIModel:           "gpt-4o-mini",
		BedrockModelID:        "anthropic.claude-3-haiku-20240307-v1:0",
		TMDBBaseURL:           "https://api.themoviedb.org/3",
		TMDBImageBaseURL:      "https://image.tmdb.org/t/p/w500",
		TMDBLanguage:          "ja-JP",
		TMDBRequestsPerSecond: 40,
		HTTPTimeout:           10 * time.Second,
		LLMTimeout:            60 * time.Second,
		SummaryRetryInterval:  time.Second,
		LogLevel:              "info",
		LocalAddr:             "127.0.0.1:3000",
	}
}

// Load layers environment variables over the defaults and validates the
// result. Variables that do not name a known key are ignored.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	envProvider := env.Provider("", ".", func(key string) string {
		key = strings.ToLower(key)
		if !k.Exists(key) {
			return ""
		}
		return key
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.SessionsTable = strings.TrimSpace(c.SessionsTable)
	c.ParamPrefix = strings.TrimRight(strings.TrimSpace(c.ParamPrefix), "/")
	c.ChatHandlerName = strings.TrimSpace(c.ChatHandlerName)
	c.LLMProvider = strings.ToLower(strings.TrimSpace(c.LLMProvider))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("config: invalid fields: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("config: validate: %w", err)
	}
	return nil
}

// RequireSessionsTable fails unless the DynamoDB session table is configured.
// Only the Lambda binaries need it.
func (c *Config) RequireSessionsTable() error {
	if c.SessionsTable == "" {
		return errors.New("config: SESSIONS_TABLE is required")
	}
	return nil
}

// RequireDispatchTarget fails unless the worker function name is configured.
func (c *Config) RequireDispatchTarget() error {
	if c.ChatHandlerName == "" {
		return errors.New("config: CHAT_HANDLER_NAME is required")
	}
	return nil
}

// SecretsParam is the SSM parameter holding the Slack and TMDB credentials.
func (c *Config) SecretsParam() string {
	return c.ParamPrefix + "/secrets"
}

// OpenAITokenParam is the SSM parameter holding the OpenAI API key.
func (c *Config) OpenAITokenParam() string {
	return c.ParamPrefix + "/open-ai-token"
}
