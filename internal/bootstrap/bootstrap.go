// Package bootstrap wires the shared dependencies of the filmate binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"filmate/internal/config"
	"filmate/internal/integrations/bedrock"
	"filmate/internal/integrations/openai"
	"filmate/internal/integrations/paramstore"
	"filmate/internal/integrations/slackapi"
	"filmate/internal/integrations/tmdb"
	"filmate/internal/logging"
	"filmate/internal/repository"
	"filmate/internal/usecase"
)

// Secret field names inside the {prefix}/secrets parameter.
const (
	fieldSigningSecret = "slack_signing_secret"
	fieldBotToken      = "slack_bot_token"
	fieldTMDBKey       = "tmdb_key"
	fieldOpenAIToken   = "token"
)

const (
	tmdbBurst            = 10
	tmdbFailureThreshold = 5
	tmdbOpenTimeout      = 30 * time.Second
)

// Secrets are resolved lazily on first use and cached per process.
type Secrets struct {
	SigningSecret *paramstore.Secret
	BotToken      *paramstore.Secret
	TMDBKey       *paramstore.Secret
	OpenAIKey     *paramstore.Secret
}

func NewSecrets(cfg *config.Config, getter paramstore.Getter) (*Secrets, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config must not be nil")
	}
	var (
		s   Secrets
		err error
	)
	if s.SigningSecret, err = paramstore.NewSecret(getter, cfg.SecretsParam(), fieldSigningSecret); err != nil {
		return nil, err
	}
	if s.BotToken, err = paramstore.NewSecret(getter, cfg.SecretsParam(), fieldBotToken); err != nil {
		return nil, err
	}
	if s.TMDBKey, err = paramstore.NewSecret(getter, cfg.SecretsParam(), fieldTMDBKey); err != nil {
		return nil, err
	}
	if s.OpenAIKey, err = paramstore.NewSecret(getter, cfg.OpenAITokenParam(), fieldOpenAIToken); err != nil {
		return nil, err
	}
	return &s, nil
}

// HTTPClient is shared by the catalog and Slack calls.
func HTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.HTTPTimeout}
}

// LLMHTTPClient allows for completions that outlast ordinary API calls.
func LLMHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.LLMTimeout}
}

// NewGenerator returns the language model client selected by LLM_PROVIDER.
func NewGenerator(cfg *config.Config, secrets *Secrets, awsCfg aws.Config, httpClient *http.Client) (usecase.Generator, error) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		return openai.NewClient(secrets.OpenAIKey, cfg.OpenAIModel,
			openai.WithBaseURL(cfg.OpenAIBaseURL),
			openai.WithHTTPClient(httpClient),
		)
	case config.ProviderBedrock:
		api := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
			o.HTTPClient = httpClient
		})
		return bedrock.New(api, cfg.BedrockModelID)
	default:
		return nil, fmt.Errorf("bootstrap: unknown llm provider %q", cfg.LLMProvider)
	}
}

// NewConversationService assembles the recommendation pipeline behind the
// conversation state machine.
func NewConversationService(cfg *config.Config, secrets *Secrets, llm usecase.Generator, store usecase.SessionStore, httpClient *http.Client) (*usecase.ConversationService, error) {
	catalog, err := tmdb.NewClient(secrets.TMDBKey,
		tmdb.WithBaseURL(cfg.TMDBBaseURL),
		tmdb.WithLanguage(cfg.TMDBLanguage),
		tmdb.WithHTTPClient(httpClient),
		tmdb.WithRateLimit(cfg.TMDBRequestsPerSecond, tmdbBurst),
		tmdb.WithBreaker(tmdbFailureThreshold, tmdbOpenTimeout),
	)
	if err != nil {
		return nil, err
	}
	genres, err := usecase.NewGenreCache(catalog)
	if err != nil {
		return nil, err
	}
	retriever, err := usecase.NewRetriever(catalog, genres)
	if err != nil {
		return nil, err
	}
	synth, err := usecase.NewTitleSynthesizer(llm, catalog)
	if err != nil {
		return nil, err
	}
	summarizer, err := usecase.NewSummarizer(llm, cfg.SummaryRetryInterval)
	if err != nil {
		return nil, err
	}
	notifier, err := slackapi.NewNotifier(secrets.BotToken, slackapi.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}
	return usecase.NewConversationService(store, llm, notifier, synth, retriever, summarizer, cfg.TMDBImageBaseURL)
}

func NewVerifier(secrets *Secrets) (*slackapi.Verifier, error) {
	return slackapi.NewVerifier(secrets.SigningSecret)
}

// Lambda holds the dependencies every Lambda binary shares.
type Lambda struct {
	Config     *config.Config
	AWS        aws.Config
	Secrets    *Secrets
	Store      *repository.Client
	Generator  usecase.Generator
	HTTPClient *http.Client
}

// NewLambda loads configuration and builds the AWS-backed dependencies.
// Credentials come from SSM; sessions live in DynamoDB.
func NewLambda(ctx context.Context) (*Lambda, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.LogLevel)
	if err := cfg.RequireSessionsTable(); err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load AWS config: %w", err)
	}
	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, err
	}
	secrets, err := NewSecrets(cfg, params)
	if err != nil {
		return nil, err
	}
	store, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.SessionsTable)
	if err != nil {
		return nil, err
	}
	httpClient := HTTPClient(cfg)
	llm, err := NewGenerator(cfg, secrets, awsCfg, LLMHTTPClient(cfg))
	if err != nil {
		return nil, err
	}
	return &Lambda{
		Config:     cfg,
		AWS:        awsCfg,
		Secrets:    secrets,
		Store:      store,
		Generator:  llm,
		HTTPClient: httpClient,
	}, nil
}
