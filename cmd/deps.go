package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/career-minimax/internal/ai"
	"github.com/spigell/career-minimax/internal/ai/gemini"
	"github.com/spigell/career-minimax/internal/ai/openai"
	"github.com/spigell/career-minimax/internal/decision"
	"github.com/spigell/career-minimax/internal/filtering"
	"github.com/spigell/career-minimax/internal/headhunter"
	"github.com/spigell/career-minimax/internal/logger"
	"github.com/spigell/career-minimax/internal/provider"
	"github.com/spigell/career-minimax/internal/secrets"
	"github.com/spigell/career-minimax/internal/store"
)

const (
	providerHH      = "hh"
	providerJSearch = "jsearch"
	providerCorpus  = "corpus"
)

// setup builds the logger and the config every command starts from.
func setup() (*zap.Logger, *Config) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Debug("config loaded", zap.String("file", viper.ConfigFileUsed()), zap.String("mode", config.Engine.Mode))
	return logger, config
}

// newScreener returns a screening function for concurrent callers. Filters
// keep per-run state, so every call gets its own pipeline.
func newScreener(config *Config, log *zap.Logger) func(ctx context.Context, req decision.Request) (*decision.Request, error) {
	filterCfg := config.Filtering
	disabled := append([]string(nil), config.DisabledFilters...)

	return func(ctx context.Context, req decision.Request) (*decision.Request, error) {
		steps := filtering.Default()
		for _, name := range disabled {
			filtering.DisableByName(steps, name, "disabled in config")
		}
		return filtering.Run(ctx, &filterCfg, filtering.Deps{Logger: log}, steps, req)
	}
}

// newProvider assembles the fallback chain in the configured order. A
// provider that is not configured is skipped with a debug line. doc, when
// given, serves as the corpus in place of providers.corpus.
func newProvider(config *Config, doc *provider.Document, log *zap.Logger) (provider.Provider, error) {
	var providers []provider.Provider

	for _, name := range config.Providers.Order {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case providerHH:
			p, err := newHeadHunterProvider(config.Providers.HH, log)
			if err != nil {
				return nil, err
			}
			if p == nil {
				log.Debug("provider skipped", zap.String("provider", name), zap.String("reason", "disabled"))
				continue
			}
			providers = append(providers, p)
		case providerJSearch:
			p, err := newJSearchProvider(config.Providers.JSearch, log)
			if err != nil {
				log.Debug("provider skipped", zap.String("provider", name), zap.Error(err))
				continue
			}
			providers = append(providers, p)
		case providerCorpus:
			corpusDoc := doc
			if corpusDoc == nil && config.Providers.Corpus != "" {
				var err error
				corpusDoc, err = provider.LoadDocument(config.Providers.Corpus)
				if err != nil {
					return nil, fmt.Errorf("loading corpus: %w", err)
				}
			}
			if corpusDoc == nil {
				log.Debug("provider skipped", zap.String("provider", name), zap.String("reason", "no corpus"))
				continue
			}
			p, err := provider.NewCorpus(corpusDoc)
			if err != nil {
				return nil, fmt.Errorf("building corpus provider: %w", err)
			}
			providers = append(providers, p)
		default:
			return nil, fmt.Errorf("unknown provider %q in providers.order", name)
		}
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no market data provider is configured (see providers.order)")
	}

	return provider.NewChain(log, providers...), nil
}

func newHeadHunterProvider(cfg HHConfig, log *zap.Logger) (provider.Provider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	// The token is optional for vacancy search.
	token := ""
	if cfg.Token != "" || cfg.TokenFile != "" {
		var err error
		token, err = secrets.Load(secrets.Source{
			Name:  "headhunter token",
			Value: cfg.Token,
			File:  cfg.TokenFile,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set HH_TOKEN_FILE or providers.hh.token-file)", err)
		}
	}

	client := headhunter.New(log, token)
	if cfg.UserAgent != "" {
		client.UserAgent = cfg.UserAgent
	}
	if cfg.MaxPages > 0 {
		client.MaxPages = cfg.MaxPages
	}

	return provider.NewHeadHunter(client, cfg.Search, log), nil
}

func newJSearchProvider(cfg JSearchConfig, log *zap.Logger) (provider.Provider, error) {
	key, err := secrets.Load(secrets.Source{
		Name:  "rapidapi key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
		Env:   "RAPIDAPI_KEY",
	})
	if err != nil {
		return nil, err
	}

	jcfg := cfg.JSearchConfig
	jcfg.APIKey = key
	return provider.NewJSearch(jcfg, log)
}

// newGenerator returns nil without an error when no AI provider is set.
func newGenerator(ctx context.Context, cfg AIConfig, log *zap.Logger) (ai.Generator, string, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))

	switch name {
	case "":
		return nil, "", nil
	case gemini.Provider:
		key, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			Value: cfg.Gemini.APIKey,
			File:  cfg.Gemini.APIKeyFile,
			Env:   "GEMINI_API_KEY",
		})
		if err != nil {
			return nil, "", fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
		}
		gen, err := gemini.NewGenerator(ctx, key, cfg.Gemini.Model, cfg.Gemini.MaxRetries, log)
		if err != nil {
			return nil, "", err
		}
		return gen, name, nil
	case openai.Provider:
		key, err := secrets.Load(secrets.Source{
			Name:  "openai api key",
			Value: cfg.OpenAI.APIKey,
			File:  cfg.OpenAI.APIKeyFile,
			Env:   "OPENAI_API_KEY",
		})
		if err != nil {
			return nil, "", fmt.Errorf("%w (set ai.openai.api-key-file or OPENAI_API_KEY_FILE)", err)
		}
		gen, err := openai.NewGenerator(openai.Config{
			APIKey:     key,
			Model:      cfg.OpenAI.Model,
			BaseURL:    cfg.OpenAI.BaseURL,
			MaxRetries: cfg.OpenAI.MaxRetries,
		}, log)
		if err != nil {
			return nil, "", err
		}
		return gen, name, nil
	default:
		return nil, "", fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
}

// newNarrator falls back to the offline template when no generator is
// available.
func newNarrator(gen ai.Generator, providerName string, cfg AIConfig, log *zap.Logger) ai.Narrator {
	if gen == nil {
		return ai.TemplateNarrator{}
	}
	return ai.NewLLMNarrator(gen, providerName, log, cfg.MaxLogLength)
}

func newStore(cfg StoreConfig, log *zap.Logger) (store.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "none", "noop":
		return store.Noop{}, nil
	case "sqlite":
		return store.NewSQLite(cfg.Path, log)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}

func loadJWTSecret(cfg APIConfig) (string, error) {
	if cfg.JWTSecret == "" && cfg.JWTSecretFile == "" {
		return "", nil
	}
	return secrets.Load(secrets.Source{
		Name:  "jwt secret",
		Value: cfg.JWTSecret,
		File:  cfg.JWTSecretFile,
	})
}
