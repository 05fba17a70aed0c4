package cmd

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/career-minimax/internal/api"
	"github.com/spigell/career-minimax/internal/decision"
	"github.com/spigell/career-minimax/internal/filtering"
	"github.com/spigell/career-minimax/internal/headhunter"
	"github.com/spigell/career-minimax/internal/provider"
	"github.com/spigell/career-minimax/internal/scheduler"
)

const (
	app       = "career-minimax"
	envPrefix = "CAREER_MINIMAX"
)

type Config struct {
	Engine decision.Config `mapstructure:"engine"`
	// Input is the default request document for decide.
	Input           string           `mapstructure:"input"`
	Filtering       filtering.Config `mapstructure:"filtering"`
	DisabledFilters []string         `mapstructure:"disabled-filters"`
	Providers       ProvidersConfig  `mapstructure:"providers"`
	AI              AIConfig         `mapstructure:"ai"`
	Store           StoreConfig      `mapstructure:"store"`
	API             APIConfig        `mapstructure:"api"`
	Watch           scheduler.Config `mapstructure:"watch"`
}

type ProvidersConfig struct {
	// Order lists provider names in fallback order.
	Order   []string      `mapstructure:"order"`
	HH      HHConfig      `mapstructure:"hh"`
	JSearch JSearchConfig `mapstructure:"jsearch"`
	// Corpus is a request document used as the last resort source.
	Corpus string `mapstructure:"corpus"`
}

type HHConfig struct {
	Enabled   bool                    `mapstructure:"enabled"`
	Token     string                  `mapstructure:"token"`
	TokenFile string                  `mapstructure:"token-file"`
	UserAgent string                  `mapstructure:"user-agent"`
	MaxPages  int                     `mapstructure:"max-pages"`
	Search    headhunter.SearchParams `mapstructure:"search"`
}

type JSearchConfig struct {
	provider.JSearchConfig `mapstructure:",squash"`
	APIKeyFile             string `mapstructure:"api-key-file"`
}

type AIConfig struct {
	// Provider is gemini, openai or empty for offline narration only.
	Provider     string       `mapstructure:"provider"`
	Narrate      bool         `mapstructure:"narrate"`
	MaxLogLength int          `mapstructure:"max-log-length"`
	Gemini       GeminiConfig `mapstructure:"gemini"`
	OpenAI       OpenAIConfig `mapstructure:"openai"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max-retries"`
}

type OpenAIConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base-url"`
	MaxRetries int    `mapstructure:"max-retries"`
}

type StoreConfig struct {
	// Driver is sqlite or none.
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type APIConfig struct {
	api.Config    `mapstructure:",squash"`
	JWTSecret     string `mapstructure:"jwt-secret"`
	JWTSecretFile string `mapstructure:"jwt-secret-file"`
}

var (
	// Used for flags.
	cfgFile string
	envFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "career-minimax picks the career option with the best guaranteed outcome against an adversarial job market",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	envBindings := map[string]string{
		"providers.hh.token-file":        "HH_TOKEN_FILE",
		"providers.jsearch.api-key-file": "RAPIDAPI_KEY_FILE",
		"ai.gemini.api-key-file":         "GEMINI_API_KEY_FILE",
		"ai.openai.api-key-file":         "OPENAI_API_KEY_FILE",
		"api.jwt-secret-file":            envPrefix + "_JWT_SECRET_FILE",
	}
	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	viper.SetDefault("providers.order", []string{"hh", "jsearch", "corpus"})
	viper.SetDefault("ai.max-log-length", 500)
	viper.SetDefault("store.driver", "sqlite")
	viper.SetDefault("store.path", app+".db")
	viper.SetDefault("watch.spec", scheduler.DefaultSpec)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is career-minimax.yaml in current directory)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "a dotenv file to load before reading the config (default is .env if present)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			log.Fatalf("loading env file %q: %v", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		// An explicit config must be readable.
		if err := viper.ReadInConfig(); err != nil {
			log.Fatal(err)
		}
		return
	}

	viper.AddConfigPath(".")
	viper.SetConfigName(app)
	viper.SetConfigType("yaml")

	// The config file is optional: the engine has defaults for everything.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Engine = engineConfig(config.Engine, viper.IsSet)
	return &config, nil
}

// engineConfig lays the keys present in the configuration over the engine
// defaults. Maps and lists are replaced as a whole, never merged.
func engineConfig(raw decision.Config, isSet func(key string) bool) decision.Config {
	cfg := decision.DefaultConfig()

	overlay := []struct {
		key   string
		apply func()
	}{
		{"mode", func() { cfg.Mode = raw.Mode }},
		{"normalization.lower", func() { cfg.Normalization.Lower = raw.Normalization.Lower }},
		{"normalization.upper", func() { cfg.Normalization.Upper = raw.Normalization.Upper }},
		{"normalization.confidence-threshold", func() { cfg.Normalization.ConfidenceThreshold = raw.Normalization.ConfidenceThreshold }},
		{"normalization.neutral-value", func() { cfg.Normalization.NeutralValue = raw.Normalization.NeutralValue }},
		{"epsilon", func() { cfg.Epsilon = raw.Epsilon }},
		{"max-rows", func() { cfg.MaxRows = raw.MaxRows }},
		{"max-cols", func() { cfg.MaxCols = raw.MaxCols }},
		{"max-iterations", func() { cfg.MaxIterations = raw.MaxIterations }},
		{"time-budget", func() { cfg.TimeBudget = raw.TimeBudget }},
		{"convergence-tolerance", func() { cfg.ConvergenceTolerance = raw.ConvergenceTolerance }},
		{"fallback", func() { cfg.Fallback = raw.Fallback }},
		{"dimensions", func() { cfg.Dimensions = raw.Dimensions }},
		{"default-weights", func() { cfg.DefaultWeights = raw.DefaultWeights }},
		{"market-weights", func() { cfg.MarketWeights = raw.MarketWeights }},
		{"default-scenarios", func() { cfg.DefaultScenarios = raw.DefaultScenarios }},
	}

	for _, o := range overlay {
		if isSet("engine." + o.key) {
			o.apply()
		}
	}

	return cfg
}
