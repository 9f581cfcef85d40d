// Package config loads settings from the environment and from the user's
// config.env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/raine/hotpotato/internal/apperr"
)

const (
	AppName     = "hotpotato"
	EnvFileName = "config.env"
	DBFileName  = "hotpotato.db"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
	ProviderOpenAI     = "openai"
)

type Config struct {
	SupabaseURL     string `envconfig:"SUPABASE_URL"`
	SupabaseAnonKey string `envconfig:"SUPABASE_ANON_KEY"`
	Bucket          string `envconfig:"SUPABASE_BUCKET" default:"listings"`

	VisionProvider   string `envconfig:"VISION_PROVIDER" default:"openrouter"`
	OpenRouterAPIKey string `envconfig:"OPENROUTER_API_KEY"`
	OpenRouterModel  string `envconfig:"OPENROUTER_MODEL" default:"google/gemini-2.0-flash-exp:free"`
	OpenRouterURL    string `envconfig:"OPENROUTER_BASE_URL"`
	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY"`
	GeminiModel      string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash-lite"`
	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel      string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIBaseURL    string `envconfig:"OPENAI_BASE_URL"`

	ImageSource  string `envconfig:"IMAGE_SOURCE" default:"auto"`
	ImageBaseURL string `envconfig:"IMAGE_BASE_URL"`

	DBPath    string `envconfig:"HOTPOTATO_DB_PATH"`
	TokenKey  string `envconfig:"HOTPOTATO_TOKEN_KEY"`
	RunLogDir string `envconfig:"HOTPOTATO_RUN_LOG_DIR"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"warn"`
}

// Dir returns the application's config directory, creating it if needed.
func Dir() (string, error) {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	configDir := filepath.Join(configBase, AppName)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// FilePath returns the full path to config.env.
func FilePath() (string, error) {
	configDir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, EnvFileName), nil
}

// LoadEnvFile loads environment variables from config.env. Variables that
// are already set win. Errors are ignored since the file may not exist.
func LoadEnvFile() {
	configPath, err := FilePath()
	if err != nil {
		return
	}
	_ = godotenv.Load(configPath)
}

// Load reads the configuration from the environment. It does not check
// that required values are present; see Validate.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, apperr.Wrap(apperr.KindConfig, err, fmt.Sprintf("invalid configuration: %v", err))
	}
	cfg.VisionProvider = strings.ToLower(strings.TrimSpace(cfg.VisionProvider))
	cfg.SupabaseURL = strings.TrimRight(strings.TrimSpace(cfg.SupabaseURL), "/")
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath()
	}
	return &cfg, nil
}

// defaultDBPath keeps the database next to config.env so it does not depend
// on the working directory.
func defaultDBPath() string {
	dir, err := Dir()
	if err != nil {
		log.Warn().Err(err).Msg("storing the database in the working directory")
		return DBFileName
	}
	return filepath.Join(dir, DBFileName)
}

// visionKeyVar returns the name of the API key variable the selected
// provider needs.
func (c *Config) visionKeyVar() (string, string) {
	switch c.VisionProvider {
	case ProviderGemini:
		return "GEMINI_API_KEY", c.GeminiAPIKey
	case ProviderOpenAI:
		return "OPENAI_API_KEY", c.OpenAIAPIKey
	default:
		return "OPENROUTER_API_KEY", c.OpenRouterAPIKey
	}
}

// Missing returns the names of required variables that are not set.
func (c *Config) Missing() []string {
	var missing []string
	if c.SupabaseURL == "" {
		missing = append(missing, "SUPABASE_URL")
	}
	if c.SupabaseAnonKey == "" {
		missing = append(missing, "SUPABASE_ANON_KEY")
	}
	if name, value := c.visionKeyVar(); value == "" {
		missing = append(missing, name)
	}
	return missing
}

// Validate reports missing or invalid settings as a ConfigError.
func (c *Config) Validate() error {
	switch c.VisionProvider {
	case ProviderOpenRouter, ProviderGemini, ProviderOpenAI:
	default:
		return apperr.Config(fmt.Sprintf("unknown vision provider %q", c.VisionProvider))
	}
	if missing := c.Missing(); len(missing) > 0 {
		return apperr.Config("missing required config: " + strings.Join(missing, ", "))
	}
	return nil
}

// PersistSessions reports whether signed-in sessions are stored on disk.
func (c *Config) PersistSessions() bool {
	return c.TokenKey != ""
}
