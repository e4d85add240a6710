package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

const (
	BackendOpenAI = "openai"
	BackendOllama = "ollama"

	RankingPopularity = "popularity"
	RankingDiscovery  = "discovery"

	maxGenerationTimeout = 45 * time.Second
	maxSearchTimeout     = 30 * time.Second
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Generator   GeneratorConfig   `toml:"generator"`
	Catalog     CatalogConfig     `toml:"catalog"`
	Planner     PlannerConfig     `toml:"planner"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Batch       BatchConfig       `toml:"batch"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	OpenAI  OpenAIConfig  `toml:"openai"`
	Spotify SpotifyConfig `toml:"spotify"`
	Ollama  OllamaConfig  `toml:"ollama"`
}

// OpenAIConfig contains the chat completions API key and endpoint.
type OpenAIConfig struct {
	APIKey  Secret `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// SpotifyConfig contains Spotify client credentials.
type SpotifyConfig struct {
	ClientID     Secret `toml:"client_id"`
	ClientSecret Secret `toml:"client_secret"`
}

// OllamaConfig points at a local Ollama server.
type OllamaConfig struct {
	Host string `toml:"host"`
}

// GeneratorConfig controls strategy generation.
type GeneratorConfig struct {
	Backend        string `toml:"backend"`
	Model          string `toml:"model"`
	MaxRetries     int    `toml:"max_retries"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	RetryDelayMS   int    `toml:"retry_delay_ms"`
}

// CatalogConfig controls catalog searches.
type CatalogConfig struct {
	Market         string  `toml:"market"`
	Limit          int     `toml:"limit"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	RateLimit      float64 `toml:"rate_limit"`
	TokenURL       string  `toml:"token_url"`
	BaseURL        string  `toml:"base_url"`
}

// PlannerConfig controls query planning and ranking.
type PlannerConfig struct {
	TrackCount         int     `toml:"track_count"`
	AllowExplicit      bool    `toml:"allow_explicit"`
	Ranking            string  `toml:"ranking"`
	OverfetchFactor    int     `toml:"overfetch_factor"`
	CollapseSimilarity float64 `toml:"collapse_similarity"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// BatchConfig contains defaults for batch runs.
type BatchConfig struct {
	Workers   int     `toml:"workers"`
	RateLimit float64 `toml:"rate_limit"`
	OutputDir string  `toml:"output_dir"`
}

// LogConfig sets the default log level.
type LogConfig struct {
	Level string `toml:"level"`
}

// Timeout returns the per-attempt generation timeout, capped at 45 seconds.
func (g GeneratorConfig) Timeout() time.Duration {
	return clampSeconds(g.TimeoutSeconds, maxGenerationTimeout)
}

// RetryDelay returns the base delay for the linear retry backoff.
func (g GeneratorConfig) RetryDelay() time.Duration {
	if g.RetryDelayMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(g.RetryDelayMS) * time.Millisecond
}

// Timeout returns the per-search timeout, capped at 30 seconds.
func (c CatalogConfig) Timeout() time.Duration {
	return clampSeconds(c.TimeoutSeconds, maxSearchTimeout)
}

func clampSeconds(seconds int, max time.Duration) time.Duration {
	d := time.Duration(seconds) * time.Second
	if d <= 0 || d > max {
		return max
	}
	return d
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadConfig reads a TOML configuration file and merges it over [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnv loads KEY=VALUE pairs from dotenv files into the process environment.
//
// Missing files are skipped and variables already set in the environment are kept.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnv overrides config values with environment variables.
//
// lookup is usually [os.LookupEnv].
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	secret := func(key string, dst *Secret) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = Secret(v)
		}
	}

	secret("OPENAI_API_KEY", &c.Credentials.OpenAI.APIKey)
	str("OPENAI_BASE_URL", &c.Credentials.OpenAI.BaseURL)
	secret("SPOTIFY_CLIENT_ID", &c.Credentials.Spotify.ClientID)
	secret("SPOTIFY_CLIENT_SECRET", &c.Credentials.Spotify.ClientSecret)
	str("OLLAMA_HOST", &c.Credentials.Ollama.Host)
	str("MOODTAPE_BACKEND", &c.Generator.Backend)
	str("MOODTAPE_MODEL", &c.Generator.Model)
	str("MOODTAPE_MARKET", &c.Catalog.Market)
	str("MOODTAPE_DB", &c.Database.Path)
	str("MOODTAPE_LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup("MOODTAPE_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Generator.Backend {
	case BackendOpenAI, BackendOllama:
	default:
		return fmt.Errorf("%w: unknown generator backend %q", ErrInvalidConfig, c.Generator.Backend)
	}

	switch c.Planner.Ranking {
	case RankingPopularity, RankingDiscovery:
	default:
		return fmt.Errorf("%w: unknown ranking %q", ErrInvalidConfig, c.Planner.Ranking)
	}

	if c.Generator.MaxRetries < 0 {
		return fmt.Errorf("%w: generator.max_retries must not be negative", ErrInvalidConfig)
	}
	if c.Planner.CollapseSimilarity < 0 || c.Planner.CollapseSimilarity > 1 {
		return fmt.Errorf("%w: planner.collapse_similarity must be between 0 and 1", ErrInvalidConfig)
	}
	return nil
}

// RequireGenerator reports missing credentials for the configured generation backend.
func (c *Config) RequireGenerator() error {
	if c.Generator.Backend == BackendOpenAI && !c.Credentials.OpenAI.APIKey.IsSet() {
		return fmt.Errorf("%w: OpenAI API key (credentials.openai.api_key or OPENAI_API_KEY)", ErrMissingCredentials)
	}
	return nil
}

// RequireCatalog reports missing Spotify client credentials.
func (c *Config) RequireCatalog() error {
	if !c.Credentials.Spotify.ClientID.IsSet() || !c.Credentials.Spotify.ClientSecret.IsSet() {
		return fmt.Errorf("%w: Spotify client ID and secret (credentials.spotify or SPOTIFY_CLIENT_ID/SPOTIFY_CLIENT_SECRET)", ErrMissingCredentials)
	}
	return nil
}

// Scrub redacts every configured credential from text.
func (c *Config) Scrub(text string) string {
	creds := c.Credentials
	for _, s := range []Secret{creds.OpenAI.APIKey, creds.Spotify.ClientID, creds.Spotify.ClientSecret} {
		text = s.Scrub(text)
	}
	return text
}
