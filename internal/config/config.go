package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources   []Source  `yaml:"sources"`
	Search    Search    `yaml:"search"`
	LLM       LLM       `yaml:"llm"`
	Embedding Embedding `yaml:"embedding"`
	Store     Store     `yaml:"store"`
	Retrieval Retrieval `yaml:"retrieval"`
	Pipeline  Pipeline  `yaml:"pipeline"`
	Monitor   Monitor   `yaml:"monitor"`
	WordPress WordPress `yaml:"wordpress"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
}

// Source is a news outlet with a fixed bias label.
type Source struct {
	Domain string `yaml:"domain"`
	Name   string `yaml:"name"`
	Bias   string `yaml:"bias"`
	RSS    string `yaml:"rss"`
}

type Search struct {
	Serper     SearchAPI `yaml:"serper"`
	NewsAPI    SearchAPI `yaml:"newsapi"`
	MaxResults int       `yaml:"max_results"`
	RSSHours   int       `yaml:"rss_hours"`
}

type SearchAPI struct {
	Enabled   bool   `yaml:"enabled"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type LLM struct {
	Provider        string  `yaml:"provider"`
	Model           string  `yaml:"model"`
	OllamaURL       string  `yaml:"ollama_url"`
	OpenAIModel     string  `yaml:"openai_model"`
	OpenAIKeyEnv    string  `yaml:"openai_api_key_env"`
	AnthropicModel  string  `yaml:"anthropic_model"`
	AnthropicKeyEnv string  `yaml:"anthropic_api_key_env"`
	Temperature     float64 `yaml:"temperature"`
}

type Embedding struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

type Store struct {
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	DataDir string `yaml:"data_dir"`
}

type Retrieval struct {
	Limit     int     `yaml:"limit"`
	Threshold float64 `yaml:"threshold"`
}

type Pipeline struct {
	Timeout time.Duration `yaml:"timeout"`
}

type Monitor struct {
	WindowHours int           `yaml:"window_hours"`
	MaxItems    int           `yaml:"max_items"`
	Interval    time.Duration `yaml:"interval"`
	RedisURL    string        `yaml:"redis_url"`
}

type WordPress struct {
	URL         string   `yaml:"url"`
	Username    string   `yaml:"username"`
	PasswordEnv string   `yaml:"password_env"`
	Status      string   `yaml:"status"`
	Tags        []string `yaml:"tags"`
}

type Server struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConfigDir returns the XDG config directory for newslens.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "newslens")
}

// DataDir returns the XDG data directory for newslens.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "newslens")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/newslens/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'newslens init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the embedded default configuration.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config is invalid: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Search: Search{
			Serper:     SearchAPI{Enabled: true, APIKeyEnv: "SERPER_API_KEY"},
			NewsAPI:    SearchAPI{Enabled: false, APIKeyEnv: "NEWSAPI_KEY"},
			MaxResults: 10,
			RSSHours:   24,
		},
		LLM: LLM{
			Provider:        "ollama",
			Model:           "qwen2.5:7b",
			OllamaURL:       "http://localhost:11434",
			OpenAIModel:     "gpt-4o-mini",
			OpenAIKeyEnv:    "OPENAI_API_KEY",
			AnthropicModel:  "claude-haiku-4-5",
			AnthropicKeyEnv: "ANTHROPIC_API_KEY",
			Temperature:     0,
		},
		Embedding: Embedding{
			Provider:  "hash",
			Model:     "nomic-embed-text",
			Dimension: 384,
		},
		Store:     Store{Driver: "sqlite"},
		Retrieval: Retrieval{Limit: 5, Threshold: 0.7},
		Pipeline:  Pipeline{Timeout: 5 * time.Minute},
		Monitor: Monitor{
			WindowHours: 2,
			MaxItems:    10,
			Interval:    time.Hour,
		},
		WordPress: WordPress{
			PasswordEnv: "WORDPRESS_PASSWORD",
			Status:      "publish",
			Tags:        []string{"nyhetsanalys", "politik", "svenska medier"},
		},
		Server:  Server{Port: 8000, AllowedOrigins: []string{"http://localhost:3000"}},
		Logging: Logging{Level: "INFO", Format: "text"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		return fmt.Errorf("retrieval.threshold must be within [0,1], got %v", c.Retrieval.Threshold)
	}
	for _, s := range c.Sources {
		if s.Domain == "" || s.Name == "" {
			return fmt.Errorf("source %+v: domain and name are required", s)
		}
		switch s.Bias {
		case "Left", "Center", "Right":
		default:
			return fmt.Errorf("source %s: bias must be Left, Center or Right, got %q", s.Domain, s.Bias)
		}
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Store.DataDir != "" {
		return c.Store.DataDir
	}
	return DataDir()
}

// WordPressEnabled reports whether a CMS target is configured.
func (c *Config) WordPressEnabled() bool {
	return c.WordPress.URL != "" && c.WordPress.Username != ""
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
