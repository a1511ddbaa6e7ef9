package agentrelay

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds everything needed to wire a StreamableAgent. Values come from
// defaults, then an optional YAML file, then the environment.
type Config struct {
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	Model         string `yaml:"model"`
	MaxTurns      int    `yaml:"max_turns"`

	MCPURL       string `yaml:"mcp_url"`
	MCPTransport string `yaml:"mcp_transport"`

	GraceTicks   int           `yaml:"grace_ticks"`
	TickInterval time.Duration `yaml:"tick_interval"`

	// DB is a SQLite file path or a postgres:// DSN. Empty disables transcripts.
	DB string `yaml:"db"`

	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsAddr string `yaml:"metrics_addr"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:        "gpt-4o-mini",
		MaxTurns:     DefaultMaxTurns,
		MCPURL:       "http://localhost:8000/sse",
		MCPTransport: "sse",
		GraceTicks:   DefaultGraceTicks,
		TickInterval: DefaultTickInterval,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// LoadConfig builds the configuration. path may be empty; a missing .env file
// is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded, using environment variables")
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.Model = getEnv("AGENTRELAY_MODEL", c.Model)
	c.MCPURL = getEnv("MCP_URL", c.MCPURL)
	c.MCPTransport = getEnv("MCP_TRANSPORT", c.MCPTransport)
	c.DB = getEnv("AGENTRELAY_DB", c.DB)
	c.LogLevel = getEnv("AGENTRELAY_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("AGENTRELAY_LOG_FORMAT", c.LogFormat)
	c.MetricsAddr = getEnv("AGENTRELAY_METRICS_ADDR", c.MetricsAddr)

	if v, ok := os.LookupEnv("AGENTRELAY_GRACE_TICKS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid AGENTRELAY_GRACE_TICKS %q", v)
		}
		c.GraceTicks = n
	}
	if v, ok := os.LookupEnv("AGENTRELAY_TICK_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid AGENTRELAY_TICK_INTERVAL %q", v)
		}
		c.TickInterval = d
	}
	if v, ok := os.LookupEnv("AGENTRELAY_MAX_TURNS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid AGENTRELAY_MAX_TURNS %q", v)
		}
		c.MaxTurns = n
	}
	return nil
}

// StreamOptions returns the RunStream options the configuration implies.
func (c *Config) StreamOptions() []StreamOption {
	return []StreamOption{
		WithGraceTicks(c.GraceTicks),
		WithTickInterval(c.TickInterval),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
