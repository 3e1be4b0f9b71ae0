package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"copywriter/internal/infrastructure/llm"
)

type Config struct {
	Server   HTTPServerConfig `yaml:"server"`
	Metrics  MetricsConfig    `yaml:"metrics"`
	LLM      LLMConfig        `yaml:"llm"`
	Mongo    MongoConfig      `yaml:"mongo"`
	SQLite   SQLiteConfig     `yaml:"sqlite"`
	Reports  ReportsConfig    `yaml:"reports"`
	Workflow WorkflowConfig   `yaml:"workflow"`
	Log      LogConfig        `yaml:"log"`
}

type HTTPServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	AuthHeader  string        `yaml:"auth_header"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	Retry       RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// MongoConfig selects the run store. MongoDB wins when a URI is set, then SQLite
// when a path is set; with neither, runs are kept in memory.
type MongoConfig struct {
	URI      string        `yaml:"uri"`
	Database string        `yaml:"database"`
	Timeout  time.Duration `yaml:"connect_timeout"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type ReportsConfig struct {
	Dir string `yaml:"dir"`
}

type WorkflowConfig struct {
	CatalogPath      string        `yaml:"catalog_path"`
	InvokeTimeout    time.Duration `yaml:"invoke_timeout"`
	RunTimeout       time.Duration `yaml:"run_timeout"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	RevisionFeedback bool          `yaml:"revision_feedback"`
	WatchCatalog     bool          `yaml:"watch_catalog"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Server: HTTPServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":2112",
		},
		LLM: LLMConfig{
			Provider:    llm.ProviderMock,
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   2000,
			Timeout:     60 * time.Second,
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   500 * time.Millisecond,
				MaxDelay:    8 * time.Second,
			},
		},
		Mongo: MongoConfig{
			Database: "copywriter",
			Timeout:  10 * time.Second,
		},
		Reports: ReportsConfig{
			Dir: "./reports",
		},
		Workflow: WorkflowConfig{
			InvokeTimeout:    60 * time.Second,
			RunTimeout:       20 * time.Minute,
			PollInterval:     5 * time.Second,
			RevisionFeedback: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load layers defaults, the optional YAML file at path and environment overrides,
// then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SERVER_PORT: %w", err)
		}
		c.Server.Port = port
	}
	c.Metrics.Addr = getEnv("METRICS_ADDR", c.Metrics.Addr)

	c.LLM.Provider = getEnv("LLM_PROVIDER", c.LLM.Provider)
	c.LLM.APIKey = getEnv("LLM_API_KEY", c.LLM.APIKey)
	c.LLM.BaseURL = getEnv("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.Model = getEnv("LLM_MODEL", c.LLM.Model)
	c.LLM.AuthHeader = getEnv("LLM_AUTH_HEADER", c.LLM.AuthHeader)

	c.Mongo.URI = getEnv("MONGO_URI", c.Mongo.URI)
	c.Mongo.Database = getEnv("MONGO_DB", c.Mongo.Database)
	c.SQLite.Path = getEnv("SQLITE_PATH", c.SQLite.Path)

	c.Reports.Dir = getEnv("REPORTS_DIR", c.Reports.Dir)
	c.Workflow.CatalogPath = getEnv("CATALOG_PATH", c.Workflow.CatalogPath)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	return nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics.addr is required when metrics are enabled"))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f outside [0, 2]", c.LLM.Temperature))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm.timeout must be positive"))
	}
	if c.Reports.Dir == "" {
		errs = append(errs, errors.New("reports.dir is required"))
	}
	if c.Mongo.URI != "" && c.Mongo.Database == "" {
		errs = append(errs, errors.New("mongo.database is required with mongo.uri"))
	}
	if c.Mongo.URI != "" && c.Mongo.Timeout <= 0 {
		errs = append(errs, errors.New("mongo.connect_timeout must be positive"))
	}
	if c.Workflow.InvokeTimeout <= 0 {
		errs = append(errs, errors.New("workflow.invoke_timeout must be positive"))
	}
	if c.Workflow.RunTimeout <= 0 {
		errs = append(errs, errors.New("workflow.run_timeout must be positive"))
	}
	if c.Workflow.PollInterval <= 0 {
		errs = append(errs, errors.New("workflow.poll_interval must be positive"))
	}
	if c.Workflow.WatchCatalog && c.Workflow.CatalogPath == "" {
		errs = append(errs, errors.New("workflow.watch_catalog needs workflow.catalog_path"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Settings maps the LLM section onto the client settings.
func (c LLMConfig) Settings() llm.Settings {
	return llm.Settings{
		Provider:    c.Provider,
		Model:       c.Model,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		AuthHeader:  c.AuthHeader,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Timeout:     c.Timeout,
		Retry: llm.RetryPolicy{
			MaxAttempts: c.Retry.MaxAttempts,
			BaseDelay:   c.Retry.BaseDelay,
			MaxDelay:    c.Retry.MaxDelay,
		},
	}
}

func (c LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", c.Level, err)
	}
	return level, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
