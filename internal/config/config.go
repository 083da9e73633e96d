// Package config loads application configuration from defaults, an optional
// YAML file, .env files and SPECSHEET_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jonathan/specsheet/internal/db"
	"github.com/jonathan/specsheet/internal/fetch"
	"github.com/jonathan/specsheet/internal/logging"
	"github.com/jonathan/specsheet/internal/pipeline"
	"github.com/jonathan/specsheet/internal/rendering"
	"github.com/jonathan/specsheet/internal/server/ratelimit"
	"github.com/jonathan/specsheet/internal/types"
)

// EnvPrefix prefixes every environment override, e.g. SPECSHEET_SERVER_PORT.
const EnvPrefix = "SPECSHEET"

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Templates TemplatesConfig  `mapstructure:"templates"`
	Reconcile ReconcileConfig  `mapstructure:"reconcile"`
	Style     rendering.Style  `mapstructure:"style"`
	Fetch     FetchConfig      `mapstructure:"fetch"`
	Transform TransformConfig  `mapstructure:"transform"`
	RateLimit ratelimit.Config `mapstructure:"ratelimit"`
	Log       LogConfig        `mapstructure:"log"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig configures Postgres. An empty URL keeps everything in memory.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// TemplatesConfig describes the export template catalog.
type TemplatesConfig struct {
	Dir       string              `mapstructure:"dir"`
	Languages []pipeline.Language `mapstructure:"languages"`
}

// Catalog builds the template catalog.
func (t TemplatesConfig) Catalog() *pipeline.Catalog {
	return pipeline.NewCatalog(t.Dir, t.Languages)
}

// ReconcileConfig tunes the merge.
type ReconcileConfig struct {
	Priority       []string `mapstructure:"priority"`
	CarryOverrides bool     `mapstructure:"carry_overrides"`
	// NullMarkers are cell values read as missing when a reconcile request
	// does not list its own.
	NullMarkers []string `mapstructure:"null_markers"`
}

// PriorityIDs parses Priority.
func (r ReconcileConfig) PriorityIDs() ([]types.SourceID, error) {
	ids := make([]types.SourceID, 0, len(r.Priority))
	for _, p := range r.Priority {
		id, err := types.ParseSourceID(p)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// FetchConfig configures page retrieval.
type FetchConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	Retries        int           `mapstructure:"retries"`
	UserAgents     []string      `mapstructure:"user_agents"`
	UseBrowser     bool          `mapstructure:"use_browser"`
	BrowserTimeout time.Duration `mapstructure:"browser_timeout"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

// Options converts to fetch.Options.
func (f FetchConfig) Options() *fetch.Options {
	opts := fetch.DefaultOptions()
	opts.Timeout = f.Timeout
	opts.Retries = f.Retries
	if len(f.UserAgents) > 0 {
		opts.UserAgents = f.UserAgents
	}
	return opts
}

// TransformConfig points at site transformer overrides.
type TransformConfig struct {
	Dir string `mapstructure:"dir"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

// Logging converts to logging.Config.
func (l LogConfig) Logging() logging.Config {
	return logging.Config{Level: l.Level, Format: l.Format, NoColor: l.NoColor}
}

// Load reads configuration. path may be empty, in which case specsheet.yaml
// is looked up in the working directory and silently skipped when missing.
// Precedence: environment > .env files > config file > defaults.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("specsheet")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if len(cfg.Templates.Languages) == 0 {
		cfg.Templates.Languages = pipeline.DefaultLanguages()
	}
	return &cfg, nil
}

// Default returns the built-in configuration without reading files or env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	cfg.Templates.Languages = pipeline.DefaultLanguages()
	return &cfg
}

// loadEnvFiles loads .env.local and .env. Variables already set win, so
// .env.local takes precedence over .env.
func loadEnvFiles() {
	for _, f := range []string{".env.local", ".env"} {
		_ = godotenv.Load(f)
	}
}

func setDefaults(v *viper.Viper) {
	style := rendering.DefaultStyle()

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 2*time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.url", "")

	v.SetDefault("templates.dir", "templates")

	v.SetDefault("reconcile.priority", []string{"site2", "site1", "site3"})
	v.SetDefault("reconcile.carry_overrides", false)
	v.SetDefault("reconcile.null_markers", []string{types.DefaultNullMarker})

	v.SetDefault("style.name", style.Name)
	v.SetDefault("style.font_family", style.FontFamily)
	v.SetDefault("style.font_size", style.FontSize)

	v.SetDefault("fetch.timeout", fetch.DefaultTimeout)
	v.SetDefault("fetch.retries", fetch.DefaultRetries)
	v.SetDefault("fetch.user_agents", []string{})
	v.SetDefault("fetch.use_browser", false)
	v.SetDefault("fetch.browser_timeout", fetch.DefaultBrowserTimeout)
	v.SetDefault("fetch.cache_ttl", db.DefaultPageCacheTTL)

	v.SetDefault("transform.dir", "")

	rl := ratelimit.DefaultConfig()
	v.SetDefault("ratelimit.enabled", rl.Enabled)
	v.SetDefault("ratelimit.default_limit", rl.DefaultLimit)
	v.SetDefault("ratelimit.default_window", rl.DefaultWindow)
	v.SetDefault("ratelimit.cleanup_interval", rl.CleanupInterval)
	v.SetDefault("ratelimit.whitelist", []string{})
	v.SetDefault("ratelimit.blacklist", []string{})
	v.SetDefault("ratelimit.endpoints", rl.Endpoints)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatAuto)
	v.SetDefault("log.no_color", false)
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config error: 'server.port' must be between 1 and 65535")
	}

	ids, err := c.Reconcile.PriorityIDs()
	if err != nil {
		return fmt.Errorf("config error: 'reconcile.priority': %w", err)
	}
	seen := make(map[types.SourceID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return fmt.Errorf("config error: 'reconcile.priority' lists %s twice", id)
		}
		seen[id] = true
	}

	if len(c.Templates.Languages) == 0 {
		return fmt.Errorf("config error: 'templates.languages' must not be empty")
	}
	names := make(map[string]bool, len(c.Templates.Languages))
	for _, l := range c.Templates.Languages {
		if l.Name == "" || l.Template == "" {
			return fmt.Errorf("config error: template languages need a name and a template")
		}
		if names[l.Name] {
			return fmt.Errorf("config error: duplicate template language %q", l.Name)
		}
		names[l.Name] = true
	}

	if c.Fetch.Retries < 0 {
		return fmt.Errorf("config error: 'fetch.retries' must be non-negative")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("config error: 'fetch.timeout' must be positive")
	}
	if c.Fetch.CacheTTL < 0 {
		return fmt.Errorf("config error: 'fetch.cache_ttl' must be non-negative")
	}
	return nil
}
