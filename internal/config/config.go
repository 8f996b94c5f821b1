package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/iksnae/analyst-stream/internal"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ANALYST_STREAM_LOG_LEVEL
const EnvPrefix = "ANALYST_STREAM"

// Config represents the application configuration
type Config struct {
	DataDir  string                 `mapstructure:"data_dir"`
	Database string                 `mapstructure:"database"`
	LogLevel string                 `mapstructure:"log_level"`
	Workers  int                    `mapstructure:"workers"`
	MultiTab bool                   `mapstructure:"multi_tab"`
	Reducer  internal.ReducerConfig `mapstructure:"reducer"`
	Render   RenderConfig           `mapstructure:"render"`
	Watch    WatchConfig            `mapstructure:"watch"`

	// File is the config file that was read, "" when running on defaults
	File string `mapstructure:"-"`
}

// RenderConfig holds terminal rendering options
type RenderConfig struct {
	Width     int               `mapstructure:"width"`
	Style     string            `mapstructure:"style"`      // glamour style: auto, dark, light, notty
	CodeTheme string            `mapstructure:"code_theme"` // chroma style name
	Renderers map[string]string `mapstructure:"renderers"`  // tool name -> renderer id
}

// WatchConfig holds live tail options
type WatchConfig struct {
	PollInterval    time.Duration `mapstructure:"-"`
	PollIntervalStr string        `mapstructure:"poll_interval"`
}

// DefaultDir returns ~/.analyst-stream
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".analyst-stream"
	}
	return filepath.Join(home, ".analyst-stream")
}

func setDefaults(v *viper.Viper) {
	dir := DefaultDir()
	def := internal.DefaultReducerConfig()

	v.SetDefault("data_dir", dir)
	v.SetDefault("database", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("workers", 4)
	v.SetDefault("multi_tab", false)

	v.SetDefault("reducer.code_tools", def.CodeTools)
	v.SetDefault("reducer.code_fields", def.CodeFields)
	v.SetDefault("reducer.language", def.Language)

	v.SetDefault("render.width", 100)
	v.SetDefault("render.style", "auto")
	v.SetDefault("render.code_theme", "monokai")
	v.SetDefault("render.renderers", map[string]string{})

	v.SetDefault("watch.poll_interval", "500ms")
}

// Load reads configuration from cfgFile, or ~/.analyst-stream/config.yaml when
// cfgFile is empty, then applies ANALYST_STREAM_* environment overrides.
// A missing default config file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(DefaultDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, &internal.ParseError{Source: "config", Key: cfgFile, Err: err}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	if c.DataDir == "" {
		c.DataDir = DefaultDir()
	}
	c.DataDir = expandHome(c.DataDir)
	if c.Database == "" {
		c.Database = filepath.Join(c.DataDir, "analyst-stream.db")
	}
	c.Database = expandHome(c.Database)
	if c.Workers <= 0 {
		c.Workers = 1
	}

	if c.Watch.PollIntervalStr != "" {
		d, err := time.ParseDuration(c.Watch.PollIntervalStr)
		if err != nil {
			return &internal.ParseError{Source: "config", Key: "watch.poll_interval", Err: err}
		}
		c.Watch.PollInterval = d
	}
	return nil
}

// CacheDir is where replayed transcripts are cached
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "cache")
}

// NewReducer builds the reducer described by the config
func (c *Config) NewReducer() *internal.Reducer {
	return internal.NewReducer(c.Reducer)
}

// NewRendererRegistry builds the registry with configured overrides applied
func (c *Config) NewRendererRegistry() *internal.RendererRegistry {
	reg := internal.NewRendererRegistry()
	for tool, renderer := range c.Render.Renderers {
		reg.Register(tool, renderer)
	}
	return reg
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
