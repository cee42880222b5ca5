package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/opsforge/deployctl/internal/term"
)

const (
	defaultLogLevel     = "info"
	defaultLogFormat    = "text"
	defaultPollInterval = 20 * time.Second
	defaultAPITimeout   = 120 * time.Second

	configBaseName = ".deployctl"
)

// Config captures runtime options sourced from the optional
// ~/.deployctl.yaml file and DEPLOYCTL_* environment variables.
type Config struct {
	// Routes maps API path prefixes to absolute base URLs.
	Routes map[string]string

	// Token is the platform bearer credential. When absent it is prompted
	// for and persisted on first use.
	Token string

	APITimeout   time.Duration
	PollInterval time.Duration

	// GitTimeout bounds non-network git commands. Zero leaves them
	// unbounded.
	GitTimeout time.Duration

	// WorkDir is the repository the merge workflow operates on. Defaults
	// to the process working directory.
	WorkDir string

	LogLevel  string
	LogFormat string
	DryRun    bool

	// path is the config file backing the persisted token, when known.
	path string
}

// LoadConfig reads the config file and environment, applies defaults, and
// validates.
func LoadConfig() (Config, error) {
	v := viper.New()
	v.SetConfigName(configBaseName)
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("DEPLOYCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.format", defaultLogFormat)
	v.SetDefault("poll.interval", defaultPollInterval)
	v.SetDefault("api.timeout", defaultAPITimeout)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		Routes:       v.GetStringMapString("routes"),
		Token:        strings.TrimSpace(v.GetString("token")),
		APITimeout:   v.GetDuration("api.timeout"),
		PollInterval: v.GetDuration("poll.interval"),
		GitTimeout:   v.GetDuration("git.timeout"),
		WorkDir:      strings.TrimSpace(v.GetString("workdir")),
		LogLevel:     strings.ToLower(strings.TrimSpace(v.GetString("log.level"))),
		LogFormat:    strings.ToLower(strings.TrimSpace(v.GetString("log.format"))),
		DryRun:       v.GetBool("dry_run"),
		path:         v.ConfigFileUsed(),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	if cfg.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("resolve working directory: %w", err)
		}
		cfg.WorkDir = wd
	}

	return cfg, nil
}

func (c *Config) validate() error {
	supportedLevels := map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "warning": {}, "error": {}}
	if _, ok := supportedLevels[c.LogLevel]; !ok {
		return fmt.Errorf("unsupported log level %q", c.LogLevel)
	}

	supportedFormats := map[string]struct{}{"text": {}, "json": {}}
	if _, ok := supportedFormats[c.LogFormat]; !ok {
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}

	if c.PollInterval < 0 || c.APITimeout < 0 || c.GitTimeout < 0 {
		return fmt.Errorf("timeouts and intervals cannot be negative")
	}

	return nil
}

// EnsureToken prompts for the bearer credential when absent and persists
// it for subsequent runs.
func (c *Config) EnsureToken(ui term.UI) error {
	if c.Token != "" {
		return nil
	}

	token, err := ui.Input("Enter your platform access token")
	if err != nil {
		return fmt.Errorf("token prompt: %w", err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("a platform access token is required")
	}
	return c.SaveToken(token)
}

// SaveToken persists the token into the config file, creating
// ~/.deployctl.yaml when no file was loaded.
func (c *Config) SaveToken(token string) error {
	path := c.path
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, configBaseName+".yaml")
	}

	v := viper.New()
	v.SetConfigFile(path)
	_ = v.ReadInConfig()
	v.Set("token", token)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}

	c.Token = token
	c.path = path
	return nil
}
