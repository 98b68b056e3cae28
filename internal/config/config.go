// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/autopass/internal/keyspace"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Network() NetworkConfig
	Attack() AttackConfig

	SetBrowserHeadless(bool)
	SetNetworkProxy(string)
	SetAttackConfig(AttackConfig)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	NetworkCfg NetworkConfig `mapstructure:"network" yaml:"network"`
	AttackCfg  AttackConfig  `mapstructure:"attack" yaml:"attack"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Network() NetworkConfig { return c.NetworkCfg }
func (c *Config) Attack() AttackConfig   { return c.AttackCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)      { c.BrowserCfg.Headless = b }
func (c *Config) SetNetworkProxy(p string)       { c.NetworkCfg.Proxy = p }
func (c *Config) SetAttackConfig(a AttackConfig) { c.AttackCfg = a }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the Chrome instance.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ExecPath        string   `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent       string   `mapstructure:"user_agent" yaml:"user_agent"`
	Args            []string `mapstructure:"args" yaml:"args"`
	// FreshSession clears cookies before each attempt.
	FreshSession  bool          `mapstructure:"fresh_session" yaml:"fresh_session"`
	ActionTimeout time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	LaunchTimeout time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
}

// NetworkConfig tunes page loading.
type NetworkConfig struct {
	// Proxy is handed to the browser as is.
	Proxy             string        `mapstructure:"proxy" yaml:"proxy"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// AttackConfig describes one credential run. Most fields come from the
// crack command's flags.
type AttackConfig struct {
	Username string `mapstructure:"username" yaml:"username"`
	// Passwords is a wordlist path or a comma separated list.
	Passwords        string `mapstructure:"passwords" yaml:"passwords"`
	DefaultPasswords string `mapstructure:"default_passwords" yaml:"default_passwords"`
	PasswordOnly     bool   `mapstructure:"password_only" yaml:"password_only"`

	SuccessURL     string `mapstructure:"success_url" yaml:"success_url"`
	SuccessMessage string `mapstructure:"success_message" yaml:"success_message"`

	Workers   int     `mapstructure:"workers" yaml:"workers"`
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`

	Delay        time.Duration `mapstructure:"delay" yaml:"delay"`
	SubmitSettle time.Duration `mapstructure:"submit_settle" yaml:"submit_settle"`

	MaxLength int    `mapstructure:"max_length" yaml:"max_length"`
	Charset   string `mapstructure:"charset" yaml:"charset"`
	Blacklist string `mapstructure:"blacklist" yaml:"blacklist"`
	Whitelist string `mapstructure:"whitelist" yaml:"whitelist"`

	CommonPasswords string `mapstructure:"common_passwords" yaml:"common_passwords"`
	CommonUsernames string `mapstructure:"common_usernames" yaml:"common_usernames"`

	Resume             bool          `mapstructure:"resume" yaml:"resume"`
	ResumeFile         string        `mapstructure:"resume_file" yaml:"resume_file"`
	CheckpointInterval time.Duration `mapstructure:"checkpoint_interval" yaml:"checkpoint_interval"`

	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`

	UsernameSelector string `mapstructure:"username_selector" yaml:"username_selector"`
	PasswordSelector string `mapstructure:"password_selector" yaml:"password_selector"`
}

// BuildCharset applies the whitelist and blacklist to the configured base
// alphabet.
func (a AttackConfig) BuildCharset() (keyspace.Charset, error) {
	return keyspace.NewCharset(a.Charset, a.Whitelist, a.Blacklist)
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "autopass")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.fresh_session", true)
	v.SetDefault("browser.action_timeout", "5s")
	v.SetDefault("browser.launch_timeout", "30s")

	// -- Network --
	v.SetDefault("network.navigation_timeout", "60s")
	v.SetDefault("network.post_load_wait", "1s")

	// -- Attack --
	v.SetDefault("attack.workers", 1)
	v.SetDefault("attack.rate_limit", 0.0)
	v.SetDefault("attack.delay", "2s")
	v.SetDefault("attack.submit_settle", "200ms")
	v.SetDefault("attack.max_length", 4)
	v.SetDefault("attack.charset", keyspace.DefaultAlphabet)
	v.SetDefault("attack.default_passwords", "default_passwords/password.txt")
	v.SetDefault("attack.resume", false)
	v.SetDefault("attack.resume_file", "~/.autopass/resume.json")
	v.SetDefault("attack.checkpoint_interval", "2s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.NetworkCfg.NavigationTimeout < 0 || c.NetworkCfg.PostLoadWait < 0 {
		return errors.New("network timeouts must not be negative")
	}
	if err := c.AttackCfg.Validate(); err != nil {
		return fmt.Errorf("attack configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the attack settings. Charset and length errors wrap the
// keyspace sentinels.
func (a *AttackConfig) Validate() error {
	if a.Workers <= 0 {
		return errors.New("workers must be a positive integer")
	}
	if a.RateLimit < 0 {
		return errors.New("rate_limit must not be negative")
	}
	if a.Delay < 0 || a.SubmitSettle < 0 || a.CheckpointInterval < 0 {
		return errors.New("delays must not be negative")
	}
	if err := keyspace.ValidateLength(a.MaxLength); err != nil {
		return fmt.Errorf("max_length: %w", err)
	}
	if _, err := a.BuildCharset(); err != nil {
		return fmt.Errorf("charset: %w", err)
	}
	if a.Resume && a.ResumeFile == "" {
		return errors.New("resume_file is required when resume is enabled")
	}
	if a.PasswordOnly && a.Username != "" {
		return errors.New("password_only cannot be combined with a username")
	}
	return nil
}
