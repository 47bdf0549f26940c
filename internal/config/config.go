// Package config provides configuration loading for sectools.
// It supports a layered configuration approach with priority:
// CLI flags > environment variables (SECTOOLS_*) > config file (~/.sectools.yaml).
// A .env file in the working directory is loaded into the environment first.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable, e.g. SECTOOLS_API_TOKEN.
const EnvPrefix = "SECTOOLS"

// DotenvFile is loaded from the working directory when present.
const DotenvFile = ".env"

// Config holds all sectools configuration options.
type Config struct {
	SecureURLAuthority string        `mapstructure:"secure_url_authority" yaml:"secure_url_authority"`
	APIToken           string        `mapstructure:"api_token" yaml:"api_token"`
	OutputFormat       string        `mapstructure:"output_format" yaml:"output_format"`
	Timeout            time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Backoff            time.Duration `mapstructure:"backoff" yaml:"backoff"`
	MaxRetries         int           `mapstructure:"max_retries" yaml:"max_retries"`
	RequestsPerSecond  float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	LogLevel           string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat          string        `mapstructure:"log_format" yaml:"log_format"`
	MetricsFile        string        `mapstructure:"metrics_file" yaml:"metrics_file"`
}

// Defaults returns a Config populated with default values.
func Defaults() Config {
	return Config{
		OutputFormat: "table",
		Timeout:      60 * time.Second,
		Backoff:      60 * time.Second,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// Load reads configuration from ~/.sectools.yaml and environment variables.
// It does NOT apply CLI flag overrides; call ApplyFlags for that.
func Load() (*Config, error) {
	if err := LoadDotenv(DotenvFile); err != nil {
		return nil, err
	}

	v := newViper()
	v.SetConfigName(".sectools")
	v.SetConfigType("yaml")

	home, err := os.UserHomeDir()
	if err == nil {
		v.AddConfigPath(home)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return unmarshal(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return unmarshal(v)
}

// LoadDotenv exports the variables of a dotenv file without overriding
// variables already set. A missing file is not an error.
func LoadDotenv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := Defaults()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.SecureURLAuthority = strings.TrimSpace(cfg.SecureURLAuthority)
	return &cfg, nil
}

// ApplyFlags overrides config values with any CLI flags that were explicitly set.
func ApplyFlags(cfg *Config, cmd *cobra.Command) {
	flags := cmd.Flags()

	if flags.Changed("authority") {
		val, _ := flags.GetString("authority")
		cfg.SecureURLAuthority = val
	}
	if flags.Changed("token") {
		val, _ := flags.GetString("token")
		cfg.APIToken = val
	}
	if flags.Changed("output") {
		val, _ := flags.GetString("output")
		cfg.OutputFormat = val
	}
	if flags.Changed("timeout") {
		val, _ := flags.GetDuration("timeout")
		cfg.Timeout = val
	}
	if flags.Changed("backoff") {
		val, _ := flags.GetDuration("backoff")
		cfg.Backoff = val
	}
	if flags.Changed("max-retries") {
		val, _ := flags.GetInt("max-retries")
		cfg.MaxRetries = val
	}
	if flags.Changed("rps") {
		val, _ := flags.GetFloat64("rps")
		cfg.RequestsPerSecond = val
	}
	if flags.Changed("log-level") {
		val, _ := flags.GetString("log-level")
		cfg.LogLevel = val
	}
	if flags.Changed("log-format") {
		val, _ := flags.GetString("log-format")
		cfg.LogFormat = val
	}
	if flags.Changed("metrics-file") {
		val, _ := flags.GetString("metrics-file")
		cfg.MetricsFile = val
	}
	if flags.Changed("verbose") {
		if val, _ := flags.GetBool("verbose"); val {
			cfg.LogLevel = "debug"
		}
	}
}

// RequireAPI checks that the settings needed to reach the Secure API are present.
func (c *Config) RequireAPI() error {
	var missing []string
	if c.SecureURLAuthority == "" {
		missing = append(missing, "secure_url_authority (--authority, "+EnvPrefix+"_SECURE_URL_AUTHORITY)")
	}
	if c.APIToken == "" {
		missing = append(missing, "api_token (--token, "+EnvPrefix+"_API_TOKEN)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Masked returns a copy safe to print: the token keeps only its last four characters.
func (c Config) Masked() Config {
	if n := len(c.APIToken); n > 0 {
		keep := 4
		if n <= 8 {
			keep = 0
		}
		c.APIToken = strings.Repeat("*", n-keep) + c.APIToken[n-keep:]
	}
	return c
}

// YAML renders the masked configuration.
func (c Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c.Masked())
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return out, nil
}

// ConfigFilePath returns the default config file path (~/.sectools.yaml).
func ConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sectools.yaml"
	}
	return filepath.Join(home, ".sectools.yaml")
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("secure_url_authority", "")
	v.SetDefault("api_token", "")
	v.SetDefault("output_format", d.OutputFormat)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("backoff", d.Backoff)
	v.SetDefault("max_retries", 0)
	v.SetDefault("requests_per_second", 0.0)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("metrics_file", "")
}
