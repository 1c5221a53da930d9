// Package config resolves bpt settings from command-line flags and BPT_*
// environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/boardindex/bpt/internal/domain"
)

// EnvPrefix prefixes every environment variable bpt reads.
const EnvPrefix = "BPT"

// Defaults
const (
	DefaultBoardConfig = "bpt.ini"
	DefaultBoardIndex  = "package_adafruit_index.json"
)

// Config holds the settings shared by all commands
type Config struct {
	Debug       bool   `mapstructure:"debug"`
	BoardConfig string `mapstructure:"board-config"`
	BoardIndex  string `mapstructure:"board-index"`
	LogFile     string `mapstructure:"log-file"`

	// Observability
	OTLPEndpoint string `mapstructure:"otlp-endpoint"`

	// Credentials, normally only given through the environment
	GitToken       string `mapstructure:"git-token"`
	SignKey        string `mapstructure:"sign-key"`
	SignKeyFile    string `mapstructure:"sign-key-file"`
	SignPassphrase string `mapstructure:"sign-passphrase"`
}

// Load merges flags, environment and defaults, in that order of
// precedence. Flags that were not set on the command line fall through to
// BPT_<FLAG_NAME> variables.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("debug", false)
	v.SetDefault("board-config", DefaultBoardConfig)
	v.SetDefault("board-index", DefaultBoardIndex)
	v.SetDefault("log-file", "")
	v.SetDefault("otlp-endpoint", "")
	v.SetDefault("git-token", "")
	v.SetDefault("sign-key", "")
	v.SetDefault("sign-key-file", "")
	v.SetDefault("sign-passphrase", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that do not depend on the command being run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BoardConfig) == "" {
		return fmt.Errorf("%w: board config path is empty", domain.ErrConfig)
	}
	if strings.TrimSpace(c.BoardIndex) == "" {
		return fmt.Errorf("%w: board index path is empty", domain.ErrConfig)
	}
	if c.SignKey != "" && c.SignKeyFile != "" {
		return fmt.Errorf("%w: set either %s_SIGN_KEY or --sign-key-file, not both", domain.ErrConfig, EnvPrefix)
	}
	return nil
}

// LogLevel returns the level name for the logger.
func (c *Config) LogLevel() string {
	if c.Debug {
		return "debug"
	}
	return "info"
}
