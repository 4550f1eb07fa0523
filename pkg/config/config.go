// Package config collects the client settings from flags, environment and the
// config file, all of which are merged by viper.
package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/go-go-golems/helpdesk/pkg/gateway"
	"github.com/go-go-golems/helpdesk/pkg/redisstream"
)

const (
	KeyBaseURL     = "base-url"
	KeyTimeout     = "timeout"
	KeyLoadHistory = "load-history"
	KeySeedFile    = "seed-file"
)

type Settings struct {
	BaseURL     string        `mapstructure:"base-url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	LoadHistory bool          `mapstructure:"load-history"`
	// SeedFile replaces the built-in history and quick actions when set.
	SeedFile string `mapstructure:"seed-file"`

	Redis redisstream.Settings `mapstructure:",squash"`
}

func Default() Settings {
	return Settings{
		BaseURL: gateway.DefaultBaseURL,
		Timeout: gateway.DefaultTimeout,
		Redis:   redisstream.DefaultSettings(),
	}
}

// AddFlags registers every client flag on fs, including the redis ones.
func AddFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(KeyBaseURL, d.BaseURL, "Base URL of the helpdesk API")
	fs.Duration(KeyTimeout, d.Timeout, "Per-request timeout")
	fs.Bool(KeyLoadHistory, d.LoadHistory, "Fetch chat history from the backend on startup")
	fs.String(KeySeedFile, "", "YAML file with history and quick actions to use instead of the built-in ones")
	redisstream.AddFlags(fs)
}

// FromViper decodes the settings and validates them.
func FromViper(v *viper.Viper) (Settings, error) {
	s := Default()
	if v != nil {
		if err := v.Unmarshal(&s); err != nil {
			return Settings{}, errors.Wrap(err, "decode settings")
		}
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) Validate() error {
	if s.BaseURL == "" {
		return errors.New("base-url must not be empty")
	}
	if s.Timeout <= 0 {
		return errors.Errorf("timeout must be positive, got %s", s.Timeout)
	}
	return nil
}

func (s Settings) Gateway() gateway.Settings {
	return gateway.Settings{BaseURL: s.BaseURL, Timeout: s.Timeout}
}
