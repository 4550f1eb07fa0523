package redisstream

import (
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Settings holds Redis Streams transport configuration for Watermill.
type Settings struct {
	Enabled  bool   `mapstructure:"redis-enabled"`
	Addr     string `mapstructure:"redis-addr"`
	Group    string `mapstructure:"redis-group"`
	Consumer string `mapstructure:"redis-consumer"`
}

func DefaultSettings() Settings {
	return Settings{
		Enabled:  false,
		Addr:     "localhost:6379",
		Group:    "helpdesk",
		Consumer: "client-1",
	}
}

// AddFlags registers the redis flags on fs.
func AddFlags(fs *pflag.FlagSet) {
	d := DefaultSettings()
	fs.Bool("redis-enabled", d.Enabled, "Publish turn events to Redis Streams instead of an in-process channel")
	fs.String("redis-addr", d.Addr, "Redis address host:port")
	fs.String("redis-group", d.Group, "Redis consumer group")
	fs.String("redis-consumer", d.Consumer, "Redis consumer name")
}

// FromViper reads the settings registered by AddFlags, after they have been
// bound to v.
func FromViper(v *viper.Viper) (Settings, error) {
	s := DefaultSettings()
	if v == nil {
		return s, nil
	}
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, errors.Wrap(err, "decode redis settings")
	}
	return s, nil
}
