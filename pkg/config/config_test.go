package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func bound(t *testing.T, args ...string) *viper.Viper {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(t, fs.Parse(args))
	v := viper.New()
	require.NoError(t, v.BindPFlags(fs))
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	s, err := FromViper(bound(t))
	require.NoError(t, err)
	require.Equal(t, "http://localhost:5000/api", s.BaseURL)
	require.Equal(t, 30*time.Second, s.Timeout)
	require.False(t, s.LoadHistory)
	require.False(t, s.Redis.Enabled)
	require.Equal(t, "helpdesk", s.Redis.Group)
}

func TestFromViper_Overrides(t *testing.T) {
	v := bound(t, "--base-url", "https://help.example.com/api", "--timeout", "5s", "--load-history", "--redis-enabled")
	s, err := FromViper(v)
	require.NoError(t, err)
	require.Equal(t, "https://help.example.com/api", s.BaseURL)
	require.Equal(t, 5*time.Second, s.Timeout)
	require.True(t, s.LoadHistory)
	require.True(t, s.Redis.Enabled)

	g := s.Gateway()
	require.Equal(t, s.BaseURL, g.BaseURL)
	require.Equal(t, s.Timeout, g.Timeout)
}

func TestFromViper_Invalid(t *testing.T) {
	_, err := FromViper(bound(t, "--timeout", "0s"))
	require.Error(t, err)

	_, err = FromViper(bound(t, "--base-url", ""))
	require.Error(t, err)
}
