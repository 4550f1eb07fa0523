package main

import (
	"context"

	clay "github.com/go-go-golems/clay/pkg"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/helpdesk/pkg/backend"
	"github.com/go-go-golems/helpdesk/pkg/persistence/chatstore"
	"github.com/go-go-golems/helpdesk/pkg/seed"
)

type serverSettings struct {
	Addr     string `mapstructure:"addr"`
	DB       string `mapstructure:"db"`
	SeedFile string `mapstructure:"seed-file"`
	Fallback string `mapstructure:"fallback-reply"`
}

var rootCmd = &cobra.Command{
	Use:   "helpdesk-server",
	Short: "Serve a reference helpdesk chat API backed by the built-in FAQ",
	Args:  cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := clay.InitLogger(); err != nil {
			return err
		}
		return viper.BindPFlags(cmd.Flags())
	},
	RunE:         run,
	SilenceUsage: true,
}

func run(cmd *cobra.Command, args []string) error {
	var s serverSettings
	if err := viper.Unmarshal(&s); err != nil {
		return errors.Wrap(err, "decode settings")
	}

	var (
		data *seed.Data
		err  error
	)
	if s.SeedFile != "" {
		data, err = seed.Load(s.SeedFile)
	} else {
		data, err = seed.Default()
	}
	if err != nil {
		return err
	}

	sessions, err := openSessionStore(s.DB)
	if err != nil {
		return err
	}

	responder := backend.NewFAQResponder(data.Conversations, s.Fallback)
	log.Info().
		Int("faq_entries", responder.Len()).
		Str("db", s.DB).
		Msg("helpdesk api configured")

	srv := backend.NewServer(s.Addr, backend.NewHandler(responder, sessions, data.Conversations), sessions)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return srv.Run(ctx)
}

func openSessionStore(path string) (chatstore.SessionStore, error) {
	if path == "" {
		return chatstore.NewInMemorySessionStore(0), nil
	}
	dsn, err := chatstore.SQLiteSessionDSNForFile(path)
	if err != nil {
		return nil, err
	}
	return chatstore.NewSQLiteSessionStore(dsn)
}

func main() {
	fs := rootCmd.Flags()
	fs.String("addr", backend.DefaultAddr, "HTTP listen address")
	fs.String("db", "", "SQLite file for saved sessions (in-memory when empty)")
	fs.String("seed-file", "", "YAML file with the FAQ conversations to serve instead of the built-in ones")
	fs.String("fallback-reply", backend.DefaultFallbackReply, "Reply used when no FAQ entry matches")

	err := clay.InitViper("helpdesk-server", rootCmd)
	cobra.CheckErr(err)
	err = clay.InitLogger()
	cobra.CheckErr(err)

	cobra.CheckErr(rootCmd.Execute())
}
