package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	input "github.com/tcnksm/go-input"

	"github.com/go-go-golems/helpdesk/pkg/chat"
	"github.com/go-go-golems/helpdesk/pkg/config"
	"github.com/go-go-golems/helpdesk/pkg/gateway"
	"github.com/go-go-golems/helpdesk/pkg/seed"
)

// app bundles what every subcommand needs.
type app struct {
	settings config.Settings
	client   *gateway.Client
	seed     *seed.Data
	catalog  *chat.Catalog
	store    *chat.Store
}

func newApp() (*app, error) {
	s, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}
	client, err := gateway.NewClient(s.Gateway())
	if err != nil {
		return nil, err
	}

	var data *seed.Data
	if s.SeedFile != "" {
		data, err = seed.Load(s.SeedFile)
	} else {
		data, err = seed.Default()
	}
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("base_url", client.BaseURL()).
		Dur("timeout", s.Timeout).
		Int("seed_conversations", len(data.Conversations)).
		Msg("helpdesk client configured")

	return &app{
		settings: s,
		client:   client,
		seed:     data,
		catalog:  chat.NewCatalog(data.Conversations),
		store:    chat.NewStore(client),
	}, nil
}

// saveSession posts messages to the backend and reports the assigned id.
func (a *app) saveSession(ctx context.Context, w io.Writer, msgs []chat.Message) error {
	ctx, cancel := context.WithTimeout(ctx, a.settings.Timeout)
	defer cancel()
	id, err := a.client.SaveSession(ctx, msgs)
	if err != nil {
		return errors.Wrap(err, "save session")
	}
	if id != "" {
		_, _ = fmt.Fprintf(w, "Session saved (id %s)\n", id)
	} else {
		_, _ = fmt.Fprintln(w, "Session saved")
	}
	return nil
}

// shouldOfferSave reports whether the user wrote anything in the active
// conversation during this run, as opposed to only browsing history.
func shouldOfferSave(snap chat.Snapshot) bool {
	return snap.Submitted > 0 && len(snap.Messages) > 0
}

func isInteractive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stderr.Fd())
}

func askToSave(r io.Reader, w io.Writer) (bool, error) {
	ui := &input.UI{Writer: w, Reader: r}

	_, _ = fmt.Fprint(w, "\n")
	answer, err := ui.Ask("Save this conversation to the helpdesk? [y/N]", &input.Options{
		Default:  "n",
		Required: true,
		Loop:     true,
		ValidateFunc: func(answer string) error {
			switch answer {
			case "y", "Y", "n", "N", "":
				return nil
			default:
				return errors.Errorf("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to get user input")
	}
	return answer == "y" || answer == "Y", nil
}
