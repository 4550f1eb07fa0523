package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/helpdesk/pkg/chat"
	"github.com/go-go-golems/helpdesk/pkg/feed"
	"github.com/go-go-golems/helpdesk/pkg/redisstream"
	"github.com/go-go-golems/helpdesk/pkg/ui"
)

func newChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive helpdesk chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), a)
		},
	}
}

func runChat(parent context.Context, a *app) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	ps, err := redisstream.BuildPubSub(a.settings.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if err := ps.Close(); err != nil {
			log.Debug().Err(err).Msg("closing pubsub")
		}
	}()
	if a.settings.Redis.Enabled {
		if err := redisstream.EnsureGroupAtTail(ctx, a.settings.Redis.Addr, feed.TopicTurns, a.settings.Redis.Group); err != nil {
			log.Warn().Err(err).Msg("could not prepare redis consumer group")
		}
	}

	turns := feed.New(ps.Publisher)
	detach := turns.Attach(a.store)
	defer detach()

	bridge := ui.NewBridge(a.store)
	defer bridge.Close()

	var loader chat.HistoryLoader
	if a.settings.LoadHistory {
		loader = a.client
	}
	model := ui.NewAppModel(ctx, ui.Deps{
		Store:        a.store,
		Catalog:      a.catalog,
		Loader:       loader,
		Bridge:       bridge,
		QuickActions: a.seed.QuickActions,
	})

	eg, egCtx := errgroup.WithContext(ctx)

	options := []tea.ProgramOption{
		tea.WithMouseCellMotion(), // turn on mouse support so we can track the mouse wheel
		tea.WithContext(egCtx),
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		options = append(options, tea.WithOutput(os.Stderr))
	} else {
		options = append(options, tea.WithAltScreen())
	}
	p := tea.NewProgram(model, options...)

	eg.Go(func() error { return turns.Run(egCtx) })
	eg.Go(func() error { return feed.Consume(egCtx, ps.Subscriber, feed.TopicTurns, feed.LogEvent) })
	eg.Go(func() error {
		defer cancel()
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return errors.Wrap(err, "chat ui")
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	snap := a.store.Snapshot()
	if !shouldOfferSave(snap) || !isInteractive() {
		return nil
	}
	save, err := askToSave(os.Stdin, os.Stderr)
	if err != nil {
		return err
	}
	if !save {
		return nil
	}
	return a.saveSession(parent, os.Stderr, snap.Messages)
}
