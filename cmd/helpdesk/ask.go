package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newAskCommand() *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Send a single question and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			sub, err := a.store.SubmitUserText(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if err := sub.Wait(ctx); err != nil {
				return err
			}

			snap := a.store.Snapshot()
			reply, ok := snap.LastAssistantMessage()
			if !ok {
				return errors.New("no reply received")
			}
			text := reply.Text
			if isatty.IsTerminal(os.Stdout.Fd()) {
				if styled, err := glamour.Render(text, "dark"); err == nil {
					text = styled
				}
			}
			_, _ = fmt.Fprintln(os.Stdout, text)

			if snap.LastError != "" {
				return errors.New(snap.LastError)
			}
			if save {
				return a.saveSession(ctx, os.Stderr, snap.Messages)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "Save the exchange to the helpdesk after the reply")
	return cmd
}
