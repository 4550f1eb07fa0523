package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/helpdesk/pkg/chat"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
)

func newHistoryCommand() *cobra.Command {
	var (
		refresh bool
		show    string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if refresh || a.settings.LoadHistory {
				if err := a.catalog.Refresh(ctx, a.client); err != nil {
					log.Warn().Err(err).Msg("using built-in history")
				}
			}

			if show != "" {
				conv, ok := a.catalog.Get(chat.ConversationID(show))
				if !ok {
					return errors.Errorf("no conversation with id %q", show)
				}
				printConversation(os.Stdout, conv)
				return nil
			}
			printHistory(os.Stdout, a.catalog.List())
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Fetch history from the backend first")
	cmd.Flags().StringVar(&show, "show", "", "Print the messages of the conversation with this id")
	return cmd
}

func printHistory(w io.Writer, convs []chat.Conversation) {
	_, _ = fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Chat History (%02d)", len(convs))))
	for _, c := range convs {
		_, _ = fmt.Fprintf(w, "%-6s %-32s %s\n", c.ID, c.Title, dimStyle.Render(c.Date))
		if c.Subtitle != "" {
			_, _ = fmt.Fprintf(w, "%-6s %s\n", "", dimStyle.Render(c.Subtitle))
		}
	}
}

func printConversation(w io.Writer, c chat.Conversation) {
	_, _ = fmt.Fprintln(w, titleStyle.Render(c.Title))
	if len(c.Messages) == 0 {
		_, _ = fmt.Fprintln(w, dimStyle.Render("(no messages)"))
		return
	}
	for _, m := range c.Messages {
		who := "You"
		if m.Sender == chat.SenderAssistant {
			who = "Assistant"
		}
		_, _ = fmt.Fprintf(w, "\n%s %s\n%s\n", who, dimStyle.Render(m.Timestamp.Local().Format("2006-01-02 15:04")), m.Text)
	}
}
