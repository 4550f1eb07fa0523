package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/helpdesk/pkg/chat"
)

// Renderer formats assistant markdown for a pane of the given width.
type Renderer func(text string, width int) string

func PlainRenderer(text string, _ int) string { return text }

// GlamourRenderer renders markdown with glamour's dark style. The term
// renderer is rebuilt only when the width changes.
func GlamourRenderer() Renderer {
	var (
		width int
		r     *glamour.TermRenderer
	)
	return func(text string, w int) string {
		if w <= 0 {
			w = 80
		}
		if r == nil || w != width {
			nr, err := glamour.NewTermRenderer(glamour.WithStandardStyle("dark"), glamour.WithWordWrap(w))
			if err != nil {
				log.Debug().Err(err).Msg("glamour renderer unavailable, using plain text")
				return text
			}
			r, width = nr, w
		}
		out, err := r.Render(text)
		if err != nil {
			return text
		}
		return strings.Trim(out, "\n")
	}
}

func renderMessages(msgs []chat.Message, width int, md Renderer) string {
	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		ts := msg.Timestamp.Local().Format("15:04")
		switch msg.Sender {
		case chat.SenderUser:
			b.WriteString(userLabelStyle.Render("You") + mutedStyle.Render(" · "+ts) + "\n")
			b.WriteString(msg.Text)
		default:
			b.WriteString(botLabelStyle.Render("Assistant") + mutedStyle.Render(" · "+ts) + "\n")
			b.WriteString(md(msg.Text, width))
		}
	}
	return b.String()
}
