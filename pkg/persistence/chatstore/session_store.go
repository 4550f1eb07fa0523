package chatstore

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/go-go-golems/helpdesk/pkg/chat"
)

var (
	ErrEmptySession   = errors.New("session has no messages")
	ErrInvalidSession = errors.New("invalid session")
)

const maxTitleRunes = 40

// SessionRecord is a saved chat session.
type SessionRecord struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	CreatedAt time.Time      `json:"created_at"`
	Messages  []chat.Message `json:"messages"`
}

// Conversation presents the record as a history entry.
func (r SessionRecord) Conversation() chat.Conversation {
	msgs := make([]chat.Message, len(r.Messages))
	copy(msgs, r.Messages)
	return chat.Conversation{
		ID:       chat.ConversationID(r.ID),
		Title:    r.Title,
		Subtitle: subtitleFor(r.Messages),
		Date:     r.CreatedAt.Format("02/01"),
		Messages: msgs,
	}
}

// SessionStore persists sessions submitted to the save endpoint.
type SessionStore interface {
	SaveSession(ctx context.Context, messages []chat.Message) (SessionRecord, error)
	GetSession(ctx context.Context, id string) (SessionRecord, bool, error)
	// ListSessions returns the newest sessions first. limit <= 0 means no limit.
	ListSessions(ctx context.Context, limit int) ([]SessionRecord, error)
	Close() error
}

// titleFor uses the first user message, shortened to fit the history list.
func titleFor(msgs []chat.Message) string {
	for _, m := range msgs {
		if m.Sender == chat.SenderUser {
			if t := strings.TrimSpace(m.Text); t != "" {
				return truncate(t, maxTitleRunes)
			}
		}
	}
	return "Saved conversation"
}

func subtitleFor(msgs []chat.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Sender == chat.SenderAssistant {
			return truncate(strings.TrimSpace(msgs[i].Text), maxTitleRunes)
		}
	}
	return ""
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n-1])) + "…"
}

func validateMessages(msgs []chat.Message) error {
	if len(msgs) == 0 {
		return ErrEmptySession
	}
	for i, m := range msgs {
		switch m.Sender {
		case chat.SenderUser, chat.SenderAssistant:
		default:
			return errors.Wrapf(ErrInvalidSession, "message %d: unknown sender %q", i, m.Sender)
		}
	}
	return nil
}

// normalizeMessages stamps messages that arrived without a timestamp.
func normalizeMessages(msgs []chat.Message, now time.Time) []chat.Message {
	out := make([]chat.Message, len(msgs))
	for i, m := range msgs {
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
		out[i] = m
	}
	return out
}
