package chat

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is a single entry of a conversation. Messages are never edited after
// they have been appended.
type Message struct {
	Text      string    `json:"text" yaml:"text"`
	Sender    Sender    `json:"sender" yaml:"sender"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// ConversationID is an opaque identifier. The history endpoint and the seed
// data use JSON numbers, so both numbers and strings are accepted on decode.
type ConversationID string

func (id *ConversationID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return errors.Wrap(err, "decode conversation id")
		}
		*id = ConversationID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.Wrap(err, "decode conversation id")
	}
	*id = ConversationID(n.String())
	return nil
}

func (id ConversationID) String() string { return string(id) }

// Conversation is a history entry. Entries held by a Catalog are snapshots;
// use Clone before handing one out for mutation.
type Conversation struct {
	ID       ConversationID `json:"id" yaml:"id"`
	Title    string         `json:"title" yaml:"title"`
	Subtitle string         `json:"subtitle" yaml:"subtitle"`
	Date     string         `json:"date" yaml:"date"`
	Messages []Message      `json:"messages" yaml:"messages"`
}

// Clone returns a deep copy, including the message slice.
func (c Conversation) Clone() Conversation {
	c.Messages = cloneMessages(c.Messages)
	return c
}

func cloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	copy(out, in)
	return out
}

func cloneConversations(in []Conversation) []Conversation {
	out := make([]Conversation, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}

// NewUserMessage trims text; callers are expected to have validated it.
func NewUserMessage(text string, at time.Time) Message {
	return Message{Text: strings.TrimSpace(text), Sender: SenderUser, Timestamp: at}
}

func NewAssistantMessage(text string, at time.Time) Message {
	return Message{Text: text, Sender: SenderAssistant, Timestamp: at}
}
