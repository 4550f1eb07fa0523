// Package seed provides the built-in history and quick actions shown before
// (or instead of) anything loaded from the backend.
package seed

import (
	_ "embed"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/helpdesk/pkg/chat"
)

//go:embed seed.yaml
var defaultSeed []byte

// QuickAction is a canned prompt offered on the welcome screen.
type QuickAction struct {
	Icon  string `yaml:"icon" json:"icon"`
	Text  string `yaml:"text" json:"text"`
	Query string `yaml:"query" json:"query"`
}

type Data struct {
	Conversations []chat.Conversation `yaml:"conversations"`
	QuickActions  []QuickAction       `yaml:"quick_actions"`
}

// Default returns the embedded seed data. Messages without a timestamp are
// stamped with the current time.
func Default() (*Data, error) {
	return Parse(defaultSeed, time.Now().UTC())
}

// Load reads seed data from a YAML file.
func Load(path string) (*Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open seed file")
	}
	defer func() {
		_ = f.Close()
	}()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, "read seed file")
	}
	return Parse(b, time.Now().UTC())
}

func Parse(b []byte, now time.Time) (*Data, error) {
	d := &Data{}
	if err := yaml.Unmarshal(b, d); err != nil {
		return nil, errors.Wrap(err, "parse seed data")
	}
	for i := range d.Conversations {
		conv := &d.Conversations[i]
		if conv.ID == "" {
			return nil, errors.Errorf("seed conversation %d (%q) has no id", i, conv.Title)
		}
		if conv.Messages == nil {
			conv.Messages = []chat.Message{}
		}
		for j := range conv.Messages {
			msg := &conv.Messages[j]
			switch msg.Sender {
			case chat.SenderUser, chat.SenderAssistant:
			default:
				return nil, errors.Errorf("seed conversation %s message %d: unknown sender %q", conv.ID, j, msg.Sender)
			}
			if msg.Timestamp.IsZero() {
				msg.Timestamp = now
			}
		}
	}
	return d, nil
}
