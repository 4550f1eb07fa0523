package chat

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// HistoryLoader fetches the conversation history from an external source.
type HistoryLoader interface {
	LoadHistory(ctx context.Context) ([]Conversation, error)
}

// HistoryLoaderFunc adapts a function to HistoryLoader.
type HistoryLoaderFunc func(ctx context.Context) ([]Conversation, error)

func (f HistoryLoaderFunc) LoadHistory(ctx context.Context) ([]Conversation, error) {
	return f(ctx)
}

// Catalog is the ordered list of past conversations shown in the sidebar.
// Reads return copies; the catalog is only ever replaced wholesale.
type Catalog struct {
	mu            sync.RWMutex
	conversations []Conversation
}

func NewCatalog(seed []Conversation) *Catalog {
	return &Catalog{conversations: cloneConversations(seed)}
}

func (c *Catalog) List() []Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneConversations(c.conversations)
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.conversations)
}

// Get returns a copy of the conversation with the given id.
func (c *Catalog) Get(id ConversationID) (Conversation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, conv := range c.conversations {
		if conv.ID == id {
			return conv.Clone(), true
		}
	}
	return Conversation{}, false
}

func (c *Catalog) Replace(convs []Conversation) {
	cp := cloneConversations(convs)
	c.mu.Lock()
	c.conversations = cp
	c.mu.Unlock()
}

// Refresh replaces the catalog with what loader returns. On failure the
// current entries are kept and the error is returned.
func (c *Catalog) Refresh(ctx context.Context, loader HistoryLoader) error {
	if loader == nil {
		return errors.New("catalog refresh: nil loader")
	}
	convs, err := loader.LoadHistory(ctx)
	if err != nil {
		log.Warn().Err(err).Int("kept", c.Len()).Msg("history refresh failed, keeping current catalog")
		return errors.Wrap(err, "catalog refresh")
	}
	c.Replace(convs)
	log.Debug().Int("conversations", len(convs)).Msg("history refreshed")
	return nil
}
