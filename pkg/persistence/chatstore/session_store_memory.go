package chatstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/go-go-golems/helpdesk/pkg/chat"
)

// InMemorySessionStore is a size-limited SessionStore. When full, the oldest
// session is evicted.
type InMemorySessionStore struct {
	mu          sync.Mutex
	maxSessions int
	sessions    []SessionRecord
	now         func() time.Time
}

var _ SessionStore = &InMemorySessionStore{}

func NewInMemorySessionStore(maxSessions int) *InMemorySessionStore {
	if maxSessions <= 0 {
		maxSessions = 500
	}
	return &InMemorySessionStore{
		maxSessions: maxSessions,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemorySessionStore) Close() error { return nil }

func (s *InMemorySessionStore) SaveSession(_ context.Context, messages []chat.Message) (SessionRecord, error) {
	if s == nil {
		return SessionRecord{}, errors.New("in-memory session store: nil store")
	}
	if err := validateMessages(messages); err != nil {
		return SessionRecord{}, err
	}
	now := s.now()
	rec := SessionRecord{
		ID:        uuid.NewString(),
		Title:     titleFor(messages),
		CreatedAt: now,
		Messages:  normalizeMessages(messages, now),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, rec)
	if over := len(s.sessions) - s.maxSessions; over > 0 {
		s.sessions = append([]SessionRecord(nil), s.sessions[over:]...)
	}
	return rec, nil
}

func (s *InMemorySessionStore) GetSession(_ context.Context, id string) (SessionRecord, bool, error) {
	if s == nil {
		return SessionRecord{}, false, errors.New("in-memory session store: nil store")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return SessionRecord{}, false, errors.New("in-memory session store: id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.sessions {
		if rec.ID == id {
			return cloneRecord(rec), true, nil
		}
	}
	return SessionRecord{}, false, nil
}

func (s *InMemorySessionStore) ListSessions(_ context.Context, limit int) ([]SessionRecord, error) {
	if s == nil {
		return nil, errors.New("in-memory session store: nil store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SessionRecord, 0, len(s.sessions))
	for i := len(s.sessions) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, cloneRecord(s.sessions[i]))
	}
	return out, nil
}

func cloneRecord(r SessionRecord) SessionRecord {
	msgs := make([]chat.Message, len(r.Messages))
	copy(msgs, r.Messages)
	r.Messages = msgs
	return r
}
