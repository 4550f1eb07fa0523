// Package feed publishes conversation store transitions as watermill
// messages, so that loggers or external consumers can follow a session.
package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/helpdesk/pkg/chat"
)

const (
	TopicTurns = "helpdesk.turns"

	defaultBuffer = 256
)

type EventType string

const (
	EventMessageAppended      EventType = "message_appended"
	EventConversationReset    EventType = "conversation_reset"
	EventConversationSelected EventType = "conversation_selected"
	EventPendingChanged       EventType = "pending_changed"
	EventError                EventType = "error"
)

type TurnEvent struct {
	Type           EventType     `json:"type"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Revision       uint64        `json:"revision"`
	Message        *chat.Message `json:"message,omitempty"`
	Pending        bool          `json:"pending"`
	Error          string        `json:"error,omitempty"`
	At             time.Time     `json:"at"`
}

// Diff derives the events between two consecutive snapshots.
func Diff(prev, next chat.Snapshot, at time.Time) []TurnEvent {
	base := TurnEvent{
		ConversationID: string(next.ActiveConversationID),
		Revision:       next.Revision,
		Pending:        next.Pending,
		At:             at,
	}
	var out []TurnEvent
	emit := func(t EventType, mutate func(*TurnEvent)) {
		ev := base
		ev.Type = t
		if mutate != nil {
			mutate(&ev)
		}
		out = append(out, ev)
	}

	start := len(prev.Messages)
	if navigated(prev, next) {
		if next.ActiveConversationID == "" {
			emit(EventConversationReset, nil)
		} else {
			emit(EventConversationSelected, nil)
		}
		start = len(next.Messages)
	}
	for i := start; i < len(next.Messages); i++ {
		msg := next.Messages[i]
		emit(EventMessageAppended, func(ev *TurnEvent) { ev.Message = &msg })
	}
	if prev.Pending != next.Pending {
		emit(EventPendingChanged, nil)
	}
	if next.LastError != "" && next.LastError != prev.LastError {
		emit(EventError, func(ev *TurnEvent) { ev.Error = next.LastError })
	}
	return out
}

func navigated(prev, next chat.Snapshot) bool {
	if prev.ActiveConversationID != next.ActiveConversationID {
		return true
	}
	if len(next.Messages) < len(prev.Messages) {
		return true
	}
	for i := range prev.Messages {
		if prev.Messages[i] != next.Messages[i] {
			return true
		}
	}
	return false
}

// Feed turns store notifications into TurnEvents and publishes them from Run.
type Feed struct {
	pub    message.Publisher
	topic  string
	now    func() time.Time
	logger zerolog.Logger

	mu     sync.Mutex
	prev   chat.Snapshot
	events chan TurnEvent
}

type Option func(*Feed)

func WithTopic(topic string) Option {
	return func(f *Feed) {
		if topic != "" {
			f.topic = topic
		}
	}
}

func WithBuffer(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.events = make(chan TurnEvent, n)
		}
	}
}

func New(pub message.Publisher, opts ...Option) *Feed {
	f := &Feed{
		pub:    pub,
		topic:  TopicTurns,
		now:    func() time.Time { return time.Now().UTC() },
		logger: log.With().Str("component", "feed").Logger(),
		events: make(chan TurnEvent, defaultBuffer),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Attach starts observing store and returns the unsubscribe function.
func (f *Feed) Attach(store *chat.Store) func() {
	f.mu.Lock()
	f.prev = store.Snapshot()
	f.mu.Unlock()
	return store.Subscribe(f.observe)
}

func (f *Feed) observe(snap chat.Snapshot) {
	f.mu.Lock()
	prev := f.prev
	if snap.Revision <= prev.Revision {
		f.mu.Unlock()
		return
	}
	f.prev = snap
	f.mu.Unlock()

	for _, ev := range Diff(prev, snap, f.now()) {
		select {
		case f.events <- ev:
		default:
			f.logger.Warn().Str("type", string(ev.Type)).Uint64("revision", ev.Revision).Msg("feed buffer full, dropping event")
		}
	}
}

// Run publishes queued events until ctx is done.
func (f *Feed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-f.events:
			if err := f.publish(ev); err != nil {
				f.logger.Warn().Err(err).Str("type", string(ev.Type)).Msg("could not publish turn event")
			}
		}
	}
}

func (f *Feed) publish(ev TurnEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode turn event")
	}
	msg := message.NewMessage(uuid.NewString(), b)
	msg.Metadata.Set("type", string(ev.Type))
	return errors.Wrap(f.pub.Publish(f.topic, msg), "publish turn event")
}

// Consume subscribes to topic and hands every decoded event to handler.
// Undecodable messages are acked and skipped; handler errors nack the message.
func Consume(ctx context.Context, sub message.Subscriber, topic string, handler func(TurnEvent) error) error {
	if topic == "" {
		topic = TopicTurns
	}
	msgs, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return errors.Wrap(err, "subscribe to turn events")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var ev TurnEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				log.Warn().Err(err).Str("message_id", msg.UUID).Msg("skipping undecodable turn event")
				msg.Ack()
				continue
			}
			if err := handler(ev); err != nil {
				log.Warn().Err(err).Str("type", string(ev.Type)).Msg("turn event handler failed")
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}
}

// LogEvent is a Consume handler that writes events to the global logger.
func LogEvent(ev TurnEvent) error {
	e := log.Debug().
		Str("type", string(ev.Type)).
		Str("conversation_id", ev.ConversationID).
		Uint64("revision", ev.Revision).
		Bool("pending", ev.Pending)
	if ev.Message != nil {
		e = e.Str("sender", string(ev.Message.Sender)).Int("text_len", len(ev.Message.Text))
	}
	if ev.Error != "" {
		e = e.Str("error", ev.Error)
	}
	e.Msg("turn event")
	return nil
}
