package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrEmptyInput is returned by Begin when the trimmed text is empty.
	ErrEmptyInput = errors.New("empty input")
	// ErrPending is returned by Begin while a reply is outstanding.
	ErrPending = errors.New("a reply is still pending")
)

const (
	// FallbackReply is appended as the assistant turn when the gateway fails.
	FallbackReply = "Sorry, I'm having trouble connecting right now. Please try again."
	// GenericFailureReason is used when a failure carries no message of its own.
	GenericFailureReason = "Failed to send message"
)

// Gateway sends one user message and returns the assistant reply.
type Gateway interface {
	Send(ctx context.Context, text string) (string, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, text string) (string, error)

func (f GatewayFunc) Send(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

type State int

const (
	StateIdle State = iota
	StateAwaitingReply
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingReply:
		return "awaiting-reply"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Snapshot is an immutable copy of the store state.
type Snapshot struct {
	ActiveConversationID ConversationID
	Messages             []Message
	Pending              bool
	LastError            string
	Input                string
	// Submitted counts user messages accepted into the active conversation
	// since it was started or selected.
	Submitted int
	// Revision increases by one with every transition.
	Revision uint64
}

func (s Snapshot) State() State {
	if s.Pending {
		return StateAwaitingReply
	}
	return StateIdle
}

func (s Snapshot) HasActiveConversation() bool { return s.ActiveConversationID != "" }

// LastAssistantMessage returns the most recent assistant message, if any.
func (s Snapshot) LastAssistantMessage() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Sender == SenderAssistant {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

// Submission tracks one user message from Begin until Complete.
type Submission struct {
	ID             string
	Text           string
	ConversationID ConversationID

	epoch   uint64
	done    chan struct{}
	err     error
	applied bool
}

// Done is closed once the submission has been resolved.
func (s *Submission) Done() <-chan struct{} { return s.done }

// Wait blocks until the submission is resolved or ctx is done.
func (s *Submission) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err is the gateway error of a resolved submission.
func (s *Submission) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Applied reports whether the outcome was appended to the conversation. It is
// false when the user navigated away before the reply arrived.
func (s *Submission) Applied() bool {
	select {
	case <-s.done:
		return s.applied
	default:
		return false
	}
}

type StoreOption func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithFallbackReply(text string) StoreOption {
	return func(s *Store) {
		if strings.TrimSpace(text) != "" {
			s.fallback = text
		}
	}
}

// Store holds the active conversation. Every mutation goes through one of its
// transition methods, which are serialized by mu. Subscribers are notified in
// revision order; a subscriber must not call back into the store synchronously.
type Store struct {
	mu       sync.Mutex
	gateway  Gateway
	now      func() time.Time
	fallback string
	logger   zerolog.Logger

	activeID  ConversationID
	messages  []Message
	pending   bool
	lastError string
	input     string
	submitted int

	// epoch changes on navigation; a reply for an older epoch is dropped.
	epoch    uint64
	revision uint64
	inflight *Submission

	notifyMu    sync.Mutex
	subsMu      sync.Mutex
	subscribers map[int]func(Snapshot)
	nextSubID   int
}

func NewStore(gateway Gateway, opts ...StoreOption) *Store {
	s := &Store{
		gateway:     gateway,
		now:         func() time.Time { return time.Now().UTC() },
		fallback:    FallbackReply,
		logger:      log.With().Str("component", "chat-store").Logger(),
		subscribers: map[int]func(Snapshot){},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn for change notifications and returns a function that
// removes it again.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.subsMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subscribers, id)
		s.subsMu.Unlock()
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) State() State {
	return s.Snapshot().State()
}

func (s *Store) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// SetInput replaces the input buffer.
func (s *Store) SetInput(text string) {
	s.mu.Lock()
	if s.input == text {
		s.mu.Unlock()
		return
	}
	s.input = text
	s.commitAndUnlock()
}

// StartNewConversation clears the active conversation. An in-flight reply is
// not cancelled but will be discarded when it arrives.
func (s *Store) StartNewConversation() {
	s.mu.Lock()
	s.activeID = ""
	s.messages = nil
	s.lastError = ""
	s.submitted = 0
	s.epoch++
	s.logger.Debug().Uint64("epoch", s.epoch).Msg("started new conversation")
	s.commitAndUnlock()
}

// SelectConversation loads a copy of conv's messages as the active
// conversation.
func (s *Store) SelectConversation(conv Conversation) {
	s.mu.Lock()
	s.activeID = conv.ID
	s.messages = cloneMessages(conv.Messages)
	s.lastError = ""
	s.submitted = 0
	s.epoch++
	s.logger.Debug().
		Str("conversation_id", string(conv.ID)).
		Int("messages", len(conv.Messages)).
		Msg("selected conversation")
	s.commitAndUnlock()
}

// Begin validates text and, if accepted, appends it as a user message and
// moves the store to the awaiting-reply state. The returned submission must be
// resolved with Complete.
func (s *Store) Begin(text string) (*Submission, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyInput
	}

	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return nil, ErrPending
	}

	s.messages = append(s.messages, NewUserMessage(trimmed, s.now()))
	s.input = ""
	s.pending = true
	s.lastError = ""
	s.submitted++

	sub := &Submission{
		ID:             uuid.NewString(),
		Text:           trimmed,
		ConversationID: s.activeID,
		epoch:          s.epoch,
		done:           make(chan struct{}),
	}
	s.inflight = sub
	s.logger.Debug().
		Str("submission_id", sub.ID).
		Str("conversation_id", string(sub.ConversationID)).
		Msg("submission started")
	s.commitAndUnlock()
	return sub, nil
}

// Complete resolves sub with the gateway outcome. It returns true when a
// terminal assistant message was appended. Resolving a submission twice, or
// resolving one that is not in flight, does nothing.
func (s *Store) Complete(sub *Submission, reply string, err error) bool {
	if sub == nil {
		return false
	}

	s.mu.Lock()
	if s.inflight != sub {
		s.mu.Unlock()
		return false
	}
	s.inflight = nil
	s.pending = false

	applied := sub.epoch == s.epoch
	switch {
	case !applied:
		s.logger.Debug().
			Str("submission_id", sub.ID).
			Err(err).
			Msg("discarding reply for a conversation that is no longer active")
	case err != nil:
		s.lastError = failureReason(err)
		s.messages = append(s.messages, NewAssistantMessage(s.fallback, s.now()))
		s.logger.Warn().
			Str("submission_id", sub.ID).
			Err(err).
			Msg("gateway send failed")
	default:
		s.messages = append(s.messages, NewAssistantMessage(reply, s.now()))
	}

	sub.err = err
	sub.applied = applied
	s.commitAndUnlock()
	close(sub.done)
	return applied
}

// SubmitUserText begins a submission and sends it through the gateway in the
// background. Validation errors are returned synchronously.
func (s *Store) SubmitUserText(ctx context.Context, text string) (*Submission, error) {
	if s.gateway == nil {
		return nil, errors.New("chat store: no gateway configured")
	}
	sub, err := s.Begin(text)
	if err != nil {
		return nil, err
	}
	go s.dispatch(ctx, sub)
	return sub, nil
}

func (s *Store) dispatch(ctx context.Context, sub *Submission) {
	var (
		reply string
		err   error
	)
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("gateway panic: %v", r)
		}
		s.Complete(sub, reply, err)
	}()
	reply, err = s.gateway.Send(ctx, sub.Text)
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		ActiveConversationID: s.activeID,
		Messages:             cloneMessages(s.messages),
		Pending:              s.pending,
		LastError:            s.lastError,
		Input:                s.input,
		Submitted:            s.submitted,
		Revision:             s.revision,
	}
}

// commitAndUnlock bumps the revision, releases mu and notifies subscribers.
// notifyMu is taken before mu is released so deliveries keep revision order.
func (s *Store) commitAndUnlock() {
	s.revision++
	snap := s.snapshotLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.subsMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func failureReason(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return GenericFailureReason
	}
	return msg
}
