package feed

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/helpdesk/pkg/chat"
	"github.com/go-go-golems/helpdesk/pkg/redisstream"
)

func types(evs []TurnEvent) []EventType {
	out := make([]EventType, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Type)
	}
	return out
}

func TestDiff(t *testing.T) {
	at := time.Date(2025, 2, 24, 10, 0, 0, 0, time.UTC)
	user := chat.Message{Text: "q", Sender: chat.SenderUser, Timestamp: at}
	reply := chat.Message{Text: "a", Sender: chat.SenderAssistant, Timestamp: at}

	tests := []struct {
		name string
		prev chat.Snapshot
		next chat.Snapshot
		want []EventType
	}{
		{
			name: "user message begins a turn",
			prev: chat.Snapshot{},
			next: chat.Snapshot{Messages: []chat.Message{user}, Pending: true, Revision: 1},
			want: []EventType{EventMessageAppended, EventPendingChanged},
		},
		{
			name: "failed reply",
			prev: chat.Snapshot{Messages: []chat.Message{user}, Pending: true, Revision: 1},
			next: chat.Snapshot{Messages: []chat.Message{user, reply}, LastError: "boom", Revision: 2},
			want: []EventType{EventMessageAppended, EventPendingChanged, EventError},
		},
		{
			name: "new conversation",
			prev: chat.Snapshot{ActiveConversationID: "1", Messages: []chat.Message{user, reply}},
			next: chat.Snapshot{Revision: 3},
			want: []EventType{EventConversationReset},
		},
		{
			name: "select conversation",
			prev: chat.Snapshot{},
			next: chat.Snapshot{ActiveConversationID: "2", Messages: []chat.Message{user, reply}},
			want: []EventType{EventConversationSelected},
		},
		{
			name: "input change only",
			prev: chat.Snapshot{Messages: []chat.Message{user}},
			next: chat.Snapshot{Messages: []chat.Message{user}, Input: "typing"},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.prev, tt.next, at)
			require.Equal(t, tt.want, types(got))
		})
	}
}

func TestFeed_PublishesStoreTransitions(t *testing.T) {
	ps, err := redisstream.BuildPubSub(redisstream.DefaultSettings())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ps.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	received := make(chan TurnEvent, 16)
	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- Consume(ctx, ps.Subscriber, TopicTurns, func(ev TurnEvent) error {
			received <- ev
			return nil
		})
	}()
	// gochannel drops messages published before a subscriber exists.
	time.Sleep(50 * time.Millisecond)

	store := chat.NewStore(chat.GatewayFunc(func(ctx context.Context, text string) (string, error) {
		return "", errors.New("offline")
	}))
	f := New(ps.Publisher)
	detach := f.Attach(store)
	defer detach()
	go func() { _ = f.Run(ctx) }()

	sub, err := store.SubmitUserText(ctx, "hello")
	require.NoError(t, err)
	require.NoError(t, sub.Wait(ctx))

	var got []TurnEvent
	for len(got) < 5 {
		select {
		case ev := <-received:
			got = append(got, ev)
		case <-ctx.Done():
			t.Fatalf("timed out, got %v", types(got))
		}
	}

	require.Equal(t, []EventType{
		EventMessageAppended, EventPendingChanged,
		EventMessageAppended, EventPendingChanged, EventError,
	}, types(got))
	require.Equal(t, chat.SenderUser, got[0].Message.Sender)
	require.Equal(t, chat.FallbackReply, got[2].Message.Text)
	require.Equal(t, "offline", got[4].Error)

	cancel()
	require.NoError(t, <-consumeErr)
}
