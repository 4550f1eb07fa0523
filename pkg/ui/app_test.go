package ui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/helpdesk/pkg/chat"
	"github.com/go-go-golems/helpdesk/pkg/seed"
)

type fixture struct {
	store   *chat.Store
	catalog *chat.Catalog
	replies chan string
	sends   chan string
	copied  []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d, err := seed.Default()
	require.NoError(t, err)
	f := &fixture{
		catalog: chat.NewCatalog(d.Conversations),
		replies: make(chan string, 4),
		sends:   make(chan string, 4),
	}
	f.store = chat.NewStore(chat.GatewayFunc(func(ctx context.Context, text string) (string, error) {
		f.sends <- text
		select {
		case r := <-f.replies:
			return r, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}))
	return f
}

func (f *fixture) model(t *testing.T, opts ...Option) AppModel {
	t.Helper()
	d, err := seed.Default()
	require.NoError(t, err)
	opts = append([]Option{
		WithRenderer(PlainRenderer),
		WithClipboard(func(s string) error {
			f.copied = append(f.copied, s)
			return nil
		}),
	}, opts...)
	m := NewAppModel(context.Background(), Deps{
		Store:        f.store,
		Catalog:      f.catalog,
		QuickActions: d.QuickActions,
	}, opts...)
	return update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
}

func update(t *testing.T, m AppModel, msgs ...tea.Msg) AppModel {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		var ok bool
		m, ok = next.(AppModel)
		require.True(t, ok)
	}
	return m
}

func typeText(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

var enter = tea.KeyMsg{Type: tea.KeyEnter}

func waitFor(t *testing.T, store *chat.Store, cond func(chat.Snapshot) bool) chat.Snapshot {
	t.Helper()
	var snap chat.Snapshot
	require.Eventually(t, func() bool {
		snap = store.Snapshot()
		return cond(snap)
	}, 2*time.Second, 5*time.Millisecond)
	return snap
}

func TestAppModel_WelcomeScreen(t *testing.T) {
	f := newFixture(t)
	m := f.model(t)

	view := m.View()
	require.Contains(t, view, "Chat History (04)")
	require.Contains(t, view, "How can I help you today?")
	require.Contains(t, view, "Company Policy")
	require.Contains(t, view, "[alt+1]")
}

func TestAppModel_EnterSendsMessage(t *testing.T) {
	f := newFixture(t)
	m := f.model(t)

	m = update(t, m, typeText("  What are the office hours?  "), enter)
	require.Equal(t, "", m.input.Value())

	snap := m.snap
	require.True(t, snap.Pending)
	require.Len(t, snap.Messages, 1)
	require.Equal(t, "What are the office hours?", snap.Messages[0].Text)
	require.Equal(t, "What are the office hours?", <-f.sends)
	require.Contains(t, m.View(), "Assistant is typing...")

	f.replies <- "We are open **9 to 5**."
	snap = waitFor(t, f.store, func(s chat.Snapshot) bool { return !s.Pending })
	m = update(t, m, snapshotMsg{snap: snap})

	require.Len(t, m.snap.Messages, 2)
	require.Equal(t, chat.SenderAssistant, m.snap.Messages[1].Sender)
	require.Contains(t, m.viewport.View(), "We are open **9 to 5**.")
}

func TestAppModel_EnterIgnoredWhilePending(t *testing.T) {
	f := newFixture(t)
	m := f.model(t)

	m = update(t, m, typeText("first"), enter)
	<-f.sends
	m = update(t, m, typeText("second"), enter)

	require.Equal(t, "second", m.input.Value())
	require.Len(t, f.store.Snapshot().Messages, 1)

	f.replies <- "ok"
	waitFor(t, f.store, func(s chat.Snapshot) bool { return !s.Pending })
}

func TestAppModel_EmptyEnterIsIgnored(t *testing.T) {
	f := newFixture(t)
	m := f.model(t)

	before := f.store.Snapshot().Revision
	m = update(t, m, typeText("   "), enter)
	require.False(t, m.snap.Pending)
	require.Empty(t, m.snap.Messages)
	// only the SetInput transition for the typed spaces
	require.Equal(t, before+1, f.store.Snapshot().Revision)
}

func TestAppModel_QuickActionFillsInput(t *testing.T) {
	f := newFixture(t)
	m := f.model(t)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'2'}, Alt: true})
	require.Equal(t, "Help me find a document", m.input.Value())
	require.Equal(t, "Help me find a document", f.store.Input())
	require.False(t, m.snap.Pending)
	require.Empty(t, m.snap.Messages)
}

func TestAppModel_SelectFromSidebar(t *testing.T) {
	f := newFixture(t)
	m := f.model(t)

	m = update(t, m,
		tea.KeyMsg{Type: tea.KeyTab},
		tea.KeyMsg{Type: tea.KeyDown},
		enter,
	)
	snap := f.store.Snapshot()
	require.Equal(t, chat.ConversationID("2"), snap.ActiveConversationID)
	require.Equal(t, focusInput, m.focus)
	require.NotEmpty(t, m.snap.Messages)
	require.Contains(t, m.View(), "● Performance Management")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	require.False(t, m.snap.HasActiveConversation())
	require.Empty(t, m.snap.Messages)
	require.Contains(t, m.View(), "How can I help you today?")
}

func TestAppModel_CopyLastReply(t *testing.T) {
	f := newFixture(t)
	m := f.model(t)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlY})
	require.Empty(t, f.copied)
	require.Equal(t, "Nothing to copy yet", m.notice)

	conv, ok := f.catalog.Get("1")
	require.True(t, ok)
	f.store.SelectConversation(conv)
	m = update(t, m, snapshotMsg{snap: f.store.Snapshot()}, tea.KeyMsg{Type: tea.KeyCtrlY})
	require.Equal(t, []string{conv.Messages[1].Text}, f.copied)
}

func TestAppModel_ErrorBanner(t *testing.T) {
	d, err := seed.Default()
	require.NoError(t, err)
	store := chat.NewStore(chat.GatewayFunc(func(ctx context.Context, text string) (string, error) {
		return "", errors.New("Failed to send message")
	}))
	m := NewAppModel(context.Background(), Deps{
		Store:   store,
		Catalog: chat.NewCatalog(d.Conversations),
	}, WithRenderer(PlainRenderer))

	m = update(t, m, typeText("hello"), enter)
	snap := waitFor(t, store, func(s chat.Snapshot) bool { return !s.Pending })
	m = update(t, m, snapshotMsg{snap: snap})

	require.Contains(t, m.View(), "⚠ Failed to send message")
	require.Contains(t, m.viewport.View(), chat.FallbackReply)
}

func TestAppModel_HistoryRefresh(t *testing.T) {
	f := newFixture(t)
	loaded := []chat.Conversation{{ID: "9", Title: "Remote", Messages: []chat.Message{}}}
	loader := chat.HistoryLoaderFunc(func(ctx context.Context) ([]chat.Conversation, error) {
		return loaded, nil
	})
	m := NewAppModel(context.Background(), Deps{Store: f.store, Catalog: f.catalog, Loader: loader}, WithRenderer(PlainRenderer))

	msg := m.refreshHistory()()
	m = update(t, m, msg)
	require.Contains(t, m.View(), "Chat History (01)")
	require.Contains(t, m.View(), "Remote")

	failing := chat.HistoryLoaderFunc(func(ctx context.Context) ([]chat.Conversation, error) {
		return nil, errors.New("Failed to get chat history")
	})
	m.loader = failing
	m = update(t, m, m.refreshHistory()())
	require.Contains(t, m.View(), "Chat History (01)")
	require.Contains(t, m.notice, "Could not load chat history")
}

func TestBridge_KeepsLatestSnapshot(t *testing.T) {
	store := chat.NewStore(nil)
	b := NewBridge(store)
	defer b.Close()

	store.SetInput("a")
	store.SetInput("ab")

	msg := waitForSnapshot(b)()
	sm, ok := msg.(snapshotMsg)
	require.True(t, ok)
	require.Equal(t, "ab", sm.snap.Input)

	b.Close()
	require.Nil(t, waitForSnapshot(b)())
}

func TestHistoryHeader(t *testing.T) {
	require.Equal(t, "Chat History (00)", historyHeader(0))
	require.Equal(t, "Chat History (07)", historyHeader(7))
	require.Equal(t, "Chat History (12)", historyHeader(12))
}
