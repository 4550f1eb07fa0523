package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/go-go-golems/helpdesk/pkg/chat"
)

// Bridge forwards store snapshots to the bubbletea program. Snapshots are
// complete states, so only the newest undelivered one is kept and the store's
// notification path never blocks on the UI.
type Bridge struct {
	ch          chan chat.Snapshot
	done        chan struct{}
	closeOnce   sync.Once
	unsubscribe func()
}

func NewBridge(store *chat.Store) *Bridge {
	b := &Bridge{
		ch:   make(chan chat.Snapshot, 1),
		done: make(chan struct{}),
	}
	b.unsubscribe = store.Subscribe(b.push)
	return b
}

// push runs on the store's notification path, which is serialized.
func (b *Bridge) push(s chat.Snapshot) {
	for {
		select {
		case b.ch <- s:
			return
		default:
		}
		select {
		case <-b.ch:
		default:
		}
	}
}

// Close detaches from the store and releases any waiting command.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.unsubscribe()
		close(b.done)
	})
}

type snapshotMsg struct {
	snap chat.Snapshot
}

func waitForSnapshot(b *Bridge) tea.Cmd {
	if b == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case s := <-b.ch:
			return snapshotMsg{snap: s}
		case <-b.done:
			return nil
		}
	}
}
