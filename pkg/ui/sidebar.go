package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/go-go-golems/helpdesk/pkg/chat"
)

const defaultSidebarWidth = 32

// conversationItem adapts a history entry to the list widget.
type conversationItem struct {
	conv   chat.Conversation
	active bool
}

func (i conversationItem) Title() string {
	if i.active {
		return "● " + i.conv.Title
	}
	return i.conv.Title
}

func (i conversationItem) Description() string {
	if i.conv.Date == "" {
		return i.conv.Subtitle
	}
	return fmt.Sprintf("%s · %s", i.conv.Subtitle, i.conv.Date)
}

func (i conversationItem) FilterValue() string { return i.conv.Title + " " + i.conv.Subtitle }

func historyHeader(n int) string {
	return fmt.Sprintf("Chat History (%02d)", n)
}

type SidebarModel struct {
	list     list.Model
	convs    []chat.Conversation
	activeID chat.ConversationID
	width    int
	height   int
}

func NewSidebarModel(convs []chat.Conversation) SidebarModel {
	l := list.New(nil, list.NewDefaultDelegate(), defaultSidebarWidth, 20)
	l.SetShowTitle(false)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()
	m := SidebarModel{list: l, width: defaultSidebarWidth, height: 20}
	m.SetConversations(convs)
	return m
}

// SetConversations replaces the listed entries, keeping the cursor in range.
func (m *SidebarModel) SetConversations(convs []chat.Conversation) {
	m.convs = convs
	m.rebuild()
}

// SetActive marks the entry with id as the active conversation.
func (m *SidebarModel) SetActive(id chat.ConversationID) {
	if m.activeID == id {
		return
	}
	m.activeID = id
	m.rebuild()
}

func (m *SidebarModel) rebuild() {
	idx := m.list.Index()
	items := make([]list.Item, 0, len(m.convs))
	for _, c := range m.convs {
		items = append(items, conversationItem{conv: c, active: c.ID != "" && c.ID == m.activeID})
	}
	m.list.SetItems(items)
	if idx >= len(items) {
		idx = len(items) - 1
	}
	if idx >= 0 {
		m.list.Select(idx)
	}
}

func (m *SidebarModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	// header and "+ New" line
	m.list.SetSize(width, max(height-3, 1))
}

// Selected returns the conversation under the cursor.
func (m SidebarModel) Selected() (chat.Conversation, bool) {
	it, ok := m.list.SelectedItem().(conversationItem)
	if !ok {
		return chat.Conversation{}, false
	}
	return it.conv, true
}

func (m SidebarModel) Update(msg tea.Msg) (SidebarModel, tea.Cmd) {
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m SidebarModel) View() string {
	out := headerStyle.Render(historyHeader(len(m.convs))) + "\n"
	out += mutedStyle.Render("+ New (ctrl+n)") + "\n\n"
	if len(m.convs) == 0 {
		out += mutedStyle.Render("No conversations yet")
	} else {
		out += m.list.View()
	}
	return lipgloss.NewStyle().Width(m.width).Render(out)
}
