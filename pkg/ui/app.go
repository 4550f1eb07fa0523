package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	bspinner "github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/helpdesk/pkg/chat"
	"github.com/go-go-golems/helpdesk/pkg/seed"
)

type focusArea int

const (
	focusInput focusArea = iota
	focusSidebar
)

// Deps wires the model to the conversation state. Loader and Bridge are
// optional.
type Deps struct {
	Store        *chat.Store
	Catalog      *chat.Catalog
	Loader       chat.HistoryLoader
	Bridge       *Bridge
	QuickActions []seed.QuickAction
}

type Option func(*AppModel)

func WithRenderer(r Renderer) Option {
	return func(m *AppModel) {
		if r != nil {
			m.render = r
		}
	}
}

// WithClipboard replaces the system clipboard writer.
func WithClipboard(write func(string) error) Option {
	return func(m *AppModel) {
		if write != nil {
			m.writeClipboard = write
		}
	}
}

type historyLoadedMsg struct {
	err error
}

type AppModel struct {
	ctx     context.Context
	store   *chat.Store
	catalog *chat.Catalog
	loader  chat.HistoryLoader
	bridge  *Bridge
	quick   []seed.QuickAction

	snap   chat.Snapshot
	focus  focusArea
	notice string

	sidebar  SidebarModel
	input    textinput.Model
	viewport viewport.Model
	spinner  bspinner.Model

	render         Renderer
	writeClipboard func(string) error

	width  int
	height int
}

func NewAppModel(ctx context.Context, d Deps, opts ...Option) AppModel {
	ti := textinput.New()
	ti.Placeholder = "Type your message..."
	ti.Prompt = "> "
	ti.CharLimit = 4000
	ti.Focus()

	sp := bspinner.New()
	sp.Spinner = bspinner.Line
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)

	vp := viewport.New(80, 10)

	m := AppModel{
		ctx:            ctx,
		store:          d.Store,
		catalog:        d.Catalog,
		loader:         d.Loader,
		bridge:         d.Bridge,
		quick:          d.QuickActions,
		snap:           d.Store.Snapshot(),
		sidebar:        NewSidebarModel(d.Catalog.List()),
		input:          ti,
		viewport:       vp,
		spinner:        sp,
		render:         GlamourRenderer(),
		writeClipboard: clipboard.WriteAll,
		width:          120,
		height:         30,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.input.SetValue(m.snap.Input)
	m.layout()
	return m
}

func (m AppModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, textinput.Blink, waitForSnapshot(m.bridge)}
	if m.loader != nil {
		cmds = append(cmds, m.refreshHistory())
	}
	return tea.Batch(cmds...)
}

func (m AppModel) refreshHistory() tea.Cmd {
	ctx, catalog, loader := m.ctx, m.catalog, m.loader
	return func() tea.Msg {
		return historyLoadedMsg{err: catalog.Refresh(ctx, loader)}
	}
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch ev := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = ev.Width, ev.Height
		m.layout()
		return m, nil
	case snapshotMsg:
		m.apply(ev.snap)
		return m, waitForSnapshot(m.bridge)
	case historyLoadedMsg:
		m.sidebar.SetConversations(m.catalog.List())
		if ev.err != nil {
			m.notice = "Could not load chat history, showing saved conversations"
		} else {
			m.notice = ""
		}
		return m, nil
	case bspinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(ev)
		return m, cmd
	case tea.KeyMsg:
		return m.handleKey(ev)
	}
	return m, nil
}

func (m AppModel) handleKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "tab":
		m.toggleFocus()
		return m, nil
	case "ctrl+n":
		m.store.StartNewConversation()
		m.sync()
		m.setFocus(focusInput)
		return m, nil
	case "ctrl+y":
		m.copyLastReply()
		return m, nil
	case "ctrl+r":
		if m.loader == nil {
			return m, nil
		}
		m.notice = "Refreshing history..."
		return m, m.refreshHistory()
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(k)
		return m, cmd
	}

	if k.Alt && len(k.Runes) == 1 && m.showWelcome() {
		if i := int(k.Runes[0] - '1'); i >= 0 && i < len(m.quick) {
			m.applyQuickAction(m.quick[i])
			return m, nil
		}
	}

	if m.focus == focusSidebar {
		if k.Type == tea.KeyEnter {
			if conv, ok := m.sidebar.Selected(); ok {
				m.store.SelectConversation(conv)
				m.sync()
				m.setFocus(focusInput)
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.sidebar, cmd = m.sidebar.Update(k)
		return m, cmd
	}

	if k.Type == tea.KeyEnter {
		m.submit()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(k)
	m.store.SetInput(m.input.Value())
	return m, cmd
}

// submit hands the input to the store. Empty input and submits while a reply
// is pending are ignored.
func (m *AppModel) submit() {
	if m.snap.Pending {
		return
	}
	_, err := m.store.SubmitUserText(m.ctx, m.input.Value())
	switch {
	case errors.Is(err, chat.ErrEmptyInput), errors.Is(err, chat.ErrPending):
		return
	case err != nil:
		log.Warn().Err(err).Msg("could not submit message")
		m.notice = err.Error()
		return
	}
	m.input.SetValue("")
	m.notice = ""
	m.sync()
}

func (m *AppModel) applyQuickAction(q seed.QuickAction) {
	m.input.SetValue(q.Query)
	m.input.CursorEnd()
	m.store.SetInput(q.Query)
	m.setFocus(focusInput)
	m.sync()
}

func (m *AppModel) copyLastReply() {
	msg, ok := m.snap.LastAssistantMessage()
	if !ok {
		m.notice = "Nothing to copy yet"
		return
	}
	if err := m.writeClipboard(msg.Text); err != nil {
		log.Debug().Err(err).Msg("clipboard write failed")
		m.notice = "Could not copy to clipboard"
		return
	}
	m.notice = "Copied last reply to clipboard"
}

// sync pulls the current state after a transition made from this model, so
// the view does not wait for the bridge.
func (m *AppModel) sync() {
	m.apply(m.store.Snapshot())
}

func (m *AppModel) apply(s chat.Snapshot) {
	if s.Revision < m.snap.Revision {
		return
	}
	m.snap = s
	m.sidebar.SetActive(s.ActiveConversationID)
	m.refreshViewport()
}

func (m *AppModel) refreshViewport() {
	m.viewport.SetContent(renderMessages(m.snap.Messages, m.viewport.Width, m.render))
	m.viewport.GotoBottom()
}

func (m *AppModel) toggleFocus() {
	if m.focus == focusInput {
		m.setFocus(focusSidebar)
	} else {
		m.setFocus(focusInput)
	}
}

func (m *AppModel) setFocus(f focusArea) {
	m.focus = f
	if f == focusInput {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

func (m AppModel) showWelcome() bool {
	return !m.snap.HasActiveConversation() && len(m.snap.Messages) == 0
}

func (m *AppModel) layout() {
	sideW := defaultSidebarWidth
	if m.width < 80 {
		sideW = m.width / 3
	}
	// borders and padding of both panes
	mainW := max(m.width-sideW-8, 20)
	bodyH := max(m.height-2, 8)

	m.sidebar.SetSize(sideW, bodyH)
	m.input.Width = mainW - 4
	// title, status line, input, help
	m.viewport.Width = mainW
	m.viewport.Height = max(bodyH-6, 3)
	m.refreshViewport()
}

func (m AppModel) View() string {
	side := pane(m.focus == focusSidebar).Render(m.sidebar.View())

	var main strings.Builder
	main.WriteString(headerStyle.Render("Helpdesk Assistant") + "\n")
	if m.showWelcome() {
		main.WriteString(m.welcomeView())
	} else {
		main.WriteString(m.viewport.View())
	}
	main.WriteString("\n")
	switch {
	case m.snap.Pending:
		main.WriteString(m.spinner.View() + mutedStyle.Render(" Assistant is typing..."))
	case m.snap.LastError != "":
		main.WriteString(errorStyle.Render("⚠ " + m.snap.LastError))
	case m.notice != "":
		main.WriteString(mutedStyle.Render(m.notice))
	}
	main.WriteString("\n" + m.input.View() + "\n")
	main.WriteString(mutedStyle.Render("enter send · tab switch pane · ctrl+n new · ctrl+y copy · ctrl+c quit"))

	body := pane(m.focus == focusInput).Width(m.viewport.Width + 2).Render(main.String())
	return lipgloss.JoinHorizontal(lipgloss.Top, side, body)
}

func (m AppModel) welcomeView() string {
	var b strings.Builder
	b.WriteString(subHeaderStyle.Render("How can I help you today?") + "\n")
	b.WriteString(mutedStyle.Render("Ask about company policies, benefits, IT support or anything else.") + "\n\n")
	for i, q := range m.quick {
		if i >= 9 {
			break
		}
		b.WriteString(quickKeyStyle.Render(fmt.Sprintf("[alt+%d]", i+1)))
		_, _ = fmt.Fprintf(&b, " %s %s\n", q.Icon, q.Text)
	}
	return b.String()
}
