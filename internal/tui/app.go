package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lu-zhengda/termchat/internal/app"
	"github.com/lu-zhengda/termchat/internal/domain"
	"github.com/lu-zhengda/termchat/internal/store"
	"github.com/lu-zhengda/termchat/internal/store/sqlite"
)

type pane int

const (
	paneSidebar pane = iota
	paneList
	paneConversation
)

// --- async result messages ---

// Messages tagged with gen belong to one attached session and are ignored
// after an account switch.

type storeEventMsg struct {
	gen   int
	event store.Event
}

type bootDoneMsg struct {
	gen int
	err error
}

type threadOpenedMsg struct {
	gen    int
	result *app.OpenResult
}

type collectionSwitchedMsg struct {
	gen int
	err error
}

type refreshDoneMsg struct {
	gen int
	err error
}

type sendDoneMsg struct {
	gen int
	err error
}

type searchResultsMsg struct {
	results []sqlite.SearchHit
}

type accountSwitchedMsg struct {
	accountID string
	session   *app.Session
}

type noticeTickMsg struct{}

type errMsg struct {
	err error
}

// SessionFactory opens the session of another account.
type SessionFactory func(accountID string) (*app.Session, error)

// Searcher runs full-text search over the cached messages of an account.
type Searcher interface {
	SearchMessages(ctx context.Context, accountID, query string, limit int) ([]sqlite.SearchHit, error)
}

// Options configures Run.
type Options struct {
	AccountID string
	Accounts  []domain.Account
	Session   *app.Session
	Factory   SessionFactory
	Searcher  Searcher
	// MaxLength is the send limit shown by the composer counter.
	MaxLength int
}

// --- root model ---

type model struct {
	ctx       context.Context
	session   *app.Session
	factory   SessionFactory
	searcher  Searcher
	accountID string
	accounts  []domain.Account

	gen         int
	events      <-chan store.Event
	unsubscribe func()
	runCtx      context.Context
	stopRun     context.CancelFunc

	sidebar      sidebarModel
	threads      threadListModel
	conversation conversationModel
	composer     composerModel
	search       searchModel

	activePane pane
	statusBar  statusBar

	width  int
	height int
}

func newModel(ctx context.Context, opts Options) model {
	sidebar := newSidebar()
	sidebar.account = opts.AccountID
	sidebar.accounts = len(opts.Accounts)

	sb := newStatusBar()
	sb.multiAccount = len(opts.Accounts) > 1
	sb.setMessage("Loading...")

	m := model{
		ctx:          ctx,
		factory:      opts.Factory,
		searcher:     opts.Searcher,
		accountID:    opts.AccountID,
		accounts:     opts.Accounts,
		sidebar:      sidebar,
		threads:      newThreadList(),
		conversation: newConversation(),
		composer:     newComposer(opts.MaxLength),
		search:       newSearch(),
		statusBar:    sb,
	}
	m.attach(opts.Session)
	m.setFocus(paneList)
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.waitForEvent(),
		m.bootCmd(),
		noticeTick(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.width = msg.Width
		m.resizeSubModels()
		return m, nil

	// --- session messages ---
	case storeEventMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		if msg.event.Kind == store.NoticeRaised && msg.event.Notice != nil {
			m.statusBar.setNotice(msg.event.Notice.Text, msg.event.Notice.ExpiresAt)
		}
		m.syncViews()
		return m, m.waitForEvent()

	case bootDoneMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		switch {
		case msg.err != nil:
			m.statusBar.setError(fmt.Sprintf("Could not connect: %v", msg.err))
		case m.session.Store.Identity().IsZero():
			m.statusBar.setError("Offline: showing cached conversations")
		default:
			m.statusBar.setMessage("Connected")
		}
		m.syncViews()
		// Polling retries whatever boot could not reach.
		return m, m.runCmd()

	case threadOpenedMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		if msg.result.RefreshErr != nil {
			m.statusBar.setError(fmt.Sprintf("Showing cached messages: %v", msg.result.RefreshErr))
		} else {
			m.statusBar.setMessage(msg.result.Thread.Name)
		}
		m.syncViews()
		return m, m.focusComposer()

	case collectionSwitchedMsg, refreshDoneMsg:
		var gen int
		var err error
		switch msg := msg.(type) {
		case collectionSwitchedMsg:
			gen, err = msg.gen, msg.err
		case refreshDoneMsg:
			gen, err = msg.gen, msg.err
		}
		if gen != m.gen {
			return m, nil
		}
		if err != nil {
			m.statusBar.setError(fmt.Sprintf("Refresh failed: %v", err))
		} else {
			m.statusBar.setMessage("Up to date")
		}
		m.syncViews()
		return m, nil

	case sendDoneMsg:
		// Failures reach the status bar as store notices.
		return m, nil

	case searchResultsMsg:
		m.search.SetResults(msg.results)
		m.statusBar.setMessage(fmt.Sprintf("Found %d results", len(msg.results)))
		return m, nil

	case accountSwitchedMsg:
		m.detach()
		m.accountID = msg.accountID
		m.sidebar.account = msg.accountID
		m.conversation.Close()
		m.composer.Attach("")
		m.attach(msg.session)
		m.setFocus(paneList)
		m.statusBar.setMessage(fmt.Sprintf("Switched to %s", msg.accountID))
		m.syncViews()
		return m, tea.Batch(m.waitForEvent(), m.bootCmd())

	case noticeTickMsg:
		m.statusBar.clearExpired(time.Now())
		return m, noticeTick()

	case errMsg:
		m.statusBar.setError(fmt.Sprintf("Error: %v", msg.err))
		return m, nil

	// --- sub-model emitted messages ---
	case collectionSelectedMsg:
		m.setFocus(paneList)
		return m, m.switchCollectionCmd(msg.collection)

	case threadSelectedMsg:
		m.search.Close()
		m.statusBar.setMessage("Opening...")
		return m, m.openCmd(msg.threadID, msg.collection)

	case closeConversationMsg:
		m.composer.Blur()
		m.setFocus(paneList)
		return m, m.closeCmd()

	case focusComposerMsg:
		return m, m.focusComposer()

	case blurComposerMsg:
		m.composer.Blur()
		m.statusBar.composing = false
		return m, nil

	case sendMsg:
		return m, m.handleSend(msg)

	case searchQueryMsg:
		m.statusBar.setMessage(fmt.Sprintf("Searching: %s", msg.query))
		return m, m.searchCmd(msg.query)

	case closeSearchMsg:
		m.search.Close()
		m.setFocus(paneList)
		return m, nil

	// --- key events ---
	case tea.KeyMsg:
		if m.composer.IsFocused() {
			var cmd tea.Cmd
			m.composer, cmd = m.composer.Update(msg)
			return m, cmd
		}

		if m.search.IsActive() {
			var cmd tea.Cmd
			m.search, cmd = m.search.Update(msg)
			return m, cmd
		}

		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, keys.Search):
			if m.searcher == nil {
				return m, nil
			}
			cmd := m.search.Open()
			m.resizeSubModels()
			return m, cmd

		case key.Matches(msg, keys.Direct):
			return m, m.switchCollectionCmd(domain.CollectionDirect)

		case key.Matches(msg, keys.Groups):
			return m, m.switchCollectionCmd(domain.CollectionGroup)

		case key.Matches(msg, keys.Refresh):
			m.statusBar.setMessage("Refreshing...")
			return m, m.refreshCmd()

		case key.Matches(msg, keys.Tab):
			m.cycleFocus()
			return m, nil

		case key.Matches(msg, keys.SwitchAccount):
			if len(m.accounts) < 2 || m.factory == nil {
				m.statusBar.setMessage("Only one account configured")
				return m, nil
			}
			return m, m.switchAccountCmd()
		}

		var cmd tea.Cmd
		switch m.activePane {
		case paneSidebar:
			m.sidebar, cmd = m.sidebar.Update(msg)
		case paneList:
			m.threads, cmd = m.threads.Update(msg)
		case paneConversation:
			m.conversation, cmd = m.conversation.Update(msg)
		}
		return m, cmd
	}

	return m, nil
}

func (m model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	sidebarWidth, contentWidth := m.layoutWidths()
	contentHeight := m.height - 3

	sidebarView := sidebarStyle.
		Width(sidebarWidth).
		Height(contentHeight).
		Render(m.sidebar.View())

	var contentView string
	switch {
	case m.search.IsActive():
		contentView = listStyle.
			Width(contentWidth).
			Height(contentHeight).
			Render(m.search.View())

	case m.conversation.IsVisible():
		listHeight, convHeight := m.splitHeights(contentHeight)
		listView := listStyle.
			Width(contentWidth).
			Height(listHeight).
			Render(m.threads.View())
		convView := conversationStyle.
			Width(contentWidth).
			Height(convHeight).
			Render(m.conversation.View())
		contentView = lipgloss.JoinVertical(lipgloss.Left, listView, convView, m.composer.View())

	default:
		contentView = listStyle.
			Width(contentWidth).
			Height(contentHeight).
			Render(m.threads.View())
	}

	main := lipgloss.JoinHorizontal(lipgloss.Top, sidebarView, contentView)
	return lipgloss.JoinVertical(lipgloss.Left, main, m.statusBar.View())
}

// --- session wiring ---

// attach subscribes to s and makes it the current session.
func (m *model) attach(s *app.Session) {
	m.gen++
	m.session = s
	m.events, m.unsubscribe = s.Store.Subscribe(64)
	m.runCtx, m.stopRun = context.WithCancel(m.ctx)
}

// detach stops the poll loop of the current session and closes it.
func (m *model) detach() {
	if m.session == nil {
		return
	}
	m.stopRun()
	m.unsubscribe()
	m.session.Close(context.Background())
	m.session = nil
}

// syncViews re-reads everything shown from the Store.
func (m *model) syncViews() {
	s := m.session.Store
	sel := s.Selection()
	direct := s.Threads(domain.CollectionDirect)
	group := s.Threads(domain.CollectionGroup)

	m.sidebar.SetCollections(sel.Collection, direct, group)
	listed := direct
	if sel.Collection == domain.CollectionGroup {
		listed = group
	}
	m.threads.SetThreads(sel.Collection, listed, sel.ThreadID)

	if sel.IsEmpty() {
		if m.conversation.IsVisible() {
			m.conversation.Close()
			m.composer.Blur()
			m.statusBar.composing = false
			if m.activePane == paneConversation {
				m.setFocus(paneList)
			}
			m.resizeSubModels()
		}
		return
	}

	t, ok := s.Thread(sel.ThreadID)
	if !ok {
		return
	}
	wasVisible := m.conversation.IsVisible()
	m.conversation.Show(t, s.Messages(sel.ThreadID))
	m.composer.Attach(sel.ThreadID)
	if !wasVisible {
		m.resizeSubModels()
	}
}

func (m *model) handleSend(msg sendMsg) tea.Cmd {
	if msg.threadID == "" {
		return nil
	}
	if err := m.session.Dispatcher.Validate(msg.text); err != nil {
		var v *app.ValidationError
		if errors.As(err, &v) && !v.Silent() {
			m.statusBar.setNotice(err.Error(), time.Now().Add(5*time.Second))
		}
		// Blank input is ignored; an oversized draft stays for editing.
		return nil
	}
	m.composer.Clear()
	return m.sendCmd(msg.threadID, msg.text)
}

func (m *model) focusComposer() tea.Cmd {
	if !m.conversation.IsVisible() {
		return nil
	}
	m.setFocus(paneConversation)
	m.statusBar.composing = true
	return m.composer.Focus()
}

// --- focus management ---

func (m *model) setFocus(p pane) {
	m.activePane = p
	m.sidebar.focused = p == paneSidebar
	m.threads.focused = p == paneList
	m.conversation.focused = p == paneConversation
	m.statusBar.pane = p
	m.statusBar.composing = m.composer.IsFocused()
}

func (m *model) cycleFocus() {
	switch m.activePane {
	case paneSidebar:
		m.setFocus(paneList)
	case paneList:
		if m.conversation.IsVisible() {
			m.setFocus(paneConversation)
		} else {
			m.setFocus(paneSidebar)
		}
	default:
		m.setFocus(paneSidebar)
	}
}

// --- layout helpers ---

func (m model) layoutWidths() (sidebarWidth, contentWidth int) {
	sidebarWidth = max(m.width/5, 20)
	contentWidth = m.width - sidebarWidth - 2
	return
}

// splitHeights divides the content column between the thread list and the
// conversation, leaving room for the composer.
func (m model) splitHeights(contentHeight int) (listHeight, convHeight int) {
	listHeight = max(contentHeight/4, 5)
	convHeight = max(contentHeight-listHeight-composerHeight, 3)
	return
}

func (m *model) resizeSubModels() {
	sidebarWidth, contentWidth := m.layoutWidths()
	contentHeight := m.height - 3

	// sidebarStyle: border 2 + padding 2 on each axis.
	m.sidebar.SetSize(sidebarWidth-4, contentHeight-4)

	// listStyle and conversationStyle: border 2h 2v + padding 2h.
	if m.conversation.IsVisible() {
		listHeight, convHeight := m.splitHeights(contentHeight)
		m.threads.SetSize(contentWidth-4, listHeight-2)
		m.conversation.SetSize(contentWidth-4, convHeight-2)
	} else {
		m.threads.SetSize(contentWidth-4, contentHeight-2)
	}
	m.composer.SetSize(contentWidth)
	m.search.SetSize(contentWidth-4, contentHeight-2)
}

// --- async commands ---

func (m model) waitForEvent() tea.Cmd {
	gen, events := m.gen, m.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return storeEventMsg{gen: gen, event: ev}
	}
}

func (m model) bootCmd() tea.Cmd {
	gen, s, ctx := m.gen, m.session, m.runCtx
	return func() tea.Msg {
		return bootDoneMsg{gen: gen, err: s.Boot(ctx)}
	}
}

// runCmd runs the session's poll loop until the session is detached.
func (m model) runCmd() tea.Cmd {
	s, ctx := m.session, m.runCtx
	return func() tea.Msg {
		if err := s.Run(ctx); err != nil {
			return errMsg{err: err}
		}
		return nil
	}
}

func (m model) openCmd(threadID string, c domain.Collection) tea.Cmd {
	gen, s, ctx := m.gen, m.session, m.runCtx
	return func() tea.Msg {
		res, err := s.Tracker.Open(ctx, threadID, c)
		if err != nil {
			return errMsg{err: err}
		}
		return threadOpenedMsg{gen: gen, result: res}
	}
}

func (m model) closeCmd() tea.Cmd {
	s, ctx := m.session, m.runCtx
	return func() tea.Msg {
		if err := s.Tracker.Close(ctx); err != nil {
			return errMsg{err: err}
		}
		return nil
	}
}

func (m model) switchCollectionCmd(c domain.Collection) tea.Cmd {
	gen, s, ctx := m.gen, m.session, m.runCtx
	return func() tea.Msg {
		return collectionSwitchedMsg{gen: gen, err: s.Tracker.SwitchCollection(ctx, c)}
	}
}

func (m model) refreshCmd() tea.Cmd {
	gen, s, ctx := m.gen, m.session, m.runCtx
	return func() tea.Msg {
		sel := s.Store.Selection()
		err := s.Sync.RefreshCollection(ctx, sel.Collection)
		if err == nil && !sel.IsEmpty() {
			err = s.Sync.RefreshMessages(ctx, sel.ThreadID)
		}
		if app.IsStale(err) {
			err = nil
		}
		return refreshDoneMsg{gen: gen, err: err}
	}
}

func (m model) sendCmd(threadID, text string) tea.Cmd {
	gen, s, ctx := m.gen, m.session, m.runCtx
	return func() tea.Msg {
		_, err := s.Dispatcher.Send(ctx, threadID, text)
		return sendDoneMsg{gen: gen, err: err}
	}
}

func (m model) searchCmd(query string) tea.Cmd {
	searcher, accountID, ctx := m.searcher, m.accountID, m.ctx
	return func() tea.Msg {
		results, err := searcher.SearchMessages(ctx, accountID, query, 50)
		if err != nil {
			return errMsg{err: fmt.Errorf("failed to search: %w", err)}
		}
		return searchResultsMsg{results: results}
	}
}

func (m model) switchAccountCmd() tea.Cmd {
	var nextID string
	for i, acc := range m.accounts {
		if acc.ID == m.accountID {
			nextID = m.accounts[(i+1)%len(m.accounts)].ID
			break
		}
	}
	if nextID == "" || nextID == m.accountID {
		return nil
	}
	factory := m.factory
	return func() tea.Msg {
		s, err := factory(nextID)
		if err != nil {
			return errMsg{err: fmt.Errorf("failed to switch account: %w", err)}
		}
		return accountSwitchedMsg{accountID: nextID, session: s}
	}
}

func noticeTick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return noticeTickMsg{} })
}

// Run starts the TUI on opts.Session. The session the TUI ends with is closed
// before Run returns.
func Run(ctx context.Context, opts Options) error {
	prog := tea.NewProgram(
		newModel(ctx, opts),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	final, err := prog.Run()
	if m, ok := final.(model); ok {
		m.detach()
	}
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
