package tui

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lu-zhengda/termchat/internal/app"
	"github.com/lu-zhengda/termchat/internal/domain"
	"github.com/lu-zhengda/termchat/internal/provider"
	"github.com/lu-zhengda/termchat/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// stubProvider answers every call with an empty, successful response.
type stubProvider struct{}

func (stubProvider) Login(context.Context, string, string) (*provider.LoginResult, error) {
	return &provider.LoginResult{}, nil
}

func (stubProvider) Profile(context.Context) (*domain.Identity, error) {
	return &domain.Identity{UserID: "7", Username: "me"}, nil
}

func (stubProvider) ListThreads(context.Context, domain.Collection) ([]domain.Thread, error) {
	return nil, nil
}

func (stubProvider) ListMessages(context.Context, provider.HistoryOptions) ([]domain.Message, error) {
	return nil, nil
}

func (stubProvider) SendMessage(context.Context, provider.SendRequest) (*provider.SendResult, error) {
	return &provider.SendResult{MessageID: "1"}, nil
}

func newTestModel(t *testing.T) model {
	t.Helper()
	s := store.New(nil, zerolog.Nop())
	sess := app.NewSession(stubProvider{}, s, app.Options{
		Dispatch: app.DispatchOptions{MaxLength: 10},
	}, zerolog.Nop())

	m := newModel(context.Background(), Options{AccountID: "me@host", Session: sess, MaxLength: 10})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = next.(model)
	t.Cleanup(func() { m.detach() })
	return m
}

func seed(t *testing.T, m model, c domain.Collection, id string, unread int, at time.Time) {
	t.Helper()
	err := m.session.Store.UpsertThread(context.Background(), c, domain.Thread{
		ID: id, Name: "name-" + id, UnreadCount: unread, LastActivityAt: at,
	})
	require.NoError(t, err)
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(model), cmd
}

func TestModel_StoreEventRefreshesViews(t *testing.T) {
	m := newTestModel(t)
	now := time.Now()
	seed(t, m, domain.CollectionDirect, "d1", 0, now.Add(-time.Minute))
	seed(t, m, domain.CollectionDirect, "d2", 2, now)
	seed(t, m, domain.CollectionGroup, "g1", 5, now)

	m, cmd := update(t, m, storeEventMsg{gen: m.gen, event: store.Event{Kind: store.ThreadsChanged}})

	require.NotNil(t, cmd, "should keep listening for events")
	require.Len(t, m.threads.threads, 2)
	require.Equal(t, domain.CollectionDirect, m.threads.collection)
	require.Equal(t, 2, m.sidebar.unread[domain.CollectionDirect])
	require.Equal(t, 5, m.sidebar.unread[domain.CollectionGroup])
	require.False(t, m.conversation.IsVisible())
}

func TestModel_BootStartsPolling(t *testing.T) {
	t.Run("offline", func(t *testing.T) {
		m := newTestModel(t)
		// Identity never resolved: the server was unreachable during boot.
		m, cmd := update(t, m, bootDoneMsg{gen: m.gen})

		require.NotNil(t, cmd, "poll loop must start to retry")
		require.True(t, m.statusBar.isError)
		require.Contains(t, m.statusBar.message, "Offline")
	})

	t.Run("error", func(t *testing.T) {
		m := newTestModel(t)
		m, cmd := update(t, m, bootDoneMsg{gen: m.gen, err: context.DeadlineExceeded})

		require.NotNil(t, cmd)
		require.Contains(t, m.statusBar.message, "Could not connect")
	})

	t.Run("online", func(t *testing.T) {
		m := newTestModel(t)
		_, err := m.session.Identity.Resolve(context.Background())
		require.NoError(t, err)

		m, cmd := update(t, m, bootDoneMsg{gen: m.gen})
		require.NotNil(t, cmd)
		require.False(t, m.statusBar.isError)
		require.Equal(t, "Connected", m.statusBar.message)
	})
}

func TestModel_IgnoresOtherGeneration(t *testing.T) {
	m := newTestModel(t)
	seed(t, m, domain.CollectionDirect, "d1", 1, time.Now())

	m, cmd := update(t, m, storeEventMsg{gen: m.gen - 1, event: store.Event{Kind: store.ThreadsChanged}})

	require.Nil(t, cmd)
	require.Empty(t, m.threads.threads)
}

func TestModel_SelectionShowsConversation(t *testing.T) {
	m := newTestModel(t)
	ctx := context.Background()
	seed(t, m, domain.CollectionDirect, "d1", 0, time.Now())
	require.NoError(t, m.session.Store.AppendMessage(ctx, domain.Message{
		ID: "5", ThreadID: "d1", SenderID: "8", Text: "hello there",
		SentAt: time.Now().UnixMilli(), Direction: domain.DirectionReceived, DeliveryState: domain.DeliveryConfirmed,
	}))
	require.NoError(t, m.session.Store.SetActive(ctx, "d1", domain.CollectionDirect))

	m, _ = update(t, m, storeEventMsg{gen: m.gen, event: store.Event{Kind: store.SelectionChanged}})

	require.True(t, m.conversation.IsVisible())
	require.Equal(t, "d1", m.composer.threadID)
	require.Contains(t, m.View(), "hello there")

	// Clearing the selection closes the conversation.
	require.NoError(t, m.session.Store.SetCollection(ctx, domain.CollectionGroup))
	m, _ = update(t, m, storeEventMsg{gen: m.gen, event: store.Event{Kind: store.SelectionChanged}})
	require.False(t, m.conversation.IsVisible())
	require.Equal(t, domain.CollectionGroup, m.threads.collection)
}

func TestModel_SendValidation(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantCmd   bool
		wantError bool
		wantDraft string
	}{
		{"blank is ignored", "   ", false, false, "   "},
		{"too long keeps draft", "01234567890", false, true, "01234567890"},
		{"valid clears composer", "hi", true, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestModel(t)
			m.statusBar.setMessage("Ready")
			m.composer.Attach("d1")
			m.composer.input.SetValue(tt.text)

			m, cmd := update(t, m, sendMsg{threadID: "d1", text: tt.text})

			require.Equal(t, tt.wantCmd, cmd != nil)
			require.Equal(t, tt.wantError, m.statusBar.isError)
			require.Equal(t, tt.wantDraft, m.composer.input.Value())
			if tt.wantError {
				require.Contains(t, m.statusBar.message, "limit 10")
			}
		})
	}
}

func TestModel_NoticeExpires(t *testing.T) {
	m := newTestModel(t)
	notice := &store.Notice{ThreadID: "d1", Text: "not sent: offline", ExpiresAt: time.Now().Add(-time.Millisecond)}

	m, _ = update(t, m, storeEventMsg{gen: m.gen, event: store.Event{Kind: store.NoticeRaised, Notice: notice}})
	require.Equal(t, "not sent: offline", m.statusBar.message)
	require.True(t, m.statusBar.isError)

	m, cmd := update(t, m, noticeTickMsg{})
	require.NotNil(t, cmd, "tick should reschedule itself")
	require.Empty(t, m.statusBar.message)
	require.False(t, m.statusBar.isError)
}

func TestModel_AccountSwitchNeedsTwoAccounts(t *testing.T) {
	m := newTestModel(t)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("@")})

	require.Nil(t, cmd)
	require.Equal(t, "Only one account configured", m.statusBar.message)
}

func TestThreadList_SetThreadsKeepsCursor(t *testing.T) {
	l := newThreadList()
	l.SetSize(80, 10)
	threads := []domain.Thread{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	l.SetThreads(domain.CollectionDirect, threads, "")
	l.cursor = 1

	// "b" moved to the top after new activity.
	l.SetThreads(domain.CollectionDirect, []domain.Thread{{ID: "b"}, {ID: "a"}, {ID: "c"}}, "")
	require.Equal(t, "b", l.SelectedThreadID())

	// Switching collections resets the cursor.
	l.SetThreads(domain.CollectionGroup, []domain.Thread{{ID: "g1"}, {ID: "g2"}}, "")
	require.Equal(t, "g1", l.SelectedThreadID())

	// Shrinking the list clamps it.
	l.cursor = 1
	l.SetThreads(domain.CollectionGroup, []domain.Thread{{ID: "g3"}}, "")
	require.Equal(t, "g3", l.SelectedThreadID())
}

func TestConversation_FollowsNewestUnlessScrolledUp(t *testing.T) {
	thread := domain.Thread{ID: "d1", Collection: domain.CollectionDirect, Name: "bob"}
	msgs := make([]domain.Message, 0, 20)
	for i := range 20 {
		msgs = append(msgs, domain.Message{ID: fmt.Sprint(i), ThreadID: "d1", Text: fmt.Sprintf("line %d", i)})
	}

	c := newConversation()
	c.SetSize(60, 6)
	c.Show(thread, msgs[:10])
	require.Equal(t, c.maxScroll, c.scrollOffset)
	require.Contains(t, c.View(), "line 9")

	c.Show(thread, msgs[:15])
	require.Equal(t, c.maxScroll, c.scrollOffset, "pinned view should follow new messages")

	c.scrollOffset = 0
	c.Show(thread, msgs)
	require.Zero(t, c.scrollOffset, "scrolled-up view should stay put")
	require.NotContains(t, c.View(), "line 19")
}

func TestRenderMessage(t *testing.T) {
	direct := domain.Thread{ID: "d1", Collection: domain.CollectionDirect, Name: "bob"}
	group := domain.Thread{ID: "g1", Collection: domain.CollectionGroup, Name: "team"}

	tests := []struct {
		name   string
		thread domain.Thread
		msg    domain.Message
		want   []string
	}{
		{"own pending", direct,
			domain.Message{Text: "hi", Direction: domain.DirectionSent, DeliveryState: domain.DeliveryPending},
			[]string{"You", "sending…", "hi"}},
		{"own failed", group,
			domain.Message{Text: "hi", Direction: domain.DirectionSent, DeliveryState: domain.DeliveryFailed, Error: "offline"},
			[]string{"You", "not sent: offline"}},
		{"direct peer", direct,
			domain.Message{SenderID: "8", Text: "yo", Direction: domain.DirectionReceived},
			[]string{"bob", "yo"}},
		{"group member", group,
			domain.Message{SenderID: "8", Text: "yo", Direction: domain.DirectionReceived},
			[]string{"user 8"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderMessage(tt.thread, &tt.msg, 60)
			for _, w := range tt.want {
				require.True(t, strings.Contains(got, w), "%q missing from %q", w, got)
			}
		})
	}
}

func TestStatusBar_ShortcutsFollowFocus(t *testing.T) {
	s := newStatusBar()
	require.Contains(t, s.shortcuts(), "enter:open")

	s.pane = paneConversation
	require.Contains(t, s.shortcuts(), "i:write")

	s.composing = true
	require.Contains(t, s.shortcuts(), "enter:send")

	s.composing = false
	s.multiAccount = true
	require.True(t, strings.HasSuffix(s.shortcuts(), "@:account"))
}
