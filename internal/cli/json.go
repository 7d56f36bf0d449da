package cli

import (
	"time"

	"github.com/lu-zhengda/termchat/internal/domain"
	"github.com/lu-zhengda/termchat/internal/store"
	"github.com/lu-zhengda/termchat/internal/store/sqlite"
)

// ---------------------------------------------------------------------------
// Account JSON types (account list, whoami)
// ---------------------------------------------------------------------------

type jsonAccount struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	UserID    string `json:"user_id,omitempty"`
	Server    string `json:"server"`
	CreatedAt string `json:"created_at"`
}

func toJSONAccounts(accounts []domain.Account) []jsonAccount {
	out := make([]jsonAccount, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, jsonAccount{
			ID:        a.ID,
			Username:  a.Username,
			UserID:    a.UserID,
			Server:    a.BaseURL,
			CreatedAt: a.CreatedAt.Format(time.DateOnly),
		})
	}
	return out
}

type jsonIdentity struct {
	AccountID string `json:"account_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	IsAdmin   bool   `json:"is_admin"`
}

func toJSONIdentity(accountID string, id domain.Identity) jsonIdentity {
	return jsonIdentity{
		AccountID: accountID,
		UserID:    id.UserID,
		Username:  id.Username,
		Email:     id.Email,
		IsAdmin:   id.IsAdmin,
	}
}

// ---------------------------------------------------------------------------
// Thread JSON types (list)
// ---------------------------------------------------------------------------

type jsonThread struct {
	ID             string `json:"id"`
	Collection     string `json:"collection"`
	Name           string `json:"name"`
	LastMessage    string `json:"last_message,omitempty"`
	LastActivityAt string `json:"last_activity_at,omitempty"`
	UnreadCount    int    `json:"unread_count"`
	IsOnline       *bool  `json:"is_online,omitempty"`
	MemberCount    *int   `json:"member_count,omitempty"`
	Draft          bool   `json:"draft,omitempty"`
}

func toJSONThread(t domain.Thread) jsonThread {
	out := jsonThread{
		ID:          t.ID,
		Collection:  string(t.Collection),
		Name:        t.Name,
		LastMessage: t.LastMessagePreview,
		UnreadCount: t.UnreadCount,
		Draft:       t.Draft,
	}
	if !t.LastActivityAt.IsZero() {
		out.LastActivityAt = t.LastActivityAt.Format(time.RFC3339)
	}
	// Presence only exists for direct threads and size only for groups.
	switch t.Collection {
	case domain.CollectionDirect:
		online := t.IsOnline
		out.IsOnline = &online
	case domain.CollectionGroup:
		members := t.MemberCount
		out.MemberCount = &members
	}
	return out
}

func toJSONThreads(threads []domain.Thread) []jsonThread {
	out := make([]jsonThread, 0, len(threads))
	for _, t := range threads {
		out = append(out, toJSONThread(t))
	}
	return out
}

// ---------------------------------------------------------------------------
// Thread detail JSON type (open)
// ---------------------------------------------------------------------------

type jsonThreadDetail struct {
	jsonThread
	Messages []jsonMessage `json:"messages"`
}

type jsonMessage struct {
	ID        string `json:"id"`
	ThreadID  string `json:"thread_id"`
	SenderID  string `json:"sender_id,omitempty"`
	Text      string `json:"text"`
	SentAt    string `json:"sent_at"`
	Direction string `json:"direction"`
	State     string `json:"state"`
	Error     string `json:"error,omitempty"`
}

func toJSONThreadDetail(t domain.Thread, messages []domain.Message) jsonThreadDetail {
	msgs := make([]jsonMessage, 0, len(messages))
	for i := range messages {
		msgs = append(msgs, toJSONMessage(&messages[i]))
	}
	return jsonThreadDetail{
		jsonThread: toJSONThread(t),
		Messages:   msgs,
	}
}

func toJSONMessage(m *domain.Message) jsonMessage {
	return jsonMessage{
		ID:        m.ID,
		ThreadID:  m.ThreadID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		SentAt:    m.Time().UTC().Format(time.RFC3339),
		Direction: string(m.Direction),
		State:     string(m.DeliveryState),
		Error:     m.Error,
	}
}

// ---------------------------------------------------------------------------
// Search JSON type (search)
// ---------------------------------------------------------------------------

type jsonSearchHit struct {
	ThreadID   string      `json:"thread_id"`
	ThreadName string      `json:"thread_name,omitempty"`
	Collection string      `json:"collection"`
	Message    jsonMessage `json:"message"`
}

func toJSONSearchHits(hits []sqlite.SearchHit) []jsonSearchHit {
	out := make([]jsonSearchHit, 0, len(hits))
	for i := range hits {
		h := &hits[i]
		out = append(out, jsonSearchHit{
			ThreadID:   h.Message.ThreadID,
			ThreadName: h.ThreadName,
			Collection: string(h.Collection),
			Message:    toJSONMessage(&h.Message),
		})
	}
	return out
}

// ---------------------------------------------------------------------------
// Event JSON type (watch)
// ---------------------------------------------------------------------------

type jsonEvent struct {
	Kind       string `json:"kind"`
	Collection string `json:"collection,omitempty"`
	ThreadID   string `json:"thread_id,omitempty"`
	Notice     string `json:"notice,omitempty"`
}

func toJSONEvent(ev store.Event) jsonEvent {
	out := jsonEvent{
		Kind:       ev.Kind.String(),
		Collection: string(ev.Collection),
		ThreadID:   ev.ThreadID,
	}
	if ev.Notice != nil {
		out.Notice = ev.Notice.Text
	}
	return out
}

// ---------------------------------------------------------------------------
// Action JSON type (login, logout, remove, send, sync)
// ---------------------------------------------------------------------------

type jsonAction struct {
	OK        bool   `json:"ok"`
	Action    string `json:"action"`
	MessageID string `json:"message_id,omitempty"`
	AccountID string `json:"account_id,omitempty"`
}
