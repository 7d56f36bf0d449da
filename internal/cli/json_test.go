package cli

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/lu-zhengda/termchat/internal/domain"
	"github.com/lu-zhengda/termchat/internal/store"
	"github.com/lu-zhengda/termchat/internal/store/sqlite"
)

func TestToJSONAccounts(t *testing.T) {
	accounts := []domain.Account{
		{
			ID:        "alice@chat.example.com",
			Username:  "alice",
			UserID:    "7",
			BaseURL:   "https://chat.example.com",
			CreatedAt: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			ID:        "bob@localhost:8080",
			Username:  "bob",
			BaseURL:   "http://localhost:8080",
			CreatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	got := toJSONAccounts(accounts)

	if len(got) != 2 {
		t.Fatalf("got %d accounts, want 2", len(got))
	}
	if got[0].Server != "https://chat.example.com" {
		t.Errorf("got server %q, want %q", got[0].Server, "https://chat.example.com")
	}
	if got[0].CreatedAt != "2025-01-15" {
		t.Errorf("got created_at %q, want %q", got[0].CreatedAt, "2025-01-15")
	}

	var buf bytes.Buffer
	if err := fprintJSON(&buf, got[1]); err != nil {
		t.Fatalf("fprintJSON() error = %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if _, ok := raw["user_id"]; ok {
		t.Error("user_id should be omitted when unknown")
	}
}

func TestToJSONAccounts_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := fprintJSON(&buf, toJSONAccounts(nil)); err != nil {
		t.Fatalf("fprintJSON() error = %v", err)
	}
	if got := buf.String(); got != "[]\n" {
		t.Errorf("got %q, want %q", got, "[]\n")
	}
}

func TestToJSONThreads_CollectionFields(t *testing.T) {
	threads := []domain.Thread{
		{
			ID:                 "d1",
			Collection:         domain.CollectionDirect,
			Name:               "bob",
			LastMessagePreview: "see you",
			LastActivityAt:     time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC),
			UnreadCount:        2,
			IsOnline:           false,
		},
		{
			ID:          "g1",
			Collection:  domain.CollectionGroup,
			Name:        "team",
			MemberCount: 0,
		},
	}

	got := toJSONThreads(threads)

	if len(got) != 2 {
		t.Fatalf("got %d threads, want 2", len(got))
	}

	tests := []struct {
		name    string
		idx     int
		present []string
		absent  []string
	}{
		{"direct keeps offline presence", 0, []string{"is_online", "last_activity_at", "last_message"}, []string{"member_count"}},
		{"group keeps zero members", 1, []string{"member_count", "unread_count"}, []string{"is_online", "last_activity_at", "last_message"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := fprintJSON(&buf, got[tt.idx]); err != nil {
				t.Fatalf("fprintJSON() error = %v", err)
			}
			var raw map[string]json.RawMessage
			if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
				t.Fatalf("failed to parse JSON: %v", err)
			}
			for _, f := range tt.present {
				if _, ok := raw[f]; !ok {
					t.Errorf("field %q should be present", f)
				}
			}
			for _, f := range tt.absent {
				if _, ok := raw[f]; ok {
					t.Errorf("field %q should be omitted, got %s", f, raw[f])
				}
			}
		})
	}

	if got[0].LastActivityAt != "2025-03-10T14:30:00Z" {
		t.Errorf("got last_activity_at %q", got[0].LastActivityAt)
	}
}

func TestToJSONThreadDetail(t *testing.T) {
	thread := domain.Thread{ID: "d1", Collection: domain.CollectionDirect, Name: "bob"}
	messages := []domain.Message{
		{
			ID: "41", ThreadID: "d1", SenderID: "8", Text: "hi",
			SentAt: 1700000000000, Direction: domain.DirectionReceived, DeliveryState: domain.DeliveryConfirmed,
		},
		{
			ID: "local-x", ThreadID: "d1", SenderID: "7", Text: "hello",
			SentAt: 1700000001000, Direction: domain.DirectionSent, DeliveryState: domain.DeliveryFailed,
			Error: "server unavailable",
		},
	}

	got := toJSONThreadDetail(thread, messages)

	if got.ID != "d1" || got.Name != "bob" {
		t.Errorf("got thread %q/%q, want d1/bob", got.ID, got.Name)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(got.Messages))
	}
	if got.Messages[0].SentAt != "2023-11-14T22:13:20Z" {
		t.Errorf("got sent_at %q, want %q", got.Messages[0].SentAt, "2023-11-14T22:13:20Z")
	}
	if got.Messages[1].State != "failed" || got.Messages[1].Error != "server unavailable" {
		t.Errorf("got state %q error %q, want failed with reason", got.Messages[1].State, got.Messages[1].Error)
	}
	if got.Messages[1].Direction != "sent" {
		t.Errorf("got direction %q, want sent", got.Messages[1].Direction)
	}
}

func TestToJSONThreadDetail_EmptyMessages(t *testing.T) {
	got := toJSONThreadDetail(domain.Thread{ID: "g1", Collection: domain.CollectionGroup}, nil)

	var buf bytes.Buffer
	if err := fprintJSON(&buf, got); err != nil {
		t.Fatalf("fprintJSON() error = %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if string(raw["messages"]) != "[]" {
		t.Errorf("got messages %s, want []", string(raw["messages"]))
	}
	// Embedded thread fields are flattened.
	if string(raw["id"]) != `"g1"` {
		t.Errorf("got id %s, want \"g1\"", string(raw["id"]))
	}
}

func TestToJSONSearchHits(t *testing.T) {
	hits := []sqlite.SearchHit{
		{
			Message:    domain.Message{ID: "5", ThreadID: "g1", Text: "deploy at noon", SentAt: 1700000000000},
			ThreadName: "ops",
			Collection: domain.CollectionGroup,
		},
	}

	got := toJSONSearchHits(hits)

	if len(got) != 1 {
		t.Fatalf("got %d hits, want 1", len(got))
	}
	if got[0].ThreadID != "g1" || got[0].Collection != "group" {
		t.Errorf("got thread %q collection %q, want g1/group", got[0].ThreadID, got[0].Collection)
	}
	if got[0].Message.Text != "deploy at noon" {
		t.Errorf("got text %q", got[0].Message.Text)
	}
}

func TestToJSONEvent(t *testing.T) {
	tests := []struct {
		name string
		ev   store.Event
		want jsonEvent
	}{
		{
			name: "threads",
			ev:   store.Event{Kind: store.ThreadsChanged, Collection: domain.CollectionGroup},
			want: jsonEvent{Kind: "threads_changed", Collection: "group"},
		},
		{
			name: "notice",
			ev: store.Event{Kind: store.NoticeRaised, ThreadID: "d1",
				Notice: &store.Notice{ThreadID: "d1", Text: "message is too long"}},
			want: jsonEvent{Kind: "notice", ThreadID: "d1", Notice: "message is too long"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := toJSONEvent(tt.ev); got != tt.want {
				t.Errorf("toJSONEvent() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestJSONAction_OmitsEmpty(t *testing.T) {
	input := jsonAction{OK: true, Action: "logout"}

	var buf bytes.Buffer
	if err := fprintJSON(&buf, input); err != nil {
		t.Fatalf("fprintJSON() error = %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}

	for _, field := range []string{"message_id", "account_id"} {
		if _, ok := raw[field]; ok {
			t.Errorf("field %q should be omitted when empty, got %s", field, string(raw[field]))
		}
	}
	for _, field := range []string{"ok", "action"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("field %q should always be present", field)
		}
	}
}
