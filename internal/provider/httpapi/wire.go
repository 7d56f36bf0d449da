package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// envelope is the outer shape of every response. Successful payloads are
// usually nested under data, but some endpoints return them flattened next to
// status, so Data may be empty.
type envelope struct {
	Status  string          `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// flexID accepts a JSON number, a JSON string or null.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("failed to decode id: %w", err)
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("failed to decode id: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

// flexTime decodes a server timestamp into epoch milliseconds. Numbers are
// seconds (integer or fractional); strings may be RFC 3339 or numeric seconds.
type flexTime int64

func (f *flexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("failed to decode timestamp: %w", err)
		}
		ms, err := parseTimestamp(s)
		if err != nil {
			return err
		}
		*f = flexTime(ms)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("failed to decode timestamp: %w", err)
	}
	*f = flexTime(int64(secs * 1000))
	return nil
}

func parseTimestamp(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(secs * 1000), nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("failed to parse timestamp %q", s)
}

func (f flexTime) Millis() int64 { return int64(f) }

func (f flexTime) Time() time.Time {
	if f == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(f)).UTC()
}

type wireProfile struct {
	UserID   flexID `json:"user_id"`
	ID       flexID `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"is_admin"`
}

type wireLogin struct {
	UserID      flexID `json:"user_id"`
	Username    string `json:"username"`
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type wireConversation struct {
	ID          flexID `json:"id"`
	UserID      flexID `json:"user_id"`
	OtherUserID flexID `json:"other_user_id"`

	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Username    string `json:"username"`

	LastMessage        json.RawMessage `json:"last_message"`
	LastMessagePreview string          `json:"last_message_preview"`

	LastMessageAt flexTime `json:"last_message_at"`
	LastActivity  flexTime `json:"last_activity"`
	UpdatedAt     flexTime `json:"updated_at"`

	UnreadCount *int  `json:"unread_count"`
	Unread      *int  `json:"unread"`
	IsOnline    *bool `json:"is_online"`
	Online      *bool `json:"online"`
}

type wireConversationList struct {
	Conversations []wireConversation `json:"conversations"`
}

type wireGroup struct {
	ID      flexID `json:"id"`
	GroupID flexID `json:"group_id"`
	ChatID  flexID `json:"chat_id"`

	Name        string `json:"name"`
	Description string `json:"description"`

	MemberCount *int              `json:"member_count"`
	Members     []json.RawMessage `json:"members"`

	LastMessage   json.RawMessage `json:"last_message"`
	LastMessageAt flexTime        `json:"last_message_at"`
	CreatedAt     flexTime        `json:"created_at"`

	UnreadCount *int `json:"unread_count"`
}

// wireGroupList accepts both the groups and the older chats key.
type wireGroupList struct {
	Groups []wireGroup `json:"groups"`
	Chats  []wireGroup `json:"chats"`
}

type wireMessage struct {
	ID          flexID   `json:"id"`
	MessageID   flexID   `json:"message_id"`
	SenderID    flexID   `json:"sender_id"`
	RecipientID flexID   `json:"recipient_id"`
	GroupID     flexID   `json:"group_id"`
	Content     string   `json:"content"`
	Text        string   `json:"text"`
	SentAt      flexTime `json:"sent_at"`
	MessageType string   `json:"message_type"`
}

type wireMessageList struct {
	Messages []wireMessage `json:"messages"`
	Total    int           `json:"total"`
}

type wireSendResult struct {
	MessageID flexID   `json:"message_id"`
	ID        flexID   `json:"id"`
	SentAt    flexTime `json:"sent_at"`
}

type wireSendRequest struct {
	ChatID      any    `json:"chat_id"`
	RecipientID any    `json:"recipient_id,omitempty"`
	GroupID     any    `json:"group_id,omitempty"`
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
}
