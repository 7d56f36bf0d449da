package httpapi

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/lu-zhengda/termchat/internal/domain"
	"github.com/lu-zhengda/termchat/internal/provider"
)

// mapProfile converts a profile payload to a domain Identity.
func mapProfile(w *wireProfile) *domain.Identity {
	return &domain.Identity{
		UserID:   string(firstID(w.UserID, w.ID)),
		Username: w.Username,
		Email:    w.Email,
		IsAdmin:  w.IsAdmin,
	}
}

// mapConversation converts a direct conversation record. Records without any
// usable id are rejected. The thread id is the collection-scoped key of the
// partner's user id.
func mapConversation(w *wireConversation) (domain.Thread, bool) {
	id := string(firstID(w.ID, w.OtherUserID, w.UserID))
	if id == "" {
		return domain.Thread{}, false
	}

	preview := w.LastMessagePreview
	if preview == "" {
		preview = lastMessageText(w.LastMessage)
	}

	return domain.Thread{
		ID:                 domain.ThreadKey(domain.CollectionDirect, id),
		Collection:         domain.CollectionDirect,
		Name:               firstString(w.Name, w.DisplayName, w.Username, "User "+id),
		LastMessagePreview: domain.Preview(preview),
		LastActivityAt:     firstTime(w.LastMessageAt, w.LastActivity, w.UpdatedAt),
		UnreadCount:        clampCount(firstInt(w.UnreadCount, w.Unread)),
		IsOnline:           firstBool(w.IsOnline, w.Online),
	}, true
}

// mapGroup converts a group record. Member count falls back to the length of
// an inline members array.
func mapGroup(w *wireGroup) (domain.Thread, bool) {
	id := string(firstID(w.ID, w.GroupID, w.ChatID))
	if id == "" {
		return domain.Thread{}, false
	}

	members := len(w.Members)
	if w.MemberCount != nil {
		members = *w.MemberCount
	}

	return domain.Thread{
		ID:                 domain.ThreadKey(domain.CollectionGroup, id),
		Collection:         domain.CollectionGroup,
		Name:               firstString(w.Name, "Group "+id),
		LastMessagePreview: domain.Preview(lastMessageText(w.LastMessage)),
		LastActivityAt:     firstTime(w.LastMessageAt, w.CreatedAt),
		UnreadCount:        clampCount(firstInt(w.UnreadCount)),
		MemberCount:        clampCount(members),
	}, true
}

// mapMessage converts a history record into a confirmed message of threadID.
// Direction is left empty; the sync engine classifies it against the session
// identity.
func mapMessage(w *wireMessage, threadID string) (domain.Message, bool) {
	id := string(firstID(w.ID, w.MessageID))
	if id == "" {
		return domain.Message{}, false
	}
	return domain.Message{
		ID:            id,
		ThreadID:      threadID,
		SenderID:      string(w.SenderID),
		Text:          firstString(w.Content, w.Text),
		SentAt:        w.SentAt.Millis(),
		DeliveryState: domain.DeliveryConfirmed,
	}, true
}

func mapSendResult(w *wireSendResult) *provider.SendResult {
	return &provider.SendResult{
		MessageID: string(firstID(w.MessageID, w.ID)),
		SentAt:    w.SentAt.Millis(),
	}
}

func mapLogin(w *wireLogin) *provider.LoginResult {
	return &provider.LoginResult{
		UserID:    string(w.UserID),
		Username:  w.Username,
		Token:     firstString(w.Token, w.AccessToken),
		ExpiresIn: time.Duration(w.ExpiresIn) * time.Second,
	}
}

// lastMessageText reads last_message, which is either a plain string or a
// message object carrying content or text.
func lastMessageText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Content string `json:"content"`
		Text    string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return firstString(obj.Content, obj.Text)
	}
	return ""
}

// chatTarget resolves a thread key to the raw server id and its collection.
// Keys without a collection prefix are passed through as raw ids.
func chatTarget(threadID string) (domain.Collection, string) {
	c, raw, ok := domain.SplitThreadKey(threadID)
	if !ok {
		return "", threadID
	}
	return c, raw
}

// chatIDValue sends numeric ids as JSON numbers, which is what the server
// parses, and anything else as a string.
func chatIDValue(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

func firstID(ids ...flexID) flexID {
	for _, id := range ids {
		if id != "" {
			return id
		}
	}
	return ""
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstTime(values ...flexTime) time.Time {
	for _, v := range values {
		if v != 0 {
			return v.Time()
		}
	}
	return time.Time{}
}

func firstInt(values ...*int) int {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}

func firstBool(values ...*bool) bool {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return false
}

func clampCount(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
