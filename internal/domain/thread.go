package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Collection names one of the two independent thread lists.
type Collection string

const (
	CollectionDirect Collection = "direct"
	CollectionGroup  Collection = "group"
)

// ParseCollection accepts the collection name and a few aliases used by the
// CLI ("dm", "dms", "groups").
func ParseCollection(s string) (Collection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "direct", "dm", "dms":
		return CollectionDirect, nil
	case "group", "groups":
		return CollectionGroup, nil
	}
	return "", fmt.Errorf("unknown collection %q (use direct or group)", s)
}

func (c Collection) Valid() bool {
	return c == CollectionDirect || c == CollectionGroup
}

// Other returns the opposite collection.
func (c Collection) Other() Collection {
	if c == CollectionGroup {
		return CollectionDirect
	}
	return CollectionGroup
}

// ThreadKey builds the Store id of the thread the server knows as rawID in
// collection c. User ids and group ids are separate sequences on the server,
// so the collection is part of the key.
func ThreadKey(c Collection, rawID string) string {
	return string(c) + ":" + rawID
}

// SplitThreadKey is the inverse of ThreadKey.
func SplitThreadKey(key string) (Collection, string, bool) {
	prefix, raw, ok := strings.Cut(key, ":")
	c := Collection(prefix)
	if !ok || !c.Valid() || raw == "" {
		return "", "", false
	}
	return c, raw, true
}

// PreviewLength caps LastMessagePreview, in runes.
const PreviewLength = 100

// Thread is a conversation container. IsOnline is only meaningful for direct
// threads and MemberCount only for group threads.
type Thread struct {
	ID                 string
	Collection         Collection
	Name               string
	LastMessagePreview string
	LastActivityAt     time.Time
	UnreadCount        int

	IsOnline    bool
	MemberCount int

	// Draft marks a direct thread started locally that the server has not
	// listed yet.
	Draft bool
}

func (t *Thread) IsUnread() bool {
	return t.UnreadCount > 0
}

// Touch records a new last message on the thread.
func (t *Thread) Touch(text string, at time.Time) {
	t.LastMessagePreview = Preview(text)
	if at.After(t.LastActivityAt) {
		t.LastActivityAt = at
	}
}

// Preview flattens text to a single line and truncates it to PreviewLength runes.
func Preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= PreviewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:PreviewLength-3]) + "..."
}
