package domain

// Identity is the acting user, resolved once per session.
type Identity struct {
	UserID   string
	Username string
	Email    string
	IsAdmin  bool
}

func (i Identity) IsZero() bool {
	return i.UserID == ""
}

// Classify returns the direction of a message from senderID as seen by this user.
func (i Identity) Classify(senderID string) Direction {
	if i.UserID != "" && senderID == i.UserID {
		return DirectionSent
	}
	return DirectionReceived
}

// Selection is the active tab and, optionally, the open thread within it.
type Selection struct {
	ThreadID   string
	Collection Collection
}

func (s Selection) IsEmpty() bool {
	return s.ThreadID == ""
}
