package provider

import (
	"context"
	"time"

	"github.com/lu-zhengda/termchat/internal/domain"
)

// HistoryOptions selects one thread's message history.
type HistoryOptions struct {
	ThreadID string
	Limit    int
}

// SendRequest is a single outbound text message.
type SendRequest struct {
	ThreadID    string
	Text        string
	MessageType string
}

// SendResult carries the server-assigned identity of a sent message.
// SentAt is epoch milliseconds.
type SendResult struct {
	MessageID string
	SentAt    int64
}

// LoginResult is returned by a successful password login.
type LoginResult struct {
	UserID    string
	Username  string
	Token     string
	ExpiresIn time.Duration
}

// ChatProvider is the remote API consumed by the sync engine and the dispatcher.
// Messages returned by ListMessages are confirmed and carry SenderID; their
// Direction is left for the caller to classify.
type ChatProvider interface {
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	Profile(ctx context.Context) (*domain.Identity, error)

	ListThreads(ctx context.Context, c domain.Collection) ([]domain.Thread, error)
	ListMessages(ctx context.Context, opts HistoryOptions) ([]domain.Message, error)
	SendMessage(ctx context.Context, req SendRequest) (*SendResult, error)
}
