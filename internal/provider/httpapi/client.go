package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lu-zhengda/termchat/internal/domain"
	"github.com/lu-zhengda/termchat/internal/provider"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	maxResponseBytes = 4 << 20
	maxHistoryLimit  = 100
	defaultLimit     = 50
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration

	// RateLimit is requests per second; zero or negative disables limiting.
	RateLimit float64
	Burst     int

	// TokenSource supplies the Bearer token. Nil sends unauthenticated
	// requests, which is only useful for Login.
	TokenSource oauth2.TokenSource

	// Transport overrides http.DefaultTransport.
	Transport http.RoundTripper
}

// Client implements provider.ChatProvider over the JSON HTTP API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	limiter *rate.Limiter
}

var _ provider.ChatProvider = (*Client)(nil)

// New creates a Client for the server at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base url scheme %q", base.Scheme)
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	transport = otelhttp.NewTransport(transport)
	if cfg.TokenSource != nil {
		transport = &oauth2.Transport{Source: cfg.TokenSource, Base: transport}
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: cfg.Timeout, Transport: transport},
		limiter: rate.NewLimiter(limit, burst),
	}, nil
}

// Login exchanges a username and password for a session token.
func (c *Client) Login(ctx context.Context, username, password string) (*provider.LoginResult, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var w wireLogin
	if err := c.do(ctx, http.MethodPost, "/api/login", nil,
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", &w); err != nil {
		return nil, fmt.Errorf("failed to log in: %w", err)
	}
	res := mapLogin(&w)
	if res.Token == "" {
		return nil, fmt.Errorf("failed to log in: response carried no token")
	}
	return res, nil
}

// Profile resolves the authenticated user.
func (c *Client) Profile(ctx context.Context) (*domain.Identity, error) {
	var w wireProfile
	if err := c.do(ctx, http.MethodGet, "/api/profile", nil, nil, "", &w); err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	id := mapProfile(&w)
	if id.IsZero() {
		return nil, fmt.Errorf("failed to fetch profile: response carried no user id")
	}
	return id, nil
}

// ListThreads fetches the full snapshot of one collection. Records without an
// id are skipped.
func (c *Client) ListThreads(ctx context.Context, col domain.Collection) ([]domain.Thread, error) {
	switch col {
	case domain.CollectionDirect:
		var w wireConversationList
		if err := c.do(ctx, http.MethodGet, "/api/messages", nil, nil, "", &w); err != nil {
			return nil, fmt.Errorf("failed to list conversations: %w", err)
		}
		threads := make([]domain.Thread, 0, len(w.Conversations))
		for i := range w.Conversations {
			if t, ok := mapConversation(&w.Conversations[i]); ok {
				threads = append(threads, t)
			}
		}
		return threads, nil

	case domain.CollectionGroup:
		var w wireGroupList
		if err := c.do(ctx, http.MethodGet, "/api/chats", nil, nil, "", &w); err != nil {
			return nil, fmt.Errorf("failed to list groups: %w", err)
		}
		records := w.Groups
		if len(records) == 0 {
			records = w.Chats
		}
		threads := make([]domain.Thread, 0, len(records))
		for i := range records {
			if t, ok := mapGroup(&records[i]); ok {
				threads = append(threads, t)
			}
		}
		return threads, nil
	}
	return nil, fmt.Errorf("unknown collection %q", col)
}

// ListMessages fetches the most recent history of one thread, oldest first.
func (c *Client) ListMessages(ctx context.Context, opts provider.HistoryOptions) ([]domain.Message, error) {
	col, raw := chatTarget(opts.ThreadID)
	q := url.Values{}
	q.Set("chat_id", raw)
	switch col {
	case domain.CollectionDirect:
		q.Set("other_user_id", raw)
	case domain.CollectionGroup:
		q.Set("group_id", raw)
	}
	q.Set("limit", strconv.Itoa(clampLimit(opts.Limit)))

	var w wireMessageList
	if err := c.do(ctx, http.MethodGet, "/api/messages", q, nil, "", &w); err != nil {
		return nil, fmt.Errorf("failed to list messages for %s: %w", opts.ThreadID, err)
	}
	msgs := make([]domain.Message, 0, len(w.Messages))
	for i := range w.Messages {
		if m, ok := mapMessage(&w.Messages[i], opts.ThreadID); ok {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

// SendMessage posts a text message and returns its server identity.
func (c *Client) SendMessage(ctx context.Context, req provider.SendRequest) (*provider.SendResult, error) {
	msgType := req.MessageType
	if msgType == "" {
		msgType = "text"
	}
	col, raw := chatTarget(req.ThreadID)
	w := wireSendRequest{
		ChatID:      chatIDValue(raw),
		Content:     req.Text,
		MessageType: msgType,
	}
	switch col {
	case domain.CollectionDirect:
		w.RecipientID = w.ChatID
	case domain.CollectionGroup:
		w.GroupID = w.ChatID
	}
	body, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal send request: %w", err)
	}

	var out wireSendResult
	if err := c.do(ctx, http.MethodPost, "/api/messages/send", nil,
		bytes.NewReader(body), "application/json", &out); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	res := mapSendResult(&out)
	if res.MessageID == "" {
		return nil, fmt.Errorf("failed to send message: response carried no message id")
	}
	return res, nil
}

// do performs one request and decodes the success payload into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if !isJSON(resp.Header.Get("Content-Type")) {
		if resp.StatusCode >= 300 {
			return &provider.APIError{Status: resp.StatusCode, Code: httpCode(resp.StatusCode), Message: resp.Status}
		}
		return fmt.Errorf("%s %s: %w %q", method, path, provider.ErrUnexpectedContentType, resp.Header.Get("Content-Type"))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return &provider.APIError{Status: resp.StatusCode, Code: httpCode(resp.StatusCode), Message: resp.Status}
		}
		return fmt.Errorf("%s %s: %w: %v", method, path, provider.ErrMalformedResponse, err)
	}
	if resp.StatusCode >= 300 || env.Status == "error" {
		code := env.Code
		if code == "" {
			code = httpCode(resp.StatusCode)
		}
		return &provider.APIError{Status: resp.StatusCode, Code: code, Message: env.Message}
	}

	payload := bytes.TrimSpace(env.Data)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		payload = raw
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, provider.ErrMalformedResponse, err)
	}
	return nil
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func httpCode(status int) string {
	return "HTTP_" + strconv.Itoa(status)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return min(limit, maxHistoryLimit)
}
