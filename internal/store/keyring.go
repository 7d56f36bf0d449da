package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

const serviceName = "termchat"

var (
	ErrNoToken      = errors.New("no session token stored, run `termchat login`")
	ErrTokenExpired = errors.New("session token expired, run `termchat login`")
)

// TokenStore persists API session tokens per account.
type TokenStore interface {
	SaveToken(accountID string, token *oauth2.Token) error
	LoadToken(accountID string) (*oauth2.Token, error)
	DeleteToken(accountID string) error
}

// KeyringTokenStore keeps session tokens in the OS keyring
// (macOS Keychain, Windows Credential Manager, or Linux Secret Service).
type KeyringTokenStore struct{}

var _ TokenStore = (*KeyringTokenStore)(nil)

func NewKeyringTokenStore() *KeyringTokenStore {
	return &KeyringTokenStore{}
}

// SaveToken stores the token as JSON under the account ID.
func (k *KeyringTokenStore) SaveToken(accountID string, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := keyring.Set(serviceName, accountID, string(data)); err != nil {
		return fmt.Errorf("failed to save token to keyring: %w", err)
	}
	return nil
}

// LoadToken returns ErrNoToken when the keyring has no entry for accountID.
func (k *KeyringTokenStore) LoadToken(accountID string) (*oauth2.Token, error) {
	data, err := keyring.Get(serviceName, accountID)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrNoToken)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token from keyring: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal([]byte(data), &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}

// DeleteToken is a no-op for accounts without a stored token.
func (k *KeyringTokenStore) DeleteToken(accountID string) error {
	err := keyring.Delete(serviceName, accountID)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	return nil
}

// TokenSource returns a concurrency-safe oauth2.TokenSource backed by ts. The
// token is loaded once; an expired token yields ErrTokenExpired since the API
// has no refresh grant.
func TokenSource(ts TokenStore, accountID string) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &storedTokenSource{store: ts, accountID: accountID})
}

type storedTokenSource struct {
	store     TokenStore
	accountID string
	token     *oauth2.Token
}

func (s *storedTokenSource) Token() (*oauth2.Token, error) {
	if s.token == nil {
		tok, err := s.store.LoadToken(s.accountID)
		if err != nil {
			return nil, err
		}
		s.token = tok
	}
	if !s.token.Valid() {
		return nil, fmt.Errorf("account %s: %w", s.accountID, ErrTokenExpired)
	}
	return s.token, nil
}
