package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/lu-zhengda/termchat/internal/app"
	"github.com/lu-zhengda/termchat/internal/config"
	"github.com/lu-zhengda/termchat/internal/logging"
	"github.com/lu-zhengda/termchat/internal/provider/httpapi"
	"github.com/lu-zhengda/termchat/internal/store"
	"github.com/lu-zhengda/termchat/internal/store/sqlite"
	"golang.org/x/oauth2"
)

// envAccountID names the cache of a session that runs on TERMCHAT_TOKEN
// without a stored account.
const envAccountID = "env"

// env bundles what most commands need: config, database and the chosen account.
type env struct {
	cfg       *config.Config
	db        *sqlite.DB
	tokens    store.TokenStore
	accountID string
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	db, err := openDB()
	if err != nil {
		return nil, err
	}
	accountID, err := resolveAccountID(ctx, db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &env{
		cfg:       cfg,
		db:        db,
		tokens:    store.NewKeyringTokenStore(),
		accountID: accountID,
	}, nil
}

func (e *env) Close() error {
	return e.db.Close()
}

// baseURL returns the server an account logged in to. TERMCHAT_BASE_URL wins.
func (e *env) baseURL(ctx context.Context, accountID string) string {
	if os.Getenv(config.EnvBaseURL) != "" {
		return e.cfg.Server.BaseURL
	}
	acct, err := e.db.GetAccount(ctx, accountID)
	if err != nil || acct.BaseURL == "" {
		return e.cfg.Server.BaseURL
	}
	return acct.BaseURL
}

// newClient creates an API client for accountID. TERMCHAT_TOKEN replaces the
// keyring token.
func (e *env) newClient(ctx context.Context, accountID string) (*httpapi.Client, error) {
	var ts oauth2.TokenSource
	if e.cfg.Token != "" {
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: e.cfg.Token, TokenType: "Bearer"})
	} else {
		// Fail before the first request when the account was never logged in.
		if _, err := e.tokens.LoadToken(accountID); err != nil {
			return nil, err
		}
		ts = store.TokenSource(e.tokens, accountID)
	}
	return httpapi.New(e.httpConfig(e.baseURL(ctx, accountID), ts))
}

func (e *env) httpConfig(baseURL string, ts oauth2.TokenSource) httpapi.Config {
	return httpapi.Config{
		BaseURL:     baseURL,
		Timeout:     e.cfg.Server.Timeout.Duration,
		RateLimit:   e.cfg.Server.RateLimit,
		Burst:       e.cfg.Server.Burst,
		TokenSource: ts,
	}
}

func (e *env) sessionOptions() app.Options {
	return app.Options{
		Sync: app.SyncOptions{
			HistoryLimit: e.cfg.Sync.HistoryLimit,
			MatchWindow:  e.cfg.Sync.MatchWindow.Duration,
		},
		Dispatch: app.DispatchOptions{
			MaxLength:    e.cfg.Messages.MaxLength,
			ErrorTTL:     e.cfg.Messages.ErrorTTL.Duration,
			RefreshDelay: e.cfg.Sync.PostSendRefreshDelay.Duration,
		},
		HistoryFreshFor: e.cfg.Sync.HistoryFreshFor.Duration,
		PollInterval:    e.cfg.Sync.Interval.Duration,
		PurgeOnExit:     e.cfg.Cache.PurgeOnExit,
	}
}

// newSession wires a Store persisted under accountID to a client for it.
func (e *env) newSession(accountID string) (*app.Session, error) {
	client, err := e.newClient(context.Background(), accountID)
	if err != nil {
		return nil, err
	}
	log := logging.WithAccount(logging.Logger, accountID)
	s := store.New(e.db.Snapshots(accountID), log.With().Str("component", "store").Logger())
	return app.NewSession(client, s, e.sessionOptions(), log), nil
}

// bootSession creates the session of the chosen account and boots it.
func (e *env) bootSession(ctx context.Context) (*app.Session, error) {
	sess, err := e.newSession(e.accountID)
	if err != nil {
		return nil, err
	}
	if err := sess.Boot(ctx); err != nil {
		sess.Close(ctx)
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return sess, nil
}
