package cli

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/lu-zhengda/termchat/internal/domain"
	"github.com/lu-zhengda/termchat/internal/provider"
	"github.com/lu-zhengda/termchat/internal/provider/httpapi"
	"github.com/lu-zhengda/termchat/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/term"
)

func newLoginCmd() *cobra.Command {
	var (
		username      string
		server        string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to a chat server",
		Long:  "Log in with a username and password. The session token is kept in the OS keyring.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if username == "" {
				return fmt.Errorf("--username is required")
			}
			baseURL := strings.TrimRight(cfg.Server.BaseURL, "/")
			if server != "" {
				baseURL = strings.TrimRight(server, "/")
			}

			password, err := readPassword(os.Stdin, passwordStdin, fmt.Sprintf("Password for %s: ", username))
			if err != nil {
				return err
			}

			e := &env{cfg: cfg, db: db, tokens: store.NewKeyringTokenStore()}
			client, err := httpapi.New(e.httpConfig(baseURL, nil))
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			res, err := client.Login(ctx, username, password)
			if err != nil {
				if provider.IsUnauthorized(err) {
					return fmt.Errorf("login failed: wrong username or password")
				}
				return fmt.Errorf("login failed: %w", err)
			}

			if res.Username == "" {
				res.Username = username
			}
			accountID, err := accountIDFor(res.Username, baseURL)
			if err != nil {
				return err
			}
			if err := e.tokens.SaveToken(accountID, loginToken(res, time.Now())); err != nil {
				return err
			}

			account := &domain.Account{
				ID:       accountID,
				Username: res.Username,
				UserID:   res.UserID,
				BaseURL:  baseURL,
			}
			if err := db.SaveAccount(ctx, account); err != nil {
				return fmt.Errorf("failed to store account: %w", err)
			}

			if jsonFlag {
				return printJSON(jsonAction{OK: true, Action: "login", AccountID: accountID})
			}

			fmt.Printf("Logged in as %s\n", accountID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVar(&server, "server", "", "server base URL (defaults to server.base_url)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session token of an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.tokens.DeleteToken(e.accountID); err != nil {
				return err
			}

			if jsonFlag {
				return printJSON(jsonAction{OK: true, Action: "logout", AccountID: e.accountID})
			}

			fmt.Printf("Logged out of %s\n", e.accountID)
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the user the session acts as",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			sess, err := e.newSession(e.accountID)
			if err != nil {
				return err
			}
			defer sess.Close(cmd.Context())

			id, err := sess.Identity.Resolve(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to resolve identity: %w", err)
			}

			if jsonFlag {
				return printJSON(toJSONIdentity(e.accountID, id))
			}

			fmt.Printf("%s (user %s) on %s\n", id.Username, id.UserID, e.accountID)
			return nil
		},
	}
}

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage chat accounts",
	}
	cmd.AddCommand(newAccountListCmd())
	cmd.AddCommand(newAccountRemoveCmd())
	return cmd
}

func newAccountListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			accounts, err := db.ListAccounts(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list accounts: %w", err)
			}

			if jsonFlag {
				return printJSON(toJSONAccounts(accounts))
			}

			if len(accounts) == 0 {
				fmt.Println("No accounts configured. Run 'termchat login' to add one.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSERNAME\tSERVER\tCREATED")
			for _, a := range accounts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					a.ID,
					a.Username,
					a.BaseURL,
					a.CreatedAt.Format(time.DateOnly),
				)
			}
			return w.Flush()
		},
	}
}

func newAccountRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [account]",
		Short: "Remove an account and its cached conversations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			accounts, err := db.ListAccounts(ctx)
			if err != nil {
				return fmt.Errorf("failed to list accounts: %w", err)
			}

			var target *domain.Account
			for i := range accounts {
				if accounts[i].ID == name || accounts[i].Username == name {
					target = &accounts[i]
					break
				}
			}
			if target == nil {
				return fmt.Errorf("account not found: %s", name)
			}

			if err := db.DeleteAccount(ctx, target.ID); err != nil {
				return fmt.Errorf("failed to delete account: %w", err)
			}

			tokenStore := store.NewKeyringTokenStore()
			if err := tokenStore.DeleteToken(target.ID); err != nil {
				// Non-fatal: token may already be gone.
				fmt.Fprintf(os.Stderr, "Warning: could not remove token from keyring: %v\n", err)
			}

			if jsonFlag {
				return printJSON(jsonAction{OK: true, Action: "remove", AccountID: target.ID})
			}

			fmt.Printf("Account removed: %s\n", target.ID)
			return nil
		},
	}
}

// accountIDFor names an account username@host, so the same user on two
// servers gets two accounts.
func accountIDFor(username, baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid server url %q", baseURL)
	}
	return username + "@" + u.Host, nil
}

// loginToken turns a login result into the token kept in the keyring.
func loginToken(res *provider.LoginResult, now time.Time) *oauth2.Token {
	tok := &oauth2.Token{AccessToken: res.Token, TokenType: "Bearer"}
	if res.ExpiresIn > 0 {
		tok.Expiry = now.Add(res.ExpiresIn)
	}
	return tok
}

// readPassword prompts on a terminal without echo. With fromStdin, or when
// stdin is not a terminal, the first line of r is used.
func readPassword(r *os.File, fromStdin bool, prompt string) (string, error) {
	fd := int(r.Fd())
	if fromStdin || !term.IsTerminal(fd) {
		return readPasswordLine(r)
	}

	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}

func readPasswordLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("empty password")
	}
	return line, nil
}
