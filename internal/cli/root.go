package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/lu-zhengda/termchat/internal/config"
	"github.com/lu-zhengda/termchat/internal/logging"
	"github.com/lu-zhengda/termchat/internal/store/sqlite"
	"github.com/lu-zhengda/termchat/internal/tui"
	"github.com/spf13/cobra"
)

var (
	// version is set via ldflags at build time.
	version = "dev"
	cfgFile string

	// jsonFlag enables JSON output for all commands.
	jsonFlag bool

	// accountFlag selects the account for every command.
	accountFlag string
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "termchat",
		Short:   "Terminal chat client",
		Long:    "A terminal-based chat client for direct and group conversations.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if shell, _ := cmd.Flags().GetString("generate-completion"); shell != "" {
				switch shell {
				case "bash":
					return cmd.Root().GenBashCompletion(os.Stdout)
				case "zsh":
					return cmd.Root().GenZshCompletion(os.Stdout)
				case "fish":
					return cmd.Root().GenFishCompletion(os.Stdout, true)
				default:
					return fmt.Errorf("unsupported shell: %s (use bash, zsh, or fish)", shell)
				}
			}

			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			// The TUI owns the terminal; keep logs out of it.
			logging.Init(logging.Config{Level: "disabled"})

			sess, err := e.newSession(e.accountID)
			if err != nil {
				return err
			}

			// Load all accounts for account switching.
			accounts, err := e.db.ListAccounts(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list accounts: %w", err)
			}

			return tui.Run(cmd.Context(), tui.Options{
				AccountID: e.accountID,
				Accounts:  accounts,
				Session:   sess,
				Factory:   tui.SessionFactory(e.newSession),
				Searcher:  e.db,
				MaxLength: e.cfg.Messages.MaxLength,
			})
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("termchat %s\n", version))
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().String("generate-completion", "", "Generate shell completion (bash, zsh, fish)")
	root.Flags().MarkHidden("generate-completion")
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	root.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output in JSON format")
	root.PersistentFlags().StringVar(&accountFlag, "account", "", "account ID to use (defaults to config default or first account)")
	root.AddCommand(newLoginCmd())
	root.AddCommand(newLogoutCmd())
	root.AddCommand(newWhoamiCmd())
	root.AddCommand(newAccountCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newOpenCmd())
	root.AddCommand(newSendCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newSearchCmd())
	return root
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// openDB creates the data directory and opens the SQLite database.
func openDB() (*sqlite.DB, error) {
	dataDir := config.DataDir()
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "termchat.db")
	db, err := sqlite.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// loadConfig loads the application configuration from the config file.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = filepath.Join(config.ConfigDir(), "config.toml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// resolveAccountID determines which account to use: the --account flag, the
// config default, then the first stored account. With a TERMCHAT_TOKEN and no
// stored account the token runs under envAccountID.
func resolveAccountID(ctx context.Context, db *sqlite.DB, cfg *config.Config) (string, error) {
	if accountFlag != "" {
		return accountFlag, nil
	}
	if cfg.Accounts.Default != "" {
		return cfg.Accounts.Default, nil
	}

	accounts, err := db.ListAccounts(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(accounts) == 0 {
		if cfg.Token != "" {
			return envAccountID, nil
		}
		return "", fmt.Errorf("no accounts configured; run 'termchat login' first")
	}
	return accounts[0].ID, nil
}
