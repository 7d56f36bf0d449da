package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/lu-zhengda/termchat/internal/app"
	"github.com/lu-zhengda/termchat/internal/domain"
	"github.com/lu-zhengda/termchat/internal/logging"
	"github.com/lu-zhengda/termchat/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newListCmd() *cobra.Command {
	var cachedFlag bool

	cmd := &cobra.Command{
		Use:   "list [direct|group]",
		Short: "List conversations",
		Long:  "List the threads of one collection (defaults to direct).",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := domain.CollectionDirect
			if len(args) == 1 {
				var err error
				if c, err = domain.ParseCollection(args[0]); err != nil {
					return err
				}
			}

			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			var threads []domain.Thread
			if cachedFlag {
				s := store.New(e.db.Snapshots(e.accountID), logging.Component("store"))
				if err := s.Restore(cmd.Context()); err != nil {
					return fmt.Errorf("failed to read cache: %w", err)
				}
				threads = s.Threads(c)
			} else {
				sess, err := e.bootSession(cmd.Context())
				if err != nil {
					return err
				}
				defer sess.Close(cmd.Context())
				threads = sess.Store.Threads(c)
			}

			if jsonFlag {
				return printJSON(toJSONThreads(threads))
			}

			if len(threads) == 0 {
				fmt.Println("No conversations found.")
				return nil
			}
			return writeThreads(os.Stdout, threads)
		},
	}

	cmd.Flags().BoolVar(&cachedFlag, "cached", false, "show the local cache without contacting the server")
	return cmd
}

func newOpenCmd() *cobra.Command {
	var (
		collectionFlag string
		newFlag        bool
		nameFlag       string
	)

	cmd := &cobra.Command{
		Use:   "open <thread-id>",
		Short: "Show a conversation and mark it read",
		Long: `Show a conversation and mark it read.

The thread id is either a key as printed by list (direct:3, group:3) or a
server id, resolved with --collection when both collections have it.
With --new the argument is a user id and a direct conversation with that
user is started if none exists yet.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			sess, err := e.bootSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close(cmd.Context())

			var res *app.OpenResult
			if newFlag {
				res, err = sess.Tracker.StartDirect(cmd.Context(), args[0], nameFlag)
			} else {
				threadID, c, rerr := resolveThread(sess.Store, args[0], collectionFlag)
				if rerr != nil {
					return rerr
				}
				res, err = sess.Tracker.Open(cmd.Context(), threadID, c)
			}
			if err != nil {
				return fmt.Errorf("failed to open thread: %w", err)
			}
			if res.RefreshErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: showing cached messages: %v\n", res.RefreshErr)
			}

			if jsonFlag {
				return printJSON(toJSONThreadDetail(res.Thread, res.Messages))
			}

			fmt.Printf("%s (%s)\n", res.Thread.Name, res.Thread.Collection)
			fmt.Printf("Thread ID: %s\n", res.Thread.ID)
			fmt.Println(strings.Repeat("─", 60))
			if len(res.Messages) == 0 {
				fmt.Println("No messages yet.")
				return nil
			}
			for i := range res.Messages {
				fmt.Println(formatMessage(&res.Messages[i]))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&collectionFlag, "collection", "", "collection of the thread (direct or group)")
	cmd.Flags().BoolVar(&newFlag, "new", false, "start a direct conversation with the given user id")
	cmd.Flags().StringVar(&nameFlag, "name", "", "label for a new conversation (with --new)")
	cmd.MarkFlagsMutuallyExclusive("new", "collection")
	return cmd
}

func newSendCmd() *cobra.Command {
	var collectionFlag string

	cmd := &cobra.Command{
		Use:   "send <thread-id> <text|->",
		Short: "Send a message",
		Long:  "Send a text message to a thread. Use - to read the text from stdin.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[1:], " ")
			if text == "-" {
				b, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("failed to read message from stdin: %w", err)
				}
				text = strings.TrimRight(string(b), "\n")
			}

			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			// Reject before any network traffic.
			if err := app.ValidateMessage(text, e.cfg.Messages.MaxLength); err != nil {
				return err
			}

			sess, err := e.bootSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close(cmd.Context())

			threadID, _, err := resolveThread(sess.Store, args[0], collectionFlag)
			if err != nil {
				return err
			}

			msg, err := sess.Dispatcher.Send(cmd.Context(), threadID, text)
			if err != nil {
				return fmt.Errorf("failed to send message: %w", err)
			}

			if jsonFlag {
				return printJSON(jsonAction{OK: true, Action: "send", MessageID: msg.ID, AccountID: e.accountID})
			}

			fmt.Printf("Message sent (%s).\n", msg.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&collectionFlag, "collection", "", "collection of the thread (direct or group)")
	return cmd
}

func newSyncCmd() *cobra.Command {
	var threadFlag, collectionFlag string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Refresh the local cache",
		Long:  "Refresh both collections and, with --thread, one thread's messages.",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if !jsonFlag {
				fmt.Printf("Syncing account %s...\n", e.accountID)
			}

			sess, err := e.bootSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close(cmd.Context())

			if threadFlag != "" {
				threadID, _, err := resolveThread(sess.Store, threadFlag, collectionFlag)
				if err != nil {
					return err
				}
				if err := sess.Sync.RefreshMessages(cmd.Context(), threadID); err != nil {
					return fmt.Errorf("failed to sync thread: %w", err)
				}
			}

			if jsonFlag {
				return printJSON(jsonAction{OK: true, Action: "sync", AccountID: e.accountID})
			}

			direct := sess.Store.Threads(domain.CollectionDirect)
			group := sess.Store.Threads(domain.CollectionGroup)
			fmt.Printf("Sync complete: %d direct, %d group conversations.\n", len(direct), len(group))
			return nil
		},
	}

	cmd.Flags().StringVar(&threadFlag, "thread", "", "also refresh the messages of this thread")
	cmd.Flags().StringVar(&collectionFlag, "collection", "", "collection of --thread (direct or group)")
	return cmd
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll the server and print changes until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			sess, err := e.bootSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close(cmd.Context())

			events, unsubscribe := sess.Store.Subscribe(64)

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				defer unsubscribe()
				return sess.Run(ctx)
			})
			g.Go(func() error {
				enc := json.NewEncoder(os.Stdout)
				for ev := range events {
					if jsonFlag {
						if err := enc.Encode(toJSONEvent(ev)); err != nil {
							return err
						}
						continue
					}
					fmt.Println(formatEvent(ev))
				}
				return nil
			})
			return g.Wait()
		},
	}
}

func newSearchCmd() *cobra.Command {
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search cached messages",
		Long:  "Full-text search across the cached messages of the account.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			hits, err := e.db.SearchMessages(cmd.Context(), e.accountID, query, limitFlag)
			if err != nil {
				return fmt.Errorf("failed to search: %w", err)
			}

			if jsonFlag {
				return printJSON(toJSONSearchHits(hits))
			}

			if len(hits) == 0 {
				fmt.Println("No results found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "THREAD\tTEXT\tDATE\tTHREAD_ID")
			for _, h := range hits {
				name := h.ThreadName
				if name == "" {
					name = h.Message.ThreadID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					clip(name, 30),
					clip(domain.Preview(h.Message.Text), 50),
					h.Message.Time().Format("Jan 2, 2006"),
					h.Message.ThreadID,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limitFlag, "limit", 25, "max results to show")
	return cmd
}

// resolveThread turns a thread argument into a thread key and its
// collection. arg is a key (direct:3) or a bare server id; a bare id is
// qualified by flag, or by whichever cached collection lists it.
func resolveThread(s *store.Store, arg, flag string) (string, domain.Collection, error) {
	var want domain.Collection
	if flag != "" {
		var err error
		if want, err = domain.ParseCollection(flag); err != nil {
			return "", "", err
		}
	}

	if c, _, ok := domain.SplitThreadKey(arg); ok {
		if want != "" && want != c {
			return "", "", fmt.Errorf("thread %s is not in the %s collection", arg, want)
		}
		return arg, c, nil
	}
	if want != "" {
		return domain.ThreadKey(want, arg), want, nil
	}

	var found []domain.Collection
	for _, c := range []domain.Collection{domain.CollectionDirect, domain.CollectionGroup} {
		if _, ok := s.Thread(domain.ThreadKey(c, arg)); ok {
			found = append(found, c)
		}
	}
	switch len(found) {
	case 0:
		return "", "", fmt.Errorf("thread %s not found; pass --collection or use a key from list", arg)
	case 1:
		return domain.ThreadKey(found[0], arg), found[0], nil
	default:
		return "", "", fmt.Errorf("thread id %s exists in both collections; pass --collection or use direct:%s / group:%s", arg, arg, arg)
	}
}
