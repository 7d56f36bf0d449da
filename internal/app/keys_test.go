package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/lu-zhengda/termchat/internal/domain"
	"github.com/lu-zhengda/termchat/internal/provider/httpapi"
	"github.com/lu-zhengda/termchat/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// User 3 and group 3 share a server id.
func TestSession_DirectAndGroupSharingServerID(t *testing.T) {
	var mu sync.Mutex
	var sent []map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		q := r.URL.Query()
		switch {
		case r.URL.Path == "/api/profile":
			w.Write([]byte(`{"data":{"user_id":7,"username":"me"}}`))
		case r.URL.Path == "/api/chats":
			w.Write([]byte(`{"data":{"groups":[{"group_id":3,"name":"Team"},{"group_id":4,"name":"Ops"}]}}`))
		case r.URL.Path == "/api/messages" && q.Get("other_user_id") == "3":
			w.Write([]byte(`{"data":{"messages":[{"id":11,"sender_id":3,"content":"dm hello","sent_at":1700000000}]}}`))
		case r.URL.Path == "/api/messages" && q.Get("group_id") == "3":
			w.Write([]byte(`{"data":{"messages":[{"id":21,"sender_id":5,"content":"team hello","sent_at":1700000100}]}}`))
		case r.URL.Path == "/api/messages":
			w.Write([]byte(`{"data":{"conversations":[{"other_user_id":3,"username":"carol"}]}}`))
		case r.URL.Path == "/api/messages/send":
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			mu.Lock()
			sent = append(sent, body)
			mu.Unlock()
			w.Write([]byte(`{"data":{"message_id":30,"sent_at":1700000200}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	client, err := httpapi.New(httpapi.Config{
		BaseURL:     server.URL,
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}),
	})
	require.NoError(t, err)

	s := store.New(&memPersister{}, zerolog.Nop())
	sess := NewSession(client, s, Options{}, zerolog.Nop())
	t.Cleanup(sess.Dispatcher.Close)
	ctx := context.Background()

	require.NoError(t, sess.Boot(ctx))
	require.Equal(t, []string{"direct:3"}, threadIDs(s.Threads(domain.CollectionDirect)))
	require.Equal(t, []string{"group:3", "group:4"}, threadIDs(s.Threads(domain.CollectionGroup)))

	require.NoError(t, sess.Sync.RefreshMessages(ctx, "direct:3"))
	require.NoError(t, sess.Sync.RefreshMessages(ctx, "group:3"))
	require.Equal(t, []string{"11"}, messageIDs(s.Messages("direct:3")))
	require.Equal(t, []string{"21"}, messageIDs(s.Messages("group:3")))

	// A refresh of one collection leaves the other intact.
	require.NoError(t, sess.Sync.RefreshCollection(ctx, domain.CollectionDirect))
	require.Len(t, s.Threads(domain.CollectionGroup), 2)

	_, err = sess.Dispatcher.Send(ctx, "group:3", "to the team")
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 1)
	require.Equal(t, float64(3), sent[0]["group_id"])
	require.NotContains(t, sent[0], "recipient_id")
	require.Equal(t, []string{"11"}, messageIDs(s.Messages("direct:3")), "direct history untouched by the group send")
}
