package graph

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchUsersEscapesQuery(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1.0/users", r.URL.Path)
		assert.Equal(t,
			"startswith(displayName,'o''brien') or startswith(mail,'o''brien') or startswith(userPrincipalName,'o''brien')",
			r.URL.Query().Get("$filter"))
		assert.Equal(t, "8", r.URL.Query().Get("$top"))
		_, _ = io.WriteString(w, `{"value":[{"id":"u1","displayName":"Pat O'Brien","userPrincipalName":"pat@example.com"}]}`)
	}))
	t.Cleanup(server.Close)

	users, err := testGraphClient(server).SearchUsers(context.Background(), testCredential(), " o'brien ")
	require.NoError(t, err)
	assert.Equal(t, []domain.User{{ID: "u1", DisplayName: "Pat O'Brien", Mail: "pat@example.com"}}, users)
}

func TestSearchUsersSkipsEmptyQuery(t *testing.T) {
	t.Parallel()

	client := NewClient(Options{BaseURL: "http://127.0.0.1:1"})
	users, err := client.SearchUsers(context.Background(), testCredential(), "  ")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestCreateChatBindsBothMembers(t *testing.T) {
	t.Parallel()

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1.0/chats":
			var body struct {
				ChatType string              `json:"chatType"`
				Members  []chatMemberBinding `json:"members"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "oneOnOne", body.ChatType)
			require.Len(t, body.Members, 2)
			assert.Equal(t, server.URL+"/v1.0/users('self-1')", body.Members[0].UserBind)
			assert.Equal(t, server.URL+"/v1.0/users('ada@example.com')", body.Members[1].UserBind)
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"id":"19:new@unq.gbl.spaces","chatType":"oneOnOne"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/v1.0/chats/19:new@unq.gbl.spaces":
			assert.Equal(t, "members", r.URL.Query().Get("$expand"))
			_, _ = io.WriteString(w, `{"id":"19:new@unq.gbl.spaces","chatType":"oneOnOne","members":[{"userId":"self-1","displayName":"Me"},{"userId":"ada-1","displayName":"Ada Lovelace"}]}`)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	conv, err := testGraphClient(server).CreateChat(context.Background(), testCredential(), "self-1", "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationID("19:new@unq.gbl.spaces"), conv.ID)
	assert.Equal(t, domain.ConversationDirect, conv.Kind)
	assert.Equal(t, "Ada Lovelace", conv.DisplayName("self-1"))
}

func TestPresenceByUserID(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1.0/communications/getPresencesByUserId", r.URL.Path)
		var body struct {
			IDs []string `json:"ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"u1", "u2"}, body.IDs)
		_, _ = io.WriteString(w, `{"value":[{"id":"u1","availability":"Busy","activity":"InAMeeting"},{"id":"u2","availability":"Away","activity":"Away"}]}`)
	}))
	t.Cleanup(server.Close)

	got, err := testGraphClient(server).Presence(context.Background(), testCredential(), []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Presence{
		{UserID: "u1", Availability: "Busy", Activity: "InAMeeting"},
		{UserID: "u2", Availability: "Away", Activity: "Away"},
	}, got)
}

func TestSetPresenceSendsActivityAndExpiry(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1.0/me/presence/setUserPreferredPresence", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{
			"availability":       "Offline",
			"activity":           "OffWork",
			"expirationDuration": "PT8H",
		}, body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	err := testGraphClient(server).SetPresence(context.Background(), testCredential(), domain.AvailabilityOffline, 8*time.Hour)
	require.NoError(t, err)
}

func TestReplyToChannelMessage(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1.0/teams/team-1/channels/chan-1/messages/parent-1/replies", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("client-request-id"))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"reply-1","replyToId":"parent-1","createdDateTime":"2026-03-01T12:00:00Z","from":{"user":{"id":"self-1","displayName":"Me"}},"body":{"contentType":"text","content":"agreed"}}`)
	}))
	t.Cleanup(server.Close)

	ref := domain.ConversationRef{ID: ChannelConversationID("team-1", "chan-1"), Kind: domain.ConversationChannel}
	rec, err := testGraphClient(server).ReplyToMessage(context.Background(), testCredential(), ref, "parent-1", "agreed", "key-1")
	require.NoError(t, err)
	assert.Equal(t, domain.MessageID("reply-1"), rec.ID)
	assert.Equal(t, domain.MessageID("parent-1"), rec.ReplyTo)
	assert.Equal(t, "key-1", rec.ClientKey)
	assert.Equal(t, "agreed", rec.Body)
}

func TestReplyInChatIsUnsupported(t *testing.T) {
	t.Parallel()

	client := NewClient(Options{BaseURL: "http://127.0.0.1:1"})
	_, err := client.ReplyToMessage(context.Background(), testCredential(), chatRef, "parent-1", "hi", "key")
	assert.ErrorIs(t, err, domain.ErrReplyUnsupported)
}

func TestISODuration(t *testing.T) {
	t.Parallel()

	tests := map[time.Duration]string{
		8 * time.Hour:                        "PT8H",
		90 * time.Minute:                     "PT1H30M",
		45 * time.Second:                     "PT45S",
		time.Hour + 5*time.Second:            "PT1H5S",
		0:                                    "PT0S",
		2*time.Minute + 400*time.Millisecond: "PT2M",
	}
	for d, want := range tests {
		assert.Equal(t, want, isoDuration(d), d.String())
	}
}
