package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bnema/terms-cli/internal/secret"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cred := &Credential{
		AccessToken: secret.Copy([]byte("at")),
		ExpiresAt:   now.Add(90 * time.Second),
	}

	assert.True(t, cred.Usable(now))
	assert.False(t, cred.ExpiresWithin(now, time.Minute))
	assert.True(t, cred.ExpiresWithin(now.Add(31*time.Second), time.Minute))
	assert.False(t, cred.Usable(now.Add(90*time.Second)))
	assert.False(t, cred.CanRefresh())

	var missing *Credential
	assert.False(t, missing.Usable(now))
	assert.True(t, missing.ExpiresWithin(now, time.Minute))
}

func TestCredentialCloneAndDestroy(t *testing.T) {
	raw := []byte("refresh")
	cred := &Credential{
		AccessToken:  secret.Copy([]byte("access")),
		RefreshToken: secret.New(raw),
		Scopes:       []string{"User.Read"},
	}
	clone := cred.Clone()
	cred.Destroy()

	assert.Equal(t, make([]byte, len("refresh")), raw)
	assert.Equal(t, []byte("refresh"), clone.RefreshToken.Bytes())
	assert.Equal(t, []string{"User.Read"}, clone.Scopes)
	assert.NotContains(t, fmt.Sprintf("%v", clone), "refresh")
}

func TestSessionTransitions(t *testing.T) {
	tests := []struct {
		from, to SessionState
		want     bool
	}{
		{SessionUnauthenticated, SessionFlowPending, true},
		{SessionFlowPending, SessionAuthenticated, true},
		{SessionFlowPending, SessionUnauthenticated, true},
		{SessionAuthenticated, SessionRefreshing, true},
		{SessionRefreshing, SessionAuthenticated, true},
		{SessionRefreshing, SessionExpired, true},
		{SessionExpired, SessionAuthenticated, false},
		{SessionExpired, SessionFlowPending, true},
		{SessionLoggedOut, SessionAuthenticated, false},
		{SessionLoggedOut, SessionLoggedOut, true},
		{SessionUnauthenticated, SessionRefreshing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestConversationDisplayName(t *testing.T) {
	members := []Member{
		{UserID: "me", DisplayName: "Me"},
		{UserID: "u1", DisplayName: "Ada"},
		{UserID: "u2", DisplayName: "Linus"},
	}

	assert.Equal(t, "Release", Conversation{Topic: " Release ", Members: members}.DisplayName("me"))
	assert.Equal(t, "Ada, Linus", Conversation{Members: members}.DisplayName("me"))
	assert.Equal(t, "Chat", Conversation{Members: members[:1]}.DisplayName("me"))
}

func TestMessageOrdering(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, Message{ID: "b", CreatedAt: at}.Less(Message{ID: "a", CreatedAt: at.Add(time.Second)}))
	assert.True(t, Message{ID: "a", CreatedAt: at}.Less(Message{ID: "b", CreatedAt: at}))
	assert.False(t, Message{ID: "b", CreatedAt: at}.Less(Message{ID: "a", CreatedAt: at}))
}

func TestMessageRecordValidateAndConvert(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.ErrorIs(t, MessageRecord{CreatedAt: at}.Validate(), ErrInvalidRecord)
	require.ErrorIs(t, MessageRecord{ID: "m1"}.Validate(), ErrInvalidRecord)

	rec := MessageRecord{
		ID:        "m1",
		Body:      "gone",
		CreatedAt: at,
		Deleted:   true,
		Reactions: []ReactionUpdate{{Reactor: "u1", Kind: ReactionLike}, {Reactor: "u2"}},
	}
	require.NoError(t, rec.Validate())

	msg := rec.ToMessage("c1")
	assert.Empty(t, msg.Body)
	assert.Equal(t, ConversationID("c1"), msg.ConversationID)
	assert.Equal(t, map[string]ReactionKind{"u1": ReactionLike}, msg.Reactions)
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "  hello ", want: "hello"},
		{name: "tags", in: "<p>hello <b>there</b></p>", want: "hello there"},
		{name: "entities", in: "a &amp; b &lt;3&nbsp;ok", want: "a & b <3 ok"},
		{name: "breaks", in: "one<br>two<br/>three", want: "one\ntwo\nthree"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlainText(tt.in))
		})
	}
}

func TestMutationErrorMatchesSentinels(t *testing.T) {
	conflict := fmt.Errorf("edit: %w", &MutationError{Kind: MutationConflict, Mutation: MutationEdit, Err: errors.New("gone")})
	transient := &MutationError{Kind: MutationTransient, Mutation: MutationSend, Err: ErrTransient}

	assert.ErrorIs(t, conflict, ErrConflict)
	assert.NotErrorIs(t, conflict, ErrTransient)
	assert.ErrorIs(t, transient, ErrTransient)

	var mErr *MutationError
	require.ErrorAs(t, conflict, &mErr)
	assert.Equal(t, MutationEdit, mErr.Mutation)
}

func TestStorageErrorUnwrapsBoth(t *testing.T) {
	primary := errors.New("keyring locked")
	err := &StorageError{Primary: primary, Fallback: ErrSecretNotFound}

	assert.ErrorIs(t, err, primary)
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestPendingMutationTarget(t *testing.T) {
	send := PendingMutation{Kind: MutationSend, ConversationID: "c1"}
	edit := PendingMutation{Kind: MutationEdit, ConversationID: "c1", MessageID: "m1"}
	react := PendingMutation{Kind: MutationReact, ConversationID: "c1", MessageID: "m1"}

	assert.NotEqual(t, send.Target(), edit.Target())
	assert.Equal(t, edit.Target(), react.Target())
}
