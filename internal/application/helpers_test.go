package application

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/bnema/terms-cli/internal/ports"
	"github.com/bnema/terms-cli/internal/secret"
	"github.com/stretchr/testify/require"
)

const (
	testSelf = "user-self"
	testPeer = "user-peer"

	testConv domain.ConversationID = "19:team-chat@thread.v2"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testEpoch}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// staticCredentials hands out a fresh throwaway credential per call.
type staticCredentials struct{}

func (staticCredentials) WithCredential(_ context.Context, fn func(*domain.Credential) error) error {
	cred := &domain.Credential{AccessToken: secret.Copy([]byte("access-token"))}
	defer cred.Destroy()
	return fn(cred)
}

// fakeGateway answers with the configured funcs and counts calls.
type fakeGateway struct {
	mu    sync.Mutex
	calls map[string]int

	me            domain.User
	conversations []domain.Conversation

	delta         func(ref domain.ConversationRef, token, link string) (ports.DeltaPage, error)
	history       func(ref domain.ConversationRef, pageToken string) (ports.HistoryPage, error)
	create        func(ctx context.Context, body, key string) (domain.MessageRecord, error)
	reply         func(ctx context.Context, parent domain.MessageID, body, key string) (domain.MessageRecord, error)
	edit          func(ctx context.Context, id domain.MessageID, body string) (domain.MessageRecord, error)
	softDelete    func(ctx context.Context, id domain.MessageID) error
	setReaction   func(ctx context.Context, id domain.MessageID, kind domain.ReactionKind) error
	unsetReaction func(ctx context.Context, id domain.MessageID, kind domain.ReactionKind) error
	markRead      func(ref domain.ConversationRef) error
	users         []domain.User
	createChat    func(self, user string) (domain.Conversation, error)
	presence      map[string]domain.Presence
	setPresence   func(availability domain.Availability, expiry time.Duration) error
}

var _ ports.ChatGateway = (*fakeGateway)(nil)

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		calls: make(map[string]int),
		me:    domain.User{ID: testSelf, DisplayName: "Self"},
		conversations: []domain.Conversation{
			{ID: testConv, Kind: domain.ConversationGroup, Topic: "Team chat"},
		},
	}
}

func (g *fakeGateway) count(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[name]++
}

func (g *fakeGateway) Calls(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[name]
}

func (g *fakeGateway) Me(context.Context, *domain.Credential) (domain.User, error) {
	g.count("me")
	return g.me, nil
}

func (g *fakeGateway) ListConversations(context.Context, *domain.Credential) ([]domain.Conversation, error) {
	g.count("list")
	return g.conversations, nil
}

func (g *fakeGateway) Delta(_ context.Context, _ *domain.Credential, ref domain.ConversationRef, token, link string) (ports.DeltaPage, error) {
	g.count("delta")
	if g.delta == nil {
		return ports.DeltaPage{DeltaToken: "tok"}, nil
	}
	return g.delta(ref, token, link)
}

func (g *fakeGateway) History(_ context.Context, _ *domain.Credential, ref domain.ConversationRef, pageToken string) (ports.HistoryPage, error) {
	g.count("history")
	if g.history == nil {
		return ports.HistoryPage{}, nil
	}
	return g.history(ref, pageToken)
}

func (g *fakeGateway) CreateMessage(ctx context.Context, _ *domain.Credential, _ domain.ConversationRef, body, key string) (domain.MessageRecord, error) {
	g.count("create")
	return g.create(ctx, body, key)
}

func (g *fakeGateway) ReplyToMessage(ctx context.Context, _ *domain.Credential, _ domain.ConversationRef, parent domain.MessageID, body, key string) (domain.MessageRecord, error) {
	g.count("reply")
	return g.reply(ctx, parent, body, key)
}

func (g *fakeGateway) EditMessage(ctx context.Context, _ *domain.Credential, _ domain.ConversationRef, id domain.MessageID, body string) (domain.MessageRecord, error) {
	g.count("edit")
	return g.edit(ctx, id, body)
}

func (g *fakeGateway) SoftDeleteMessage(ctx context.Context, _ *domain.Credential, _ domain.ConversationRef, id domain.MessageID) error {
	g.count("delete")
	if g.softDelete == nil {
		return nil
	}
	return g.softDelete(ctx, id)
}

func (g *fakeGateway) SetReaction(ctx context.Context, _ *domain.Credential, _ domain.ConversationRef, id domain.MessageID, kind domain.ReactionKind) error {
	g.count("react")
	if g.setReaction == nil {
		return nil
	}
	return g.setReaction(ctx, id, kind)
}

func (g *fakeGateway) UnsetReaction(ctx context.Context, _ *domain.Credential, _ domain.ConversationRef, id domain.MessageID, kind domain.ReactionKind) error {
	g.count("unreact")
	if g.unsetReaction == nil {
		return nil
	}
	return g.unsetReaction(ctx, id, kind)
}

func (g *fakeGateway) MarkRead(_ context.Context, _ *domain.Credential, ref domain.ConversationRef, _ string) error {
	g.count("mark_read")
	if g.markRead == nil {
		return nil
	}
	return g.markRead(ref)
}

func (g *fakeGateway) SearchUsers(_ context.Context, _ *domain.Credential, query string) ([]domain.User, error) {
	g.count("search")
	var out []domain.User
	for _, u := range g.users {
		if strings.HasPrefix(strings.ToLower(u.DisplayName), strings.ToLower(query)) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (g *fakeGateway) CreateChat(_ context.Context, _ *domain.Credential, self, user string) (domain.Conversation, error) {
	g.count("create_chat")
	return g.createChat(self, user)
}

func (g *fakeGateway) Presence(_ context.Context, _ *domain.Credential, userIDs []string) ([]domain.Presence, error) {
	g.count("presence")
	out := make([]domain.Presence, 0, len(userIDs))
	for _, id := range userIDs {
		if p, ok := g.presence[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (g *fakeGateway) SetPresence(_ context.Context, _ *domain.Credential, availability domain.Availability, expiry time.Duration) error {
	g.count("set_presence")
	if g.setPresence == nil {
		return nil
	}
	return g.setPresence(availability, expiry)
}

func newTestModel() *Model {
	model := NewModel()
	model.SetSelf(testSelf)
	model.Upsert([]domain.Conversation{{ID: testConv, Kind: domain.ConversationGroup, Topic: "Team chat"}})
	return model
}

func record(id string, at time.Time, sender, body string) domain.MessageRecord {
	return domain.MessageRecord{
		ID:         domain.MessageID(id),
		Sender:     domain.Sender{ID: sender, DisplayName: sender},
		Body:       body,
		CreatedAt:  at,
		ModifiedAt: at,
	}
}

func seed(t *testing.T, model *Model, records ...domain.MessageRecord) {
	t.Helper()
	require.NoError(t, model.update(testConv, func(state *conversationState) error {
		state.applyRecords(records, false, testSelf)
		return nil
	}))
}

func messageIDs(t *testing.T, model *Model) []domain.MessageID {
	t.Helper()
	views, err := model.Messages(testConv)
	require.NoError(t, err)
	ids := make([]domain.MessageID, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.ID)
	}
	return ids
}
