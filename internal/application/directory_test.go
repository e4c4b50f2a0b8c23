package application

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchUsers(t *testing.T) {
	gateway := newFakeGateway()
	gateway.users = []domain.User{
		{ID: "ada", DisplayName: "Ada Lovelace"},
		{ID: "alan", DisplayName: "Alan Turing"},
	}
	engine, _ := newTestEngine(gateway, newTestModel(), SyncOptions{})

	users, err := engine.SearchUsers(context.Background(), "ad")

	require.NoError(t, err)
	assert.Equal(t, []domain.User{{ID: "ada", DisplayName: "Ada Lovelace"}}, users)
}

func TestStartChatAddsConversationWithoutDroppingOthers(t *testing.T) {
	gateway := newFakeGateway()
	var gotSelf, gotUser string
	gateway.createChat = func(self, user string) (domain.Conversation, error) {
		gotSelf, gotUser = self, user
		return domain.Conversation{
			ID:   "19:ada@unq.gbl.spaces",
			Kind: domain.ConversationDirect,
			Members: []domain.Member{
				{UserID: testSelf, DisplayName: "Self"},
				{UserID: "ada", DisplayName: "Ada Lovelace"},
			},
		}, nil
	}
	bus := NewEventBus(newTestClock())
	events, unsubscribe := bus.Subscribe(8)
	defer unsubscribe()
	model := NewModel()
	model.Upsert([]domain.Conversation{{ID: testConv, Kind: domain.ConversationGroup, Topic: "Team chat"}})
	engine, _ := newTestEngine(gateway, model, SyncOptions{Events: bus})

	conv, err := engine.StartChat(context.Background(), " ada@example.com ")

	require.NoError(t, err)
	assert.Equal(t, testSelf, gotSelf)
	assert.Equal(t, "ada@example.com", gotUser)
	assert.True(t, conv.Active)
	assert.Equal(t, "Ada Lovelace", conv.DisplayName(testSelf))

	existing, ok := model.Conversation(testConv)
	require.True(t, ok)
	assert.True(t, existing.Active)
	assert.Len(t, model.Conversations(), 2)

	ev := <-events
	assert.Equal(t, domain.EventConversationUpdated, ev.Kind)
	assert.Equal(t, conv.ID, ev.ConversationID)
}

func TestStartChatRequiresUser(t *testing.T) {
	gateway := newFakeGateway()
	engine, _ := newTestEngine(gateway, newTestModel(), SyncOptions{})

	_, err := engine.StartChat(context.Background(), "  ")

	require.Error(t, err)
	assert.Zero(t, gateway.Calls("create_chat"))
}

func TestPresenceDefaultsToSignedInUser(t *testing.T) {
	gateway := newFakeGateway()
	gateway.presence = map[string]domain.Presence{
		testSelf: {UserID: testSelf, Availability: "Available", Activity: "Available"},
		testPeer: {UserID: testPeer, Availability: "Away", Activity: "Away"},
	}
	engine, _ := newTestEngine(gateway, NewModel(), SyncOptions{})

	mine, err := engine.Presence(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Presence{gateway.presence[testSelf]}, mine)
	assert.Equal(t, 1, gateway.Calls("me"))

	theirs, err := engine.Presence(context.Background(), testPeer)
	require.NoError(t, err)
	assert.Equal(t, []domain.Presence{gateway.presence[testPeer]}, theirs)
}

func TestSetPresenceRetriesTransientFailures(t *testing.T) {
	gateway := newFakeGateway()
	failures := 1
	var got domain.Availability
	gateway.setPresence = func(availability domain.Availability, expiry time.Duration) error {
		if failures > 0 {
			failures--
			return fmt.Errorf("set presence: %w", domain.ErrTransient)
		}
		got = availability
		assert.Equal(t, time.Hour, expiry)
		return nil
	}
	engine, _ := newTestEngine(gateway, newTestModel(), SyncOptions{})

	require.NoError(t, engine.SetPresence(context.Background(), domain.AvailabilityBusy, time.Hour))

	assert.Equal(t, domain.AvailabilityBusy, got)
	assert.Equal(t, 2, gateway.Calls("set_presence"))
}
