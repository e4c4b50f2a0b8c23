package application

import (
	"testing"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestEventBusStampsAndFansOut(t *testing.T) {
	bus := NewEventBus(newTestClock())
	first, unsubFirst := bus.Subscribe(1)
	second, unsubSecond := bus.Subscribe(1)
	defer unsubSecond()

	bus.Publish(domain.Event{Kind: domain.EventConversationUpdated, ConversationID: testConv})

	a, b := <-first, <-second
	assert.Equal(t, testConv, a.ConversationID)
	assert.Equal(t, testEpoch, a.At)
	assert.Equal(t, a, b)

	unsubFirst()
	unsubFirst()
	_, open := <-first
	assert.False(t, open)
}

func TestEventBusDropsForSlowSubscribers(t *testing.T) {
	bus := NewEventBus(nil)
	events, unsubscribe := bus.Subscribe(1)
	defer unsubscribe()

	bus.Publish(domain.Event{Kind: domain.EventConversationUpdated, ConversationID: "a"})
	bus.Publish(domain.Event{Kind: domain.EventConversationUpdated, ConversationID: "b"})

	assert.Equal(t, domain.ConversationID("a"), (<-events).ConversationID)
	assert.Empty(t, events)
}

func TestEventBusCloseEndsSubscriptions(t *testing.T) {
	bus := NewEventBus(nil)
	events, unsubscribe := bus.Subscribe(0)

	bus.Close()
	unsubscribe()

	_, open := <-events
	assert.False(t, open)
	late, _ := bus.Subscribe(0)
	_, open = <-late
	assert.False(t, open)

	var nilBus *EventBus
	nilBus.Publish(domain.Event{Kind: domain.EventMutationFailed})
}
