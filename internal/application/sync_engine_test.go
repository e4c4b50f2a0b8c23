package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/bnema/terms-cli/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(gateway *fakeGateway, model *Model, opts SyncOptions) (*SyncEngine, *CursorStore) {
	cursors := NewCursorStore()
	if opts.Clock == nil {
		opts.Clock = newTestClock()
	}
	opts.Logger = discardLogger()
	opts.RetryBase = time.Millisecond
	opts.RetryMax = 2 * time.Millisecond
	return NewSyncEngine(gateway, staticCredentials{}, model, cursors, opts), cursors
}

func TestSyncAppliesDeltaAndAdvancesCursor(t *testing.T) {
	gateway := newFakeGateway()
	gateway.delta = func(_ domain.ConversationRef, token, _ string) (ports.DeltaPage, error) {
		require.Equal(t, "tok1", token)
		return ports.DeltaPage{
			Records: []domain.MessageRecord{
				record("m2", testEpoch.Add(time.Minute), testPeer, "first"),
				record("m3", testEpoch.Add(2*time.Minute), testPeer, "second"),
			},
			DeltaToken: "tok2",
		}, nil
	}
	model := newTestModel()
	seed(t, model, record("m1", testEpoch, testPeer, "earlier"))
	engine, cursors := newTestEngine(gateway, model, SyncOptions{})
	cursors.Restore(testConv, domain.Cursor{DeltaToken: "tok1"})

	started, err := engine.Sync(context.Background(), testConv)

	require.NoError(t, err)
	assert.True(t, started)
	assert.Len(t, messageIDs(t, model), 3)
	conv, _ := model.Conversation(testConv)
	assert.Equal(t, 2, conv.Unread)
	assert.Equal(t, "second", conv.Preview)
	cursor, _ := cursors.Get(testConv)
	assert.Equal(t, "tok2", cursor.DeltaToken)
}

func TestSyncFollowsNextLinksAndKeepsLastToken(t *testing.T) {
	gateway := newFakeGateway()
	var links []string
	gateway.delta = func(_ domain.ConversationRef, token, link string) (ports.DeltaPage, error) {
		links = append(links, link)
		if link == "" {
			return ports.DeltaPage{
				Records:    []domain.MessageRecord{record("m1", testEpoch, testPeer, "a")},
				NextLink:   "page-2",
				DeltaToken: "mid",
			}, nil
		}
		assert.Equal(t, "mid", token)
		return ports.DeltaPage{
			Records:    []domain.MessageRecord{record("m2", testEpoch.Add(time.Second), testPeer, "b")},
			DeltaToken: "final",
		}, nil
	}
	model := newTestModel()
	engine, cursors := newTestEngine(gateway, model, SyncOptions{})
	cursors.Restore(testConv, domain.Cursor{DeltaToken: "tok1"})

	_, err := engine.Sync(context.Background(), testConv)

	require.NoError(t, err)
	assert.Equal(t, []string{"", "page-2"}, links)
	cursor, _ := cursors.Get(testConv)
	assert.Equal(t, "final", cursor.DeltaToken)
	assert.Len(t, messageIDs(t, model), 2)
}

func TestSyncLeavesCursorWhenBatchHasInvalidRecord(t *testing.T) {
	gateway := newFakeGateway()
	gateway.delta = func(domain.ConversationRef, string, string) (ports.DeltaPage, error) {
		return ports.DeltaPage{
			Records: []domain.MessageRecord{
				record("m1", testEpoch, testPeer, "fine"),
				record("", testEpoch, testPeer, "broken"),
			},
			DeltaToken: "tok2",
		}, nil
	}
	model := newTestModel()
	engine, cursors := newTestEngine(gateway, model, SyncOptions{})
	cursors.Restore(testConv, domain.Cursor{DeltaToken: "tok1"})

	_, err := engine.Sync(context.Background(), testConv)

	require.ErrorIs(t, err, domain.ErrInvalidRecord)
	var syncErr *domain.SyncError
	assert.ErrorAs(t, err, &syncErr)
	cursor, _ := cursors.Get(testConv)
	assert.Equal(t, "tok1", cursor.DeltaToken)
	assert.Empty(t, messageIDs(t, model))
}

func TestSyncDiscardsFetchCancelledByUnwatch(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	gateway := newFakeGateway()
	gateway.delta = func(domain.ConversationRef, string, string) (ports.DeltaPage, error) {
		close(entered)
		<-release
		return ports.DeltaPage{
			Records:    []domain.MessageRecord{record("m1", testEpoch, testPeer, "late")},
			DeltaToken: "tok2",
		}, nil
	}
	model := newTestModel()
	engine, cursors := newTestEngine(gateway, model, SyncOptions{})
	cursors.Restore(testConv, domain.Cursor{DeltaToken: "tok1"})
	engine.Watch(testConv)

	errCh := make(chan error, 1)
	go func() {
		_, err := engine.Sync(context.Background(), testConv)
		errCh <- err
	}()
	<-entered
	engine.Unwatch(testConv)
	close(release)

	err := <-errCh
	assert.ErrorIs(t, err, context.Canceled)
	cursor, _ := cursors.Get(testConv)
	assert.Equal(t, "tok1", cursor.DeltaToken)
	assert.Empty(t, messageIDs(t, model))
}

func TestSyncCoalescesTriggersWhileFetchOutstanding(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	gateway := newFakeGateway()
	var once sync.Once
	gateway.delta = func(domain.ConversationRef, string, string) (ports.DeltaPage, error) {
		once.Do(func() { close(entered) })
		<-release
		return ports.DeltaPage{DeltaToken: "tok2"}, nil
	}
	engine, _ := newTestEngine(gateway, newTestModel(), SyncOptions{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = engine.Sync(context.Background(), testConv)
	}()
	<-entered

	started, err := engine.Sync(context.Background(), testConv)
	require.NoError(t, err)
	assert.False(t, started)

	close(release)
	<-done
	assert.Equal(t, 1, gateway.Calls("delta"))
}

func TestSyncResyncsAfterStaleCursor(t *testing.T) {
	gateway := newFakeGateway()
	gateway.delta = func(_ domain.ConversationRef, token, _ string) (ports.DeltaPage, error) {
		if token == "tok1" {
			return ports.DeltaPage{}, fmt.Errorf("delta: %w", domain.ErrCursorStale)
		}
		return ports.DeltaPage{
			Records:    []domain.MessageRecord{record("m1", testEpoch, testPeer, "again")},
			DeltaToken: "fresh",
		}, nil
	}
	model := newTestModel()
	engine, cursors := newTestEngine(gateway, model, SyncOptions{})
	cursors.Restore(testConv, domain.Cursor{DeltaToken: "tok1", PageToken: "old-page"})

	_, err := engine.Sync(context.Background(), testConv)

	require.NoError(t, err)
	cursor, _ := cursors.Get(testConv)
	assert.Equal(t, domain.Cursor{DeltaToken: "fresh"}, cursor)
	conv, _ := model.Conversation(testConv)
	assert.Zero(t, conv.Unread)
	assert.Equal(t, 2, gateway.Calls("delta"))
}

func TestSyncMarksConversationStaleAfterRetries(t *testing.T) {
	failing := true
	gateway := newFakeGateway()
	gateway.delta = func(domain.ConversationRef, string, string) (ports.DeltaPage, error) {
		if failing {
			return ports.DeltaPage{}, fmt.Errorf("delta: %w", domain.ErrTransient)
		}
		return ports.DeltaPage{DeltaToken: "tok2"}, nil
	}
	bus := NewEventBus(newTestClock())
	events, unsubscribe := bus.Subscribe(16)
	defer unsubscribe()
	model := newTestModel()
	engine, cursors := newTestEngine(gateway, model, SyncOptions{MaxRetries: 2, Events: bus})
	cursors.Restore(testConv, domain.Cursor{DeltaToken: "tok1"})

	_, err := engine.Sync(context.Background(), testConv)

	var syncErr *domain.SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, testConv, syncErr.ConversationID)
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, 3, gateway.Calls("delta"))
	conv, _ := model.Conversation(testConv)
	assert.True(t, conv.Stale)
	cursor, _ := cursors.Get(testConv)
	assert.Equal(t, "tok1", cursor.DeltaToken)
	event := <-events
	assert.Equal(t, domain.EventConversationUpdated, event.Kind)

	failing = false
	_, err = engine.Sync(context.Background(), testConv)
	require.NoError(t, err)
	conv, _ = model.Conversation(testConv)
	assert.False(t, conv.Stale)
}

func TestSyncBaselineRecordsHistoryWithoutUnread(t *testing.T) {
	gateway := newFakeGateway()
	gateway.delta = func(_ domain.ConversationRef, token, _ string) (ports.DeltaPage, error) {
		assert.Empty(t, token)
		return ports.DeltaPage{
			Records:      []domain.MessageRecord{record("m5", testEpoch, testPeer, "newest")},
			DeltaToken:   "w1",
			HistoryToken: "older",
		}, nil
	}
	model := newTestModel()
	engine, cursors := newTestEngine(gateway, model, SyncOptions{})

	_, err := engine.Sync(context.Background(), testConv)

	require.NoError(t, err)
	cursor, _ := cursors.Get(testConv)
	assert.Equal(t, domain.Cursor{DeltaToken: "w1", PageToken: "older"}, cursor)
	conv, _ := model.Conversation(testConv)
	assert.Zero(t, conv.Unread)
}

func TestSyncRejectsRoundWithoutToken(t *testing.T) {
	gateway := newFakeGateway()
	gateway.delta = func(domain.ConversationRef, string, string) (ports.DeltaPage, error) {
		return ports.DeltaPage{Records: []domain.MessageRecord{record("m1", testEpoch, testPeer, "x")}}, nil
	}
	model := newTestModel()
	engine, _ := newTestEngine(gateway, model, SyncOptions{})

	_, err := engine.Sync(context.Background(), testConv)

	assert.ErrorIs(t, err, errNoDeltaToken)
	assert.Empty(t, messageIDs(t, model))
}

func TestSyncUnknownConversation(t *testing.T) {
	engine, _ := newTestEngine(newFakeGateway(), newTestModel(), SyncOptions{})

	_, err := engine.Sync(context.Background(), "missing")

	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestBackfillLeavesDeltaTokenAlone(t *testing.T) {
	gateway := newFakeGateway()
	gateway.history = func(_ domain.ConversationRef, pageToken string) (ports.HistoryPage, error) {
		assert.Equal(t, "page-1", pageToken)
		return ports.HistoryPage{Records: []domain.MessageRecord{
			record("m0", testEpoch.Add(-time.Hour), testPeer, "ancient"),
		}}, nil
	}
	model := newTestModel()
	seed(t, model, record("m1", testEpoch, testPeer, "recent"))
	engine, cursors := newTestEngine(gateway, model, SyncOptions{})
	cursors.Restore(testConv, domain.Cursor{DeltaToken: "tok1", PageToken: "page-1"})

	started, err := engine.Backfill(context.Background(), testConv)
	require.NoError(t, err)
	assert.True(t, started)

	cursor, _ := cursors.Get(testConv)
	assert.Equal(t, domain.Cursor{DeltaToken: "tok1"}, cursor)
	assert.Equal(t, []domain.MessageID{"m0", "m1"}, messageIDs(t, model))
	conv, _ := model.Conversation(testConv)
	assert.Zero(t, conv.Unread)
	assert.Equal(t, "recent", conv.Preview)

	_, err = engine.Backfill(context.Background(), testConv)
	require.NoError(t, err)
	assert.Equal(t, 1, gateway.Calls("history"))
}

func TestRefreshConversationsIdentifiesUser(t *testing.T) {
	gateway := newFakeGateway()
	model := NewModel()
	metrics := &countingMetrics{}
	engine, _ := newTestEngine(gateway, model, SyncOptions{Metrics: metrics})

	require.NoError(t, engine.RefreshConversations(context.Background()))
	require.NoError(t, engine.RefreshConversations(context.Background()))

	assert.Equal(t, testSelf, model.Self())
	assert.Equal(t, 1, gateway.Calls("me"))
	_, ok := model.Conversation(testConv)
	assert.True(t, ok)
	assert.Equal(t, 1, metrics.conversations)
}

func TestTickSyncsOnlyInterestingConversations(t *testing.T) {
	clock := newTestClock()
	gateway := newFakeGateway()
	var mu sync.Mutex
	synced := map[domain.ConversationID]int{}
	gateway.delta = func(ref domain.ConversationRef, _, _ string) (ports.DeltaPage, error) {
		mu.Lock()
		synced[ref.ID]++
		mu.Unlock()
		return ports.DeltaPage{DeltaToken: "tok"}, nil
	}
	model := NewModel()
	model.SetSelf(testSelf)
	model.Upsert([]domain.Conversation{
		{ID: "watched"},
		{ID: "recent", LastActivity: clock.Now().Add(-time.Minute)},
		{ID: "idle", LastActivity: clock.Now().Add(-time.Hour)},
	})
	engine, _ := newTestEngine(gateway, model, SyncOptions{Clock: clock, RecentWindow: 10 * time.Minute})
	engine.Watch("watched")

	engine.Tick(context.Background())

	assert.Equal(t, map[domain.ConversationID]int{"watched": 1, "recent": 1}, synced)
}

func TestFocusMarksReadBestEffort(t *testing.T) {
	gateway := newFakeGateway()
	gateway.markRead = func(domain.ConversationRef) error {
		return errors.New("forbidden")
	}
	model := newTestModel()
	require.NoError(t, model.update(testConv, func(state *conversationState) error {
		state.conv.Unread = 4
		return nil
	}))
	engine, _ := newTestEngine(gateway, model, SyncOptions{})

	require.NoError(t, engine.Focus(context.Background(), testConv))

	conv, _ := model.Conversation(testConv)
	assert.True(t, conv.Focused)
	assert.Zero(t, conv.Unread)
	assert.Equal(t, 1, gateway.Calls("mark_read"))
	assert.Contains(t, engine.interestSet(), testConv)
}

func TestSyncSnapshotsSurviveIntoFreshEngine(t *testing.T) {
	cache := &memoryCache{}
	gateway := newFakeGateway()
	gateway.delta = func(domain.ConversationRef, string, string) (ports.DeltaPage, error) {
		return ports.DeltaPage{
			Records:    []domain.MessageRecord{record("m1", testEpoch, testPeer, "cached")},
			DeltaToken: "tok2",
		}, nil
	}
	engine, _ := newTestEngine(gateway, newTestModel(), SyncOptions{Cache: cache})
	_, err := engine.Sync(context.Background(), testConv)
	require.NoError(t, err)

	model := NewModel()
	restoredEngine, cursors := newTestEngine(newFakeGateway(), model, SyncOptions{Cache: cache})
	n, err := restoredEngine.LoadCache(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []domain.MessageID{"m1"}, messageIDs(t, model))
	cursor, _ := cursors.Get(testConv)
	assert.Equal(t, "tok2", cursor.DeltaToken)
}

func TestRunStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gateway := newFakeGateway()
	var once sync.Once
	gateway.delta = func(domain.ConversationRef, string, string) (ports.DeltaPage, error) {
		once.Do(cancel)
		return ports.DeltaPage{DeltaToken: "tok"}, nil
	}
	model := NewModel()
	engine, _ := newTestEngine(gateway, model, SyncOptions{Interval: time.Hour})
	engine.Watch(testConv)
	engine.SetInterval(time.Minute)

	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
	assert.Equal(t, testSelf, model.Self())
}

type memoryCache struct {
	mu        sync.Mutex
	snapshots map[domain.ConversationID]ports.ConversationSnapshot
}

func (c *memoryCache) Load(context.Context) ([]ports.ConversationSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ports.ConversationSnapshot, 0, len(c.snapshots))
	for _, s := range c.snapshots {
		out = append(out, s)
	}
	return out, nil
}

func (c *memoryCache) Save(_ context.Context, snapshot ports.ConversationSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshots == nil {
		c.snapshots = make(map[domain.ConversationID]ports.ConversationSnapshot)
	}
	c.snapshots[snapshot.Conversation.ID] = snapshot
	return nil
}

func (c *memoryCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots = nil
	return nil
}

func (c *memoryCache) Close() error { return nil }

type countingMetrics struct {
	ports.NopMetrics
	mu            sync.Mutex
	mutations     map[string]int
	conversations int
}

func (m *countingMetrics) ObserveMutation(kind domain.MutationKind, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mutations == nil {
		m.mutations = make(map[string]int)
	}
	m.mutations[string(kind)+"/"+outcome]++
}

func (m *countingMetrics) SetConversations(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations = n
}
