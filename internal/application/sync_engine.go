package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/bnema/terms-cli/internal/ports"
	"golang.org/x/sync/errgroup"
)

const (
	fetchDelta    = "delta"
	fetchBackfill = "backfill"
	fetchList     = "list"

	defaultSyncInterval = 15 * time.Second
	defaultRecentWindow = 10 * time.Minute
	defaultSyncRetries  = 3
	defaultConcurrency  = 4
	// listEveryTicks spaces conversation listings out relative to delta ticks.
	listEveryTicks = 4
)

var (
	errFetchDiscarded = errors.New("fetch cancelled before merge")
	errNoDeltaToken   = errors.New("delta round ended without a token")
)

type SyncOptions struct {
	Interval     time.Duration
	RecentWindow time.Duration
	// MaxRetries bounds transient retries per fetch. Zero picks the default,
	// a negative value disables retries.
	MaxRetries  int
	Concurrency int
	RetryBase   time.Duration
	RetryMax    time.Duration
	Cache       ports.SnapshotCache
	Events      *EventBus
	Clock       ports.Clock
	Logger      *slog.Logger
	Metrics     ports.Metrics
}

type fetchKey struct {
	id   domain.ConversationID
	mode string
}

// SyncEngine keeps the model eventually consistent with the remote. At most
// one fetch per conversation and mode is outstanding; further triggers are
// dropped while it runs.
type SyncEngine struct {
	gateway ports.ChatGateway
	creds   CredentialSource
	model   *Model
	cursors *CursorStore
	opts    SyncOptions

	mu       sync.Mutex
	inflight map[fetchKey]context.CancelFunc
	watched  map[domain.ConversationID]struct{}
	interval chan time.Duration
}

func NewSyncEngine(gateway ports.ChatGateway, creds CredentialSource, model *Model, cursors *CursorStore, opts SyncOptions) *SyncEngine {
	if opts.Interval <= 0 {
		opts.Interval = defaultSyncInterval
	}
	if opts.RecentWindow <= 0 {
		opts.RecentWindow = defaultRecentWindow
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultSyncRetries
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 500 * time.Millisecond
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = ports.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = ports.NopMetrics{}
	}

	return &SyncEngine{
		gateway:  gateway,
		creds:    creds,
		model:    model,
		cursors:  cursors,
		opts:     opts,
		inflight: make(map[fetchKey]context.CancelFunc),
		watched:  make(map[domain.ConversationID]struct{}),
		interval: make(chan time.Duration, 1),
	}
}

// Identify records the signed-in user in the model.
func (e *SyncEngine) Identify(ctx context.Context) (domain.User, error) {
	var me domain.User
	err := e.creds.WithCredential(ctx, func(cred *domain.Credential) error {
		var err error
		me, err = e.gateway.Me(ctx, cred)
		return err
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("identify user: %w", err)
	}
	e.model.SetSelf(me.ID)
	return me, nil
}

// RefreshConversations lists conversations and upserts them into the model.
func (e *SyncEngine) RefreshConversations(ctx context.Context) error {
	if e.model.Self() == "" {
		if _, err := e.Identify(ctx); err != nil {
			return err
		}
	}

	start := e.opts.Clock.Now()
	var listed []domain.Conversation
	err := e.retry(ctx, "list conversations", func() error {
		return e.creds.WithCredential(ctx, func(cred *domain.Credential) error {
			var err error
			listed, err = e.gateway.ListConversations(ctx, cred)
			return err
		})
	})
	if err != nil {
		e.opts.Metrics.ObserveFetch(fetchList, ports.OutcomeError, 0)
		return fmt.Errorf("refresh conversations: %w", err)
	}
	e.opts.Metrics.ObserveFetch(fetchList, ports.OutcomeOK, e.opts.Clock.Now().Sub(start))

	for _, id := range e.model.Upsert(listed) {
		e.publish(domain.Event{Kind: domain.EventConversationUpdated, ConversationID: id})
	}
	e.opts.Metrics.SetConversations(len(e.model.Conversations()))
	return nil
}

// Sync runs one delta round for id. started is false when a delta fetch for
// id was already outstanding and this trigger was coalesced into it.
func (e *SyncEngine) Sync(ctx context.Context, id domain.ConversationID) (bool, error) {
	conv, ok := e.model.Conversation(id)
	if !ok {
		return false, fmt.Errorf("%w: %q", domain.ErrConversationNotFound, id)
	}

	fctx, done, ok := e.begin(ctx, fetchKey{id: id, mode: fetchDelta})
	if !ok {
		e.opts.Metrics.ObserveFetch(fetchDelta, ports.OutcomeCoalesced, 0)
		return false, nil
	}
	defer done()

	start := e.opts.Clock.Now()
	err := e.retry(fctx, "sync "+string(id), func() error {
		return e.deltaRound(fctx, conv.Ref())
	})
	return true, e.finish(fctx, id, fetchDelta, start, err)
}

// Backfill fetches one page of older history for id. It never touches the
// delta token.
func (e *SyncEngine) Backfill(ctx context.Context, id domain.ConversationID) (bool, error) {
	conv, ok := e.model.Conversation(id)
	if !ok {
		return false, fmt.Errorf("%w: %q", domain.ErrConversationNotFound, id)
	}

	cursor, _ := e.cursors.Get(id)
	if !cursor.HistoryIncomplete() && !cursor.Baseline() {
		return true, nil
	}

	fctx, done, ok := e.begin(ctx, fetchKey{id: id, mode: fetchBackfill})
	if !ok {
		e.opts.Metrics.ObserveFetch(fetchBackfill, ports.OutcomeCoalesced, 0)
		return false, nil
	}
	defer done()

	start := e.opts.Clock.Now()
	err := e.retry(fctx, "backfill "+string(id), func() error {
		return e.historyPage(fctx, conv.Ref(), cursor.PageToken)
	})
	return true, e.finish(fctx, id, fetchBackfill, start, err)
}

func (e *SyncEngine) deltaRound(ctx context.Context, ref domain.ConversationRef) error {
	err := e.deltaRoundOnce(ctx, ref)
	if errors.Is(err, domain.ErrCursorStale) {
		e.opts.Logger.Info("delta cursor rejected, resyncing", "conversation", ref.ID)
		e.opts.Metrics.ObserveFetch(fetchDelta, ports.OutcomeStale, 0)
		e.cursors.Drop(ref.ID)
		err = e.deltaRoundOnce(ctx, ref)
	}
	return err
}

func (e *SyncEngine) deltaRoundOnce(ctx context.Context, ref domain.ConversationRef) error {
	cursor, _ := e.cursors.Get(ref.ID)
	baseline := cursor.Baseline()

	var (
		records      []domain.MessageRecord
		token        string
		historyToken string
	)
	err := e.creds.WithCredential(ctx, func(cred *domain.Credential) error {
		records, token, historyToken = nil, cursor.DeltaToken, ""
		link := ""
		for {
			page, err := e.gateway.Delta(ctx, cred, ref, token, link)
			if err != nil {
				return err
			}
			records = append(records, page.Records...)
			if page.DeltaToken != "" {
				token = page.DeltaToken
			}
			if page.HistoryToken != "" {
				historyToken = page.HistoryToken
			}
			if page.NextLink == "" {
				return nil
			}
			link = page.NextLink
		}
	})
	if err != nil {
		return err
	}
	if token == "" {
		return errNoDeltaToken
	}
	if err := validateBatch(records); err != nil {
		return err
	}

	self := e.model.Self()
	var stats mergeStats
	err = e.model.update(ref.ID, func(state *conversationState) error {
		if ctx.Err() != nil {
			return errFetchDiscarded
		}
		stats = state.applyRecords(records, !baseline, self)
		e.cursors.Advance(ref.ID, token)
		if baseline {
			e.cursors.SetPagination(ref.ID, historyToken)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if stats.Changed() {
		e.publish(domain.Event{Kind: domain.EventConversationUpdated, ConversationID: ref.ID})
	}
	e.opts.Logger.Debug("delta applied",
		"conversation", ref.ID,
		"inserted", stats.Inserted,
		"updated", stats.Updated,
		"unread", stats.Unread,
		"baseline", baseline,
	)
	return nil
}

func (e *SyncEngine) historyPage(ctx context.Context, ref domain.ConversationRef, pageToken string) error {
	var page ports.HistoryPage
	err := e.creds.WithCredential(ctx, func(cred *domain.Credential) error {
		var err error
		page, err = e.gateway.History(ctx, cred, ref, pageToken)
		return err
	})
	if err != nil {
		return err
	}
	if err := validateBatch(page.Records); err != nil {
		return err
	}

	self := e.model.Self()
	var stats mergeStats
	err = e.model.update(ref.ID, func(state *conversationState) error {
		if ctx.Err() != nil {
			return errFetchDiscarded
		}
		stats = state.applyRecords(page.Records, false, self)
		e.cursors.SetPagination(ref.ID, page.NextPage)
		return nil
	})
	if err != nil {
		return err
	}

	if stats.Changed() {
		e.publish(domain.Event{Kind: domain.EventConversationUpdated, ConversationID: ref.ID})
	}
	return nil
}

// validateBatch rejects the whole batch when any record is malformed so a
// round is applied completely or not at all.
func validateBatch(records []domain.MessageRecord) error {
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (e *SyncEngine) retry(ctx context.Context, what string, op func() error) error {
	return retryPolicy{
		attempts: e.opts.MaxRetries,
		base:     e.opts.RetryBase,
		max:      e.opts.RetryMax,
		logger:   e.opts.Logger,
	}.run(ctx, what, op)
}

func (e *SyncEngine) finish(ctx context.Context, id domain.ConversationID, mode string, start time.Time, err error) error {
	switch {
	case err == nil:
		e.opts.Metrics.ObserveFetch(mode, ports.OutcomeOK, e.opts.Clock.Now().Sub(start))
		if e.model.setStale(id, false) {
			e.publish(domain.Event{Kind: domain.EventConversationUpdated, ConversationID: id})
		}
		if mode == fetchDelta {
			e.saveSnapshot(ctx, id)
		}
		return nil
	case errors.Is(err, errFetchDiscarded) || ctx.Err() != nil:
		e.opts.Metrics.ObserveFetch(mode, ports.OutcomeDiscarded, 0)
		e.opts.Logger.Debug("fetch discarded", "conversation", id, "mode", mode)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	case errors.Is(err, domain.ErrTransient):
		e.opts.Metrics.ObserveFetch(mode, ports.OutcomeError, 0)
		if e.model.setStale(id, true) {
			e.publish(domain.Event{Kind: domain.EventConversationUpdated, ConversationID: id})
		}
		e.opts.Logger.Warn("conversation marked stale", "conversation", id, "mode", mode, "err", err)
		return &domain.SyncError{ConversationID: id, Err: err}
	default:
		e.opts.Metrics.ObserveFetch(mode, ports.OutcomeError, 0)
		return &domain.SyncError{ConversationID: id, Err: err}
	}
}

func (e *SyncEngine) begin(ctx context.Context, key fetchKey) (context.Context, func(), bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[key]; busy {
		return nil, nil, false
	}

	fctx, cancel := context.WithCancel(ctx)
	e.inflight[key] = cancel
	return fctx, func() {
		cancel()
		e.mu.Lock()
		delete(e.inflight, key)
		e.mu.Unlock()
	}, true
}

// Watch adds id to the interest set polled on every tick.
func (e *SyncEngine) Watch(id domain.ConversationID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.watched[id] = struct{}{}
}

// Unwatch removes id from the interest set and cancels its outstanding
// fetches. A cancelled fetch is never merged.
func (e *SyncEngine) Unwatch(id domain.ConversationID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.watched, id)
	for key, cancel := range e.inflight {
		if key.id == id {
			cancel()
		}
	}
}

// Focus marks id as read locally and, best effort, remotely.
func (e *SyncEngine) Focus(ctx context.Context, id domain.ConversationID) error {
	if err := e.model.Focus(id); err != nil {
		return err
	}
	e.Watch(id)
	e.publish(domain.Event{Kind: domain.EventConversationUpdated, ConversationID: id})

	conv, _ := e.model.Conversation(id)
	self := e.model.Self()
	err := e.creds.WithCredential(ctx, func(cred *domain.Credential) error {
		return e.gateway.MarkRead(ctx, cred, conv.Ref(), self)
	})
	if err != nil {
		e.opts.Logger.Warn("remote mark read failed", "conversation", id, "err", err)
	}
	return nil
}

// SetInterval changes the tick interval of a running Run loop.
func (e *SyncEngine) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	for {
		select {
		case e.interval <- d:
			return
		default:
		}
		select {
		case <-e.interval:
		default:
		}
	}
}

// Run polls the interest set until ctx is done.
func (e *SyncEngine) Run(ctx context.Context) error {
	if err := e.RefreshConversations(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		e.opts.Logger.Warn("initial conversation listing failed", "err", err)
	}

	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()

	for tick := 1; ; tick++ {
		e.Tick(ctx)

		select {
		case <-ctx.Done():
			return nil
		case d := <-e.interval:
			e.opts.Logger.Info("sync interval changed", "interval", d)
			ticker.Reset(d)
		case <-ticker.C:
		}

		if tick%listEveryTicks == 0 {
			if err := e.RefreshConversations(ctx); err != nil && ctx.Err() == nil {
				e.opts.Logger.Warn("conversation listing failed", "err", err)
			}
		}
	}
}

// Tick fans delta fetches out over the interest set with bounded
// concurrency.
func (e *SyncEngine) Tick(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)

	for _, id := range e.interestSet() {
		g.Go(func() error {
			if _, err := e.Sync(gctx, id); err != nil && gctx.Err() == nil {
				e.opts.Logger.Warn("sync failed", "conversation", id, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// interestSet is the watched conversations plus every active conversation
// with activity inside the recent window.
func (e *SyncEngine) interestSet() []domain.ConversationID {
	e.mu.Lock()
	watched := make(map[domain.ConversationID]struct{}, len(e.watched))
	for id := range e.watched {
		watched[id] = struct{}{}
	}
	e.mu.Unlock()

	cutoff := e.opts.Clock.Now().Add(-e.opts.RecentWindow)
	var ids []domain.ConversationID
	for _, conv := range e.model.Conversations() {
		_, isWatched := watched[conv.ID]
		if isWatched || conv.Focused || (conv.Active && conv.LastActivity.After(cutoff)) {
			ids = append(ids, conv.ID)
		}
	}
	return ids
}

// LoadCache seeds the model and cursors from the snapshot cache.
func (e *SyncEngine) LoadCache(ctx context.Context) (int, error) {
	if e.opts.Cache == nil {
		return 0, nil
	}
	snapshots, err := e.opts.Cache.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load snapshot cache: %w", err)
	}

	restored := 0
	for _, snapshot := range snapshots {
		if e.model.Restore(snapshot) {
			e.cursors.Restore(snapshot.Conversation.ID, snapshot.Cursor)
			restored++
		}
	}
	return restored, nil
}

func (e *SyncEngine) saveSnapshot(ctx context.Context, id domain.ConversationID) {
	if e.opts.Cache == nil {
		return
	}
	snapshot, ok := e.model.Snapshot(id)
	if !ok {
		return
	}
	snapshot.Cursor, _ = e.cursors.Get(id)
	if err := e.opts.Cache.Save(ctx, snapshot); err != nil {
		e.opts.Logger.Warn("save snapshot", "conversation", id, "err", err)
	}
}

func (e *SyncEngine) publish(event domain.Event) {
	e.opts.Events.Publish(event)
}
