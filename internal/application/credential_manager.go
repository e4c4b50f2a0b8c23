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
	"github.com/bnema/terms-cli/internal/secret"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCredentialKey = "terms://default/credential"

	refreshFlightKey      = "refresh"
	defaultRefreshMargin  = 60 * time.Second
	defaultFlowTimeout    = 5 * time.Minute
	refreshRequestTimeout = 30 * time.Second
	storeTimeout          = 10 * time.Second
)

// CredentialSource hands out a credential for the duration of fn.
type CredentialSource interface {
	WithCredential(ctx context.Context, fn func(*domain.Credential) error) error
}

type CredentialOptions struct {
	Key           string
	RefreshMargin time.Duration
	FlowTimeout   time.Duration
	Callback      ports.CallbackListener
	Challenges    ports.ChallengeSource
	Events        *EventBus
	Clock         ports.Clock
	Logger        *slog.Logger
	Metrics       ports.Metrics
}

// CredentialManager owns the single session of the process. Tokens live in
// secret buffers; callers only ever see clones they must destroy.
type CredentialManager struct {
	tokens     ports.TokenService
	store      ports.SecretStore
	callback   ports.CallbackListener
	challenges ports.ChallengeSource
	events     *EventBus
	clock      ports.Clock
	logger     *slog.Logger
	metrics    ports.Metrics
	key        string
	margin     time.Duration
	flowTTL    time.Duration

	refreshes singleflight.Group
	bgCtx     context.Context
	bgCancel  context.CancelFunc

	mu       sync.Mutex
	state    domain.SessionState
	flow     domain.FlowKind
	cred     *domain.Credential
	fallback bool
	// gen changes whenever the session is replaced so late results from an
	// older flow or refresh are dropped.
	gen     uint64
	changed chan struct{}
}

var _ CredentialSource = (*CredentialManager)(nil)

func NewCredentialManager(tokens ports.TokenService, store ports.SecretStore, opts CredentialOptions) *CredentialManager {
	if opts.Key == "" {
		opts.Key = DefaultCredentialKey
	}
	if opts.RefreshMargin <= 0 {
		opts.RefreshMargin = defaultRefreshMargin
	}
	if opts.FlowTimeout <= 0 {
		opts.FlowTimeout = defaultFlowTimeout
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

	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &CredentialManager{
		tokens:     tokens,
		store:      store,
		callback:   opts.Callback,
		challenges: opts.Challenges,
		events:     opts.Events,
		clock:      opts.Clock,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		key:        opts.Key,
		margin:     opts.RefreshMargin,
		flowTTL:    opts.FlowTimeout,
		bgCtx:      bgCtx,
		bgCancel:   bgCancel,
		state:      domain.SessionUnauthenticated,
		changed:    make(chan struct{}),
	}
}

func (m *CredentialManager) Session() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	session := domain.Session{State: m.state, Flow: m.flow, Fallback: m.fallback}
	if m.cred != nil {
		session.ExpiresAt = m.cred.ExpiresAt
		session.Scopes = append([]string(nil), m.cred.Scopes...)
	}
	return session
}

// Restore loads the persisted credential. A missing or unreadable blob
// leaves the session unauthenticated.
func (m *CredentialManager) Restore(ctx context.Context) error {
	blob, err := m.store.Get(ctx, m.key)
	if err != nil {
		if errors.Is(err, domain.ErrSecretNotFound) {
			return nil
		}
		return &domain.AuthError{Op: "restore", Err: err}
	}
	defer secret.Wipe(blob)

	cred, err := decodeCredential(blob)
	if err != nil {
		m.logger.Warn("discarding unreadable stored credential", "err", err)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaceLocked(cred)
	if !cred.Usable(m.clock.Now()) && !cred.CanRefresh() {
		m.setStateLocked(domain.SessionExpired, domain.FlowNone)
		return nil
	}
	m.setStateLocked(domain.SessionAuthenticated, domain.FlowNone)
	return nil
}

// Acquire returns a clone of a credential that is valid now. The caller must
// Destroy it. While a flow or refresh is underway without a usable
// credential, Acquire waits for the next state change.
func (m *CredentialManager) Acquire(ctx context.Context) (*domain.Credential, error) {
	for {
		m.mu.Lock()
		switch m.state {
		case domain.SessionUnauthenticated, domain.SessionLoggedOut:
			m.mu.Unlock()
			return nil, &domain.AuthError{Op: "acquire", Err: domain.ErrNotAuthenticated}
		case domain.SessionExpired:
			m.mu.Unlock()
			return nil, &domain.AuthError{Op: "acquire", Err: domain.ErrCredentialExpired}
		}

		now := m.clock.Now()
		if m.cred.Usable(now) {
			if m.state == domain.SessionAuthenticated && m.cred.CanRefresh() && m.cred.ExpiresWithin(now, m.margin) {
				m.startRefreshLocked()
			}
			clone := m.cred.Clone()
			m.mu.Unlock()
			return clone, nil
		}

		if m.state == domain.SessionAuthenticated {
			if !m.cred.CanRefresh() {
				m.setStateLocked(domain.SessionExpired, domain.FlowNone)
				m.mu.Unlock()
				return nil, &domain.AuthError{Op: "acquire", Err: domain.ErrCredentialExpired}
			}
			m.startRefreshLocked()
		}

		changed := m.changed
		m.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// WithCredential runs fn with a credential that is destroyed on every exit
// path. A credential rejected by the remote is refreshed and fn retried once.
func (m *CredentialManager) WithCredential(ctx context.Context, fn func(*domain.Credential) error) error {
	err := m.withCredentialOnce(ctx, fn)
	if !errors.Is(err, domain.ErrUnauthorized) {
		return err
	}

	if refreshErr := m.Refresh(ctx); refreshErr != nil {
		return errors.Join(err, refreshErr)
	}
	return m.withCredentialOnce(ctx, fn)
}

func (m *CredentialManager) withCredentialOnce(ctx context.Context, fn func(*domain.Credential) error) error {
	cred, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer cred.Destroy()
	return fn(cred)
}

// startRefreshLocked moves to Refreshing and refreshes in the background.
func (m *CredentialManager) startRefreshLocked() {
	m.setStateLocked(domain.SessionRefreshing, domain.FlowNone)
	go func() {
		_ = m.Refresh(m.bgCtx)
	}()
}

// Refresh exchanges the refresh token for a new credential. Concurrent
// callers share one request.
func (m *CredentialManager) Refresh(ctx context.Context) error {
	result := m.refreshes.DoChan(refreshFlightKey, func() (any, error) {
		return nil, m.refresh()
	})
	select {
	case r := <-result:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *CredentialManager) refresh() error {
	m.mu.Lock()
	switch m.state {
	case domain.SessionAuthenticated, domain.SessionRefreshing:
	case domain.SessionExpired:
		m.mu.Unlock()
		return &domain.AuthError{Op: "refresh", Err: domain.ErrCredentialExpired}
	default:
		m.mu.Unlock()
		return &domain.AuthError{Op: "refresh", Err: domain.ErrNotAuthenticated}
	}
	if !m.cred.CanRefresh() {
		m.setStateLocked(domain.SessionExpired, domain.FlowNone)
		m.mu.Unlock()
		return &domain.AuthError{Op: "refresh", Err: domain.ErrCredentialExpired}
	}
	gen := m.gen
	refreshToken := m.cred.RefreshToken.Clone()
	m.setStateLocked(domain.SessionRefreshing, domain.FlowNone)
	m.mu.Unlock()
	defer refreshToken.Destroy()

	ctx, cancel := context.WithTimeout(m.bgCtx, refreshRequestTimeout)
	defer cancel()
	grant, err := m.tokens.Refresh(ctx, refreshToken.Bytes())
	defer grant.Wipe()

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return &domain.AuthError{Op: "refresh", Err: domain.ErrNotAuthenticated}
	}

	if err != nil {
		if errors.Is(err, domain.ErrRefreshRejected) {
			m.metrics.ObserveRefresh(ports.OutcomeRejected)
			m.setStateLocked(domain.SessionExpired, domain.FlowNone)
			m.mu.Unlock()
			m.logger.Warn("refresh token rejected, sign in again", "err", err)
			m.clearStored()
			return &domain.AuthError{Op: "refresh", Err: err}
		}

		m.metrics.ObserveRefresh(ports.OutcomeError)
		if m.cred.Usable(m.clock.Now()) {
			m.setStateLocked(domain.SessionAuthenticated, domain.FlowNone)
		} else {
			m.setStateLocked(domain.SessionExpired, domain.FlowNone)
		}
		m.mu.Unlock()
		m.logger.Warn("credential refresh failed", "err", err)
		return &domain.AuthError{Op: "refresh", Err: err}
	}

	m.metrics.ObserveRefresh(ports.OutcomeOK)
	cred := credentialFromGrant(&grant, m.clock.Now(), m.cred)
	m.replaceLocked(cred)
	m.setStateLocked(domain.SessionAuthenticated, domain.FlowNone)
	blob := encodeCredential(cred)
	m.mu.Unlock()

	m.logger.Debug("credential refreshed", "credential", cred)
	m.persist(blob)
	return nil
}

// Logout destroys the session locally and in both secret stores. Remote
// revocation is best effort. It always returns nil.
func (m *CredentialManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.gen++
	cred := m.cred
	m.cred = nil
	m.setStateLocked(domain.SessionLoggedOut, domain.FlowNone)
	m.mu.Unlock()

	if cred != nil {
		if cred.CanRefresh() {
			if err := m.tokens.Revoke(ctx, cred.RefreshToken.Bytes()); err != nil {
				m.logger.Warn("remote revocation failed", "err", err)
			}
		}
		cred.Destroy()
	}

	if err := m.store.Delete(ctx, m.key); err != nil && !errors.Is(err, domain.ErrSecretNotFound) {
		m.logger.Warn("clear stored credential", "err", err)
	}
	return nil
}

// Close wipes in-memory credential material at process exit. The stored
// blob is kept.
func (m *CredentialManager) Close() {
	m.bgCancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	if m.cred != nil {
		m.cred.Destroy()
		m.cred = nil
	}
	if m.state != domain.SessionLoggedOut {
		m.setStateLocked(domain.SessionUnauthenticated, domain.FlowNone)
	}
}

// StorageFallback is the secret store hook for writes that landed in the
// weaker file store.
func (m *CredentialManager) StorageFallback(op string, primaryErr error) {
	m.mu.Lock()
	m.fallback = true
	m.mu.Unlock()

	m.logger.Warn("os secret store unavailable, using file fallback", "op", op, "err", primaryErr)
	m.events.Publish(domain.Event{
		Kind: domain.EventCredentialStorageWarning,
		Err:  fmt.Errorf("%s used file fallback: %w", op, primaryErr),
	})
}

func (m *CredentialManager) persist(blob []byte) {
	defer secret.Wipe(blob)

	ctx, cancel := context.WithTimeout(m.bgCtx, storeTimeout)
	defer cancel()
	if err := m.store.Put(ctx, m.key, blob); err != nil {
		m.logger.Error("persist credential", "err", err)
		m.events.Publish(domain.Event{Kind: domain.EventCredentialStorageWarning, Err: err})
	}
}

func (m *CredentialManager) clearStored() {
	ctx, cancel := context.WithTimeout(m.bgCtx, storeTimeout)
	defer cancel()
	if err := m.store.Delete(ctx, m.key); err != nil && !errors.Is(err, domain.ErrSecretNotFound) {
		m.logger.Warn("clear stored credential", "err", err)
	}
}

func (m *CredentialManager) replaceLocked(cred *domain.Credential) {
	if m.cred != nil && m.cred != cred {
		m.cred.Destroy()
	}
	m.cred = cred
}

func (m *CredentialManager) setStateLocked(state domain.SessionState, flow domain.FlowKind) {
	if m.state == state && m.flow == flow {
		return
	}
	if !m.state.CanTransition(state) && m.state != state {
		m.logger.Debug("unexpected session transition", "from", m.state, "to", state)
	}
	m.state = state
	m.flow = flow
	close(m.changed)
	m.changed = make(chan struct{})
	m.events.Publish(domain.Event{Kind: domain.EventCredentialStateChanged, State: state})
}
