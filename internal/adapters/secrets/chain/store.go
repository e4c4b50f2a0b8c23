package chain

import (
	"context"
	"errors"
	"fmt"

	filestore "github.com/bnema/terms-cli/internal/adapters/secrets/file"
	keyringstore "github.com/bnema/terms-cli/internal/adapters/secrets/keyring"
	passstore "github.com/bnema/terms-cli/internal/adapters/secrets/pass"
	"github.com/bnema/terms-cli/internal/domain"
	"github.com/bnema/terms-cli/internal/ports"
)

// FallbackNotifier is told whenever an operation was served by the fallback
// backend because the primary failed.
type FallbackNotifier func(op string, primaryErr error)

// Store tries a primary backend and falls back to a second one when the
// primary is unavailable.
type Store struct {
	primary    ports.SecretStore
	fallback   ports.SecretStore
	onFallback FallbackNotifier
}

var _ ports.SecretStore = (*Store)(nil)

var (
	errNilPrimaryStore  = errors.New("primary secret store is nil")
	errNilFallbackStore = errors.New("fallback secret store is nil")
)

type Option func(*Store)

func WithFallbackNotifier(fn FallbackNotifier) Option {
	return func(s *Store) {
		s.onFallback = fn
	}
}

func NewStore(primary ports.SecretStore, fallback ports.SecretStore, opts ...Option) *Store {
	store, err := NewStoreChecked(primary, fallback, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

func NewStoreChecked(primary ports.SecretStore, fallback ports.SecretStore, opts ...Option) (*Store, error) {
	if primary == nil {
		return nil, errNilPrimaryStore
	}
	if fallback == nil {
		return nil, errNilFallbackStore
	}

	store := &Store{primary: primary, fallback: fallback}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

func NewPassFirstWithFileFallback(fileRoot string, opts ...Option) (*Store, error) {
	return NewStoreChecked(passstore.NewStore(), filestore.NewStore(fileRoot), opts...)
}

func NewKeyringFirstWithFileFallback(service, fileRoot string, opts ...Option) (*Store, error) {
	return NewStoreChecked(keyringstore.NewStore(service), filestore.NewStore(fileRoot), opts...)
}

// Put writes to the primary and removes any stale fallback copy. When the
// primary fails the fallback is written instead and the notifier fires.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	err := s.primary.Put(ctx, key, value)
	if err == nil {
		_ = s.fallback.Delete(ctx, key)
		return nil
	}
	if shouldSkipFallback(err) {
		return err
	}

	fallbackErr := s.fallback.Put(ctx, key, value)
	if fallbackErr == nil {
		s.notify("put", err)
		return nil
	}

	return &domain.StorageError{Primary: err, Fallback: fallbackErr}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.primary.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	if shouldSkipFallback(err) {
		return nil, err
	}

	fallbackValue, fallbackErr := s.fallback.Get(ctx, key)
	if fallbackErr == nil {
		s.notify("get", err)
		return fallbackValue, nil
	}
	if errors.Is(err, domain.ErrSecretNotFound) && errors.Is(fallbackErr, domain.ErrSecretNotFound) {
		return nil, fmt.Errorf("secret %q: %w", key, domain.ErrSecretNotFound)
	}

	return nil, fmt.Errorf("primary backend get failed: %w; fallback backend get failed: %w", err, fallbackErr)
}

// Delete clears both backends. A secret written to either one in the past
// must not survive.
func (s *Store) Delete(ctx context.Context, key string) error {
	var errs []error
	if err := s.primary.Delete(ctx, key); err != nil {
		errs = append(errs, fmt.Errorf("primary backend delete failed: %w", err))
	}
	if err := s.fallback.Delete(ctx, key); err != nil {
		errs = append(errs, fmt.Errorf("fallback backend delete failed: %w", err))
	}

	return errors.Join(errs...)
}

func (s *Store) notify(op string, primaryErr error) {
	if s.onFallback != nil {
		s.onFallback(op, primaryErr)
	}
}

func shouldSkipFallback(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
