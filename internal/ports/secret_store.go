package ports

import "context"

// SecretStore persists opaque secret blobs. Get returns
// domain.ErrSecretNotFound when the key is absent. Callers own the returned
// slice and are expected to wipe it.
type SecretStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
