package keyring

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gokeyring "github.com/zalando/go-keyring"
)

func TestStoreRoundTrip(t *testing.T) {
	gokeyring.MockInit()
	store := NewStore("")

	require.NoError(t, store.Put(context.Background(), "credential", []byte("blob")))

	got, err := store.Get(context.Background(), "credential")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), got)

	require.NoError(t, store.Delete(context.Background(), "credential"))

	_, err = store.Get(context.Background(), "credential")
	require.ErrorIs(t, err, domain.ErrSecretNotFound)
}

func TestStoreSplitsLargeValues(t *testing.T) {
	gokeyring.MockInit()
	store := NewStore("terms-test")
	store.chunkSize = 4

	value := []byte("abcdefghij")
	require.NoError(t, store.Put(context.Background(), "credential", value))

	manifest, err := gokeyring.Get("terms-test", "credential")
	require.NoError(t, err)
	assert.Equal(t, "chunks:3", manifest)

	got, err := store.Get(context.Background(), "credential")
	require.NoError(t, err)
	assert.Equal(t, value, got)

	require.NoError(t, store.Put(context.Background(), "credential", []byte("ab")))
	_, err = gokeyring.Get("terms-test", "credential#0")
	require.ErrorIs(t, err, gokeyring.ErrNotFound)

	require.NoError(t, store.Put(context.Background(), "credential", value))
	require.NoError(t, store.Delete(context.Background(), "credential"))
	for _, part := range []string{"credential#0", "credential#1", "credential#2"} {
		_, err = gokeyring.Get("terms-test", part)
		require.ErrorIs(t, err, gokeyring.ErrNotFound)
	}
}

func TestStoreDeleteMissingIsNotAnError(t *testing.T) {
	gokeyring.MockInit()

	require.NoError(t, NewStore("").Delete(context.Background(), "credential"))
}

func TestStoreSurfacesBackendFailure(t *testing.T) {
	gokeyring.MockInitWithError(errors.New("secret service unavailable"))
	t.Cleanup(gokeyring.MockInit)
	store := NewStore("")

	err := store.Put(context.Background(), "credential", []byte("blob"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "secret service unavailable"))

	_, err = store.Get(context.Background(), "credential")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrSecretNotFound)
}

func TestStoreHonoursCancelledContext(t *testing.T) {
	gokeyring.MockInit()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewStore("").Put(ctx, "credential", []byte("blob"))
	require.ErrorIs(t, err, context.Canceled)
}
