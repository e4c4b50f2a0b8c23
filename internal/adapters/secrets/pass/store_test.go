package pass

import (
	"context"
	"errors"
	"testing"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "terms/credential"

func TestStorePutUsesPassInsert(t *testing.T) {
	t.Parallel()

	called := false
	store := &Store{
		run: func(ctx context.Context, input []byte, args ...string) ([]byte, string, error) {
			called = true
			assert.Equal(t, context.Background(), ctx)
			assert.Equal(t, []string{"insert", "-m", "-f", testKey}, args)
			assert.Equal(t, "top-secret\n", string(input))
			return nil, "", nil
		},
	}

	err := store.Put(context.Background(), testKey, []byte("top-secret"))
	require.NoError(t, err)
	assert.True(t, called)
}

func TestStorePutWipesStdinCopy(t *testing.T) {
	t.Parallel()

	var seen []byte
	store := &Store{
		run: func(ctx context.Context, input []byte, args ...string) ([]byte, string, error) {
			seen = input
			return nil, "", nil
		},
	}

	require.NoError(t, store.Put(context.Background(), testKey, []byte("top-secret")))
	assert.Equal(t, make([]byte, len("top-secret\n")), seen)
}

func TestStoreGetUsesPassShowAndTrimsTrailingNewline(t *testing.T) {
	t.Parallel()

	store := &Store{
		run: func(ctx context.Context, input []byte, args ...string) ([]byte, string, error) {
			assert.Equal(t, []string{"show", testKey}, args)
			assert.Empty(t, input)
			return []byte("top-secret\n"), "", nil
		},
	}

	value, err := store.Get(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("top-secret"), value)
}

func TestStoreGetMapsMissingEntryToNotFound(t *testing.T) {
	t.Parallel()

	store := &Store{
		run: func(ctx context.Context, input []byte, args ...string) ([]byte, string, error) {
			return nil, "Error: terms/credential is not in the password store.", errors.New("exit status 1")
		},
	}

	_, err := store.Get(context.Background(), testKey)
	require.ErrorIs(t, err, domain.ErrSecretNotFound)
}

func TestStoreDeleteUsesPassRemove(t *testing.T) {
	t.Parallel()

	store := &Store{
		run: func(ctx context.Context, input []byte, args ...string) ([]byte, string, error) {
			assert.Equal(t, []string{"rm", "-f", testKey}, args)
			assert.Empty(t, input)
			return nil, "", nil
		},
	}

	err := store.Delete(context.Background(), testKey)
	require.NoError(t, err)
}

func TestStoreDeleteMissingEntryIsNotAnError(t *testing.T) {
	t.Parallel()

	store := &Store{
		run: func(ctx context.Context, input []byte, args ...string) ([]byte, string, error) {
			return nil, "Error: terms/credential is not in the password store.", errors.New("exit status 1")
		},
	}

	require.NoError(t, store.Delete(context.Background(), testKey))
}

func TestStoreGetReturnsClearError(t *testing.T) {
	t.Parallel()

	store := &Store{
		run: func(ctx context.Context, input []byte, args ...string) ([]byte, string, error) {
			return nil, "gpg: decryption failed", errors.New("exit status 2")
		},
	}

	_, err := store.Get(context.Background(), testKey)
	require.Error(t, err)
	assert.ErrorContains(t, err, "pass get")
	assert.ErrorContains(t, err, testKey)
	assert.ErrorContains(t, err, "gpg: decryption failed")
	assert.NotErrorIs(t, err, domain.ErrSecretNotFound)
}
