package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "client-123", r.Form.Get("client_id"))
		assert.Equal(t, "0.AX/refresh+abc=", r.Form.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at2","refresh_token":"rt2","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	grant, err := testClient(server).Refresh(context.Background(), []byte("0.AX/refresh+abc="))
	require.NoError(t, err)
	assert.Equal(t, []byte("at2"), []byte(grant.AccessToken))
	assert.Equal(t, []byte("rt2"), []byte(grant.RefreshToken))
}

func TestRefreshReturnsInvalidGrantSentinel(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"expired"}`))
	}))
	defer server.Close()

	_, err := testClient(server).Refresh(context.Background(), []byte("refresh-abc"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRefreshTokenInvalid)
	assert.ErrorIs(t, err, domain.ErrRefreshRejected)
}

func TestRefreshClassifiesServerErrorsAsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := testClient(server).Refresh(context.Background(), []byte("refresh-abc"))
	require.ErrorIs(t, err, domain.ErrTransient)
	assert.NotErrorIs(t, err, domain.ErrRefreshRejected)
}

func TestRefreshWithoutTokenIsRejected(t *testing.T) {
	t.Parallel()

	_, err := Client{ClientID: "client-123"}.Refresh(context.Background(), nil)
	require.ErrorIs(t, err, domain.ErrRefreshRejected)
}

func TestRevokeIsNoopWithoutEndpoint(t *testing.T) {
	t.Parallel()

	require.NoError(t, Client{ClientID: "client-123"}.Revoke(context.Background(), []byte("rt")))
}

func TestRevokePostsToken(t *testing.T) {
	t.Parallel()

	var got url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/revoke", r.URL.Path)
		require.NoError(t, r.ParseForm())
		got = r.Form
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := testClient(server)
	client.API.RevokePath = "/revoke"

	require.NoError(t, client.Revoke(context.Background(), []byte("rt")))
	assert.Equal(t, "rt", got.Get("token"))
	assert.Equal(t, "refresh_token", got.Get("token_type_hint"))
}

func TestEncodeFormEscapesValues(t *testing.T) {
	t.Parallel()

	form := encodeForm(field("scope", "User.Read offline_access"), formField{key: "token", value: []byte("a/b+c=~")})

	parsed, err := url.ParseQuery(string(form))
	require.NoError(t, err)
	assert.Equal(t, "User.Read offline_access", parsed.Get("scope"))
	assert.Equal(t, "a/b+c=~", parsed.Get("token"))
}

func TestNewPKCEPairProducesS256Challenge(t *testing.T) {
	t.Parallel()

	pair, err := NewPKCEPair()
	require.NoError(t, err)
	assert.Len(t, pair.Verifier, 43)
	assert.Len(t, pair.Challenge, 43)
	assert.NotEqual(t, pair.Verifier, pair.Challenge)
}
