package application

import (
	"testing"
	"time"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/bnema/terms-cli/internal/ports"
	"github.com/bnema/terms-cli/internal/secret"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialBlobEscapesTokenBytes(t *testing.T) {
	cred := &domain.Credential{
		AccessToken:  secret.Copy([]byte("a\"b\\c\n\x01")),
		RefreshToken: secret.Copy([]byte("r/1")),
		ExpiresAt:    time.Unix(1767225600, 0),
		Scopes:       []string{"Chat.ReadWrite"},
	}

	blob := encodeCredential(cred)
	decoded, err := decodeCredential(blob)
	require.NoError(t, err)
	defer decoded.Destroy()

	assert.True(t, cred.AccessToken.Equal(decoded.AccessToken))
	assert.True(t, cred.RefreshToken.Equal(decoded.RefreshToken))
	assert.Equal(t, cred.ExpiresAt, decoded.ExpiresAt)
	assert.Equal(t, cred.Scopes, decoded.Scopes)
}

func TestCredentialBlobRequiresAccessToken(t *testing.T) {
	_, err := decodeCredential([]byte(`{"refresh_token":"r"}`))

	assert.ErrorIs(t, err, errBlobMissingAccessToken)
}

func TestCredentialFromGrantKeepsPreviousRefreshToken(t *testing.T) {
	previous := &domain.Credential{
		AccessToken:  secret.Copy([]byte("old")),
		RefreshToken: secret.Copy([]byte("refresh-1")),
		Scopes:       []string{"Chat.Read"},
	}
	grant := &ports.TokenGrant{AccessToken: secret.Bytes("new"), ExpiresIn: 60}
	now := time.Unix(1767225600, 0)

	cred := credentialFromGrant(grant, now, previous)
	defer cred.Destroy()

	assert.Equal(t, "new", string(cred.AccessToken.Bytes()))
	assert.Equal(t, "refresh-1", string(cred.RefreshToken.Bytes()))
	assert.Equal(t, []string{"Chat.Read"}, cred.Scopes)
	assert.Equal(t, now.Add(time.Minute), cred.ExpiresAt)
	assert.Nil(t, grant.AccessToken)
}
