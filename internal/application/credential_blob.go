package application

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/bnema/terms-cli/internal/ports"
	"github.com/bnema/terms-cli/internal/secret"
)

var errBlobMissingAccessToken = errors.New("credential blob missing access_token")

// credentialBlob is the persisted form. Token fields decode straight into
// wipeable bytes.
type credentialBlob struct {
	AccessToken  secret.Bytes `json:"access_token"`
	RefreshToken secret.Bytes `json:"refresh_token,omitempty"`
	ExpiresAt    int64        `json:"expires_at,omitempty"`
	Scopes       []string     `json:"scopes,omitempty"`
}

func decodeCredential(blob []byte) (*domain.Credential, error) {
	var decoded credentialBlob
	if err := json.Unmarshal(blob, &decoded); err != nil {
		decoded.AccessToken.Wipe()
		decoded.RefreshToken.Wipe()
		return nil, fmt.Errorf("decode credential blob: %w", err)
	}
	if len(decoded.AccessToken) == 0 {
		decoded.RefreshToken.Wipe()
		return nil, errBlobMissingAccessToken
	}

	cred := &domain.Credential{
		AccessToken:  decoded.AccessToken.Buffer(),
		RefreshToken: decoded.RefreshToken.Buffer(),
		Scopes:       decoded.Scopes,
	}
	if decoded.ExpiresAt > 0 {
		cred.ExpiresAt = time.Unix(decoded.ExpiresAt, 0)
	}
	return cred, nil
}

// encodeCredential writes the blob without routing tokens through strings.
// The caller wipes the result once stored.
func encodeCredential(cred *domain.Credential) []byte {
	out := make([]byte, 0, 64+2*(cred.AccessToken.Len()+cred.RefreshToken.Len()))
	out = append(out, `{"access_token":`...)
	out = appendJSONBytes(out, cred.AccessToken.Bytes())
	if cred.CanRefresh() {
		out = append(out, `,"refresh_token":`...)
		out = appendJSONBytes(out, cred.RefreshToken.Bytes())
	}
	if !cred.ExpiresAt.IsZero() {
		out = append(out, `,"expires_at":`...)
		out = strconv.AppendInt(out, cred.ExpiresAt.Unix(), 10)
	}
	if len(cred.Scopes) > 0 {
		out = append(out, `,"scopes":[`...)
		for i, scope := range cred.Scopes {
			if i > 0 {
				out = append(out, ',')
			}
			out = appendJSONBytes(out, []byte(scope))
		}
		out = append(out, ']')
	}
	return append(out, '}')
}

const hexDigits = "0123456789abcdef"

func appendJSONBytes(dst, src []byte) []byte {
	dst = append(dst, '"')
	for _, c := range src {
		switch {
		case c == '"' || c == '\\':
			dst = append(dst, '\\', c)
		case c < 0x20:
			dst = append(dst, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
		default:
			dst = append(dst, c)
		}
	}
	return append(dst, '"')
}

// credentialFromGrant takes ownership of the grant's token bytes. A refresh
// response without a new refresh token keeps the previous one.
func credentialFromGrant(grant *ports.TokenGrant, now time.Time, previous *domain.Credential) *domain.Credential {
	cred := &domain.Credential{
		AccessToken:  grant.AccessToken.Buffer(),
		RefreshToken: grant.RefreshToken.Buffer(),
		Scopes:       strings.Fields(grant.Scope),
	}
	if grant.ExpiresIn > 0 {
		cred.ExpiresAt = now.Add(time.Duration(grant.ExpiresIn) * time.Second)
	}
	if cred.RefreshToken.Empty() && previous.CanRefresh() {
		cred.RefreshToken = previous.RefreshToken.Clone()
	}
	if len(cred.Scopes) == 0 && previous != nil {
		cred.Scopes = append([]string(nil), previous.Scopes...)
	}
	return cred
}
