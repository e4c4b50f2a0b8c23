package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/bnema/terms-cli/internal/ports"
	"github.com/bnema/terms-cli/internal/secret"
)

// ErrRefreshTokenInvalid means the provider will never accept this refresh
// token again.
var ErrRefreshTokenInvalid = domain.ErrRefreshRejected

func (c Client) Refresh(ctx context.Context, refreshToken []byte) (ports.TokenGrant, error) {
	if err := c.requireClientID(); err != nil {
		return ports.TokenGrant{}, err
	}
	if len(refreshToken) == 0 {
		return ports.TokenGrant{}, fmt.Errorf("refresh: %w: no refresh token", ErrRefreshTokenInvalid)
	}

	form := encodeForm(
		field("grant_type", "refresh_token"),
		field("client_id", c.ClientID),
		formField{key: "refresh_token", value: refreshToken},
		field("scope", strings.Join(c.scopes(), " ")),
	)
	defer secret.Wipe(form)

	grant, err := c.postToken(ctx, form)
	if err == nil {
		return grant, nil
	}

	var oauthErr *oauthError
	if errors.As(err, &oauthErr) {
		if oauthErr.retryable() {
			return ports.TokenGrant{}, fmt.Errorf("refresh: %w: %w", domain.ErrTransient, oauthErr)
		}
		return ports.TokenGrant{}, fmt.Errorf("refresh: %w: %w", ErrRefreshTokenInvalid, oauthErr)
	}
	return ports.TokenGrant{}, fmt.Errorf("refresh: %w", err)
}

// Revoke asks the provider to invalidate token when it exposes a revocation
// endpoint. Providers without one are a no-op.
func (c Client) Revoke(ctx context.Context, token []byte) error {
	if c.API.RevokePath == "" || len(token) == 0 {
		return nil
	}

	endpoint, err := buildAPIURL(c.API.BaseURL, c.API.RevokePath)
	if err != nil {
		return err
	}

	form := encodeForm(
		formField{key: "token", value: token},
		field("token_type_hint", "refresh_token"),
		field("client_id", c.ClientID),
	)
	defer secret.Wipe(form)

	body, status, err := c.postForm(ctx, endpoint, form)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("revoke token: %w", decodeOAuthError(status, body))
	}
	return nil
}
