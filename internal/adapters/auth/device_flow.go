package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/bnema/terms-cli/internal/ports"
)

const deviceCodeGrantType = "urn:ietf:params:oauth:grant-type:device_code"

// ErrDeviceFlowTimeout is returned once the device code expires unused.
var ErrDeviceFlowTimeout = fmt.Errorf("device authorization: %w", domain.ErrFlowTimeout)

type deviceCodeResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	Message                 string `json:"message"`
	ExpiresIn               int64  `json:"expires_in"`
	Interval                int64  `json:"interval"`
}

func (c Client) RequestDeviceCode(ctx context.Context) (ports.DeviceCode, error) {
	if err := c.requireClientID(); err != nil {
		return ports.DeviceCode{}, err
	}

	endpoint, err := buildAPIURL(c.API.BaseURL, c.API.DeviceCodePath)
	if err != nil {
		return ports.DeviceCode{}, err
	}

	form := encodeForm(
		field("client_id", c.ClientID),
		field("scope", strings.Join(c.scopes(), " ")),
	)
	body, status, err := c.postForm(ctx, endpoint, form)
	if err != nil {
		return ports.DeviceCode{}, fmt.Errorf("request device code: %w", err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return ports.DeviceCode{}, fmt.Errorf("request device code: %w", decodeOAuthError(status, body))
	}

	var payload deviceCodeResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return ports.DeviceCode{}, fmt.Errorf("decode device code response: %w", err)
	}

	verificationURL := payload.VerificationURI
	if payload.VerificationURIComplete != "" {
		verificationURL = payload.VerificationURIComplete
	}
	if payload.DeviceCode == "" || payload.UserCode == "" || verificationURL == "" {
		return ports.DeviceCode{}, errors.New("device code response missing required fields")
	}

	interval := payload.Interval
	if interval <= 0 {
		interval = 5
	}
	expiresIn := payload.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 900
	}

	return ports.DeviceCode{
		UserCode:        payload.UserCode,
		VerificationURL: verificationURL,
		Message:         payload.Message,
		DeviceCode:      payload.DeviceCode,
		Interval:        time.Duration(interval) * time.Second,
		ExpiresAt:       time.Now().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

// PollDeviceToken polls until the user completes the flow or the device
// code expires.
func (c Client) PollDeviceToken(ctx context.Context, code ports.DeviceCode) (ports.TokenGrant, error) {
	if err := c.requireClientID(); err != nil {
		return ports.TokenGrant{}, err
	}
	if code.DeviceCode == "" {
		return ports.TokenGrant{}, errors.New("device code is required")
	}

	interval := code.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	deadline := code.ExpiresAt
	if deadline.IsZero() {
		deadline = time.Now().Add(15 * time.Minute)
	}

	for {
		if time.Now().After(deadline) {
			return ports.TokenGrant{}, ErrDeviceFlowTimeout
		}

		grant, nextInterval, pending, err := c.pollTokenOnce(ctx, code.DeviceCode, interval, deadline)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ports.TokenGrant{}, ctxErr
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return ports.TokenGrant{}, ErrDeviceFlowTimeout
			}
			return ports.TokenGrant{}, err
		}
		if !pending {
			return grant, nil
		}
		interval = nextInterval

		waitUntil := time.Now().Add(interval)
		if waitUntil.After(deadline) {
			return ports.TokenGrant{}, ErrDeviceFlowTimeout
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ports.TokenGrant{}, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c Client) pollTokenOnce(ctx context.Context, deviceCode string, interval time.Duration, deadline time.Time) (ports.TokenGrant, time.Duration, bool, error) {
	reqCtx := ctx
	if ctxDeadline, ok := ctx.Deadline(); !ok || deadline.Before(ctxDeadline) {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	grant, err := c.postToken(reqCtx, encodeForm(
		field("grant_type", deviceCodeGrantType),
		field("client_id", c.ClientID),
		field("device_code", deviceCode),
	))
	if err == nil {
		return grant, 0, false, nil
	}

	var oauthErr *oauthError
	if !errors.As(err, &oauthErr) {
		return ports.TokenGrant{}, 0, false, err
	}

	nextInterval := interval
	if oauthErr.Interval > 0 {
		nextInterval = oauthErr.Interval
	}

	switch oauthErr.Code {
	case "authorization_pending":
		return ports.TokenGrant{}, nextInterval, true, nil
	case "slow_down":
		return ports.TokenGrant{}, nextInterval + 5*time.Second, true, nil
	case "expired_token", "code_expired":
		return ports.TokenGrant{}, 0, false, ErrDeviceFlowTimeout
	case "access_denied", "authorization_declined":
		return ports.TokenGrant{}, 0, false, fmt.Errorf("device authorization: %w: %w", domain.ErrFlowDenied, oauthErr)
	}

	return ports.TokenGrant{}, 0, false, fmt.Errorf("request token: %w", oauthErr)
}
