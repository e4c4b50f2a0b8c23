package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/bnema/terms-cli/internal/ports"
	"github.com/bnema/terms-cli/internal/secret"
)

const maxOAuthResponseBytes = 1 << 20

// DefaultScopes is what the client asks for: chat and channel read/write,
// presence, and offline_access for a refresh token.
var DefaultScopes = []string{
	"User.Read",
	"User.ReadBasic.All",
	"Chat.ReadWrite",
	"ChatMessage.Read",
	"ChatMessage.Send",
	"Presence.Read",
	"Presence.ReadWrite",
	"Team.ReadBasic.All",
	"Channel.ReadBasic.All",
	"ChannelMessage.Read.All",
	"ChannelMessage.Send",
	"offline_access",
}

type API struct {
	BaseURL        string
	DeviceCodePath string
	TokenPath      string
	AuthorizePath  string
	// RevokePath is optional; the Microsoft identity platform has none.
	RevokePath string
}

// NewAPI returns the v2.0 endpoints of an authority for one tenant.
func NewAPI(authority, tenant string) API {
	if strings.TrimSpace(tenant) == "" {
		tenant = "common"
	}
	prefix := "/" + url.PathEscape(tenant) + "/oauth2/v2.0"
	return API{
		BaseURL:        strings.TrimRight(authority, "/"),
		DeviceCodePath: prefix + "/devicecode",
		TokenPath:      prefix + "/token",
		AuthorizePath:  prefix + "/authorize",
	}
}

// Client implements ports.TokenService against an OAuth 2.0 provider.
type Client struct {
	API            API
	ClientID       string
	Scopes         []string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

var _ ports.TokenService = Client{}

type tokenResponse struct {
	AccessToken  secret.Bytes `json:"access_token"`
	RefreshToken secret.Bytes `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	Scope        string       `json:"scope"`
}

type oauthErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Interval         int64  `json:"interval"`
}

// oauthError is a non-2xx token endpoint answer.
type oauthError struct {
	StatusCode int
	Code       string
	Message    string
	Interval   time.Duration
}

func (e *oauthError) Error() string {
	return formatOAuthError(e.StatusCode, oauthErrorResponse{Error: e.Code, ErrorDescription: e.Message})
}

func (e *oauthError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError || e.Code == "temporarily_unavailable"
}

func (c Client) scopes() []string {
	if len(c.Scopes) > 0 {
		return c.Scopes
	}
	return DefaultScopes
}

func (c Client) requireClientID() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return errors.New("client id is required")
	}
	return nil
}

// postToken sends a form to the token endpoint and decodes a grant. The raw
// body is wiped once decoded.
func (c Client) postToken(ctx context.Context, form []byte) (ports.TokenGrant, error) {
	endpoint, err := buildAPIURL(c.API.BaseURL, c.API.TokenPath)
	if err != nil {
		return ports.TokenGrant{}, err
	}

	body, status, err := c.postForm(ctx, endpoint, form)
	defer secret.Wipe(body)
	if err != nil {
		return ports.TokenGrant{}, fmt.Errorf("request token: %w: %w", domain.ErrTransient, err)
	}

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return ports.TokenGrant{}, decodeOAuthError(status, body)
	}

	var payload tokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return ports.TokenGrant{}, fmt.Errorf("decode token response: %w", err)
	}
	if len(payload.AccessToken) == 0 {
		payload.RefreshToken.Wipe()
		return ports.TokenGrant{}, errors.New("token response missing access token")
	}

	return ports.TokenGrant{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresIn:    payload.ExpiresIn,
		Scope:        payload.Scope,
	}, nil
}

func (c Client) postForm(ctx context.Context, endpoint string, form []byte) ([]byte, int, error) {
	requestCtx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, bytes.NewReader(form))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOAuthResponseBytes))
	if err != nil {
		return body, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// formField is one form parameter. Secret values stay in byte slices.
type formField struct {
	key   string
	value []byte
}

func field(key, value string) formField {
	return formField{key: key, value: []byte(value)}
}

// encodeForm percent-encodes fields into a fresh buffer the caller wipes.
func encodeForm(fields ...formField) []byte {
	var out []byte
	for i, f := range fields {
		if i > 0 {
			out = append(out, '&')
		}
		out = append(out, url.QueryEscape(f.key)...)
		out = append(out, '=')
		out = appendQueryEscaped(out, f.value)
	}
	return out
}

func appendQueryEscaped(dst, src []byte) []byte {
	const hex = "0123456789ABCDEF"
	for _, b := range src {
		switch {
		case 'a' <= b && b <= 'z', 'A' <= b && b <= 'Z', '0' <= b && b <= '9',
			b == '-', b == '_', b == '.', b == '~':
			dst = append(dst, b)
		case b == ' ':
			dst = append(dst, '+')
		default:
			dst = append(dst, '%', hex[b>>4], hex[b&0x0f])
		}
	}
	return dst
}

func (c Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	requestTimeout := c.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	return context.WithTimeout(ctx, requestTimeout)
}

func decodeOAuthError(status int, body []byte) *oauthError {
	var payload oauthErrorResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return &oauthError{StatusCode: status}
	}
	return &oauthError{
		StatusCode: status,
		Code:       payload.Error,
		Message:    payload.ErrorDescription,
		Interval:   time.Duration(payload.Interval) * time.Second,
	}
}

func formatOAuthError(statusCode int, oauthErr oauthErrorResponse) string {
	if oauthErr.Error == "" {
		return fmt.Sprintf("status %d", statusCode)
	}
	if oauthErr.ErrorDescription != "" {
		return oauthErr.Error + ": " + firstLine(oauthErr.ErrorDescription)
	}
	return oauthErr.Error
}

// Microsoft error descriptions carry trace and correlation ids on extra lines.
func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(strings.TrimSuffix(line, "\r"))
}

func buildAPIURL(baseURL string, path string) (string, error) {
	if baseURL == "" {
		return "", errors.New("api base url is required")
	}
	if path == "" {
		return "", errors.New("api path is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse api base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("api base url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("api base url host is required")
	}

	endpoint, err := parsed.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse api path: %w", err)
	}
	return endpoint.String(), nil
}
