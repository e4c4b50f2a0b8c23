package domain

import (
	"log/slog"
	"slices"
	"time"

	"github.com/bnema/terms-cli/internal/secret"
)

// Credential is an access grant. Tokens live in zeroizable buffers and never
// appear in formatted or logged output.
type Credential struct {
	AccessToken  *secret.Buffer
	RefreshToken *secret.Buffer
	ExpiresAt    time.Time
	Scopes       []string
}

// Usable reports whether the access token is present and not past expiry.
// A zero ExpiresAt means the issuer did not declare one.
func (c *Credential) Usable(now time.Time) bool {
	if c == nil || c.AccessToken.Empty() {
		return false
	}
	return c.ExpiresAt.IsZero() || now.Before(c.ExpiresAt)
}

// ExpiresWithin reports whether the remaining lifetime is below margin.
func (c *Credential) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if c == nil {
		return true
	}
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(margin).Before(c.ExpiresAt)
}

func (c *Credential) CanRefresh() bool {
	return c != nil && !c.RefreshToken.Empty()
}

func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	return &Credential{
		AccessToken:  c.AccessToken.Clone(),
		RefreshToken: c.RefreshToken.Clone(),
		ExpiresAt:    c.ExpiresAt,
		Scopes:       slices.Clone(c.Scopes),
	}
}

// Destroy zeroes both tokens. Safe to call more than once.
func (c *Credential) Destroy() {
	if c == nil {
		return
	}
	c.AccessToken.Destroy()
	c.RefreshToken.Destroy()
}

func (c *Credential) LogValue() slog.Value {
	if c == nil {
		return slog.StringValue("<nil>")
	}
	return slog.GroupValue(
		slog.Time("expires_at", c.ExpiresAt),
		slog.Int("scopes", len(c.Scopes)),
		slog.Bool("refreshable", c.CanRefresh()),
	)
}

type SessionState string

const (
	SessionUnauthenticated SessionState = "unauthenticated"
	SessionFlowPending     SessionState = "flow_pending"
	SessionAuthenticated   SessionState = "authenticated"
	SessionRefreshing      SessionState = "refreshing"
	SessionExpired         SessionState = "expired"
	SessionLoggedOut       SessionState = "logged_out"
)

var sessionTransitions = map[SessionState][]SessionState{
	SessionUnauthenticated: {SessionFlowPending, SessionAuthenticated, SessionLoggedOut},
	SessionFlowPending:     {SessionAuthenticated, SessionUnauthenticated, SessionExpired, SessionLoggedOut},
	SessionAuthenticated:   {SessionRefreshing, SessionExpired, SessionFlowPending, SessionLoggedOut},
	SessionRefreshing:      {SessionAuthenticated, SessionExpired, SessionLoggedOut},
	SessionExpired:         {SessionFlowPending, SessionLoggedOut},
	SessionLoggedOut:       {SessionFlowPending, SessionLoggedOut},
}

func (s SessionState) CanTransition(to SessionState) bool {
	return slices.Contains(sessionTransitions[s], to)
}

// AllowsCredentialUse reports whether Acquire may hand out a credential or
// wait for one in this state.
func (s SessionState) AllowsCredentialUse() bool {
	switch s {
	case SessionAuthenticated, SessionRefreshing, SessionFlowPending:
		return true
	default:
		return false
	}
}

type FlowKind string

const (
	FlowNone       FlowKind = ""
	FlowDeviceCode FlowKind = "device_code"
	FlowPKCE       FlowKind = "pkce"
)

// Session is a token-free view of the credential manager state.
type Session struct {
	State     SessionState
	Flow      FlowKind
	ExpiresAt time.Time
	Scopes    []string
	// Fallback is set when the credential was persisted in the file fallback.
	Fallback bool
}

// DeviceCodePrompt is what the user needs to complete a device-code flow.
type DeviceCodePrompt struct {
	UserCode        string
	VerificationURL string
	Message         string
	ExpiresAt       time.Time
}
