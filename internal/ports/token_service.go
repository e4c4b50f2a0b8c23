package ports

import (
	"context"
	"time"

	"github.com/bnema/terms-cli/internal/secret"
)

// DeviceCode is the server half of a device-code authorization.
type DeviceCode struct {
	UserCode        string
	VerificationURL string
	Message         string
	DeviceCode      string
	Interval        time.Duration
	ExpiresAt       time.Time
}

// TokenGrant is a token endpoint response. Token fields are decoded straight
// into wipeable byte slices.
type TokenGrant struct {
	AccessToken  secret.Bytes
	RefreshToken secret.Bytes
	ExpiresIn    int64
	Scope        string
}

func (g *TokenGrant) Wipe() {
	g.AccessToken.Wipe()
	g.RefreshToken.Wipe()
}

// TokenService speaks to the identity provider.
type TokenService interface {
	RequestDeviceCode(ctx context.Context) (DeviceCode, error)
	// PollDeviceToken blocks until the user completes the flow, the code
	// expires or ctx is done.
	PollDeviceToken(ctx context.Context, code DeviceCode) (TokenGrant, error)
	AuthorizationURL(redirectURI, state, challenge string) (string, error)
	ExchangeCode(ctx context.Context, code, verifier, redirectURI string) (TokenGrant, error)
	Refresh(ctx context.Context, refreshToken []byte) (TokenGrant, error)
	// Revoke is best effort; providers without a revocation endpoint return nil.
	Revoke(ctx context.Context, token []byte) error
}

// CallbackSession is a loopback acceptor waiting for one authorization code.
type CallbackSession interface {
	RedirectURI() string
	WaitForCode(ctx context.Context) (string, error)
	Close() error
}

type CallbackListener interface {
	Listen(expectedState string) (CallbackSession, error)
}

// AuthorizationChallenge is the PKCE verifier, its S256 challenge and the
// anti-forgery state of one browser login.
type AuthorizationChallenge struct {
	Verifier  string
	Challenge string
	State     string
}

type ChallengeSource interface {
	NewChallenge() (AuthorizationChallenge, error)
}
