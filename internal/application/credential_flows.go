package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/bnema/terms-cli/internal/ports"
)

// DeviceFlow is a started device-code authorization.
type DeviceFlow struct {
	manager *CredentialManager
	code    ports.DeviceCode
	gen     uint64
}

func (f *DeviceFlow) Prompt() domain.DeviceCodePrompt {
	return domain.DeviceCodePrompt{
		UserCode:        f.code.UserCode,
		VerificationURL: f.code.VerificationURL,
		Message:         f.code.Message,
		ExpiresAt:       f.code.ExpiresAt,
	}
}

// Wait polls until the user completes the flow, the code expires or ctx is
// done, then installs the credential.
func (f *DeviceFlow) Wait(ctx context.Context) error {
	grant, err := f.manager.tokens.PollDeviceToken(ctx, f.code)
	defer grant.Wipe()
	if err != nil {
		err = flowError(ctx, err)
		f.manager.abortFlow(f.gen, err)
		return &domain.AuthError{Op: "device flow", Err: err}
	}
	return f.manager.install(f.gen, &grant)
}

// StartDeviceFlow requests a device code and enters FlowPending.
func (m *CredentialManager) StartDeviceFlow(ctx context.Context) (*DeviceFlow, error) {
	code, err := m.tokens.RequestDeviceCode(ctx)
	if err != nil {
		return nil, &domain.AuthError{Op: "device code", Err: err}
	}

	gen, err := m.beginFlow(domain.FlowDeviceCode)
	if err != nil {
		return nil, err
	}
	return &DeviceFlow{manager: m, code: code, gen: gen}, nil
}

// LoginBrowser runs the PKCE flow. open receives the authorization URL and is
// expected to show it to the user or launch a browser.
func (m *CredentialManager) LoginBrowser(ctx context.Context, open func(authURL string) error) error {
	if m.callback == nil || m.challenges == nil {
		return &domain.AuthError{Op: "browser login", Err: errors.New("browser login is not configured")}
	}

	challenge, err := m.challenges.NewChallenge()
	if err != nil {
		return &domain.AuthError{Op: "browser login", Err: err}
	}
	session, err := m.callback.Listen(challenge.State)
	if err != nil {
		return &domain.AuthError{Op: "browser login", Err: fmt.Errorf("start callback listener: %w", err)}
	}
	defer func() { _ = session.Close() }()

	authURL, err := m.tokens.AuthorizationURL(session.RedirectURI(), challenge.State, challenge.Challenge)
	if err != nil {
		return &domain.AuthError{Op: "browser login", Err: fmt.Errorf("build authorization url: %w", err)}
	}

	gen, err := m.beginFlow(domain.FlowPKCE)
	if err != nil {
		return err
	}

	if open != nil {
		if err := open(authURL); err != nil {
			m.abortFlow(gen, err)
			return &domain.AuthError{Op: "browser login", Err: err}
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, m.flowTTL)
	defer cancel()
	code, err := session.WaitForCode(waitCtx)
	if err != nil {
		err = flowError(waitCtx, err)
		m.abortFlow(gen, err)
		return &domain.AuthError{Op: "browser login", Err: err}
	}

	grant, err := m.tokens.ExchangeCode(ctx, code, challenge.Verifier, session.RedirectURI())
	defer grant.Wipe()
	if err != nil {
		err = flowError(ctx, err)
		m.abortFlow(gen, err)
		return &domain.AuthError{Op: "code exchange", Err: err}
	}
	return m.install(gen, &grant)
}

func (m *CredentialManager) beginFlow(kind domain.FlowKind) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.CanTransition(domain.SessionFlowPending) && m.state != domain.SessionFlowPending {
		return 0, &domain.AuthError{Op: "start flow", Err: fmt.Errorf("cannot start a flow while %s", m.state)}
	}
	m.gen++
	m.setStateLocked(domain.SessionFlowPending, kind)
	return m.gen, nil
}

// abortFlow leaves FlowPending after a failed flow. A session that still
// holds a credential from before the flow goes back to using it.
func (m *CredentialManager) abortFlow(gen uint64, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	m.logger.Info("authorization flow ended", "flow", m.flow, "err", cause)

	switch {
	case m.cred == nil:
		m.setStateLocked(domain.SessionUnauthenticated, domain.FlowNone)
	case m.cred.Usable(m.clock.Now()) || m.cred.CanRefresh():
		m.setStateLocked(domain.SessionAuthenticated, domain.FlowNone)
	default:
		m.setStateLocked(domain.SessionExpired, domain.FlowNone)
	}
}

func (m *CredentialManager) install(gen uint64, grant *ports.TokenGrant) error {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return &domain.AuthError{Op: "install credential", Err: domain.ErrFlowCancelled}
	}

	cred := credentialFromGrant(grant, m.clock.Now(), nil)
	m.replaceLocked(cred)
	m.fallback = false
	m.setStateLocked(domain.SessionAuthenticated, domain.FlowNone)
	blob := encodeCredential(cred)
	m.mu.Unlock()

	m.logger.Info("signed in", "credential", cred)
	m.persist(blob)
	return nil
}

// flowError maps caller cancellation onto ErrFlowCancelled and deadline
// expiry onto ErrFlowTimeout. Other errors pass through.
func flowError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrFlowDenied), errors.Is(err, domain.ErrFlowTimeout):
		return err
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", domain.ErrFlowTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", domain.ErrFlowCancelled, err)
	}
	return err
}
