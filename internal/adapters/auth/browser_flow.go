package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/bnema/terms-cli/internal/ports"
	"github.com/gorilla/mux"
)

const DefaultCallbackPath = "/"

var (
	ErrStateMismatch   = errors.New("oauth callback state mismatch")
	ErrCallbackTimeout = fmt.Errorf("waiting for oauth callback: %w", domain.ErrFlowTimeout)
	ErrMissingState    = errors.New("expected state is required")
)

type AuthorizationRequest struct {
	AuthURL       string
	ClientID      string
	RedirectURI   string
	Scopes        []string
	State         string
	CodeChallenge string
	// Prompt is passed through as the prompt parameter when set.
	Prompt string
}

func NewState() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func BuildAuthorizationURL(req AuthorizationRequest) (string, error) {
	if req.AuthURL == "" {
		return "", errors.New("auth url is required")
	}
	if req.ClientID == "" {
		return "", errors.New("client id is required")
	}
	if req.RedirectURI == "" {
		return "", errors.New("redirect uri is required")
	}
	if req.State == "" {
		return "", errors.New("state is required")
	}
	if req.CodeChallenge == "" {
		return "", errors.New("code challenge is required")
	}

	parsed, err := url.Parse(req.AuthURL)
	if err != nil {
		return "", fmt.Errorf("parse auth url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("auth url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("auth url host is required")
	}

	q := parsed.Query()
	q.Set("response_type", "code")
	q.Set("response_mode", "query")
	q.Set("client_id", req.ClientID)
	q.Set("redirect_uri", req.RedirectURI)
	if len(req.Scopes) > 0 {
		q.Set("scope", strings.Join(req.Scopes, " "))
	}
	q.Set("state", req.State)
	q.Set("code_challenge", req.CodeChallenge)
	q.Set("code_challenge_method", PKCEChallengeMethodS256)
	if req.Prompt != "" {
		q.Set("prompt", req.Prompt)
	}
	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}

// AuthorizationURL builds the browser URL for an authorization-code flow
// with PKCE.
func (c Client) AuthorizationURL(redirectURI, state, challenge string) (string, error) {
	authURL, err := buildAPIURL(c.API.BaseURL, c.API.AuthorizePath)
	if err != nil {
		return "", err
	}
	return BuildAuthorizationURL(AuthorizationRequest{
		AuthURL:       authURL,
		ClientID:      c.ClientID,
		RedirectURI:   redirectURI,
		Scopes:        c.scopes(),
		State:         state,
		CodeChallenge: challenge,
		Prompt:        "select_account",
	})
}

// ExchangeCode trades an authorization code for tokens.
func (c Client) ExchangeCode(ctx context.Context, code, verifier, redirectURI string) (ports.TokenGrant, error) {
	if err := c.requireClientID(); err != nil {
		return ports.TokenGrant{}, err
	}
	if redirectURI == "" {
		return ports.TokenGrant{}, errors.New("redirect uri is required")
	}
	if code == "" {
		return ports.TokenGrant{}, errors.New("authorization code is required")
	}
	if verifier == "" {
		return ports.TokenGrant{}, errors.New("code verifier is required")
	}

	grant, err := c.postToken(ctx, encodeForm(
		field("grant_type", "authorization_code"),
		field("client_id", c.ClientID),
		field("code", code),
		field("redirect_uri", redirectURI),
		field("code_verifier", verifier),
		field("scope", strings.Join(c.scopes(), " ")),
	))
	if err != nil {
		var oauthErr *oauthError
		if errors.As(err, &oauthErr) && oauthErr.Code == "invalid_grant" {
			return ports.TokenGrant{}, fmt.Errorf("exchange code for tokens: %w: %w", domain.ErrFlowDenied, oauthErr)
		}
		return ports.TokenGrant{}, fmt.Errorf("exchange code for tokens: %w", err)
	}
	return grant, nil
}

// Loopback opens callback servers on a local address.
type Loopback struct {
	ListenAddr string
	Path       string
}

var _ ports.CallbackListener = Loopback{}

func (l Loopback) Listen(expectedState string) (ports.CallbackSession, error) {
	return StartCallbackServer(l.ListenAddr, l.Path, expectedState)
}

// CallbackServer accepts exactly one authorization redirect.
type CallbackServer struct {
	expectedState string
	path          string
	listener      net.Listener
	server        *http.Server
	resultCh      chan callbackResult
	resultOnce    sync.Once
	closeOnce     sync.Once
}

var _ ports.CallbackSession = (*CallbackServer)(nil)

type callbackResult struct {
	code string
	err  error
}

func StartCallbackServer(listenAddr, path, expectedState string) (*CallbackServer, error) {
	if expectedState == "" {
		return nil, ErrMissingState
	}
	if listenAddr == "" {
		listenAddr = "127.0.0.1:0"
	}
	if path == "" {
		path = DefaultCallbackPath
	}

	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen callback server: %w", err)
	}

	cb := &CallbackServer{
		expectedState: expectedState,
		path:          path,
		listener:      listener,
		resultCh:      make(chan callbackResult, 1),
	}

	router := mux.NewRouter()
	router.HandleFunc(path, cb.handleCallback).Methods(http.MethodGet)

	cb.server = &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if serveErr := cb.server.Serve(cb.listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			cb.trySendResult(callbackResult{err: serveErr})
		}
	}()

	return cb, nil
}

func (c *CallbackServer) RedirectURI() string {
	if tcpAddr, ok := c.listener.Addr().(*net.TCPAddr); ok {
		if c.path == "/" {
			return fmt.Sprintf("http://localhost:%d", tcpAddr.Port)
		}
		return fmt.Sprintf("http://localhost:%d%s", tcpAddr.Port, c.path)
	}
	return "http://localhost" + c.path
}

// WaitForCode blocks until the redirect arrives or ctx is done. The server
// is closed on return.
func (c *CallbackServer) WaitForCode(ctx context.Context) (string, error) {
	defer c.Close()

	select {
	case result := <-c.resultCh:
		return result.code, result.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrCallbackTimeout
		}
		return "", ctx.Err()
	}
}

func (c *CallbackServer) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		closeErr = c.server.Close()
	})
	return closeErr
}

func (c *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")

	if state != c.expectedState {
		c.trySendResult(callbackResult{err: ErrStateMismatch})
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}
	if oauthErrCode := r.URL.Query().Get("error"); oauthErrCode != "" {
		description := firstLine(r.URL.Query().Get("error_description"))
		err := fmt.Errorf("authorization failed: %s", oauthErrCode)
		if description != "" {
			err = fmt.Errorf("authorization failed: %s: %s", oauthErrCode, description)
		}
		if oauthErrCode == "access_denied" {
			err = fmt.Errorf("%w: %w", domain.ErrFlowDenied, err)
		}
		c.trySendResult(callbackResult{err: err})
		http.Error(w, "authorization failed", http.StatusBadRequest)
		return
	}
	if code == "" {
		c.trySendResult(callbackResult{err: errors.New("missing authorization code")})
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	c.trySendResult(callbackResult{code: code})
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Authentication complete. You can close this window."))
}

func (c *CallbackServer) trySendResult(result callbackResult) {
	c.resultOnce.Do(func() {
		c.resultCh <- result
	})
}
