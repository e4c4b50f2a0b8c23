// Package graph implements the chat gateway on top of Microsoft Graph.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/bnema/terms-cli/internal/ports"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"

	maxResponseBytes = 8 << 20
	pageSize         = 50
	maxListPages     = 10
)

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	// RequestsPerSecond throttles all calls made through the client.
	RequestsPerSecond float64
	Burst             int
	// ThrottleRetries is how many 429 answers are waited out in place before
	// the call fails as transient.
	ThrottleRetries int
	MaxRetryDelay   time.Duration
	Clock           ports.Clock
}

type Client struct {
	baseURL         string
	httpClient      *http.Client
	limiter         *rate.Limiter
	throttleRetries int
	maxRetryDelay   time.Duration
	clock           ports.Clock
}

var _ ports.ChatGateway = (*Client)(nil)

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 8
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = int(rps)
	}
	throttleRetries := opts.ThrottleRetries
	if throttleRetries < 0 {
		throttleRetries = 0
	} else if throttleRetries == 0 {
		throttleRetries = 2
	}
	maxDelay := opts.MaxRetryDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	clock := opts.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &Client{
		baseURL:         baseURL,
		httpClient:      httpClient,
		limiter:         rate.NewLimiter(rate.Limit(rps), burst),
		throttleRetries: throttleRetries,
		maxRetryDelay:   maxDelay,
		clock:           clock,
	}
}

type request struct {
	method   string
	target   string
	body     any
	out      any
	mutating bool
	headers  map[string]string
}

func (c *Client) doJSON(ctx context.Context, cred *domain.Credential, r request) error {
	if cred == nil || cred.AccessToken.Empty() {
		return domain.ErrNotAuthenticated
	}

	endpoint, err := c.resolve(r.target)
	if err != nil {
		return err
	}

	var bodyBytes []byte
	if r.body != nil {
		bodyBytes, err = json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", r.method, err)
		}
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, r.method, endpoint, bodyReader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+string(cred.AccessToken.Bytes()))
		req.Header.Set("Accept", "application/json")
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for key, value := range r.headers {
			req.Header.Set(key, value)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("%s %s: %w: %w", r.method, r.target, domain.ErrTransient, err)
		}
		payload, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		_ = resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("read %s %s: %w: %w", r.method, r.target, domain.ErrTransient, readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if r.out == nil || len(payload) == 0 {
				return nil
			}
			if err := json.Unmarshal(payload, r.out); err != nil {
				return fmt.Errorf("decode %s %s: %w", r.method, r.target, err)
			}
			return nil
		}

		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		if resp.StatusCode == http.StatusTooManyRequests && attempt < c.throttleRetries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, retryAfter)); waitErr != nil {
				return waitErr
			}
			continue
		}

		var errPayload struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(payload, &errPayload)
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Code:       errPayload.Error.Code,
			Message:    errPayload.Error.Message,
			RetryAfter: retryAfter,
			Mutating:   r.mutating,
		}
	}
}

// resolve accepts a path relative to the base URL or an absolute link
// previously returned by Graph. Links pointing elsewhere are refused so the
// bearer token never leaves the configured endpoint.
func (c *Client) resolve(target string) (string, error) {
	if strings.HasPrefix(target, "/") {
		return c.baseURL + target, nil
	}
	if strings.HasPrefix(target, c.baseURL+"/") || strings.HasPrefix(target, c.baseURL+"?") {
		return target, nil
	}
	return "", fmt.Errorf("%w: %q", errForeignLink, target)
}

func (c *Client) retryDelay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return min(retryAfter, c.maxRetryDelay)
	}
	delay := 500 * time.Millisecond
	for i := 1; i < attempt && delay < c.maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, c.maxRetryDelay)
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := time.Parse(time.RFC1123, header); err == nil {
		delta := time.Until(ts)
		if delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
