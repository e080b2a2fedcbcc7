// Package api implements the authenticated request pipeline between the
// client and the Talent Tandem backend: it attaches credentials, retries
// transient transport failures, coordinates a single in-flight credential
// renewal shared by all concurrent callers, and maps failure responses onto
// a small error taxonomy.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/talent-tandem/tandem-go/cache"
	"github.com/talent-tandem/tandem-go/config"
	"github.com/talent-tandem/tandem-go/credential"
)

// Request describes one backend call. Unauthenticated marks the login and
// signup family of endpoints, which must never carry a stale credential or
// trigger renewal.
type Request struct {
	Method          string
	Path            string
	Body            any
	Unauthenticated bool

	// renewal marks the token-refresh call itself, which is excluded from
	// the 401 renewal protocol to prevent recursion.
	renewal bool

	// bearer overrides the access token in the authorization header. The
	// renewal call uses it to present the refresh credential.
	bearer string
}

// Client is the request pipeline.
type Client struct {
	baseURL    string
	httpClient *http.Client

	creds *credential.Store
	cache *cache.Cache

	requestTimeout time.Duration
	connectRetries int
	timeoutRetries int
	retryBackoff   time.Duration

	userScopedTTL time.Duration
	referenceTTL  time.Duration

	renew singleflight.Group

	// expiryMu serializes the populated-to-cleared credential transition so
	// concurrent failed callers produce a single expiry event.
	expiryMu sync.Mutex

	hookMu         sync.Mutex
	sessionExpired func()
}

// Option adjusts client construction.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The pipeline manages
// per-attempt timeouts itself, so the supplied client should not set one.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New creates a request pipeline for the backend at cfg.BaseURL.
func New(cfg config.APIConfig, cacheCfg config.CacheConfig, creds *credential.Store, respCache *cache.Cache, opts ...Option) *Client {
	c := &Client{
		baseURL:        cfg.BaseURL,
		httpClient:     &http.Client{},
		creds:          creds,
		cache:          respCache,
		requestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		connectRetries: cfg.ConnectRetries,
		timeoutRetries: cfg.TimeoutRetries,
		retryBackoff:   time.Duration(cfg.RetryBackoffSeconds) * time.Second,
		userScopedTTL:  time.Duration(cacheCfg.UserScopedTTLSeconds) * time.Second,
		referenceTTL:   time.Duration(cacheCfg.ReferenceTTLSeconds) * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SetSessionExpiredHook registers the callback invoked once per session
// expiry event, after credentials have been cleared. Consumers use it to
// force navigation back to the login view.
func (c *Client) SetSessionExpiredHook(hook func()) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()

	c.sessionExpired = hook
}

// Do executes the request and decodes the JSON response body into out. A nil
// out or an empty body skips decoding. Network and timeout failures are
// retried within bounded budgets; a 401 on an authenticated call is resolved
// via the single-flight renewal protocol and is invisible to the caller
// except as the final outcome.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	token := c.requestToken(req)

	status, body, err := c.send(ctx, req, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && !req.Unauthenticated && !req.renewal {
		if err := c.resolveUnauthorized(ctx, token); err != nil {
			return err
		}

		// Replay once against the renewed credential. A second 401 is
		// terminal: the new credential is not acceptable either.
		status, body, err = c.send(ctx, req, c.requestToken(req))
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return c.expireSession(ctx, errors.New("request unauthorized after credential renewal"))
		}
	}

	if status >= http.StatusBadRequest {
		return errorFromResponse(status, body)
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response for %s %s: %w", req.Method, req.Path, err)
	}

	return nil
}

// requestToken resolves the bearer a request will carry: the explicit
// override, the current access token, or nothing for unauthenticated calls.
func (c *Client) requestToken(req Request) string {
	if req.bearer != "" {
		return req.bearer
	}
	if req.Unauthenticated {
		return ""
	}
	return c.creds.Access()
}

// send performs the HTTP exchange for req, retrying connection failures and
// timeouts with linear backoff. It returns the status and fully read body of
// the first completed exchange; HTTP-level failures are the caller's concern.
func (c *Client) send(ctx context.Context, req Request, token string) (int, []byte, error) {
	payload, err := marshalBody(req.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("encoding request body for %s %s: %w", req.Method, req.Path, err)
	}

	var connectFailures, timeouts int

	op := func() (httpResult, error) {
		result, err := c.attempt(ctx, req, payload, token)
		if err == nil {
			return result, nil
		}

		if ctx.Err() != nil {
			// The caller's context ended; this is not a transport fault.
			return httpResult{}, backoff.Permanent(err)
		}

		if isTimeout(err) {
			timeouts++
			timeoutErr := &Error{Kind: KindTimeout, Message: "server is not responding", cause: err}
			if timeouts > c.timeoutRetries {
				return httpResult{}, backoff.Permanent(timeoutErr)
			}
			log.Ctx(ctx).Debug().Err(err).Str("path", req.Path).Msg("request timed out, retrying")
			return httpResult{}, timeoutErr
		}

		connectFailures++
		netErr := &Error{Kind: KindNetwork, Message: "unable to connect to server", cause: err}
		if connectFailures > c.connectRetries {
			return httpResult{}, backoff.Permanent(netErr)
		}
		log.Ctx(ctx).Debug().Err(err).Str("path", req.Path).Msg("connection failed, retrying")
		return httpResult{}, netErr
	}

	result, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(&linearBackOff{step: c.retryBackoff}),
		backoff.WithMaxTries(uint(c.connectRetries+c.timeoutRetries+1)),
	)
	if err != nil {
		return 0, nil, err
	}

	return result.status, result.body, nil
}

type httpResult struct {
	status int
	body   []byte
}

// attempt performs a single HTTP exchange with the per-call timeout applied.
func (c *Client) attempt(ctx context.Context, req Request, payload []byte, token string) (httpResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, c.baseURL+req.Path, bodyReader)
	if err != nil {
		return httpResult{}, fmt.Errorf("building request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return httpResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return httpResult{}, err
	}

	return httpResult{status: resp.StatusCode, body: body}, nil
}

// resolveUnauthorized handles a 401 on an authenticated call: renew via the
// shared single-flight group, or expire the session when renewal is
// impossible or fails. staleToken is the bearer the rejected request
// carried; when the stored credential has already moved past it, another
// caller's renewal covers this one and no further renewal is made.
func (c *Client) resolveUnauthorized(ctx context.Context, staleToken string) error {
	if current := c.creds.Access(); current != "" && current != staleToken {
		return nil
	}

	if c.creds.Refresh() == "" {
		return c.expireSession(ctx, errors.New("no refresh credential held"))
	}

	if err := c.renewOnce(ctx); err != nil {
		return c.expireSession(ctx, err)
	}

	return nil
}

// renewOnce performs the credential renewal, coalescing concurrent callers
// onto a single network call. Every caller observes the same outcome, and
// the new pair is durably stored before any caller returns, so replayed
// requests never carry a stale credential.
func (c *Client) renewOnce(ctx context.Context) error {
	_, err, shared := c.renew.Do("renew", func() (any, error) {
		refresh := c.creds.Refresh()
		if refresh == "" {
			return nil, errors.New("no refresh credential held")
		}

		// The renewal outcome is shared by every waiter, so it must not be
		// cut short by the first caller's cancellation.
		renewCtx := context.WithoutCancel(ctx)

		var pair credential.Pair
		err := c.Do(renewCtx, Request{
			Method:  http.MethodPost,
			Path:    "/auth/refresh",
			renewal: true,
			bearer:  refresh,
		}, &pair)
		if err != nil {
			return nil, fmt.Errorf("credential renewal failed: %w", err)
		}

		if pair.AccessToken == "" {
			return nil, errors.New("renewal response carried no access token")
		}

		if err := c.creds.Set(renewCtx, pair); err != nil {
			return nil, fmt.Errorf("storing renewed credentials: %w", err)
		}

		log.Ctx(ctx).Debug().Msg("credentials renewed")
		return nil, nil
	})

	if shared {
		log.Ctx(ctx).Debug().Msg("joined in-flight credential renewal")
	}

	return err
}

// expireSession clears credentials, fires the session-expired hook, and
// returns the terminal SessionExpired error. Many callers can reach this
// concurrently when a shared renewal fails; only the one that performs the
// populated-to-cleared transition clears the store and fires the hook, so
// one expiry event produces one hook invocation.
func (c *Client) expireSession(ctx context.Context, cause error) error {
	err := &Error{Kind: KindSessionExpired, Message: "session expired, please sign in again", cause: cause}

	c.expiryMu.Lock()
	if c.creds.Access() == "" && c.creds.Refresh() == "" {
		// another caller already expired this session
		c.expiryMu.Unlock()
		return err
	}
	if clearErr := c.creds.Clear(context.WithoutCancel(ctx)); clearErr != nil {
		log.Ctx(ctx).Warn().Err(clearErr).Msg("failed to clear credentials on session expiry")
	}
	c.expiryMu.Unlock()

	c.hookMu.Lock()
	hook := c.sessionExpired
	c.hookMu.Unlock()
	if hook != nil {
		hook()
	}

	log.Ctx(ctx).Info().Err(cause).Msg("session expired")
	return err
}

// AutoRenew proactively renews the credential pair whenever the access token
// nears expiry, checking every interval until ctx is cancelled. A transient
// renewal failure is retried on the next tick; the session is only expired
// when the refresh credential itself is missing or invalid.
func (c *Client) AutoRenew(ctx context.Context, interval time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			log.Ctx(ctx).Warn().Interface("recover", r).Msg("background credential renewal stopped")
		}
	}()

	for {
		if c.creds.Authenticated() && c.creds.NearExpiry() {
			if err := c.renewOnce(ctx); err != nil {
				refresh := c.creds.Refresh()
				if refresh == "" || !c.creds.Valid(refresh) {
					_ = c.expireSession(ctx, err)
				} else {
					log.Ctx(ctx).Info().Err(err).Msg("background renewal failed, will retry")
				}
			}
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			log.Ctx(ctx).Debug().Msg("background credential renewal shutting down")
			return
		}
	}
}

// linearBackOff waits step, 2×step, 3×step... between successive attempts.
type linearBackOff struct {
	step time.Duration
	n    int
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.n++
	return time.Duration(l.n) * l.step
}

func (l *linearBackOff) Reset() {
	l.n = 0
}

func marshalBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}

	if raw, ok := body.([]byte); ok {
		return raw, nil
	}

	return json.Marshal(body)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
