package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/example/storefront/internal/apperr"
	"github.com/example/storefront/internal/telemetry"
)

// CarrierLogin obtains a fresh carrier token. CarrierClient implements it.
type CarrierLogin interface {
	Login(ctx context.Context) (CarrierToken, error)
}

type TokenState int

const (
	TokenEmpty TokenState = iota
	TokenValid
	// TokenExpiring means a token is cached but within the leeway of its
	// expiry, so the next request logs in again.
	TokenExpiring
)

func (s TokenState) String() string {
	switch s {
	case TokenValid:
		return "VALID"
	case TokenExpiring:
		return "EXPIRING"
	default:
		return "EMPTY"
	}
}

// CarrierTokenCache holds the carrier bearer token for the dispatcher.
// Concurrent callers that find no usable token share a single login. The
// login is idempotent, so it is retried with jittered exponential backoff on
// transport errors and 5xx answers; 4xx answers fail at once.
type CarrierTokenCache struct {
	login    CarrierLogin
	ttl      time.Duration
	leeway   time.Duration
	attempts uint64
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	metrics  *telemetry.Metrics
	logger   *slog.Logger

	mu     sync.RWMutex
	token  string
	expiry time.Time
	group  singleflight.Group
}

type TokenCacheOption func(*CarrierTokenCache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TokenCacheOption {
	return func(c *CarrierTokenCache) { c.now = now }
}

// WithLoginRetry sets the number of login attempts and the first backoff delay.
func WithLoginRetry(attempts int, initial time.Duration) TokenCacheOption {
	return func(c *CarrierTokenCache) {
		if attempts < 1 {
			attempts = 1
		}
		c.attempts = uint64(attempts)
		c.interval = initial
	}
}

// WithLoginTimeout bounds a shared login, retries included.
func WithLoginTimeout(d time.Duration) TokenCacheOption {
	return func(c *CarrierTokenCache) { c.timeout = d }
}

func WithTokenMetrics(m *telemetry.Metrics) TokenCacheOption {
	return func(c *CarrierTokenCache) { c.metrics = m }
}

func WithTokenLogger(l *slog.Logger) TokenCacheOption {
	return func(c *CarrierTokenCache) { c.logger = l }
}

// NewCarrierTokenCache uses ttl when the login response has no expiry and
// refreshes leeway before the token runs out.
func NewCarrierTokenCache(login CarrierLogin, ttl, leeway time.Duration, opts ...TokenCacheOption) *CarrierTokenCache {
	c := &CarrierTokenCache{
		login:    login,
		ttl:      ttl,
		leeway:   leeway,
		attempts: 3,
		interval: 200 * time.Millisecond,
		timeout:  30 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = orDiscard(c.logger)
	return c
}

// State reports the cache state at the current time.
func (c *CarrierTokenCache) State() TokenState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stateLocked()
}

func (c *CarrierTokenCache) stateLocked() TokenState {
	if c.token == "" {
		return TokenEmpty
	}
	if !c.now().Add(c.leeway).Before(c.expiry) {
		return TokenExpiring
	}
	return TokenValid
}

// Token returns the cached token while it is valid and logs in otherwise.
// The shared login is detached from any single caller's cancellation; each
// caller stops waiting when its own ctx is done.
func (c *CarrierTokenCache) Token(ctx context.Context) (string, error) {
	c.mu.RLock()
	if c.stateLocked() == TokenValid {
		token := c.token
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	ch := c.group.DoChan("login", func() (any, error) {
		// Another caller may have refreshed while we waited.
		c.mu.RLock()
		if c.stateLocked() == TokenValid {
			token := c.token
			c.mu.RUnlock()
			return token, nil
		}
		c.mu.RUnlock()
		loginCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.refresh(loginCtx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", transportError(carrierProvider, "login", ctx.Err())
	}
}

// Invalidate drops the cached token, e.g. after the carrier answered 401.
func (c *CarrierTokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiry = time.Time{}
}

func (c *CarrierTokenCache) refresh(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "carrier.Login")
	var err error
	defer func() { endSpan(span, err) }()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.interval
	policy.MaxInterval = 10 * c.interval
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, c.attempts-1), ctx)

	attempt := 0
	tok, err := backoff.RetryWithData(func() (CarrierToken, error) {
		attempt++
		tok, err := c.login.Login(ctx)
		if err == nil {
			return tok, nil
		}
		var status *CarrierStatusError
		if errors.As(err, &status) && status.Status < 500 {
			return CarrierToken{}, backoff.Permanent(err)
		}
		c.logger.Warn("carrier login failed", "attempt", attempt, "error", err)
		return CarrierToken{}, err
	}, b)
	if err != nil {
		c.metrics.CarrierLogin(ctx, "failed")
		err = loginError(err)
		return "", err
	}

	ttl := tok.ExpiresIn
	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	c.token = tok.Value
	c.expiry = c.now().Add(ttl)
	c.mu.Unlock()

	c.metrics.CarrierLogin(ctx, "ok")
	c.logger.Info("carrier token refreshed", "attempts", attempt, "ttl", ttl.String())
	return tok.Value, nil
}

func loginError(err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	var status *CarrierStatusError
	if errors.As(err, &status) {
		return apperr.Upstream(carrierProvider, "login failed", status.Body, err).WithDetail("status", status.Status)
	}
	return apperr.Upstream(carrierProvider, "login failed", nil, err)
}
