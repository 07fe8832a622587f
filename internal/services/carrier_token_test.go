package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/internal/apperr"
)

// carrierServer fakes the carrier login endpoint. status decides the HTTP
// status of the n-th login (1-based).
type carrierServer struct {
	*httptest.Server
	logins    atomic.Int32
	expiresIn int
	status    func(n int32) int
	delay     time.Duration
}

func newCarrierServer(t *testing.T) *carrierServer {
	t.Helper()
	cs := &carrierServer{status: func(int32) int { return http.StatusOK }}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/users/login", func(w http.ResponseWriter, r *http.Request) {
		n := cs.logins.Add(1)
		if cs.delay > 0 {
			time.Sleep(cs.delay)
		}
		code := cs.status(n)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if code != http.StatusOK {
			_, _ = w.Write([]byte(`{"status":false,"message":"nope"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":     true,
			"data":       "tok-" + string(rune('0'+n)),
			"expires_in": cs.expiresIn,
		})
	})
	cs.Server = httptest.NewServer(mux)
	t.Cleanup(cs.Close)
	return cs
}

func (cs *carrierServer) client() *CarrierClient {
	return NewCarrierClient(cs.URL, "ops@example.com", "pw", 2*time.Second, nil)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTokenCacheReusesValidToken(t *testing.T) {
	cs := newCarrierServer(t)
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache := NewCarrierTokenCache(cs.client(), time.Hour, time.Minute, WithClock(clock.Now))

	assert.Equal(t, TokenEmpty, cache.State())

	first, err := cache.Token(context.Background())
	require.NoError(t, err)
	second, err := cache.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok-1", first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), cs.logins.Load())
	assert.Equal(t, TokenValid, cache.State())
}

func TestTokenCacheRefreshesInsideLeeway(t *testing.T) {
	cs := newCarrierServer(t)
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache := NewCarrierTokenCache(cs.client(), time.Hour, time.Minute, WithClock(clock.Now))

	_, err := cache.Token(context.Background())
	require.NoError(t, err)

	clock.Advance(58 * time.Minute)
	assert.Equal(t, TokenValid, cache.State())

	clock.Advance(time.Minute + time.Second)
	assert.Equal(t, TokenExpiring, cache.State())

	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
	assert.Equal(t, int32(2), cs.logins.Load())
	assert.Equal(t, TokenValid, cache.State())
}

func TestTokenCacheHonoursExpiresIn(t *testing.T) {
	cs := newCarrierServer(t)
	cs.expiresIn = 300
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache := NewCarrierTokenCache(cs.client(), time.Hour, time.Minute, WithClock(clock.Now))

	_, err := cache.Token(context.Background())
	require.NoError(t, err)

	clock.Advance(4*time.Minute + time.Second)
	assert.Equal(t, TokenExpiring, cache.State())
}

func TestTokenCacheInvalidate(t *testing.T) {
	cs := newCarrierServer(t)
	cache := NewCarrierTokenCache(cs.client(), time.Hour, time.Minute)

	_, err := cache.Token(context.Background())
	require.NoError(t, err)
	cache.Invalidate()
	assert.Equal(t, TokenEmpty, cache.State())

	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
}

func TestTokenCacheRetriesServerErrors(t *testing.T) {
	cs := newCarrierServer(t)
	cs.status = func(n int32) int {
		if n < 3 {
			return http.StatusServiceUnavailable
		}
		return http.StatusOK
	}
	cache := NewCarrierTokenCache(cs.client(), time.Hour, time.Minute, WithLoginRetry(3, time.Millisecond))

	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-3", tok)
	assert.Equal(t, int32(3), cs.logins.Load())
}

func TestTokenCacheGivesUpAfterAttempts(t *testing.T) {
	cs := newCarrierServer(t)
	cs.status = func(int32) int { return http.StatusBadGateway }
	cache := NewCarrierTokenCache(cs.client(), time.Hour, time.Minute, WithLoginRetry(3, time.Millisecond))

	_, err := cache.Token(context.Background())
	requireKind(t, err, apperr.KindUpstream)
	appErr, _ := apperr.As(err)
	assert.Equal(t, http.StatusBadGateway, appErr.Details["status"])
	assert.Contains(t, appErr.Details["payload"], "nope")
	assert.Equal(t, int32(3), cs.logins.Load())
	assert.Equal(t, TokenEmpty, cache.State())
}

func TestTokenCacheDoesNotRetryRejectedCredentials(t *testing.T) {
	cs := newCarrierServer(t)
	cs.status = func(int32) int { return http.StatusUnauthorized }
	cache := NewCarrierTokenCache(cs.client(), time.Hour, time.Minute, WithLoginRetry(3, time.Millisecond))

	_, err := cache.Token(context.Background())
	requireKind(t, err, apperr.KindUpstream)
	assert.Equal(t, int32(1), cs.logins.Load())
}

func TestTokenCacheCollapsesConcurrentLogins(t *testing.T) {
	cs := newCarrierServer(t)
	cs.delay = 50 * time.Millisecond
	cache := NewCarrierTokenCache(cs.client(), time.Hour, time.Minute)

	const callers = 20
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = cache.Token(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "tok-1", tokens[i])
	}
	assert.Equal(t, int32(1), cs.logins.Load())
}

func TestTokenCacheLoginSurvivesCancelledCaller(t *testing.T) {
	cs := newCarrierServer(t)
	cs.delay = 200 * time.Millisecond
	cache := NewCarrierTokenCache(cs.client(), time.Hour, time.Minute)

	leaderCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var leaderErr error
	leaderDone := make(chan struct{})
	go func() {
		defer close(leaderDone)
		_, leaderErr = cache.Token(leaderCtx)
	}()
	require.Eventually(t, func() bool { return cs.logins.Load() == 1 }, time.Second, 5*time.Millisecond)

	var waiterTok string
	var waiterErr error
	waiterDone := make(chan struct{})
	go func() {
		defer close(waiterDone)
		waiterTok, waiterErr = cache.Token(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-leaderDone
	<-waiterDone

	require.Error(t, leaderErr)
	assert.ErrorIs(t, leaderErr, context.Canceled)
	require.NoError(t, waiterErr)
	assert.Equal(t, "tok-1", waiterTok)
	assert.Equal(t, int32(1), cs.logins.Load())
	assert.Equal(t, TokenValid, cache.State())
}
