package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biliticket/possync/internal/model"
	"biliticket/possync/internal/repository"
	"biliticket/possync/internal/testutil"
)

func writeEnvelope(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	code := 0
	if status >= 400 {
		code = status
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "message": message, "data": data})
}

// backend is a minimal retail API: "fresh" is the only valid access token
// once a refresh has happened.
type backend struct {
	mu           sync.Mutex
	validToken   string
	rejectAll    bool
	refreshCalls atomic.Int32
	orderHits    atomic.Int32
	authHeaders  []string

	// refresh behaviour
	refreshStatus int
	refreshGate   chan struct{}

	// order endpoint behaviour: when set, requests with this token block
	// until release is closed and then get a 401
	staleToken string
	arrived    chan struct{}
	release    chan struct{}
}

func newBackend() *backend {
	return &backend{validToken: "old", refreshStatus: http.StatusOK}
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		b.refreshCalls.Add(1)
		if b.refreshGate != nil {
			<-b.refreshGate
		}
		if b.refreshStatus != http.StatusOK {
			writeEnvelope(w, b.refreshStatus, "refresh token revoked", nil)
			return
		}
		b.mu.Lock()
		b.validToken = "fresh"
		b.mu.Unlock()
		writeEnvelope(w, http.StatusOK, "ok", map[string]string{"token": "fresh", "refreshToken": "r2"})
	})
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "1234" {
			writeEnvelope(w, http.StatusUnauthorized, "invalid credentials", nil)
			return
		}
		writeEnvelope(w, http.StatusOK, "ok", Session{
			Token: "old", RefreshToken: "r1",
			User: User{ID: "u-1", Username: req.Username},
		})
	})
	mux.HandleFunc("/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, "ok", nil)
	})
	mux.HandleFunc("/api/orders/", func(w http.ResponseWriter, r *http.Request) {
		b.orderHits.Add(1)
		auth := r.Header.Get("Authorization")
		b.mu.Lock()
		b.authHeaders = append(b.authHeaders, auth)
		valid := b.validToken
		b.mu.Unlock()

		if b.staleToken != "" && auth == "Bearer "+b.staleToken {
			b.arrived <- struct{}{}
			<-b.release
			writeEnvelope(w, http.StatusUnauthorized, "token expired", nil)
			return
		}
		if b.rejectAll || auth != "Bearer "+valid {
			writeEnvelope(w, http.StatusUnauthorized, "token expired", nil)
			return
		}
		if r.URL.Path == "/api/orders/broken" {
			writeEnvelope(w, http.StatusUnprocessableEntity, "order is closed", nil)
			return
		}
		writeEnvelope(w, http.StatusOK, "ok", model.Order{OrderID: "ord-1", Status: model.OrderStatusPending})
	})
	return mux
}

type fixture struct {
	client *Client
	store  repository.PersistentStore
	srv    *httptest.Server
}

func newFixture(t *testing.T, b *backend) fixture {
	t.Helper()
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)

	store := testutil.NewStore(t, testutil.NewDB(t))
	ctx := context.Background()
	require.NoError(t, store.SetString(ctx, KeyToken, "old"))
	require.NoError(t, store.SetString(ctx, KeyRefreshToken, "r1"))
	require.NoError(t, store.SetString(ctx, KeyUser, `{"id":"u-1","username":"cashier"}`))

	client := New(store, Options{BaseURL: srv.URL, Timeout: 5 * time.Second})
	return fixture{client: client, store: store, srv: srv}
}

func TestSend_AttachesStoredTokenEveryCall(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	f := newFixture(t, b)

	_, err := f.client.GetOrder(ctx, "ord-1")
	require.NoError(t, err)

	b.mu.Lock()
	b.validToken = "rotated"
	b.mu.Unlock()
	require.NoError(t, f.store.SetString(ctx, KeyToken, "rotated"))

	_, err = f.client.GetOrder(ctx, "ord-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer old", "Bearer rotated"}, b.authHeaders)
	assert.Zero(t, b.refreshCalls.Load())
}

func TestSend_RefreshesOnceOn401AndRetries(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	b.validToken = "fresh" // the stored "old" token is already expired server-side
	f := newFixture(t, b)

	order, err := f.client.GetOrder(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "ord-1", order.OrderID)

	assert.Equal(t, int32(1), b.refreshCalls.Load())
	assert.Equal(t, []string{"Bearer old", "Bearer fresh"}, b.authHeaders)

	token, _ := f.store.GetString(ctx, KeyToken)
	assert.Equal(t, "fresh", token)
	refresh, _ := f.store.GetString(ctx, KeyRefreshToken)
	assert.Equal(t, "r2", refresh)
}

func TestSend_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	b.validToken = "fresh"
	b.staleToken = "old"
	b.arrived = make(chan struct{}, 2)
	b.release = make(chan struct{})
	f := newFixture(t, b)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.client.GetOrder(ctx, "ord-1")
		}(i)
	}

	// both requests are in flight with the stale token before either gets its 401
	<-b.arrived
	<-b.arrived
	close(b.release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), b.refreshCalls.Load())
	assert.Equal(t, int32(4), b.orderHits.Load(), "two originals plus one retry each")
}

func TestSend_RefreshRejectedPurgesCredentialsAndFailsWaiters(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	b.validToken = "never"
	b.staleToken = "old"
	b.arrived = make(chan struct{}, 2)
	b.release = make(chan struct{})
	b.refreshStatus = http.StatusUnauthorized
	b.refreshGate = make(chan struct{})
	f := newFixture(t, b)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.client.GetOrder(ctx, "ord-1")
		}(i)
	}
	<-b.arrived
	<-b.arrived
	close(b.release)

	// let the second caller park behind the in-flight refresh
	time.Sleep(50 * time.Millisecond)
	close(b.refreshGate)
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, ErrSessionExpired)
	}
	assert.Equal(t, int32(1), b.refreshCalls.Load())
	assert.Equal(t, int32(2), b.orderHits.Load(), "parked requests must not be retried")

	for _, key := range []string{KeyToken, KeyRefreshToken, KeyUser} {
		v, err := f.store.GetString(ctx, key)
		require.NoError(t, err)
		assert.Empty(t, v, key)
	}
}

func TestSend_RetriesOnlyOnce(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	f := newFixture(t, b)

	// the server rejects every token, including the refreshed one
	b.rejectAll = true

	_, err := f.client.GetOrder(ctx, "ord-1")
	apiErr, ok := AsAPIError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, int32(1), b.refreshCalls.Load())
	assert.Equal(t, int32(2), b.orderHits.Load())
}

func TestSend_MissingRefreshTokenExpiresSession(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	b.validToken = "fresh"
	f := newFixture(t, b)
	require.NoError(t, f.store.Remove(ctx, KeyRefreshToken))

	_, err := f.client.GetOrder(ctx, "ord-1")
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Zero(t, b.refreshCalls.Load())

	token, _ := f.store.GetString(ctx, KeyToken)
	assert.Empty(t, token)
}

func TestSend_ClassifiesErrors(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	f := newFixture(t, b)

	_, err := f.client.GetOrder(ctx, "broken")
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "order is closed", apiErr.Message)
	assert.False(t, IsNetworkError(err))

	f.srv.Close()
	_, err = f.client.GetOrder(ctx, "ord-1")
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
	_, ok = AsAPIError(err)
	assert.False(t, ok)
}

func TestSend_RefreshUnreachableKeepsCredentials(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/refresh" {
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		writeEnvelope(w, http.StatusUnauthorized, "expired", nil)
	}))
	t.Cleanup(srv.Close)

	store := testutil.NewStore(t, testutil.NewDB(t))
	require.NoError(t, store.SetString(ctx, KeyToken, "old"))
	require.NoError(t, store.SetString(ctx, KeyRefreshToken, "r1"))
	client := New(store, Options{BaseURL: srv.URL})

	_, err := client.GetOrder(ctx, "ord-1")
	assert.True(t, IsNetworkError(err), "got %v", err)
	assert.False(t, errors.Is(err, ErrSessionExpired))

	refresh, _ := store.GetString(ctx, KeyRefreshToken)
	assert.Equal(t, "r1", refresh)
}

func TestSend_IdempotencyKeyHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(HeaderIdempotencyKey)
		writeEnvelope(w, http.StatusOK, "ok", model.Order{OrderID: "ord-9"})
	}))
	t.Cleanup(srv.Close)

	client := New(testutil.NewStore(t, testutil.NewDB(t)), Options{BaseURL: srv.URL})
	ctx := WithIdempotencyKey(context.Background(), "key-123")

	order, err := client.CreateOrder(ctx, CreateOrderRequest{Items: []model.OrderItem{{ProductID: "p1", Quantity: 1, Price: 2}}})
	require.NoError(t, err)
	assert.Equal(t, "ord-9", order.OrderID)
	assert.Equal(t, "key-123", got)
}

func TestLoginAndLogout(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)
	store := testutil.NewStore(t, testutil.NewDB(t))
	client := New(store, Options{BaseURL: srv.URL})

	_, err := client.Login(ctx, "cashier", "wrong")
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Zero(t, b.refreshCalls.Load(), "login failures never trigger a refresh")

	session, err := client.Login(ctx, "cashier", "1234")
	require.NoError(t, err)
	assert.Equal(t, "old", session.Token)

	user, err := client.StoredUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "cashier", user.Username)

	require.NoError(t, client.Logout(ctx))
	token, _ := client.AccessToken(ctx)
	assert.Empty(t, token)
	user, err = client.StoredUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)
}
