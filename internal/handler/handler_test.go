package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"biliticket/possync/internal/apiclient"
	"biliticket/possync/internal/config"
	"biliticket/possync/internal/model"
	"biliticket/possync/internal/remotesim"
	"biliticket/possync/internal/repository"
	"biliticket/possync/internal/service"
	"biliticket/possync/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	router  *gin.Engine
	sim     *remotesim.Server
	client  *apiclient.Client
	queue   *service.OfflineQueue
	engine  *service.SyncEngine
	network *service.NetworkManager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()

	sim := remotesim.New(remotesim.Options{})
	sim.AddUser("cashier", "1234", apiclient.User{Name: "Ann", Role: "cashier"})
	sim.AddUser("boss", "9999", apiclient.User{Name: "Bea", Role: "manager"})
	sim.SetProducts(
		model.Product{ProductID: "p1", SKU: "COF-1", Name: "Coffee", Category: "drinks", Price: 3, Stock: 10},
		model.Product{ProductID: "p2", SKU: "BAG-1", Name: "Bagel", Category: "food", Price: 2.5, Stock: 5},
	)
	srv := httptest.NewServer(sim.Handler())
	t.Cleanup(srv.Close)

	db := testutil.NewDB(t)
	store := testutil.NewStore(t, db)
	cache := repository.NewPGEntityCache(db)
	queue := service.NewOfflineQueue(repository.NewPGQueueRepository(db), nil)
	client := apiclient.New(store, apiclient.Options{BaseURL: srv.URL})
	engine := service.NewSyncEngine(queue, cache, store, client, nil)
	network, err := service.NewNetworkManager(ctx, store, queue, engine, nil)
	require.NoError(t, err)
	t.Cleanup(network.Wait)

	orders := service.NewOrderService(client, cache, queue, network, service.OrderServiceOptions{TerminalID: "till-1"})
	catalog := service.NewCatalogService(client, orders, cache, network, nil)
	auth := service.NewAuthService(client, network, nil)

	cfg := config.Default()
	cfg.Server.Mode = "test"
	router := SetupRouter(cfg, zap.NewNop(), client, Handlers{
		Auth:    NewAuthHandler(auth, catalog),
		Status:  NewStatusHandler(network, engine, queue),
		Queue:   NewQueueHandler(queue, engine),
		Catalog: NewCatalogHandler(catalog),
		Orders:  NewOrderHandler(orders),
	})
	return &testAPI{router: router, sim: sim, client: client, queue: queue, engine: engine, network: network}
}

// envelope mirrors pkg/response.APIResponse with a raw data field.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func (a *testAPI) login(t *testing.T, username, password string) {
	t.Helper()
	status, env := a.do(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, status, env.Message)
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestRouter_Healthz(t *testing.T) {
	a := newTestAPI(t)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ProtectedRoutesRequireLogin(t *testing.T) {
	a := newTestAPI(t)

	status, _ := a.do(t, http.MethodGet, "/api/v1/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	// status stays readable before login
	status, _ = a.do(t, http.MethodGet, "/api/v1/status", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestAuth_LoginRejectsBadPassword(t *testing.T) {
	a := newTestAPI(t)
	status, env := a.do(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{Username: "cashier", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid credentials", env.Message)
}

func TestAuth_LoginWarmsReplica(t *testing.T) {
	a := newTestAPI(t)
	status, env := a.do(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{Username: "cashier", Password: "1234"})
	require.Equal(t, http.StatusOK, status)
	resp := decode[LoginResponse](t, env)
	assert.Equal(t, "Ann", resp.User.Name)
	require.NotNil(t, resp.Warm)
	assert.Equal(t, 2, resp.Warm.Products)

	// search is served from the cache, so it works with the till offline
	status, env = a.do(t, http.MethodPut, "/api/v1/offline-mode", gin.H{"enabled": true})
	require.Equal(t, http.StatusOK, status)
	status, env = a.do(t, http.MethodGet, "/api/v1/products?q=bag", nil)
	require.Equal(t, http.StatusOK, status)
	products := decode[[]model.Product](t, env)
	require.Len(t, products, 1)
	assert.Equal(t, "p2", products[0].ProductID)

	status, env = a.do(t, http.MethodGet, "/api/v1/auth/me", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "cashier", decode[apiclient.User](t, env).Username)
}

func TestAuth_LogoutEndsSession(t *testing.T) {
	a := newTestAPI(t)
	a.login(t, "cashier", "1234")

	status, env := a.do(t, http.MethodGet, "/api/v1/auth/session", nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decode[service.SessionInfo](t, env).LoggedIn)

	status, _ = a.do(t, http.MethodPost, "/api/v1/auth/logout", nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = a.do(t, http.MethodGet, "/api/v1/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestOrders_OfflineOrderIsQueuedThenSynced(t *testing.T) {
	a := newTestAPI(t)
	a.login(t, "cashier", "1234")
	a.network.SetOnline(true)

	status, _ := a.do(t, http.MethodPut, "/api/v1/offline-mode", gin.H{"enabled": true})
	require.Equal(t, http.StatusOK, status)

	status, env := a.do(t, http.MethodPost, "/api/v1/orders", service.CreateOrderInput{
		Items: []model.OrderItem{{ProductID: "p1", Quantity: 2, Price: 3}},
	})
	require.Equal(t, http.StatusAccepted, status)
	order := decode[model.Order](t, env)
	assert.True(t, order.IsOfflineOrder)

	status, env = a.do(t, http.MethodPost, "/api/v1/orders/"+order.OrderID+"/payments", PaymentRequest{Method: "cash"})
	require.Equal(t, http.StatusAccepted, status)
	assert.True(t, decode[service.PaymentResult](t, env).Queued)

	status, env = a.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, status)
	st := decode[StatusResponse](t, env)
	assert.Equal(t, int64(2), st.Pending)
	assert.True(t, st.EffectiveOffline)

	// manual sync is refused while offline
	status, _ = a.do(t, http.MethodPost, "/api/v1/sync", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	// leaving offline mode with the transport up syncs in the background
	status, _ = a.do(t, http.MethodPut, "/api/v1/offline-mode", gin.H{"enabled": false})
	require.Equal(t, http.StatusOK, status)
	a.network.Wait()

	status, env = a.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, status)
	st = decode[StatusResponse](t, env)
	assert.Zero(t, st.Pending)
	assert.NotNil(t, st.LastSyncTime)

	server := a.sim.Orders()
	require.Len(t, server, 1)
	assert.Equal(t, model.OrderStatusPaid, server[0].Status)

	// the offline id still resolves, now backed by the server copy
	status, env = a.do(t, http.MethodGet, "/api/v1/orders/"+order.OrderID, nil)
	require.Equal(t, http.StatusOK, status)
	synced := decode[model.Order](t, env)
	assert.True(t, synced.Synced)
	assert.Equal(t, server[0].OrderID, synced.ServerOrderID)
}

func TestSync_ManualRunOutlivesClientDisconnect(t *testing.T) {
	a := newTestAPI(t)
	a.login(t, "cashier", "1234")
	a.network.SetOnline(true)

	for _, id := range []string{"a", "b"} {
		_, err := a.queue.Enqueue(context.Background(), model.ActionCreateOrder, service.CreateOrderPayload{
			OrderID: model.OfflineIDPrefix + id,
			Items:   []model.OrderItem{{ProductID: "p1", Quantity: 1, Price: 3}},
		})
		require.NoError(t, err)
	}

	gone, cancel := context.WithCancel(context.Background())
	cancel()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil).WithContext(gone)
	NewStatusHandler(a.network, a.engine, a.queue).Sync(c)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	report := decode[service.SyncReport](t, env)
	assert.Equal(t, 2, report.Completed)
	assert.Zero(t, report.Deferred)
	assert.Len(t, a.sim.Orders(), 2)
}

func TestOrders_OnlineCreateAndCancel(t *testing.T) {
	a := newTestAPI(t)
	a.login(t, "cashier", "1234")
	a.network.SetOnline(true)

	status, env := a.do(t, http.MethodPost, "/api/v1/orders", service.CreateOrderInput{
		Items: []model.OrderItem{{ProductID: "p2", Quantity: 1, Price: 2.5}},
	})
	require.Equal(t, http.StatusOK, status)
	order := decode[model.Order](t, env)
	assert.False(t, order.IsOfflineOrder)

	status, env = a.do(t, http.MethodPost, "/api/v1/orders/"+order.OrderID+"/cancel", CancelRequest{Reason: "changed mind"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, model.OrderStatusCancelled, decode[model.Order](t, env).Status)

	// the backend refuses to reopen a cancelled order; its 409 passes through
	status, _ = a.do(t, http.MethodPatch, "/api/v1/orders/"+order.OrderID+"/status", StatusRequest{Status: model.OrderStatusCompleted})
	assert.Equal(t, http.StatusConflict, status)
}

func TestOrders_RejectsEmptyOrder(t *testing.T) {
	a := newTestAPI(t)
	a.login(t, "cashier", "1234")
	status, _ := a.do(t, http.MethodPost, "/api/v1/orders", service.CreateOrderInput{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestQueue_RetryRequiresSupervisor(t *testing.T) {
	a := newTestAPI(t)
	a.login(t, "cashier", "1234")
	a.network.SetOnline(true)
	ctx := context.Background()

	_, err := a.queue.Enqueue(ctx, model.ActionCreateOrder, service.CreateOrderPayload{
		OrderID: model.OfflineIDPrefix + "x",
		Items:   []model.OrderItem{{ProductID: "p1", Quantity: 1, Price: 3}},
	})
	require.NoError(t, err)
	a.sim.FailNext("POST /api/orders", http.StatusUnprocessableEntity, "bad terminal")

	status, env := a.do(t, http.MethodPost, "/api/v1/sync", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, decode[service.SyncReport](t, env).Failed)

	status, env = a.do(t, http.MethodGet, "/api/v1/queue?status=failed", nil)
	require.Equal(t, http.StatusOK, status)
	items := decode[[]model.QueueItem](t, env)
	require.Len(t, items, 1)
	assert.Contains(t, items[0].LastError, "bad terminal")

	status, _ = a.do(t, http.MethodPost, "/api/v1/queue/retry-failed", nil)
	assert.Equal(t, http.StatusForbidden, status)

	a.login(t, "boss", "9999")
	status, env = a.do(t, http.MethodPost, "/api/v1/queue/retry-failed", nil)
	require.Equal(t, http.StatusOK, status)

	count, err := a.queue.Count(ctx, model.QueueStatusPending)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	status, _ = a.do(t, http.MethodPost, "/api/v1/queue/abc/retry", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = a.do(t, http.MethodPost, "/api/v1/queue/999/retry", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestQueue_ListRejectsUnknownStatus(t *testing.T) {
	a := newTestAPI(t)
	a.login(t, "cashier", "1234")
	status, _ := a.do(t, http.MethodGet, "/api/v1/queue?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}
