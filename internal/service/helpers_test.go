package service

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"biliticket/possync/internal/apiclient"
	"biliticket/possync/internal/model"
	"biliticket/possync/internal/remotesim"
	"biliticket/possync/internal/repository"
	"biliticket/possync/internal/testutil"
)

type env struct {
	store repository.PersistentStore
	cache repository.EntityCache
	queue *OfflineQueue
	mode  *fakeMode
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewDB(t)
	return &env{
		store: testutil.NewStore(t, db),
		cache: repository.NewPGEntityCache(db),
		queue: NewOfflineQueue(repository.NewPGQueueRepository(db), nil),
		mode:  &fakeMode{},
	}
}

type fakeMode struct{ offline atomic.Bool }

func (m *fakeMode) EffectiveOffline() bool { return m.offline.Load() }

// newSimClient starts a simulated backend and logs a cashier in through a
// client sharing the env's store.
func newSimClient(t *testing.T, e *env) (*remotesim.Server, *apiclient.Client) {
	t.Helper()
	sim := remotesim.New(remotesim.Options{})
	sim.AddUser("cashier", "1234", apiclient.User{Name: "Ann", Role: "cashier"})
	srv := httptest.NewServer(sim.Handler())
	t.Cleanup(srv.Close)

	client := apiclient.New(e.store, apiclient.Options{BaseURL: srv.URL})
	_, err := client.Login(context.Background(), "cashier", "1234")
	require.NoError(t, err)
	return sim, client
}

// spyRemote records calls and lets tests script each createOrder outcome.
type spyRemote struct {
	mu          sync.Mutex
	createCalls int
	creates     []apiclient.CreateOrderRequest
	keys        []string
	createFn    func(n int) error
	gate        chan struct{}

	statusCalls []string
	cancelCalls []string
	payments    []apiclient.OfflinePayment
	live        []apiclient.PaymentRequest
}

func (s *spyRemote) CreateOrder(ctx context.Context, req apiclient.CreateOrderRequest) (*model.Order, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	s.createCalls++
	n := s.createCalls
	s.creates = append(s.creates, req)
	s.keys = append(s.keys, apiclient.IdempotencyKey(ctx))
	fn := s.createFn
	s.mu.Unlock()

	if fn != nil {
		if err := fn(n); err != nil {
			return nil, err
		}
	}
	subtotal, tax, total := model.Totals(req.Items, 0)
	return &model.Order{
		OrderID:  fmt.Sprintf("srv-%d", n),
		Items:    req.Items,
		Subtotal: subtotal, Tax: tax, Total: total,
		Status: model.OrderStatusPending,
	}, nil
}

func (s *spyRemote) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCalls
}

func (s *spyRemote) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return &model.Order{OrderID: id, Status: model.OrderStatusPending}, nil
}

func (s *spyRemote) SearchOrders(ctx context.Context, search apiclient.OrderSearch) ([]model.Order, error) {
	return nil, nil
}

func (s *spyRemote) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) (*model.Order, error) {
	s.mu.Lock()
	s.statusCalls = append(s.statusCalls, id+"="+string(status))
	s.mu.Unlock()
	return &model.Order{OrderID: id, Status: status}, nil
}

func (s *spyRemote) CancelOrder(ctx context.Context, id, reason string) (*model.Order, error) {
	s.mu.Lock()
	s.cancelCalls = append(s.cancelCalls, id)
	s.mu.Unlock()
	return &model.Order{OrderID: id, Status: model.OrderStatusCancelled}, nil
}

func (s *spyRemote) ProcessPayment(ctx context.Context, req apiclient.PaymentRequest) (*apiclient.Payment, error) {
	s.mu.Lock()
	s.live = append(s.live, req)
	s.mu.Unlock()
	return &apiclient.Payment{PaymentID: "pay-1", OrderID: req.OrderID, Amount: req.Amount}, nil
}

func (s *spyRemote) SubmitOfflinePayment(ctx context.Context, req apiclient.OfflinePayment) (*apiclient.Payment, error) {
	s.mu.Lock()
	s.payments = append(s.payments, req)
	s.mu.Unlock()
	return &apiclient.Payment{PaymentID: "pay-1", OrderID: req.OrderID, Amount: req.Amount}, nil
}

var sampleItems = []model.OrderItem{{ProductID: "p1", Quantity: 2, Price: 10}}

// enqueueOfflineOrders takes n orders through an offline OrderService.
func enqueueOfflineOrders(t *testing.T, e *env, remote RemoteAPI, n int) []*model.Order {
	t.Helper()
	e.mode.offline.Store(true)
	orders := NewOrderService(remote, e.cache, e.queue, e.mode, OrderServiceOptions{TerminalID: "till-1"})
	out := make([]*model.Order, 0, n)
	for i := 0; i < n; i++ {
		o, err := orders.CreateOrder(context.Background(), CreateOrderInput{Items: sampleItems})
		require.NoError(t, err)
		out = append(out, o)
	}
	e.mode.offline.Store(false)
	return out
}
