// Package remotesim is an in-process retail backend speaking the same
// routes and envelope as the real one. It backs the test suites and the
// `possync simulate` command for demos without a server.
package remotesim

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"biliticket/possync/internal/apiclient"
	"biliticket/possync/internal/model"
	"biliticket/possync/pkg/crypto"
	jwtpkg "biliticket/possync/pkg/jwt"
	"biliticket/possync/pkg/response"
)

type Options struct {
	// SigningKey defaults to a random key per server.
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	TaxRate    float64
	// PasswordCost is the bcrypt cost for account passwords; zero means the minimum.
	PasswordCost int
	Logger       *zap.Logger
}

type account struct {
	user         apiclient.User
	passwordHash string
}

type injectedFailure struct {
	status  int
	message string
}

// Server holds all backend state in memory.
type Server struct {
	mu       sync.Mutex
	jwt      *jwtpkg.Manager
	taxRate  float64
	cost     int
	logger   *zap.Logger
	accounts map[string]account
	refresh  map[string]string // refresh token -> username
	revoked  map[string]bool   // access token ids
	issued   []string          // access token ids, for bulk revocation
	products map[string]model.Product
	orders   map[string]*model.Order
	payments map[string]*apiclient.Payment
	replays  map[string]interface{} // idempotency key -> first response
	seq      int
	calls    map[string]int
	failures map[string][]injectedFailure

	sockets  map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
	engine   *gin.Engine
}

func New(opts Options) *Server {
	if opts.SigningKey == "" {
		key, err := crypto.GenerateRandomString(32)
		if err != nil {
			key = "remotesim-signing-key"
		}
		opts.SigningKey = key
	}
	if opts.PasswordCost == 0 {
		opts.PasswordCost = crypto.MinCost
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 7 * 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Server{
		jwt:      jwtpkg.NewManager(opts.SigningKey, "remotesim", opts.AccessTTL, opts.RefreshTTL),
		taxRate:  opts.TaxRate,
		cost:     opts.PasswordCost,
		logger:   opts.Logger,
		accounts: make(map[string]account),
		refresh:  make(map[string]string),
		revoked:  make(map[string]bool),
		products: make(map[string]model.Product),
		orders:   make(map[string]*model.Order),
		payments: make(map[string]*apiclient.Payment),
		replays:  make(map[string]interface{}),
		calls:    make(map[string]int),
		failures: make(map[string][]injectedFailure),
		sockets:  make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.countAndInject)

	r.GET("/ws/heartbeat", s.heartbeat)

	auth := r.Group("/api/auth")
	{
		auth.POST("/login", s.login)
		auth.POST("/refresh", s.refreshToken)
		auth.POST("/logout", s.logout)
	}

	api := r.Group("/api")
	api.Use(s.requireAccessToken)
	{
		api.GET("/auth/me", s.me)

		api.POST("/orders", s.createOrder)
		api.GET("/orders", s.searchOrders)
		api.GET("/orders/:id", s.getOrder)
		api.PUT("/orders/:id", s.updateOrder)
		api.PATCH("/orders/:id/status", s.updateOrderStatus)
		api.POST("/orders/:id/cancel", s.cancelOrder)

		api.POST("/payments", s.processPayment)
		api.POST("/payments/offline", s.processPayment)
		api.POST("/payments/:id/refund", s.refundPayment)

		api.GET("/inventory", s.searchInventory)
		api.GET("/inventory/:id", s.getProduct)
		api.POST("/inventory/:id/reserve", s.reserveStock)
		api.POST("/inventory/:id/release", s.releaseStock)
	}
	return r
}

func routeKey(c *gin.Context) string {
	return c.Request.Method + " " + c.FullPath()
}

func (s *Server) countAndInject(c *gin.Context) {
	key := routeKey(c)
	s.mu.Lock()
	s.calls[key]++
	var failure *injectedFailure
	if queued := s.failures[key]; len(queued) > 0 {
		failure = &queued[0]
		s.failures[key] = queued[1:]
	}
	s.mu.Unlock()

	if failure != nil {
		response.Error(c, failure.status, failure.status, failure.message)
		c.Abort()
		return
	}
	c.Next()
}

const contextKeyClaims = "claims"

func (s *Server) requireAccessToken(c *gin.Context) {
	const prefix = "Bearer "
	header := c.GetHeader("Authorization")
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		response.Unauthorized(c, "missing authorization header")
		c.Abort()
		return
	}
	claims, err := s.jwt.Validate(header[len(prefix):])
	if err != nil || claims.TokenType != jwtpkg.TokenTypeAccess {
		response.Unauthorized(c, "invalid or expired token")
		c.Abort()
		return
	}
	s.mu.Lock()
	revoked := s.revoked[claims.ID]
	s.mu.Unlock()
	if revoked {
		response.Unauthorized(c, "token expired")
		c.Abort()
		return
	}
	c.Set(contextKeyClaims, claims)
	c.Next()
}

// AddUser registers a cashier account.
func (s *Server) AddUser(username, password string, user apiclient.User) {
	hash, err := crypto.HashPassword(password, s.cost)
	if err != nil {
		s.logger.Error("hash password", zap.String("username", username), zap.Error(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user.Username = username
	if user.ID == "" {
		user.ID = "user-" + username
	}
	s.accounts[username] = account{user: user, passwordHash: hash}
}

// SetProducts replaces the inventory.
func (s *Server) SetProducts(products ...model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = make(map[string]model.Product, len(products))
	for _, p := range products {
		s.products[p.ProductID] = p
	}
}

func (s *Server) Orders() []model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

func (s *Server) Order(id string) (model.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return model.Order{}, false
	}
	return *o, true
}

func (s *Server) Payments() []apiclient.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]apiclient.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaymentID < out[j].PaymentID })
	return out
}

// Calls returns how often route ("POST /api/orders") was hit, including
// calls answered by an injected failure.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// FailNext makes the next call to route answer with status and message.
// Repeated calls queue further failures.
func (s *Server) FailNext(route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], injectedFailure{status: status, message: message})
}

// ExpireAccessTokens invalidates every access token issued so far.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.issued {
		s.revoked[id] = true
	}
	s.issued = s.issued[:0]
}

// RevokeRefreshTokens ends every session at the next refresh.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = make(map[string]string)
}

func (s *Server) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}
