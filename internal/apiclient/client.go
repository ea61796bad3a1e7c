package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"biliticket/possync/internal/repository"
)

// Credential keys in the persistent store. Only this package writes them.
const (
	KeyToken        = "token"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header
	// NoAuth sends the request without a bearer token and never refreshes on 401.
	NoAuth bool

	retried bool
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// envelope is the {code,message,data} body used by the retail backend.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Decode unmarshals the envelope's data into out. Bodies without a data
// field are decoded whole.
func (r *Response) Decode(out any) error {
	if out == nil || len(r.Body) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(r.Body, &env); err == nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return json.Unmarshal(r.Body, out)
}

func (r *Response) apiError() *APIError {
	apiErr := &APIError{Status: r.Status}
	var env envelope
	if err := json.Unmarshal(r.Body, &env); err == nil {
		apiErr.Code = env.Code
		apiErr.Message = env.Message
	}
	return apiErr
}

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client is the authenticated request coordinator. Every call reads the
// access token from the persistent store; a 401 triggers at most one retry
// per request after a refresh shared by all concurrent callers.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      repository.PersistentStore
	logger     *zap.Logger

	mu       sync.Mutex
	inflight *refreshCall
}

func New(store repository.PersistentStore, opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		store:      store,
		logger:     logger,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// Send performs req. HTTP error statuses come back as *APIError (with the
// response), transport failures as *NetworkError.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	token := ""
	if !req.NoAuth {
		t, err := c.store.GetString(ctx, KeyToken)
		if err != nil {
			return nil, fmt.Errorf("read credentials: %w", err)
		}
		token = t
	}

	resp, err := c.do(ctx, req, token)
	if err != nil {
		return nil, err
	}

	if resp.Status == http.StatusUnauthorized && !req.NoAuth && !req.retried {
		req.retried = true
		fresh, err := c.refreshAccessToken(ctx, token)
		if err != nil {
			return nil, err
		}
		resp, err = c.do(ctx, req, fresh)
		if err != nil {
			return nil, err
		}
	}

	if resp.Status >= http.StatusBadRequest {
		return resp, resp.apiError()
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, req *Request, token string) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", req.Method, req.Path, err)
		}
		body = bytes.NewReader(b)
	}

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if key := IdempotencyKey(ctx); key != "" {
		httpReq.Header.Set(HeaderIdempotencyKey, key)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Op: req.Method + " " + req.Path, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: req.Method + " " + req.Path, Err: err}
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: payload}, nil
}

// doJSON sends an authenticated request and decodes the envelope into out.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	resp, err := c.Send(ctx, &Request{Method: method, Path: path, Query: query, Body: body})
	if err != nil {
		return err
	}
	if err := resp.Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

type idempotencyKey struct{}

// WithIdempotencyKey marks every request sent with ctx so the server can
// drop duplicate replays of the same queued action.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

// IdempotencyKey returns the key set by WithIdempotencyKey, or "".
func IdempotencyKey(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKey{}).(string)
	return key
}
