// Package connectivity turns a heartbeat websocket to the retail backend
// into online/offline transitions.
package connectivity

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Sink receives connectivity. It is called on every connect and disconnect;
// duplicates are possible and must be tolerated.
type Sink func(online bool)

type Options struct {
	Backoff      Backoff
	PingInterval time.Duration
	Dialer       *websocket.Dialer
	Logger       *zap.Logger
}

type Watcher struct {
	url          string
	sink         Sink
	backoff      Backoff
	pingInterval time.Duration
	dialer       *websocket.Dialer
	logger       *zap.Logger
}

func NewWatcher(heartbeatURL string, sink Sink, opts Options) *Watcher {
	if opts.Backoff.Initial <= 0 {
		opts.Backoff = DefaultBackoff()
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 10 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Watcher{
		url:          heartbeatURL,
		sink:         sink,
		backoff:      opts.Backoff,
		pingInterval: opts.PingInterval,
		dialer:       opts.Dialer,
		logger:       opts.Logger,
	}
}

// HeartbeatURL derives the websocket URL from the backend base URL.
func HeartbeatURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	return u.String(), nil
}

// Run holds the heartbeat socket until ctx is done, reconnecting with
// backoff whenever it drops.
func (w *Watcher) Run(ctx context.Context) error {
	attempt := 0
	for {
		conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.sink(false)
			delay := w.backoff.Delay(attempt)
			attempt++
			w.logger.Debug("heartbeat dial failed", zap.Error(err), zap.Duration("retry_in", delay))
			if !sleep(ctx, delay) {
				return nil
			}
			continue
		}

		attempt = 0
		w.logger.Info("heartbeat connected", zap.String("url", w.url))
		w.sink(true)
		err = w.hold(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		w.logger.Warn("heartbeat lost", zap.Error(err))
		w.sink(false)
	}
}

// hold pings conn until a read fails or ctx is done.
func (w *Watcher) hold(ctx context.Context, conn *websocket.Conn) error {
	pongWait := 2 * w.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(w.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
			<-readErr
			return ctx.Err()
		case err := <-readErr:
			_ = conn.Close()
			return err
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.pingInterval)); err != nil {
				_ = conn.Close()
				<-readErr
				return err
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
