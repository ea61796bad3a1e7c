package connectivity

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"biliticket/possync/internal/remotesim"
)

func TestHeartbeatURL(t *testing.T) {
	u, err := HeartbeatURL("http://till-server:8080/", "/ws/heartbeat")
	require.NoError(t, err)
	assert.Equal(t, "ws://till-server:8080/ws/heartbeat", u)

	u, err = HeartbeatURL("https://pos.example.com/base", "ws/heartbeat")
	require.NoError(t, err)
	assert.Equal(t, "wss://pos.example.com/base/ws/heartbeat", u)

	_, err = HeartbeatURL("ftp://x", "/ws")
	assert.Error(t, err)
}

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, b.Delay(0))
	assert.Equal(t, 200*time.Millisecond, b.Delay(1))
	assert.Equal(t, 800*time.Millisecond, b.Delay(3))
	assert.Equal(t, time.Second, b.Delay(10), "capped at max")

	b.JitterFactor = 0.3
	for i := 0; i < 20; i++ {
		d := b.Delay(1)
		assert.GreaterOrEqual(t, d, 140*time.Millisecond)
		assert.LessOrEqual(t, d, 260*time.Millisecond)
	}
}

func waitFor(t *testing.T, events <-chan bool, want bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-events:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for online=%v", want)
		}
	}
}

func TestWatcher_ReportsTransitionsAndReconnects(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sim := remotesim.New(remotesim.Options{})
	srv := httptest.NewServer(sim.Handler())
	defer srv.Close()

	heartbeat, err := HeartbeatURL(srv.URL, "/ws/heartbeat")
	require.NoError(t, err)

	events := make(chan bool, 64)
	w := NewWatcher(heartbeat, func(online bool) { events <- online }, Options{
		Backoff:      Backoff{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond, Multiplier: 2},
		PingInterval: 50 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, events, true)
	assert.Equal(t, 1, sim.HeartbeatClients())

	sim.DropHeartbeats()
	waitFor(t, events, false)
	waitFor(t, events, true)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}

	require.Eventually(t, func() bool { return sim.HeartbeatClients() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestWatcher_RetriesUntilServerAppears(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	events := make(chan bool, 64)
	w := NewWatcher("ws://127.0.0.1:1/ws/heartbeat", func(online bool) { events <- online }, Options{
		Backoff: Backoff{Initial: 5 * time.Millisecond, Max: 20 * time.Millisecond, Multiplier: 2},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, events, false)
	waitFor(t, events, false)
	cancel()
	assert.NoError(t, <-done)
}
