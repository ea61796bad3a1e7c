package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// refreshCall is the shared outcome of one in-flight token refresh.
type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

func (rc *refreshCall) wait(ctx context.Context) (string, error) {
	select {
	case <-rc.done:
		return rc.token, rc.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// refreshAccessToken returns an access token newer than stale. Concurrent
// callers share a single refresh; a caller whose stale token was already
// replaced gets the replacement without another refresh.
func (c *Client) refreshAccessToken(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	if call := c.inflight; call != nil {
		c.mu.Unlock()
		return call.wait(ctx)
	}
	current, err := c.store.GetString(ctx, KeyToken)
	if err != nil {
		c.mu.Unlock()
		return "", fmt.Errorf("read credentials: %w", err)
	}
	if current != "" && current != stale {
		c.mu.Unlock()
		return current, nil
	}
	call := &refreshCall{done: make(chan struct{})}
	c.inflight = call
	c.mu.Unlock()

	// the refresh outlives the caller that started it; waiters depend on it
	call.token, call.err = c.performRefresh(context.WithoutCancel(ctx))

	c.mu.Lock()
	c.inflight = nil
	c.mu.Unlock()
	close(call.done)

	return call.token, call.err
}

func (c *Client) performRefresh(ctx context.Context) (string, error) {
	refreshToken, err := c.store.GetString(ctx, KeyRefreshToken)
	if err != nil {
		return "", fmt.Errorf("read credentials: %w", err)
	}
	if refreshToken == "" {
		c.purge(ctx, "no refresh token")
		return "", ErrSessionExpired
	}

	resp, err := c.do(ctx, &Request{
		Method: http.MethodPost,
		Path:   "/api/auth/refresh",
		Body:   refreshRequest{RefreshToken: refreshToken},
		NoAuth: true,
	}, "")
	if err != nil {
		c.logger.Warn("token refresh unreachable", zap.Error(err))
		return "", err
	}
	if resp.Status >= http.StatusBadRequest {
		apiErr := resp.apiError()
		c.purge(ctx, apiErr.Error())
		return "", fmt.Errorf("%w: %w", ErrSessionExpired, apiErr)
	}

	var out refreshResponse
	if err := resp.Decode(&out); err != nil || out.Token == "" {
		c.purge(ctx, "malformed refresh response")
		return "", ErrSessionExpired
	}
	if err := c.store.SetString(ctx, KeyToken, out.Token); err != nil {
		return "", fmt.Errorf("store access token: %w", err)
	}
	if out.RefreshToken != "" {
		if err := c.store.SetString(ctx, KeyRefreshToken, out.RefreshToken); err != nil {
			return "", fmt.Errorf("store refresh token: %w", err)
		}
	}
	c.logger.Info("access token refreshed")
	return out.Token, nil
}

func (c *Client) purge(ctx context.Context, reason string) {
	c.logger.Warn("session ended, clearing credentials", zap.String("reason", reason))
	if err := c.ClearCredentials(ctx); err != nil {
		c.logger.Error("clear credentials", zap.Error(err))
	}
}

// ClearCredentials removes every stored credential key.
func (c *Client) ClearCredentials(ctx context.Context) error {
	for _, key := range []string{KeyToken, KeyRefreshToken, KeyUser} {
		if err := c.store.Remove(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Refresh forces a token refresh with the stored refresh token and returns
// the new access token.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	current, err := c.store.GetString(ctx, KeyToken)
	if err != nil {
		return "", fmt.Errorf("read credentials: %w", err)
	}
	return c.refreshAccessToken(ctx, current)
}
