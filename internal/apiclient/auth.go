package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Session struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

// Login exchanges credentials for tokens and stores them.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	resp, err := c.Send(ctx, &Request{
		Method: http.MethodPost,
		Path:   "/api/auth/login",
		Body:   LoginRequest{Username: username, Password: password},
		NoAuth: true,
	})
	if err != nil {
		return nil, err
	}
	var session Session
	if err := resp.Decode(&session); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	if session.Token == "" {
		return nil, &APIError{Status: resp.Status, Message: "login response carried no token"}
	}

	userJSON, err := json.Marshal(session.User)
	if err != nil {
		return nil, err
	}
	for key, value := range map[string]string{
		KeyToken:        session.Token,
		KeyRefreshToken: session.RefreshToken,
		KeyUser:         string(userJSON),
	} {
		if err := c.store.SetString(ctx, key, value); err != nil {
			return nil, fmt.Errorf("store %s: %w", key, err)
		}
	}
	c.logger.Info("logged in", zap.String("user", session.User.Username))
	return &session, nil
}

// Logout revokes the refresh token on a best-effort basis and always clears
// local credentials.
func (c *Client) Logout(ctx context.Context) error {
	refreshToken, err := c.store.GetString(ctx, KeyRefreshToken)
	if err != nil {
		return err
	}
	if refreshToken != "" {
		_, err := c.Send(ctx, &Request{
			Method: http.MethodPost,
			Path:   "/api/auth/logout",
			Body:   refreshRequest{RefreshToken: refreshToken},
			NoAuth: true,
		})
		if err != nil {
			c.logger.Warn("remote logout failed", zap.Error(err))
		}
	}
	return c.ClearCredentials(ctx)
}

func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth/me", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// StoredUser returns the user saved at login, or nil when logged out.
func (c *Client) StoredUser(ctx context.Context) (*User, error) {
	raw, err := c.store.GetString(ctx, KeyUser)
	if err != nil || raw == "" {
		return nil, err
	}
	var user User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, fmt.Errorf("decode stored user: %w", err)
	}
	return &user, nil
}

// AccessToken returns the stored access token ("" when logged out).
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	return c.store.GetString(ctx, KeyToken)
}
