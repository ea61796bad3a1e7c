package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"biliticket/possync/internal/apiclient"
	jwtpkg "biliticket/possync/pkg/jwt"
)

// SessionInfo describes the stored session without contacting the server.
type SessionInfo struct {
	LoggedIn  bool            `json:"loggedIn"`
	User      *apiclient.User `json:"user,omitempty"`
	ExpiresAt *time.Time      `json:"expiresAt,omitempty"`
}

type AuthService struct {
	api    AuthAPI
	mode   ModeReader
	logger *zap.Logger
	now    func() time.Time
}

func NewAuthService(api AuthAPI, mode ModeReader, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{api: api, mode: mode, logger: logger, now: time.Now}
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*apiclient.Session, error) {
	return s.api.Login(ctx, username, password)
}

func (s *AuthService) Logout(ctx context.Context) error {
	return s.api.Logout(ctx)
}

// CurrentUser asks the server when online and falls back to the user saved
// at login otherwise.
func (s *AuthService) CurrentUser(ctx context.Context) (*apiclient.User, error) {
	if !s.mode.EffectiveOffline() {
		user, err := s.api.CurrentUser(ctx)
		if err == nil || !apiclient.IsNetworkError(err) {
			return user, err
		}
		s.logger.Debug("current user from local session", zap.Error(err))
	}
	user, err := s.api.StoredUser(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotLoggedIn
	}
	return user, nil
}

// Session inspects the stored access token. Signatures are not checked
// here; the server does that on every call.
func (s *AuthService) Session(ctx context.Context) (*SessionInfo, error) {
	token, err := s.api.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return &SessionInfo{}, nil
	}
	info := &SessionInfo{LoggedIn: true}
	if claims, err := jwtpkg.ParseUnverified(token); err == nil && claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time
		info.ExpiresAt = &exp
	}
	user, err := s.api.StoredUser(ctx)
	if err != nil {
		return nil, err
	}
	info.User = user
	return info, nil
}
