package remotesim

import (
	"github.com/gin-gonic/gin"

	"biliticket/possync/internal/apiclient"
	"biliticket/possync/pkg/crypto"
	jwtpkg "biliticket/possync/pkg/jwt"
	"biliticket/possync/pkg/response"
)

type refreshBody struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// issue mints an access/refresh pair for username. Caller holds s.mu.
func (s *Server) issue(user apiclient.User) (access, refresh string, err error) {
	access, err = s.jwt.GenerateAccessToken(user.ID, user.Username)
	if err != nil {
		return "", "", err
	}
	claims, err := jwtpkg.ParseUnverified(access)
	if err != nil {
		return "", "", err
	}
	refresh, err = s.jwt.GenerateRefreshToken(user.ID)
	if err != nil {
		return "", "", err
	}
	s.issued = append(s.issued, claims.ID)
	s.refresh[refresh] = user.Username
	return access, refresh, nil
}

func (s *Server) login(c *gin.Context) {
	var req apiclient.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[req.Username]
	if !ok || !crypto.CheckPassword(req.Password, acct.passwordHash) {
		response.Unauthorized(c, "invalid credentials")
		return
	}
	access, refresh, err := s.issue(acct.user)
	if err != nil {
		response.InternalError(c, "login failed")
		return
	}
	response.Success(c, apiclient.Session{Token: access, RefreshToken: refresh, User: acct.user})
}

func (s *Server) refreshToken(c *gin.Context) {
	var req refreshBody
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	claims, err := s.jwt.Validate(req.RefreshToken)
	if err != nil || claims.TokenType != jwtpkg.TokenTypeRefresh {
		response.Unauthorized(c, "refresh token invalid or revoked")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	username, ok := s.refresh[req.RefreshToken]
	if !ok {
		response.Unauthorized(c, "refresh token invalid or revoked")
		return
	}
	delete(s.refresh, req.RefreshToken)
	access, refresh, err := s.issue(s.accounts[username].user)
	if err != nil {
		response.InternalError(c, "refresh failed")
		return
	}
	response.Success(c, gin.H{"token": access, "refreshToken": refresh})
}

func (s *Server) logout(c *gin.Context) {
	var req refreshBody
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s.mu.Lock()
	delete(s.refresh, req.RefreshToken)
	s.mu.Unlock()
	response.Success(c, nil)
}

func (s *Server) me(c *gin.Context) {
	claims := c.MustGet(contextKeyClaims).(*jwtpkg.Claims)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.accounts {
		if acct.user.ID == claims.Subject {
			response.Success(c, acct.user)
			return
		}
	}
	response.NotFound(c, "user not found")
}
