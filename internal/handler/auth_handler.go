package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"biliticket/possync/internal/apiclient"
	"biliticket/possync/internal/service"
	"biliticket/possync/pkg/response"
)

type AuthHandler struct {
	authService *service.AuthService
	catalog     *service.CatalogService
}

func NewAuthHandler(authService *service.AuthService, catalog *service.CatalogService) *AuthHandler {
	return &AuthHandler{authService: authService, catalog: catalog}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	User apiclient.User      `json:"user"`
	Warm *service.WarmReport `json:"warm,omitempty"`
}

// Login signs the cashier in and warms the local replica so the till can
// keep selling if the network drops right after.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	session, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if apiErr, ok := apiclient.AsAPIError(err); ok && apiErr.Status == http.StatusUnauthorized {
			response.Unauthorized(c, "invalid credentials")
			return
		}
		writeError(c, err)
		return
	}

	resp := LoginResponse{User: session.User}
	if h.catalog != nil {
		if warm, err := h.catalog.Warm(c.Request.Context()); err == nil {
			resp.Warm = &warm
		} else {
			_ = c.Error(err)
		}
	}
	response.Success(c, resp)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.authService.CurrentUser(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, user)
}

func (h *AuthHandler) Session(c *gin.Context) {
	info, err := h.authService.Session(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, info)
}
