package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"biliticket/possync/internal/apiclient"
	"biliticket/possync/internal/service"
	"biliticket/possync/pkg/response"
)

// writeError maps an error from the service layer onto the envelope.
// Server rejections keep their status when it is a client error so the UI
// can show the backend's message.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, apiclient.ErrSessionExpired), errors.Is(err, service.ErrNotLoggedIn):
		response.Unauthorized(c, err.Error())
	case apiclient.IsNetworkError(err):
		response.ServiceUnavailable(c, "retail server unreachable")
	case errors.Is(err, service.ErrItemNotFailed),
		errors.Is(err, service.ErrOrderNotSynced):
		response.Conflict(c, err.Error())
	case errors.Is(err, service.ErrQueueItemNotFound),
		errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrProductNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrInvalidOrder):
		response.BadRequest(c, err.Error())
	default:
		if apiErr, ok := apiclient.AsAPIError(err); ok {
			if apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != http.StatusUnauthorized {
				response.Error(c, apiErr.Status, apiErr.Status, apiErr.Message)
				return
			}
			response.BadGateway(c, apiErr.Error())
			return
		}
		response.InternalError(c, "internal error")
	}
}
