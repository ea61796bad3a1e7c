package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"biliticket/possync/internal/model"
	"biliticket/possync/internal/service"
	"biliticket/possync/pkg/response"
)

type StatusHandler struct {
	network *service.NetworkManager
	engine  *service.SyncEngine
	queue   *service.OfflineQueue
}

func NewStatusHandler(network *service.NetworkManager, engine *service.SyncEngine, queue *service.OfflineQueue) *StatusHandler {
	return &StatusHandler{network: network, engine: engine, queue: queue}
}

type StatusResponse struct {
	service.ConnectivityState
	Pending      int64      `json:"pending"`
	Failed       int64      `json:"failed"`
	Syncing      bool       `json:"syncing"`
	LastSyncTime *time.Time `json:"lastSyncTime,omitempty"`
}

type OfflineModeRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// Status reports connectivity and queue health for the till's status bar.
func (h *StatusHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()
	pending, err := h.queue.Count(ctx, model.QueueStatusPending)
	if err != nil {
		writeError(c, err)
		return
	}
	failed, err := h.queue.Count(ctx, model.QueueStatusFailed)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := StatusResponse{
		ConnectivityState: h.network.State(),
		Pending:           pending,
		Failed:            failed,
		Syncing:           h.engine.Running(),
	}
	last, err := h.engine.LastSyncTime(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	if !last.IsZero() {
		resp.LastSyncTime = &last
	}
	response.Success(c, resp)
}

func (h *StatusHandler) SetOfflineMode(c *gin.Context) {
	var req OfflineModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	var err error
	if *req.Enabled {
		err = h.network.EnableOfflineMode(c.Request.Context())
	} else {
		err = h.network.DisableOfflineMode(c.Request.Context())
	}
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, h.network.State())
}

// Sync runs a sync in the request. While another run is in flight it
// answers with an empty report. The run is detached from the client so a
// dropped connection does not stop it mid-queue.
func (h *StatusHandler) Sync(c *gin.Context) {
	if h.network.EffectiveOffline() {
		response.ServiceUnavailable(c, "terminal is offline")
		return
	}
	report, err := h.engine.SyncWithServer(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, report)
}
