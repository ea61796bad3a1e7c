package handler

import (
	"io"
	"strconv"

	"github.com/gin-gonic/gin"

	"biliticket/possync/internal/model"
	"biliticket/possync/internal/service"
	"biliticket/possync/pkg/response"
)

type QueueHandler struct {
	queue  *service.OfflineQueue
	engine *service.SyncEngine
}

func NewQueueHandler(queue *service.OfflineQueue, engine *service.SyncEngine) *QueueHandler {
	return &QueueHandler{queue: queue, engine: engine}
}

// List returns queue items, optionally filtered by ?status=.
func (h *QueueHandler) List(c *gin.Context) {
	status := model.QueueStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		response.BadRequest(c, "unknown status")
		return
	}
	items, err := h.queue.Drain(c.Request.Context(), status)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, items)
}

func (h *QueueHandler) Retry(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid id")
		return
	}
	if err := h.engine.Retry(c.Request.Context(), uint(id)); err != nil {
		writeError(c, err)
		return
	}
	item, err := h.queue.Get(c.Request.Context(), uint(id))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, item)
}

func (h *QueueHandler) RetryFailed(c *gin.Context) {
	n, err := h.engine.RetryFailed(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"retried": n})
}

// Events streams the pending count as server-sent events: the current
// value first, then every change until the client goes away.
func (h *QueueHandler) Events(c *gin.Context) {
	counts := make(chan int64, 16)
	unsubscribe, err := h.queue.Subscribe(c.Request.Context(), func(n int64) {
		select {
		case counts <- n:
		default:
			// slow reader; it will catch up with the next change
		}
	})
	if err != nil {
		writeError(c, err)
		return
	}
	defer unsubscribe()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case n := <-counts:
			c.SSEvent("pending", n)
			return true
		}
	})
}
