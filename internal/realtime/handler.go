package realtime

import (
	"encoding/json"
	"net/http"

	"futsal_notifier/internal/common"
	"futsal_notifier/internal/ws"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Sender is the outbound side of the push channel.
type Sender interface {
	Send(msgType string, payload any) bool
	Enqueue(msgType string, payload any) bool
	OutboxLen() int
	Status() ws.Status
	ReconnectAttempts() int
}

type SendRequest struct {
	Type    string          `json:"type" binding:"required,max=64"`
	Payload json.RawMessage `json:"payload"`
	// Queue holds the frame in the outbox while the channel is down.
	Queue bool `json:"queue"`
}

type Handler struct {
	sender Sender
	logger *zap.Logger
}

func NewHandler(sender Sender, logger *zap.Logger) *Handler {
	return &Handler{sender: sender, logger: logger}
}

// RegisterRoutes mounts the channel routes on router. mws guard the whole group.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup, mws ...gin.HandlerFunc) {
	group := router.Group("/realtime", mws...)
	{
		group.GET("/status", h.status)
		group.POST("/messages", h.send)
	}
}

func (h *Handler) status(c *gin.Context) {
	common.RespondOK(c, "Channel status retrieved successfully.", gin.H{
		"status":             h.sender.Status(),
		"reconnect_attempts": h.sender.ReconnectAttempts(),
		"outbox":             h.sender.OutboxLen(),
	})
}

func (h *Handler) send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondWithError(c, common.BindingError(err))
		return
	}

	var payload any
	if len(req.Payload) > 0 {
		payload = req.Payload
	}

	var ok bool
	if req.Queue {
		ok = h.sender.Enqueue(req.Type, payload)
	} else {
		ok = h.sender.Send(req.Type, payload)
	}
	if !ok {
		h.logger.Debug("Outbound frame not accepted", zap.String("type", req.Type), zap.Bool("queue", req.Queue))
		common.RespondWithError(c, common.ErrServiceUnavailable.WithDetails("Push channel is not open."))
		return
	}
	common.RespondSuccess(c, http.StatusAccepted, "Frame accepted.", gin.H{"outbox": h.sender.OutboxLen()})
}
