package session

import (
	"net/http"

	"futsal_notifier/internal/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes sets up the session routes.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/session")
	{
		group.GET("", h.getSession)
		group.POST("", h.login)
		group.DELETE("", h.logout)
		group.POST("/reconnect", h.reconnect)
	}
}

func (h *Handler) getSession(c *gin.Context) {
	common.RespondOK(c, "Session retrieved successfully.", h.service.State())
}

func (h *Handler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Session: invalid request body", zap.Error(err))
		common.RespondWithError(c, common.BindingError(err))
		return
	}

	state, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}
	common.RespondSuccess(c, http.StatusCreated, "Session bound.", state)
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.service.Logout(c.Request.Context()); err != nil {
		common.RespondWithError(c, err)
		return
	}
	common.RespondNoContent(c)
}

func (h *Handler) reconnect(c *gin.Context) {
	if err := h.service.Reconnect(); err != nil {
		common.RespondWithError(c, err)
		return
	}
	common.RespondSuccess(c, http.StatusAccepted, "Reconnect scheduled.", h.service.State())
}
