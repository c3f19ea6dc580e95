package notification

import (
	"errors"
	"net/http"
	"strconv"

	"futsal_notifier/internal/common"
	"futsal_notifier/internal/domain"
	"futsal_notifier/internal/push"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	notifications Accessor
	logger        *zap.Logger
}

func NewHandler(notifications Accessor, logger *zap.Logger) *Handler {
	return &Handler{
		notifications: notifications,
		logger:        logger,
	}
}

// RegisterRoutes sets up the routes for notification operations.
// All routes in this group require a bound session.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("", h.listNotifications)
	router.DELETE("", h.clearNotifications)
	router.GET("/stats", h.getStats)
	router.GET("/search", h.searchArchive)
	router.POST("/refresh", h.refresh)
	router.POST("/permission", h.requestPermission)
	router.POST("/mark-all-read", h.markAllAsRead)
	router.GET("/:notification_id", h.getNotification)
	router.POST("/:notification_id/mark-read", h.markAsRead)
	router.POST("/:notification_id/show", h.showNotification)
}

func (h *Handler) listNotifications(c *gin.Context) {
	var items []domain.Notification
	switch {
	case c.Query("unread") == "true":
		items = h.notifications.GetUnreadNotifications()
	case c.Query("type") != "":
		items = h.notifications.GetNotificationsByType(domain.NotificationType(c.Query("type")))
	default:
		items = h.notifications.Notifications()
	}

	page, pageSize := common.GetPaginationParams(c)
	pageItems, pagination := common.Paginate(items, page, pageSize)
	common.RespondPaginated(c, "Notifications retrieved successfully.", pageItems, pagination)
}

func (h *Handler) getNotification(c *gin.Context) {
	n, ok := h.notifications.GetNotificationByID(c.Param("notification_id"))
	if !ok {
		common.RespondWithError(c, common.ErrNotFound.WithDetails("Notification not found."))
		return
	}
	common.RespondOK(c, "Notification retrieved successfully.", n)
}

func (h *Handler) getStats(c *gin.Context) {
	common.RespondOK(c, "Notification stats retrieved successfully.", h.notifications.Stats())
}

func (h *Handler) markAsRead(c *gin.Context) {
	id := c.Param("notification_id")
	if _, ok := h.notifications.GetNotificationByID(id); !ok {
		common.RespondWithError(c, common.ErrNotFound.WithDetails("Notification not found."))
		return
	}
	h.notifications.MarkAsRead(c.Request.Context(), id)
	common.RespondOK(c, "Notification marked as read.", gin.H{"unread_count": h.notifications.UnreadCount()})
}

func (h *Handler) markAllAsRead(c *gin.Context) {
	h.notifications.MarkAllAsRead(c.Request.Context())
	common.RespondOK(c, "All notifications marked as read.", gin.H{"unread_count": h.notifications.UnreadCount()})
}

func (h *Handler) clearNotifications(c *gin.Context) {
	h.notifications.ClearAllNotifications()
	common.RespondNoContent(c)
}

func (h *Handler) refresh(c *gin.Context) {
	h.notifications.RefreshNotifications(c.Request.Context())
	common.RespondOK(c, "Notifications refreshed.", h.notifications.Stats())
}

func (h *Handler) requestPermission(c *gin.Context) {
	perm := h.notifications.RequestNotificationPermission(c.Request.Context())
	common.RespondOK(c, "Notification permission resolved.", gin.H{"permission": perm})
}

func (h *Handler) showNotification(c *gin.Context) {
	n, ok := h.notifications.GetNotificationByID(c.Param("notification_id"))
	if !ok {
		common.RespondWithError(c, common.ErrNotFound.WithDetails("Notification not found."))
		return
	}
	if err := h.notifications.ShowBrowserNotification(c.Request.Context(), n); err != nil {
		if errors.Is(err, push.ErrPermissionNotGranted) {
			common.RespondWithError(c, common.ErrForbidden.WithDetails("Notification permission has not been granted."))
			return
		}
		h.logger.Error("Failed to show notification", zap.String("id", n.ID), zap.Error(err))
		common.RespondWithError(c, common.ErrServiceUnavailable.WithDetails("Push delivery failed."))
		return
	}
	common.RespondSuccess(c, http.StatusAccepted, "Notification shown.", nil)
}

func (h *Handler) searchArchive(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		common.RespondWithError(c, common.ErrBadRequest.WithDetails("limit must be a positive integer."))
		return
	}
	if limit > 100 {
		limit = 100
	}
	records, err := h.notifications.SearchArchive(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		h.logger.Error("Archive search failed", zap.Error(err))
		common.RespondWithError(c, common.ErrServiceUnavailable.WithDetails("Archive search is unavailable."))
		return
	}
	common.RespondOK(c, "Archive search completed.", records)
}
