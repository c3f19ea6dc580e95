package middleware

import (
	"futsal_notifier/internal/common"
	"futsal_notifier/internal/domain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionSource reports the currently bound user.
type SessionSource interface {
	Bound() (userID, role string, ok bool)
}

// SessionRequired rejects requests while no user is bound and otherwise puts
// the bound identity into the context.
func SessionRequired(sessions SessionSource, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, role, ok := sessions.Bound()
		if !ok {
			logger.Debug("Request without bound session", zap.String("path", c.Request.URL.Path))
			common.RespondWithError(c, common.ErrUnauthorized.WithDetails("No session is bound. POST /api/v1/session first."))
			return
		}

		c.Set(common.UserIDKey, userID)
		c.Set(common.UserRoleKey, role)
		c.Next()
	}
}

// StaffOnly allows back-office roles.
func StaffOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := common.GetUserRoleFromContext(c)
		if role == "" {
			common.RespondWithError(c, common.ErrForbidden.WithDetails("User role not found in context."))
			return
		}
		if !domain.Role(role).IsStaff() {
			common.RespondWithError(c, common.ErrForbidden.WithDetails("This resource is restricted to staff."))
			return
		}
		c.Next()
	}
}
