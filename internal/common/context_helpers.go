// File: internal/common/context_helpers.go
package common

import "github.com/gin-gonic/gin"

// GetUserIDFromContext retrieves the bound user ID from the Gin context.
func GetUserIDFromContext(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// GetUserRoleFromContext retrieves the bound user role from the Gin context.
func GetUserRoleFromContext(c *gin.Context) string {
	return c.GetString(UserRoleKey)
}
