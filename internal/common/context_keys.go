// File: internal/common/context_keys.go
package common

const (
	// AuthorizationHeader is the header name for authorization token
	AuthorizationHeader = "Authorization"
	// AuthorizationTypeBearer is the prefix for Bearer tokens
	AuthorizationTypeBearer = "Bearer"
	// UserIDKey holds the bound user's ID
	UserIDKey = "userID"
	// UserRoleKey holds the bound user's role
	UserRoleKey = "userRole"
	// LoggerKey holds the request-scoped logger
	LoggerKey = "logger"
)
