package session

import (
	"futsal_notifier/internal/ws"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest binds an authenticated user to the agent. UserID and Role may
// be omitted when the token carries them as claims.
type LoginRequest struct {
	Token  string `json:"token" binding:"required"`
	UserID string `json:"user_id,omitempty" binding:"omitempty,max=64"`
	Role   string `json:"role,omitempty" binding:"omitempty,oneof=customer staff_kasir operator manager supervisor_sistem"`
}

// State is the session view returned by the API.
type State struct {
	Bound             bool      `json:"bound"`
	UserID            string    `json:"user_id,omitempty"`
	Role              string    `json:"role,omitempty"`
	RoleLabel         string    `json:"role_label,omitempty"`
	Status            ws.Status `json:"status"`
	Connected         bool      `json:"connected"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
}

// Claims are the identity claims read from the backend-issued token.
type Claims struct {
	UserID ws.FlexID `json:"user_id"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}
