package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// NotificationType is the source kind of a notification.
type NotificationType string

const (
	TypeNotification  NotificationType = "notification"
	TypeBookingUpdate NotificationType = "booking_update"
	TypePaymentUpdate NotificationType = "payment_update"
	TypeSystemAlert   NotificationType = "system_alert"
	TypeUserActivity  NotificationType = "user_activity"
)

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityUrgent Priority = "urgent"
)

// Notification is the unified record shown to consumers, whether it arrived
// over the push channel or from the REST feed.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Priority  Priority         `json:"priority,omitempty"`
	Data      json.RawMessage  `json:"data,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Read      bool             `json:"read"`
}

// Role is the closed set of platform roles.
type Role string

const (
	RoleCustomer         Role = "customer"
	RoleStaffKasir       Role = "staff_kasir"
	RoleOperator         Role = "operator"
	RoleManager          Role = "manager"
	RoleSupervisorSistem Role = "supervisor_sistem"
)

// ParseRole rejects anything outside the known roles.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	switch r {
	case RoleCustomer, RoleStaffKasir, RoleOperator, RoleManager, RoleSupervisorSistem:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// IsStaff reports whether the role belongs to back-office staff.
func (r Role) IsStaff() bool {
	switch r {
	case RoleStaffKasir, RoleOperator, RoleManager, RoleSupervisorSistem:
		return true
	case RoleCustomer:
		return false
	default:
		return false
	}
}

// Label is the human readable role name.
func (r Role) Label() string {
	switch r {
	case RoleCustomer:
		return "Customer"
	case RoleStaffKasir:
		return "Cashier"
	case RoleOperator:
		return "Operator"
	case RoleManager:
		return "Manager"
	case RoleSupervisorSistem:
		return "System Supervisor"
	default:
		return string(r)
	}
}
