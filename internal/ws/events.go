package ws

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Topic is a typed publish/subscribe point for one event kind.
// Listeners run in registration order on the publishing goroutine.
type Topic[T any] struct {
	name      string
	logger    *zap.Logger
	mu        sync.RWMutex
	nextID    uint64
	listeners []listener[T]
}

type listener[T any] struct {
	id uint64
	fn func(T)
}

// Subscription is returned by Subscribe; Cancel unregisters the listener.
type Subscription struct {
	cancel func()
}

// Cancel is safe to call more than once and on the zero value.
func (s Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

func newTopic[T any](name string, logger *zap.Logger) *Topic[T] {
	return &Topic[T]{name: name, logger: logger}
}

// Name is the wire-level event name.
func (t *Topic[T]) Name() string { return t.name }

func (t *Topic[T]) Subscribe(fn func(T)) Subscription {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.listeners = append(t.listeners, listener[T]{id: id, fn: fn})
	t.mu.Unlock()

	return Subscription{cancel: func() { t.unsubscribe(id) }}
}

func (t *Topic[T]) unsubscribe(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, l := range t.listeners {
		if l.id == id {
			t.listeners = append(t.listeners[:i:i], t.listeners[i+1:]...)
			return
		}
	}
}

// ListenerCount is the number of active subscriptions.
func (t *Topic[T]) ListenerCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.listeners)
}

func (t *Topic[T]) publish(v T) {
	t.mu.RLock()
	snapshot := make([]listener[T], len(t.listeners))
	copy(snapshot, t.listeners)
	t.mu.RUnlock()

	for _, l := range snapshot {
		t.call(l, v)
	}
}

// call isolates one listener: a panic is logged and the remaining listeners still run.
func (t *Topic[T]) call(l listener[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Event listener panicked",
				zap.String("event", t.name),
				zap.Uint64("listener_id", l.id),
				zap.Any("panic", r),
			)
		}
	}()
	l.fn(v)
}

// Event names as used on the local bus.
const (
	EventConnected            = "connected"
	EventDisconnected         = "disconnected"
	EventError                = "error"
	EventAuthRequired         = "auth_required"
	EventNotification         = "notification"
	EventBookingUpdate        = "booking_update"
	EventPaymentUpdate        = "payment_update"
	EventSystemAlert          = "system_alert"
	EventUserActivity         = "user_activity"
	EventServerError          = "server_error"
	EventUnknownMessage       = "unknown_message"
	EventMaxReconnectAttempts = "max_reconnect_attempts"
)

// Events groups one typed topic per local event.
type Events struct {
	Connected            *Topic[ConnectedEvent]
	Disconnected         *Topic[DisconnectEvent]
	Error                *Topic[error]
	AuthRequired         *Topic[AuthRequiredEvent]
	Notification         *Topic[NotificationPayload]
	BookingUpdate        *Topic[BookingUpdate]
	PaymentUpdate        *Topic[PaymentUpdate]
	SystemAlert          *Topic[SystemAlert]
	UserActivity         *Topic[UserActivity]
	ServerError          *Topic[ServerError]
	UnknownMessage       *Topic[UnknownMessage]
	MaxReconnectAttempts *Topic[MaxReconnectEvent]
}

func newEvents(logger *zap.Logger) *Events {
	return &Events{
		Connected:            newTopic[ConnectedEvent](EventConnected, logger),
		Disconnected:         newTopic[DisconnectEvent](EventDisconnected, logger),
		Error:                newTopic[error](EventError, logger),
		AuthRequired:         newTopic[AuthRequiredEvent](EventAuthRequired, logger),
		Notification:         newTopic[NotificationPayload](EventNotification, logger),
		BookingUpdate:        newTopic[BookingUpdate](EventBookingUpdate, logger),
		PaymentUpdate:        newTopic[PaymentUpdate](EventPaymentUpdate, logger),
		SystemAlert:          newTopic[SystemAlert](EventSystemAlert, logger),
		UserActivity:         newTopic[UserActivity](EventUserActivity, logger),
		ServerError:          newTopic[ServerError](EventServerError, logger),
		UnknownMessage:       newTopic[UnknownMessage](EventUnknownMessage, logger),
		MaxReconnectAttempts: newTopic[MaxReconnectEvent](EventMaxReconnectAttempts, logger),
	}
}

// FlexID accepts either a JSON string or a JSON number.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) String() string { return string(f) }

// Priority of a pushed item.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityUrgent Priority = "urgent"
)

type ConnectedEvent struct {
	UserID string
	Role   string
}

type DisconnectEvent struct {
	Code   int
	Reason string
}

type AuthRequiredEvent struct {
	Message string `json:"message"`
}

type MaxReconnectEvent struct {
	Attempts int
}

// NotificationPayload is the payload of a "notification" frame.
type NotificationPayload struct {
	ID        FlexID          `json:"id"`
	Type      string          `json:"type,omitempty"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Priority  Priority        `json:"priority,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// BookingUpdate is the payload of a "booking_update" frame.
type BookingUpdate struct {
	ID        FlexID          `json:"id"`
	BookingID FlexID          `json:"bookingId"`
	Status    string          `json:"status"`
	FieldName string          `json:"fieldName,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// Ref is the booking the update refers to.
func (b BookingUpdate) Ref() string {
	if b.BookingID != "" {
		return string(b.BookingID)
	}
	return string(b.ID)
}

// PaymentUpdate is the payload of a "payment_update" frame.
type PaymentUpdate struct {
	ID        FlexID          `json:"id"`
	PaymentID FlexID          `json:"paymentId"`
	BookingID FlexID          `json:"bookingId"`
	Status    string          `json:"status"`
	Amount    float64         `json:"amount,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// Ref is the booking the payment belongs to, or the payment itself.
func (p PaymentUpdate) Ref() string {
	switch {
	case p.BookingID != "":
		return string(p.BookingID)
	case p.PaymentID != "":
		return string(p.PaymentID)
	default:
		return string(p.ID)
	}
}

// SystemAlert is the payload of a "system_alert" frame.
type SystemAlert struct {
	ID        FlexID          `json:"id"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Priority  Priority        `json:"priority,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

type UserActivity struct {
	UserID FlexID          `json:"userId"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
	Raw    json.RawMessage `json:"-"`
}

// ServerError is the payload of an "error" frame.
type ServerError struct {
	Code    FlexID `json:"code"`
	Message string `json:"message"`
}

// UnknownMessage carries a frame whose type is not recognised.
type UnknownMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}
