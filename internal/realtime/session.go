// Package realtime binds the push channel to the signed-in user and keeps a
// bounded, newest-first buffer of what arrived over it.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"futsal_notifier/internal/config"
	"futsal_notifier/internal/domain"
	"futsal_notifier/internal/platform/timer"
	"futsal_notifier/internal/push"
	"futsal_notifier/internal/ws"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transport is the push channel as seen by the session.
type Transport interface {
	Events() *ws.Events
	Connect(userID, role, token string)
	Disconnect()
	Status() ws.Status
	IsConnected() bool
	ReconnectAttempts() int
}

// Credentials identify the authenticated user session.
type Credentials struct {
	UserID string
	Role   string
	Token  string
}

func (c Credentials) complete() bool {
	return c.UserID != "" && c.Role != "" && c.Token != ""
}

type Options struct {
	BufferSize     int
	ReconnectDelay time.Duration
}

func DefaultOptions() Options {
	return Options{BufferSize: 50, ReconnectDelay: time.Second}
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BufferSize:     cfg.NotificationBufferSize,
		ReconnectDelay: cfg.ManualReconnectDelay,
	}
}

type Option func(*Session)

func WithScheduler(s timer.Scheduler) Option {
	return func(sess *Session) { sess.sched = s }
}

// Session is the hook adapter between the push channel and the provider.
type Session struct {
	transport Transport
	tokens    ws.TokenSource
	notifier  push.Notifier
	sched     timer.Scheduler
	opts      Options
	logger    *zap.Logger
	subs      []ws.Subscription

	mu        sync.Mutex
	creds     Credentials
	bound     bool
	items     []domain.Notification
	unread    int
	reconnect timer.Timer
	reconnGen uint64
	listeners []func()
	closed    bool
}

// NewSession subscribes to every transport event once. Close undoes it.
func NewSession(transport Transport, tokens ws.TokenSource, notifier push.Notifier, opts Options, logger *zap.Logger, options ...Option) *Session {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultOptions().BufferSize
	}
	s := &Session{
		transport: transport,
		tokens:    tokens,
		notifier:  notifier,
		sched:     timer.Real(),
		opts:      opts,
		logger:    logger.Named("realtime"),
	}
	for _, o := range options {
		o(s)
	}
	s.subscribe()
	return s
}

func (s *Session) subscribe() {
	ev := s.transport.Events()
	s.subs = []ws.Subscription{
		ev.Connected.Subscribe(func(e ws.ConnectedEvent) {
			s.logger.Info("Realtime connected", zap.String("user_id", e.UserID), zap.String("role", e.Role))
			s.notify()
		}),
		ev.Disconnected.Subscribe(func(e ws.DisconnectEvent) {
			s.logger.Info("Realtime disconnected", zap.Int("code", e.Code), zap.String("reason", e.Reason))
			s.notify()
		}),
		ev.Error.Subscribe(func(err error) {
			s.logger.Warn("Realtime error", zap.Error(err))
		}),
		ev.AuthRequired.Subscribe(func(e ws.AuthRequiredEvent) {
			s.logger.Warn("Realtime authentication required", zap.String("message", e.Message))
			s.notify()
		}),
		ev.Notification.Subscribe(s.onNotification),
		ev.BookingUpdate.Subscribe(s.onBookingUpdate),
		ev.PaymentUpdate.Subscribe(s.onPaymentUpdate),
		ev.SystemAlert.Subscribe(s.onSystemAlert),
		ev.UserActivity.Subscribe(func(a ws.UserActivity) {
			s.logger.Debug("User activity", zap.String("user_id", a.UserID.String()), zap.String("action", a.Action))
		}),
		ev.ServerError.Subscribe(func(e ws.ServerError) {
			s.logger.Error("Server error", zap.String("code", e.Code.String()), zap.String("message", e.Message))
		}),
		ev.UnknownMessage.Subscribe(func(m ws.UnknownMessage) {
			s.logger.Debug("Unknown message", zap.String("type", m.Type), zap.ByteString("payload", m.Payload))
		}),
		ev.MaxReconnectAttempts.Subscribe(func(e ws.MaxReconnectEvent) {
			s.logger.Error("Realtime gave up reconnecting", zap.Int("attempts", e.Attempts))
			s.notify()
		}),
	}
}

// Close cancels every transport subscription and any pending manual
// reconnect. The transport itself is left to its owner.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancelReconnectLocked()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

// Bind re-evaluates the session. Complete, changed credentials (re)open the
// channel, as do unchanged ones once the reconnect budget is spent.
// Incomplete credentials close it.
func (s *Session) Bind(c Credentials) {
	exhausted := s.transport.Status() == ws.StatusError
	s.mu.Lock()
	if c.complete() && s.bound && s.creds == c && !exhausted {
		s.mu.Unlock()
		return
	}
	wasBound := s.bound
	userChanged := s.creds.UserID != c.UserID
	s.cancelReconnectLocked()
	if c.complete() {
		s.creds = c
		s.bound = true
	} else {
		s.creds = Credentials{}
		s.bound = false
	}
	cleared := userChanged && len(s.items) > 0
	if userChanged {
		s.items = nil
		s.unread = 0
	}
	s.mu.Unlock()

	if wasBound {
		s.transport.Disconnect()
	}
	if c.complete() {
		s.logger.Info("Binding realtime session", zap.String("user_id", c.UserID), zap.String("role", c.Role))
		s.transport.Connect(c.UserID, c.Role, c.Token)
	} else if wasBound {
		s.logger.Info("Realtime session unbound")
	}
	if cleared {
		s.notify()
	}
}

// Bound returns the current credentials without the token.
func (s *Session) Bound() (userID, role string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds.UserID, s.creds.Role, s.bound
}

// Reconnect closes the channel and reopens it after the configured delay with
// the bound credentials and the currently stored token.
func (s *Session) Reconnect() error {
	s.mu.Lock()
	if !s.bound {
		s.mu.Unlock()
		return fmt.Errorf("realtime: no session bound")
	}
	s.cancelReconnectLocked()
	gen := s.reconnGen
	s.mu.Unlock()

	s.transport.Disconnect()

	s.mu.Lock()
	if gen != s.reconnGen || !s.bound {
		s.mu.Unlock()
		return nil
	}
	s.reconnect = s.sched.AfterFunc(s.opts.ReconnectDelay, func() { s.reconnectNow(gen) })
	s.mu.Unlock()
	s.logger.Info("Manual reconnect scheduled", zap.Duration("delay", s.opts.ReconnectDelay))
	return nil
}

func (s *Session) reconnectNow(gen uint64) {
	s.mu.Lock()
	if gen != s.reconnGen || !s.bound {
		s.mu.Unlock()
		return
	}
	s.reconnect = nil
	creds := s.creds
	s.mu.Unlock()

	token := creds.Token
	if s.tokens != nil {
		stored, err := s.tokens.Token(context.Background())
		if err != nil {
			s.logger.Warn("Failed to read stored token, using bound token", zap.Error(err))
		} else if stored != "" {
			token = stored
		}
	}
	s.transport.Connect(creds.UserID, creds.Role, token)
}

func (s *Session) cancelReconnectLocked() {
	s.reconnGen++
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
}

// OnChange registers fn to run after every buffer or connection change.
func (s *Session) OnChange(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Session) notify() {
	s.mu.Lock()
	fns := append([]func(){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Notifications returns a copy of the buffer, newest first.
func (s *Session) Notifications() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Notification, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Session) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

func (s *Session) Status() ws.Status { return s.transport.Status() }
func (s *Session) IsConnected() bool { return s.transport.IsConnected() }
func (s *Session) ReconnectAttempts() int { return s.transport.ReconnectAttempts() }

// MarkNotificationAsRead flips one entry locally. Unknown or already-read ids
// leave the counter untouched.
func (s *Session) MarkNotificationAsRead(id string) bool {
	s.mu.Lock()
	changed := false
	for i := range s.items {
		if s.items[i].ID == id {
			if !s.items[i].Read {
				s.items[i].Read = true
				if s.unread > 0 {
					s.unread--
				}
				changed = true
			}
			break
		}
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
	return changed
}

func (s *Session) MarkAllNotificationsAsRead() {
	s.mu.Lock()
	for i := range s.items {
		s.items[i].Read = true
	}
	s.unread = 0
	s.mu.Unlock()
	s.notify()
}

func (s *Session) ClearNotifications() {
	s.mu.Lock()
	s.items = nil
	s.unread = 0
	s.mu.Unlock()
	s.notify()
}

// RequestNotificationPermission prompts only while the permission is undecided.
func (s *Session) RequestNotificationPermission(ctx context.Context) push.Permission {
	if p := s.notifier.Permission(ctx); p != push.PermissionDefault {
		return p
	}
	return s.notifier.RequestPermission(ctx)
}

func (s *Session) add(n domain.Notification) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.items = append([]domain.Notification{n}, s.items...)
	s.unread++
	for len(s.items) > s.opts.BufferSize {
		evicted := s.items[len(s.items)-1]
		s.items = s.items[:len(s.items)-1]
		if !evicted.Read && s.unread > 0 {
			s.unread--
		}
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Session) onNotification(p ws.NotificationPayload) {
	s.add(domain.Notification{
		ID:        idOrNew(p.ID),
		Type:      domain.TypeNotification,
		Title:     p.Title,
		Message:   p.Message,
		Priority:  domain.Priority(p.Priority),
		Data:      dataOrRaw(p.Data, p.Raw),
		Timestamp: parseTimestamp(p.Timestamp),
	})
}

func (s *Session) onBookingUpdate(b ws.BookingUpdate) {
	s.add(domain.Notification{
		ID:        idOrNew(b.ID),
		Type:      domain.TypeBookingUpdate,
		Title:     "Booking Update",
		Message:   fmt.Sprintf("Booking %s status changed to %s", b.Ref(), b.Status),
		Data:      dataOrRaw(b.Data, b.Raw),
		Timestamp: parseTimestamp(b.Timestamp),
	})
}

func (s *Session) onPaymentUpdate(p ws.PaymentUpdate) {
	s.add(domain.Notification{
		ID:        idOrNew(p.ID),
		Type:      domain.TypePaymentUpdate,
		Title:     "Payment Update",
		Message:   fmt.Sprintf("Payment for booking %s is %s", p.Ref(), p.Status),
		Data:      dataOrRaw(p.Data, p.Raw),
		Timestamp: parseTimestamp(p.Timestamp),
	})
}

func (s *Session) onSystemAlert(a ws.SystemAlert) {
	title := a.Title
	if title == "" {
		title = "System Alert"
	}
	n := domain.Notification{
		ID:        idOrNew(a.ID),
		Type:      domain.TypeSystemAlert,
		Title:     title,
		Message:   a.Message,
		Priority:  domain.Priority(a.Priority),
		Data:      dataOrRaw(a.Data, a.Raw),
		Timestamp: parseTimestamp(a.Timestamp),
	}
	s.add(n)

	if a.Priority == ws.PriorityUrgent {
		go s.showUrgent(n)
	}
}

func (s *Session) showUrgent(n domain.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if s.notifier.Permission(ctx) != push.PermissionGranted {
		s.logger.Debug("Urgent alert not surfaced, permission not granted", zap.String("id", n.ID))
		return
	}
	err := s.notifier.Show(ctx, push.Message{
		Tag:                n.ID,
		Title:              n.Title,
		Body:               n.Message,
		RequireInteraction: true,
	})
	if err != nil {
		s.logger.Warn("Failed to show urgent alert", zap.String("id", n.ID), zap.Error(err))
	}
}

func idOrNew(id ws.FlexID) string {
	if id != "" {
		return id.String()
	}
	return uuid.NewString()
}

func dataOrRaw(data, raw json.RawMessage) json.RawMessage {
	if len(data) > 0 {
		return data
	}
	return raw
}

func parseTimestamp(s string) time.Time {
	if s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}
