// Package ws owns the authenticated push channel to the booking backend:
// connection lifecycle, heartbeat, reconnection with exponential backoff,
// and dispatch of wire frames onto typed local events.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"futsal_notifier/internal/config"
	"futsal_notifier/internal/platform/timer"

	"go.uber.org/zap"
)

// Status of the push channel.
type Status string

const (
	StatusDisconnected   Status = "disconnected"
	StatusConnecting     Status = "connecting"
	StatusAuthenticating Status = "authenticating"
	StatusConnected      Status = "connected"
	StatusClosing        Status = "closing"
	StatusError          Status = "error"
)

// Wire message types.
const (
	MsgHeartbeat         = "heartbeat"
	MsgHeartbeatResponse = "heartbeat_response"
	MsgSubscribe         = "subscribe"
	MsgUnsubscribe       = "unsubscribe"
	MsgAuthRequired      = "auth_required"
	MsgError             = "error"
)

// SubscribedTypes are requested from the server on every open.
var SubscribedTypes = []string{
	EventNotification, EventBookingUpdate, EventPaymentUpdate, EventSystemAlert, EventUserActivity,
}

// Message is the frame format in both directions.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// TokenSource yields the currently persisted bearer token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Options tune the channel.
type Options struct {
	URL                   string
	HeartbeatInterval     time.Duration
	HeartbeatTimeout      time.Duration
	ReconnectBaseInterval time.Duration
	MaxReconnectAttempts  int
	HandshakeTimeout      time.Duration
	// OutboxSize bounds the queue used by Enqueue. Zero disables queuing.
	OutboxSize int
}

// DefaultOptions mirror the production defaults.
func DefaultOptions(url string) Options {
	return Options{
		URL:                   url,
		HeartbeatInterval:     30 * time.Second,
		HeartbeatTimeout:      10 * time.Second,
		ReconnectBaseInterval: 5 * time.Second,
		MaxReconnectAttempts:  5,
		HandshakeTimeout:      10 * time.Second,
	}
}

// OptionsFromConfig builds Options from the application config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		URL:                   cfg.WSURL,
		HeartbeatInterval:     cfg.HeartbeatInterval,
		HeartbeatTimeout:      cfg.HeartbeatTimeout,
		ReconnectBaseInterval: cfg.ReconnectBaseInterval,
		MaxReconnectAttempts:  cfg.MaxReconnectAttempts,
		HandshakeTimeout:      cfg.WSHandshakeTimeout,
		OutboxSize:            cfg.OutboxSize,
	}
}

// Option customises a Service.
type Option func(*Service)

// WithScheduler replaces the wall-clock timers.
func WithScheduler(s timer.Scheduler) Option {
	return func(svc *Service) { svc.sched = s }
}

type socketState int

const (
	socketNone socketState = iota
	socketConnecting
	socketOpen
	socketClosing
)

// Service is the single push-channel manager. Construct one per process and
// share it; it is safe for concurrent use.
type Service struct {
	opts   Options
	dialer Dialer
	tokens TokenSource
	sched  timer.Scheduler
	logger *zap.Logger
	events *Events

	mu            sync.Mutex
	conn          Conn
	sock          socketState
	gen           uint64 // bumped on every state-changing transition; stale timers and goroutines compare against it
	authenticated bool
	userID        string
	role          string
	attempts      int
	exhausted     bool
	reconnect     timer.Timer
	heartbeat     timer.Timer
	hbTimeout     timer.Timer
	outbox        [][]byte

	writeMu sync.Mutex
}

func NewService(opts Options, dialer Dialer, tokens TokenSource, logger *zap.Logger, options ...Option) *Service {
	named := logger.Named("ws")
	s := &Service{
		opts:   opts,
		dialer: dialer,
		tokens: tokens,
		sched:  timer.Real(),
		logger: named,
		events: newEvents(named),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Events exposes the typed local event bus.
func (s *Service) Events() *Events { return s.events }

// Connect opens the channel for the given user. It is a no-op while a
// channel is already open or being opened.
func (s *Service) Connect(userID, role, token string) {
	s.mu.Lock()
	if s.sock == socketConnecting || s.sock == socketOpen {
		s.mu.Unlock()
		s.logger.Debug("Connect ignored, channel already open or opening", zap.String("user_id", userID))
		return
	}
	s.stopReconnectLocked()
	s.userID = userID
	s.role = role
	s.exhausted = false
	gen := s.beginDialLocked()
	s.mu.Unlock()

	s.logger.Info("Opening push channel", zap.String("user_id", userID), zap.String("role", role))
	go s.dial(gen, userID, role, token)
}

func (s *Service) beginDialLocked() uint64 {
	s.gen++
	s.sock = socketConnecting
	s.authenticated = false
	return s.gen
}

// Disconnect closes the channel with a normal-closure code and forgets the
// session. Safe to call at any time.
func (s *Service) Disconnect() {
	s.mu.Lock()
	s.stopReconnectLocked()
	s.stopHeartbeatLocked()
	conn := s.conn
	hadSocket := s.sock != socketNone
	userID, role := s.userID, s.role
	s.gen++
	gen := s.gen
	s.conn = nil
	s.sock = socketNone
	if conn != nil {
		s.sock = socketClosing
	}
	s.authenticated = false
	s.userID = ""
	s.role = ""
	s.attempts = 0
	s.exhausted = false
	s.outbox = nil // queued frames belong to the session being torn down
	s.mu.Unlock()

	if conn != nil {
		if frame, err := json.Marshal(Message{Type: MsgUnsubscribe, Payload: map[string]string{"userId": userID, "role": role}}); err == nil {
			s.write(conn, frame)
		}
		if err := conn.Close(CloseNormal, "client disconnect"); err != nil {
			s.logger.Debug("Error closing push channel", zap.Error(err))
		}
		s.mu.Lock()
		if s.gen == gen && s.sock == socketClosing {
			s.sock = socketNone
		}
		s.mu.Unlock()
	}

	if hadSocket {
		s.logger.Info("Push channel disconnected by client")
		s.events.Disconnected.publish(DisconnectEvent{Code: CloseNormal, Reason: "client disconnect"})
	}
}

// Send transmits a frame if the channel is open. Frames sent while the
// channel is down are dropped.
func (s *Service) Send(msgType string, payload any) bool {
	frame, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		s.logger.Error("Failed to encode outbound frame", zap.String("type", msgType), zap.Error(err))
		return false
	}
	s.mu.Lock()
	conn := s.conn
	open := s.sock == socketOpen
	s.mu.Unlock()
	if !open || conn == nil {
		s.logger.Debug("Dropping frame, channel not open", zap.String("type", msgType))
		return false
	}
	return s.write(conn, frame)
}

// Enqueue is the at-least-once variant of Send: while the channel is down the
// frame is held in a bounded outbox (oldest dropped first) and flushed right
// after the next successful open. Returns false when queuing is disabled and
// the frame could not be sent.
func (s *Service) Enqueue(msgType string, payload any) bool {
	frame, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		s.logger.Error("Failed to encode outbound frame", zap.String("type", msgType), zap.Error(err))
		return false
	}
	s.mu.Lock()
	if s.sock == socketOpen && s.conn != nil {
		conn := s.conn
		s.mu.Unlock()
		return s.write(conn, frame)
	}
	if s.opts.OutboxSize <= 0 {
		s.mu.Unlock()
		return false
	}
	s.outbox = append(s.outbox, frame)
	if over := len(s.outbox) - s.opts.OutboxSize; over > 0 {
		s.logger.Warn("Outbox full, dropping oldest frames", zap.Int("dropped", over))
		s.outbox = s.outbox[over:]
	}
	s.mu.Unlock()
	return true
}

// OutboxLen reports how many frames are waiting for the next open.
func (s *Service) OutboxLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outbox)
}

func (s *Service) write(conn Conn, frame []byte) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteMessage(frame); err != nil {
		s.logger.Warn("Failed to write frame", zap.Error(err))
		return false
	}
	return true
}

// Status derives the channel status from the socket state and auth flag.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.sock {
	case socketConnecting:
		return StatusConnecting
	case socketOpen:
		if s.authenticated {
			return StatusConnected
		}
		return StatusAuthenticating
	case socketClosing:
		return StatusClosing
	default:
		if s.exhausted {
			return StatusError
		}
		return StatusDisconnected
	}
}

// IsConnected is true only for an open, authenticated channel.
func (s *Service) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sock == socketOpen && s.authenticated
}

func (s *Service) ReconnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Session returns the user and role the channel is bound to, if any.
func (s *Service) Session() (userID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.role
}

func (s *Service) dial(gen uint64, userID, role, token string) {
	target, err := handshakeURL(s.opts.URL, token, userID, role)
	if err != nil {
		s.dialFailed(gen, err)
		return
	}

	ctx := context.Background()
	if s.opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.HandshakeTimeout)
		defer cancel()
	}

	conn, err := s.dialer.Dial(ctx, target)
	if err != nil {
		s.dialFailed(gen, err)
		return
	}
	s.opened(gen, conn)
}

func (s *Service) dialFailed(gen uint64, err error) {
	s.mu.Lock()
	stale := gen != s.gen
	s.mu.Unlock()
	if stale {
		return
	}
	s.logger.Warn("Failed to open push channel", zap.Error(err))
	s.events.Error.publish(err)
	s.closed(gen, CloseAbnormal, err.Error())
}

func (s *Service) opened(gen uint64, conn Conn) {
	s.mu.Lock()
	if gen != s.gen || s.sock != socketConnecting {
		s.mu.Unlock()
		_ = conn.Close(CloseNormal, "superseded")
		return
	}
	s.conn = conn
	s.sock = socketOpen
	s.authenticated = true
	s.attempts = 0
	s.exhausted = false
	s.stopReconnectLocked()
	s.startHeartbeatLocked(gen)
	pending := s.outbox
	s.outbox = nil
	userID, role := s.userID, s.role
	s.mu.Unlock()

	s.logger.Info("Push channel connected", zap.String("user_id", userID), zap.String("role", role))
	go s.readLoop(gen, conn)

	s.Send(MsgSubscribe, map[string]any{"userId": userID, "role": role, "types": SubscribedTypes})
	for _, frame := range pending {
		s.write(conn, frame)
	}
	s.events.Connected.publish(ConnectedEvent{UserID: userID, Role: role})
}

// closed handles the end of the channel identified by gen.
func (s *Service) closed(gen uint64, code int, reason string) {
	s.mu.Lock()
	if gen != s.gen || s.sock == socketNone {
		s.mu.Unlock()
		return
	}
	s.stopHeartbeatLocked()
	s.conn = nil
	s.sock = socketNone
	s.authenticated = false

	var (
		delay     time.Duration
		scheduled bool
		exhausted bool
		attempts  int
	)
	if code != CloseNormal && s.userID != "" {
		if s.attempts < s.opts.MaxReconnectAttempts {
			s.attempts++
			delay = s.opts.ReconnectBaseInterval * time.Duration(1<<(s.attempts-1))
			s.reconnect = s.sched.AfterFunc(delay, func() { s.retry(gen) })
			scheduled = true
		} else {
			s.exhausted = true
			exhausted = true
		}
	}
	attempts = s.attempts
	s.mu.Unlock()

	s.logger.Info("Push channel closed", zap.Int("code", code), zap.String("reason", reason))
	s.events.Disconnected.publish(DisconnectEvent{Code: code, Reason: reason})
	if scheduled {
		s.logger.Info("Reconnect scheduled", zap.Int("attempt", attempts), zap.Duration("delay", delay))
	}
	if exhausted {
		s.logger.Warn("Reconnect attempts exhausted", zap.Int("attempts", attempts))
		s.events.MaxReconnectAttempts.publish(MaxReconnectEvent{Attempts: attempts})
	}
}

// retry fires from the backoff timer. The token is read fresh so a refreshed
// token is picked up.
func (s *Service) retry(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.sock != socketNone {
		s.mu.Unlock()
		return
	}
	s.reconnect = nil
	s.mu.Unlock()

	token, err := s.tokens.Token(context.Background())
	if err != nil {
		s.logger.Warn("Failed to read stored token for reconnect", zap.Error(err))
	}

	s.mu.Lock()
	if gen != s.gen || s.sock != socketNone {
		s.mu.Unlock()
		return
	}
	userID, role := s.userID, s.role
	newGen := s.beginDialLocked()
	attempt := s.attempts
	s.mu.Unlock()

	s.logger.Info("Reconnecting push channel", zap.Int("attempt", attempt))
	go s.dial(newGen, userID, role, token)
}

func (s *Service) readLoop(gen uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			code, reason := closeDetails(err)
			s.closed(gen, code, reason)
			return
		}
		if !s.current(gen) {
			return
		}
		s.dispatch(gen, data)
	}
}

func (s *Service) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen
}

func (s *Service) dispatch(gen uint64, data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn("Dropping malformed frame", zap.Error(err), zap.ByteString("frame", truncate(data, 256)))
		return
	}

	switch msg.Type {
	case MsgHeartbeat:
		s.serverHeartbeat(gen)
	case MsgAuthRequired:
		s.mu.Lock()
		if gen == s.gen {
			s.authenticated = false
		}
		s.mu.Unlock()
		var ev AuthRequiredEvent
		decodePayload(s, msg, &ev)
		s.logger.Warn("Server requires re-authentication")
		s.events.AuthRequired.publish(ev)
	case MsgError:
		var ev ServerError
		if decodePayload(s, msg, &ev) {
			s.events.ServerError.publish(ev)
		}
	case EventNotification:
		var ev NotificationPayload
		if decodePayload(s, msg, &ev) {
			ev.Raw = msg.Payload
			s.events.Notification.publish(ev)
		}
	case EventBookingUpdate:
		var ev BookingUpdate
		if decodePayload(s, msg, &ev) {
			ev.Raw = msg.Payload
			s.events.BookingUpdate.publish(ev)
		}
	case EventPaymentUpdate:
		var ev PaymentUpdate
		if decodePayload(s, msg, &ev) {
			ev.Raw = msg.Payload
			s.events.PaymentUpdate.publish(ev)
		}
	case EventSystemAlert:
		var ev SystemAlert
		if decodePayload(s, msg, &ev) {
			ev.Raw = msg.Payload
			s.events.SystemAlert.publish(ev)
		}
	case EventUserActivity:
		var ev UserActivity
		if decodePayload(s, msg, &ev) {
			ev.Raw = msg.Payload
			s.events.UserActivity.publish(ev)
		}
	default:
		s.logger.Debug("Forwarding unknown message", zap.String("type", msg.Type))
		s.events.UnknownMessage.publish(UnknownMessage{Type: msg.Type, Payload: msg.Payload})
	}
}

func decodePayload(s *Service, msg inboundMessage, into any) bool {
	if len(msg.Payload) == 0 {
		return true
	}
	if err := json.Unmarshal(msg.Payload, into); err != nil {
		s.logger.Warn("Dropping frame with undecodable payload", zap.String("type", msg.Type), zap.Error(err))
		return false
	}
	return true
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

func (s *Service) startHeartbeatLocked(gen uint64) {
	s.stopHeartbeatLocked()
	s.heartbeat = s.sched.Every(s.opts.HeartbeatInterval, func() { s.sendHeartbeat(gen) })
}

func (s *Service) stopHeartbeatLocked() {
	if s.heartbeat != nil {
		s.heartbeat.Stop()
		s.heartbeat = nil
	}
	if s.hbTimeout != nil {
		s.hbTimeout.Stop()
		s.hbTimeout = nil
	}
}

func (s *Service) stopReconnectLocked() {
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
}

func (s *Service) sendHeartbeat(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.sock != socketOpen {
		s.mu.Unlock()
		return
	}
	if s.hbTimeout == nil {
		s.hbTimeout = s.sched.AfterFunc(s.opts.HeartbeatTimeout, func() { s.heartbeatExpired(gen) })
	}
	s.mu.Unlock()

	s.Send(MsgHeartbeat, map[string]int64{"timestamp": time.Now().UnixMilli()})
}

func (s *Service) serverHeartbeat(gen uint64) {
	s.mu.Lock()
	if gen == s.gen && s.hbTimeout != nil {
		s.hbTimeout.Stop()
		s.hbTimeout = nil
	}
	s.mu.Unlock()
	s.Send(MsgHeartbeatResponse, map[string]int64{"timestamp": time.Now().UnixMilli()})
}

// heartbeatExpired treats a missing server heartbeat as a dead channel.
func (s *Service) heartbeatExpired(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.sock != socketOpen {
		s.mu.Unlock()
		return
	}
	s.hbTimeout = nil
	conn := s.conn
	s.mu.Unlock()

	s.logger.Warn("Heartbeat timed out, closing push channel", zap.Duration("timeout", s.opts.HeartbeatTimeout))
	if conn != nil {
		_ = conn.Close(CloseHeartbeatTimeout, "heartbeat timeout")
	}
	s.closed(gen, CloseHeartbeatTimeout, "heartbeat timeout")
}
