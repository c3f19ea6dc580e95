// Package push surfaces notifications outside the agent's own API: the
// platform-level "browser notification" with its permission model.
package push

import (
	"context"
	"errors"

	"futsal_notifier/internal/storage"

	"go.uber.org/zap"
)

// Permission mirrors the platform permission states.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

func (p Permission) valid() bool {
	switch p {
	case PermissionDefault, PermissionGranted, PermissionDenied:
		return true
	}
	return false
}

// Message is one platform notification.
type Message struct {
	Tag                string
	Title              string
	Body               string
	Icon               string
	RequireInteraction bool
	Data               map[string]string
}

// ErrPermissionNotGranted is returned by Show when the user has not granted permission.
var ErrPermissionNotGranted = errors.New("push: notification permission not granted")

// Notifier is the platform notification API.
type Notifier interface {
	Permission(ctx context.Context) Permission
	// RequestPermission prompts only while the permission is still default and
	// returns the resulting state.
	RequestPermission(ctx context.Context) Permission
	Show(ctx context.Context, msg Message) error
}

// permissionStore persists the permission decision so it survives restarts.
type permissionStore struct {
	store  storage.Store
	logger *zap.Logger
}

func (p permissionStore) load(ctx context.Context) Permission {
	if p.store == nil {
		return PermissionDefault
	}
	v, err := p.store.Get(ctx, storage.NotificationPermissionKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.logger.Warn("Failed to read notification permission", zap.Error(err))
		}
		return PermissionDefault
	}
	perm := Permission(v)
	if !perm.valid() {
		return PermissionDefault
	}
	return perm
}

func (p permissionStore) save(ctx context.Context, perm Permission) {
	if p.store == nil {
		return
	}
	if err := p.store.Set(ctx, storage.NotificationPermissionKey, string(perm)); err != nil {
		p.logger.Warn("Failed to persist notification permission", zap.Error(err))
	}
}

// LogNotifier writes notifications to the log. Used when no push backend is
// configured; permission is always granted.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("push")}
}

func (n *LogNotifier) Permission(context.Context) Permission { return PermissionGranted }

func (n *LogNotifier) RequestPermission(context.Context) Permission { return PermissionGranted }

func (n *LogNotifier) Show(_ context.Context, msg Message) error {
	n.logger.Info("Notification",
		zap.String("tag", msg.Tag),
		zap.String("title", msg.Title),
		zap.String("body", msg.Body),
		zap.Bool("require_interaction", msg.RequireInteraction),
	)
	return nil
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*FCMNotifier)(nil)
)
