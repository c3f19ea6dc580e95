package push

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"futsal_notifier/internal/config"
	"futsal_notifier/internal/storage"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// messageSender is the part of *messaging.Client the notifier uses.
type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
	SendDryRun(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMNotifier delivers platform notifications as Firebase Cloud Messaging
// web pushes to a single registered device.
type FCMNotifier struct {
	sender      messageSender
	deviceToken string
	perms       permissionStore
	logger      *zap.Logger

	mu sync.Mutex
}

// NewFCMNotifier initializes the Firebase Admin SDK from the service account
// key in cfg and returns a notifier targeting cfg.FCMDeviceToken.
func NewFCMNotifier(cfg *config.Config, store storage.Store, logger *zap.Logger) (*FCMNotifier, error) {
	if cfg.FirebaseServiceAccountKeyPath == "" {
		return nil, fmt.Errorf("firebase service account key path is required")
	}
	cleanPath := filepath.Clean(cfg.FirebaseServiceAccountKeyPath)
	opt := option.WithCredentialsFile(cleanPath)

	var conf *firebase.Config
	if cfg.FirebaseProjectID != "" {
		conf = &firebase.Config{ProjectID: cfg.FirebaseProjectID}
	}
	app, err := firebase.NewApp(context.Background(), conf, opt)
	if err != nil {
		logger.Error("Failed to initialize Firebase Admin SDK app", zap.Error(err), zap.String("keyPath", cleanPath))
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Messaging(context.Background())
	if err != nil {
		logger.Error("Failed to get Firebase Messaging client", zap.Error(err))
		return nil, fmt.Errorf("error getting Firebase Messaging client: %w", err)
	}

	logger.Info("Firebase Admin SDK initialized successfully.")
	return newFCMNotifier(client, cfg.FCMDeviceToken, store, logger), nil
}

func newFCMNotifier(sender messageSender, deviceToken string, store storage.Store, logger *zap.Logger) *FCMNotifier {
	named := logger.Named("push")
	return &FCMNotifier{
		sender:      sender,
		deviceToken: deviceToken,
		perms:       permissionStore{store: store, logger: named},
		logger:      named,
	}
}

func (n *FCMNotifier) Permission(ctx context.Context) Permission {
	return n.perms.load(ctx)
}

// RequestPermission validates the registered device with a dry-run send. The
// outcome is remembered; later calls return it without prompting again.
func (n *FCMNotifier) RequestPermission(ctx context.Context) Permission {
	n.mu.Lock()
	defer n.mu.Unlock()

	current := n.perms.load(ctx)
	if current != PermissionDefault {
		return current
	}

	result := PermissionGranted
	if n.deviceToken == "" {
		n.logger.Warn("No FCM device token configured, denying notification permission")
		result = PermissionDenied
	} else if _, err := n.sender.SendDryRun(ctx, &messaging.Message{Token: n.deviceToken}); err != nil {
		n.logger.Warn("FCM device token rejected, denying notification permission", zap.Error(err))
		result = PermissionDenied
	}

	n.perms.save(ctx, result)
	n.logger.Info("Notification permission decided", zap.String("permission", string(result)))
	return result
}

func (n *FCMNotifier) Show(ctx context.Context, msg Message) error {
	if n.perms.load(ctx) != PermissionGranted {
		return ErrPermissionNotGranted
	}

	id, err := n.sender.Send(ctx, &messaging.Message{
		Token: n.deviceToken,
		Data:  msg.Data,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Title:              msg.Title,
				Body:               msg.Body,
				Icon:               msg.Icon,
				Tag:                msg.Tag,
				RequireInteraction: msg.RequireInteraction,
			},
		},
	})
	if err != nil {
		n.logger.Error("Failed to send push notification", zap.String("tag", msg.Tag), zap.Error(err))
		return fmt.Errorf("push: send: %w", err)
	}
	n.logger.Debug("Push notification sent", zap.String("message_id", id), zap.String("tag", msg.Tag))
	return nil
}

// New picks FCM when a service account is configured and falls back to LogNotifier.
func New(cfg *config.Config, store storage.Store, logger *zap.Logger) Notifier {
	if cfg.FirebaseServiceAccountKeyPath == "" {
		logger.Info("Firebase not configured, platform notifications go to the log")
		return NewLogNotifier(logger)
	}
	n, err := NewFCMNotifier(cfg, store, logger)
	if err != nil {
		logger.Warn("Falling back to log notifier", zap.Error(err))
		return NewLogNotifier(logger)
	}
	return n
}
