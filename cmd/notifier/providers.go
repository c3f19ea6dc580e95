package main

import (
	"futsal_notifier/internal/config"
	"futsal_notifier/internal/notification"
	"futsal_notifier/internal/platform/database"
	"futsal_notifier/internal/push"
	"futsal_notifier/internal/realtime"
	"futsal_notifier/internal/ws"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// provideDatabase opens the GORM handle only for the SQL storage drivers.
func provideDatabase(cfg *config.Config, logger *zap.Logger) (*gorm.DB, func(), error) {
	if !cfg.UsesSQLStorage() {
		logger.Debug("Local storage does not use a SQL database", zap.String("driver", cfg.StorageDriver))
		return nil, func() {}, nil
	}
	db, err := database.NewGORM(cfg)
	if err != nil {
		return nil, nil, err
	}
	return db, func() {
		logger.Info("Closing local storage database...")
		database.CloseGORMDB(db)
	}, nil
}

func provideTransport(cfg *config.Config, tokens ws.TokenSource, logger *zap.Logger) *ws.Service {
	dialer := ws.NewGorillaDialer(cfg.WSHandshakeTimeout)
	return ws.NewService(ws.OptionsFromConfig(cfg), dialer, tokens, logger)
}

func provideLiveSession(
	cfg *config.Config,
	transport *ws.Service,
	tokens ws.TokenSource,
	notifier push.Notifier,
	logger *zap.Logger,
) (*realtime.Session, func()) {
	s := realtime.NewSession(transport, tokens, notifier, realtime.OptionsFromConfig(cfg), logger)
	return s, s.Close
}

func provideNotificationOptions(cfg *config.Config) notification.Options {
	return notification.OptionsFromConfig(cfg)
}
