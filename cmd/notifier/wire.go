//go:build wireinject
// +build wireinject

package main

import (
	"futsal_notifier/internal/api"
	"futsal_notifier/internal/app"
	"futsal_notifier/internal/archive"
	"futsal_notifier/internal/config"
	"futsal_notifier/internal/jobs"
	"futsal_notifier/internal/notification"
	"futsal_notifier/internal/platform/logger"
	"futsal_notifier/internal/push"
	"futsal_notifier/internal/realtime"
	"futsal_notifier/internal/session"
	"futsal_notifier/internal/storage"
	"futsal_notifier/internal/ws"

	"github.com/google/wire"
)

// initializeServer is the main Wire injector.
func initializeServer(cfg *config.Config) (*app.Server, func(), error) {
	wire.Build(
		// Platform Layer
		logger.New,
		provideDatabase,
		storage.NewStore,
		storage.NewTokenSource,
		wire.Bind(new(ws.TokenSource), new(*storage.TokenSource)),
		wire.Bind(new(api.TokenSource), new(*storage.TokenSource)),

		// Push channel and session
		provideTransport,
		wire.Bind(new(realtime.Sender), new(*ws.Service)),
		push.New,
		provideLiveSession,
		wire.Bind(new(notification.LiveSource), new(*realtime.Session)),
		wire.Bind(new(session.Binder), new(*realtime.Session)),

		// Notification feed
		api.NewClient,
		wire.Bind(new(notification.RESTClient), new(*api.Client)),
		archive.New,
		provideNotificationOptions,
		notification.NewProvider,
		wire.Bind(new(notification.Accessor), new(*notification.Provider)),
		wire.Bind(new(session.Feed), new(*notification.Provider)),
		wire.Bind(new(jobs.Poller), new(*notification.Provider)),

		// Handlers
		session.NewService,
		session.NewHandler,
		notification.NewHandler,
		realtime.NewHandler,
		jobs.NewPollingJob,

		// Application Layer
		app.NewServer,
	)
	return nil, nil, nil
}
