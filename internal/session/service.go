// Package session binds the authenticated user to the push channel and the
// notification feed.
package session

import (
	"context"
	"errors"
	"fmt"

	"futsal_notifier/internal/common"
	"futsal_notifier/internal/domain"
	"futsal_notifier/internal/realtime"
	"futsal_notifier/internal/storage"
	"futsal_notifier/internal/ws"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Binder is the realtime session.
type Binder interface {
	Bind(c realtime.Credentials)
	Bound() (userID, role string, ok bool)
	Reconnect() error
	Status() ws.Status
	IsConnected() bool
	ReconnectAttempts() int
}

// Feed is the notification provider.
type Feed interface {
	SetUser(ctx context.Context, userID string)
}

type Service interface {
	Login(ctx context.Context, req LoginRequest) (*State, error)
	Logout(ctx context.Context) error
	Restore(ctx context.Context) (*State, error)
	Reconnect() error
	State() *State
}

type serviceImpl struct {
	store  storage.Store
	binder Binder
	feed   Feed
	parser *jwt.Parser
	logger *zap.Logger
}

func NewService(store storage.Store, binder Binder, feed Feed, logger *zap.Logger) Service {
	return &serviceImpl{
		store:  store,
		binder: binder,
		feed:   feed,
		parser: jwt.NewParser(),
		logger: logger.Named("session"),
	}
}

// claims reads identity claims without verifying the signature; the backend
// verifies the token on every request and on the socket handshake.
func (s *serviceImpl) claims(token string) (*Claims, error) {
	var c Claims
	if _, _, err := s.parser.ParseUnverified(token, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *serviceImpl) resolve(req LoginRequest) (realtime.Credentials, error) {
	userID, role := req.UserID, req.Role
	if userID == "" || role == "" {
		c, err := s.claims(req.Token)
		if err != nil {
			s.logger.Debug("Token carries no readable claims", zap.Error(err))
		} else {
			if userID == "" {
				userID = c.UserID.String()
			}
			if role == "" {
				role = c.Role
			}
		}
	}
	if userID == "" {
		return realtime.Credentials{}, common.ErrBadRequest.WithDetails("user_id is required when the token does not carry it.")
	}
	if _, err := domain.ParseRole(role); err != nil {
		return realtime.Credentials{}, common.ErrUnprocessableEntity.WithDetails(err.Error())
	}
	return realtime.Credentials{UserID: userID, Role: role, Token: req.Token}, nil
}

func (s *serviceImpl) Login(ctx context.Context, req LoginRequest) (*State, error) {
	creds, err := s.resolve(req)
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, storage.TokenKey, creds.Token); err != nil {
		s.logger.Error("Failed to persist token", zap.Error(err))
		return nil, common.ErrInternalServer.WithDetails("Could not persist token.")
	}

	s.binder.Bind(creds)
	s.feed.SetUser(ctx, creds.UserID)
	s.logger.Info("Session bound", zap.String("user_id", creds.UserID), zap.String("role", creds.Role))
	return s.State(), nil
}

func (s *serviceImpl) Logout(ctx context.Context) error {
	if err := s.store.Remove(ctx, storage.TokenKey); err != nil {
		s.logger.Warn("Failed to remove stored token", zap.Error(err))
	}
	s.binder.Bind(realtime.Credentials{})
	s.feed.SetUser(ctx, "")
	s.logger.Info("Session cleared")
	return nil
}

// Restore binds from a previously stored token whose claims identify the user.
// A missing token is not an error.
func (s *serviceImpl) Restore(ctx context.Context) (*State, error) {
	token, err := s.store.Get(ctx, storage.TokenKey)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && token == "") {
		return s.State(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: read stored token: %w", err)
	}
	creds, err := s.resolve(LoginRequest{Token: token})
	if err != nil {
		s.logger.Info("Stored token does not identify a user, staying unbound", zap.Error(err))
		return s.State(), nil
	}
	s.binder.Bind(creds)
	s.feed.SetUser(ctx, creds.UserID)
	s.logger.Info("Session restored from stored token", zap.String("user_id", creds.UserID))
	return s.State(), nil
}

func (s *serviceImpl) Reconnect() error {
	if err := s.binder.Reconnect(); err != nil {
		return common.ErrConflict.WithDetails(err.Error())
	}
	return nil
}

func (s *serviceImpl) State() *State {
	userID, role, ok := s.binder.Bound()
	st := &State{
		Bound:             ok,
		UserID:            userID,
		Role:              role,
		Status:            s.binder.Status(),
		Connected:         s.binder.IsConnected(),
		ReconnectAttempts: s.binder.ReconnectAttempts(),
	}
	if ok {
		st.RoleLabel = domain.Role(role).Label()
	}
	return st
}
