package player

import (
	"context"
	"fmt"

	"github.com/kasuganosora/farmquest/cache"
	"github.com/kasuganosora/farmquest/config"
	"github.com/kasuganosora/farmquest/middleware"
	"github.com/kasuganosora/farmquest/plugin/hook"
	"go.uber.org/zap"
)

// SessionStore issues and revokes login sessions. A session is a signed JWT
// whose key is kept in the cache until logout or expiry.
type SessionStore struct {
	roster *Roster
	cache  cache.Cache
	sec    config.SecurityConfig
	hooks  *hook.HookCenter
	logger *zap.Logger
}

// NewSessionStore creates a SessionStore. hooks may be nil.
func NewSessionStore(roster *Roster, c cache.Cache, sec config.SecurityConfig, hooks *hook.HookCenter, logger *zap.Logger) *SessionStore {
	return &SessionStore{roster: roster, cache: c, sec: sec, hooks: hooks, logger: logger}
}

// Login authenticates and opens a session.
func (s *SessionStore) Login(ctx context.Context, username, password string) (string, User, error) {
	u, err := s.roster.Authenticate(username, password)
	if err != nil {
		s.logger.Info("login rejected", zap.String("username", username))
		return "", User{}, err
	}
	token, err := s.open(ctx, u)
	if err != nil {
		return "", User{}, err
	}
	s.logger.Info("user logged in", zap.String("user_id", u.ID), zap.String("role", string(u.Role)))
	s.trigger(ctx, hook.OnUserLogin, u)
	return token, u, nil
}

func (s *SessionStore) open(ctx context.Context, u User) (string, error) {
	token, err := middleware.GenerateToken(u.ID, string(u.Role), s.sec.JWTSecret, s.sec.JWTTTLH)
	if err != nil {
		return "", fmt.Errorf("session: sign token: %w", err)
	}
	if err := s.cache.Set(ctx, middleware.SessionKey(token), u.ID, s.sec.JWTTTLH); err != nil {
		return "", fmt.Errorf("session: store: %w", err)
	}
	return token, nil
}

// Logout clears the session. It succeeds whether or not the session exists.
func (s *SessionStore) Logout(ctx context.Context, token string) error {
	userID, _ := s.cache.Get(ctx, middleware.SessionKey(token))
	if err := s.cache.Del(ctx, middleware.SessionKey(token)); err != nil {
		return err
	}
	if userID != "" {
		if u, err := s.roster.Get(userID); err == nil {
			s.logger.Info("user logged out", zap.String("user_id", u.ID))
			s.trigger(ctx, hook.OnUserLogout, u)
		}
	}
	return nil
}

// Refresh swaps a live session for a new token and revokes the old one.
func (s *SessionStore) Refresh(ctx context.Context, token string) (string, User, error) {
	u, err := s.Current(ctx, token)
	if err != nil {
		return "", User{}, err
	}
	next, err := s.open(ctx, u)
	if err != nil {
		return "", User{}, err
	}
	_ = s.cache.Del(ctx, middleware.SessionKey(token))
	return next, u, nil
}

// Current resolves a token to the user snapshot it belongs to.
func (s *SessionStore) Current(ctx context.Context, token string) (User, error) {
	claims, err := middleware.VerifySession(ctx, s.cache, s.sec.JWTSecret, token)
	if err != nil {
		return User{}, err
	}
	return s.roster.Get(claims.UserID)
}

func (s *SessionStore) trigger(ctx context.Context, event string, u User) {
	if s.hooks == nil {
		return
	}
	if _, err := s.hooks.Trigger(ctx, event, u); err != nil {
		s.logger.Warn("hook failed", zap.String("event", event), zap.Error(err))
	}
}
