package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/digkill/veocreator/internal/models"
)

// SnapshotCache holds recently read users. Implementations may be remote, so every
// method can fail; callers treat failures as misses.
type SnapshotCache interface {
	Get(ctx context.Context, userID string) (*models.User, error)
	Set(ctx context.Context, user *models.User) error
	Invalidate(ctx context.Context, userID string) error
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	Ensure(ctx context.Context, id, name, email string) (*models.User, bool, error)
}

type UserService struct {
	users UserStore
	cache SnapshotCache
	log   *slog.Logger
}

// NewUserService builds the read side of the user store. cache may be nil.
func NewUserService(users UserStore, cache SnapshotCache, log *slog.Logger) *UserService {
	return &UserService{users: users, cache: cache, log: log}
}

// Ensure finds or creates the user behind an authenticated identity. New users start
// with zero balances. A cached snapshot short-circuits the store unless the token
// carries a name or email the snapshot does not have yet.
func (s *UserService) Ensure(ctx context.Context, id, name, email string) (*models.User, error) {
	if cached := s.cached(ctx, id); cached != nil && sameProfile(cached, name, email) {
		return cached, nil
	}
	user, created, err := s.users.Ensure(ctx, id, name, email)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	if created {
		s.log.Info("user signed up", "user_id", id)
	}
	s.store(ctx, user)
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	if cached := s.cached(ctx, id); cached != nil {
		return cached, nil
	}
	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	s.store(ctx, user)
	return user, nil
}

// sameProfile reports whether applying name and email would leave user unchanged.
// Empty values never overwrite stored ones.
func sameProfile(user *models.User, name, email string) bool {
	return (name == "" || name == user.Name) && (email == "" || email == user.Email)
}

func (s *UserService) cached(ctx context.Context, id string) *models.User {
	if s.cache == nil {
		return nil
	}
	user, err := s.cache.Get(ctx, id)
	if err != nil {
		s.log.Warn("read user snapshot", "user_id", id, "err", err)
		return nil
	}
	return user
}

func (s *UserService) store(ctx context.Context, user *models.User) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, user); err != nil {
		s.log.Warn("write user snapshot", "user_id", user.ID, "err", err)
	}
}

// Invalidate drops the cached snapshot of id, if any.
func (s *UserService) Invalidate(ctx context.Context, id string) {
	if s == nil || s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.log.Warn("invalidate user snapshot", "user_id", id, "err", err)
	}
}
