package user

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"authority/internal/auth/models"
	id "authority/pkg/domain"
	"authority/pkg/platform/sentinel"
)

// InMemoryUserStore keeps principals in a map. Values are cloned on the way
// in and out so callers never share slices with the store.
type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[id.UserID]*models.User
}

func New() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[id.UserID]*models.User)}
}

func (s *InMemoryUserStore) Save(_ context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for existingID, existing := range s.users {
		if existingID != user.ID && user.Email != "" && strings.EqualFold(existing.Email, user.Email) {
			return sentinel.ErrConflict
		}
	}
	s.users[user.ID] = clone(user)
	return nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok {
		return clone(u), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email != "" && strings.EqualFold(u.Email, email) {
			return clone(u), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// FindByPhoneSubstring returns the oldest principal whose phone digits
// contain digits.
func (s *InMemoryUserStore) FindByPhoneSubstring(_ context.Context, digits string) (*models.User, error) {
	if digits == "" {
		return nil, sentinel.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var match *models.User
	for _, u := range s.users {
		if !strings.Contains(models.DigitsOnly(u.Phone), digits) {
			continue
		}
		if match == nil || u.CreatedAt.Before(match.CreatedAt) {
			match = u
		}
	}
	if match == nil {
		return nil, sentinel.ErrNotFound
	}
	return clone(match), nil
}

func (s *InMemoryUserStore) UpdateLastLogin(_ context.Context, userID id.UserID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	u.LastLogin = &at
	u.UpdatedAt = at
	return nil
}

func (s *InMemoryUserStore) UpdateSessions(_ context.Context, userID id.UserID, sessions []models.ActiveSession, history []models.LoginRecord, lastActivity time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	u.ActiveSessions = slices.Clone(sessions)
	u.LoginHistory = slices.Clone(history)
	u.LastActivity = &lastActivity
	u.UpdatedAt = lastActivity
	return nil
}

func clone(u *models.User) *models.User {
	c := *u
	c.ActiveSessions = slices.Clone(u.ActiveSessions)
	c.LoginHistory = slices.Clone(u.LoginHistory)
	if u.Preferences != nil {
		c.Preferences = make(map[string]string, len(u.Preferences))
		for k, v := range u.Preferences {
			c.Preferences[k] = v
		}
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	if u.LastActivity != nil {
		t := *u.LastActivity
		c.LastActivity = &t
	}
	return &c
}
