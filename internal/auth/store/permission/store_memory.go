package permission

import (
	"context"
	"slices"
	"sync"

	"authority/internal/auth/models"
	id "authority/pkg/domain"
	"authority/pkg/platform/sentinel"
	pstrings "authority/pkg/platform/strings"
)

// InMemoryStore holds groups, permissions and the two join tables. Group and
// permission administration is owned elsewhere; the mutators exist for
// tests and local runs.
type InMemoryStore struct {
	mu          sync.RWMutex
	groups      map[id.GroupID]models.Group
	permissions map[id.PermissionID]models.Permission
	granted     map[id.GroupID]map[id.PermissionID]struct{}
	members     map[id.UserID]map[id.GroupID]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		groups:      make(map[id.GroupID]models.Group),
		permissions: make(map[id.PermissionID]models.Permission),
		granted:     make(map[id.GroupID]map[id.PermissionID]struct{}),
		members:     make(map[id.UserID]map[id.GroupID]struct{}),
	}
}

func (s *InMemoryStore) AddGroup(group models.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[group.ID] = group
}

func (s *InMemoryStore) AddPermission(p models.Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions[p.ID] = p
}

func (s *InMemoryStore) Grant(groupID id.GroupID, permissionID id.PermissionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return sentinel.ErrNotFound
	}
	if _, ok := s.permissions[permissionID]; !ok {
		return sentinel.ErrNotFound
	}
	if s.granted[groupID] == nil {
		s.granted[groupID] = make(map[id.PermissionID]struct{})
	}
	s.granted[groupID][permissionID] = struct{}{}
	return nil
}

func (s *InMemoryStore) AddMember(userID id.UserID, groupID id.GroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return sentinel.ErrNotFound
	}
	if s.members[userID] == nil {
		s.members[userID] = make(map[id.GroupID]struct{})
	}
	s.members[userID][groupID] = struct{}{}
	return nil
}

func (s *InMemoryStore) RemoveMember(userID id.UserID, groupID id.GroupID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[userID], groupID)
}

func (s *InMemoryStore) SetGroupActive(groupID id.GroupID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return sentinel.ErrNotFound
	}
	g.IsActive = active
	s.groups[groupID] = g
	return nil
}

// ListCodenamesForUser returns the sorted distinct codenames granted to the
// user through active groups.
func (s *InMemoryStore) ListCodenamesForUser(_ context.Context, userID id.UserID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.codenames(userID), nil
}

func (s *InMemoryStore) HasPermission(_ context.Context, userID id.UserID, codename string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.codenames(userID), codename), nil
}

func (s *InMemoryStore) HasAnyPermission(_ context.Context, userID id.UserID, codenames []string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	held := s.codenames(userID)
	return slices.ContainsFunc(codenames, func(c string) bool {
		return slices.Contains(held, c)
	}), nil
}

func (s *InMemoryStore) codenames(userID id.UserID) []string {
	var out []string
	for groupID := range s.members[userID] {
		g, ok := s.groups[groupID]
		if !ok || !g.IsActive {
			continue
		}
		for permissionID := range s.granted[groupID] {
			if p, ok := s.permissions[permissionID]; ok {
				out = append(out, p.Codename)
			}
		}
	}
	return pstrings.SortedSet(out)
}
