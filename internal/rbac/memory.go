package rbac

import (
	"context"
	"sync"
	"time"

	"moss.dev/internal/ids"
)

// MemoryStore is an in-memory Store used by tests and single-node
// deployments without Postgres.
type MemoryStore struct {
	mu          sync.Mutex
	roles       map[string]*Role
	perms       map[string]PermissionSet // by role id
	assignments map[string]*Assignment
	rules       map[string][]ObjectRule // by assignment id
	groups      map[string]map[string]bool
	now         func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		roles:       make(map[string]*Role),
		perms:       make(map[string]PermissionSet),
		assignments: make(map[string]*Assignment),
		rules:       make(map[string][]ObjectRule),
		groups:      make(map[string]map[string]bool),
		now:         time.Now,
	}
}

func (s *MemoryStore) Roles(context.Context) RoleStore             { return s }
func (s *MemoryStore) Permissions(context.Context) PermissionStore { return s }
func (s *MemoryStore) Assignments(context.Context) AssignmentStore { return s }
func (s *MemoryStore) ObjectRules(context.Context) ObjectRuleStore { return s }
func (s *MemoryStore) Groups(context.Context) GroupStore           { return s }

func (s *MemoryStore) CreateRole(_ context.Context, role *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role.ID == "" {
		role.ID = ids.New()
	}
	if _, exists := s.roles[role.ID]; exists {
		return ErrConflict
	}
	now := s.now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now
	cp := *role
	s.roles[role.ID] = &cp
	return nil
}

func (s *MemoryStore) GetRole(_ context.Context, id string) (*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *role
	return &cp, nil
}

func (s *MemoryStore) FindRoleByName(_ context.Context, name string) (*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, role := range s.roles {
		if role.Name == name {
			cp := *role
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateRole(_ context.Context, role *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.roles[role.ID]
	if !ok {
		return ErrNotFound
	}
	role.CreatedAt = existing.CreatedAt
	role.UpdatedAt = s.now().UTC()
	cp := *role
	s.roles[role.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteRole(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return ErrNotFound
	}
	delete(s.roles, id)
	delete(s.perms, id)
	return nil
}

func (s *MemoryStore) ListRoles(_ context.Context) ([]Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Role, 0, len(s.roles))
	for _, role := range s.roles {
		out = append(out, *role)
	}
	return out, nil
}

func (s *MemoryStore) SetRolePermissions(_ context.Context, roleID string, perms PermissionSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return ErrNotFound
	}
	s.perms[roleID] = perms.Clone()
	return nil
}

func (s *MemoryStore) RolePermissions(_ context.Context, roleID string) (PermissionSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	perms, ok := s.perms[roleID]
	if !ok {
		return make(PermissionSet), nil
	}
	return perms.Clone(), nil
}

func (s *MemoryStore) CreateAssignment(_ context.Context, a *Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = ids.New()
	}
	if _, exists := s.assignments[a.ID]; exists {
		return ErrConflict
	}
	a.CreatedAt = s.now().UTC()
	cp := *a
	cp.LocationIDs = append([]string(nil), a.LocationIDs...)
	s.assignments[a.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAssignment(_ context.Context, id string) (*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	cp.LocationIDs = append([]string(nil), a.LocationIDs...)
	return &cp, nil
}

func (s *MemoryStore) DeleteAssignment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[id]; !ok {
		return ErrNotFound
	}
	delete(s.assignments, id)
	delete(s.rules, id)
	return nil
}

func (s *MemoryStore) AssignmentsFor(_ context.Context, assignees []Assignee) ([]Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[Assignee]bool, len(assignees))
	for _, a := range assignees {
		wanted[a] = true
	}
	var out []Assignment
	for _, a := range s.assignments {
		if wanted[a.Assignee] {
			cp := *a
			cp.LocationIDs = append([]string(nil), a.LocationIDs...)
			out = append(out, cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListAssignments(_ context.Context) ([]Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Assignment, 0, len(s.assignments))
	for _, a := range s.assignments {
		cp := *a
		cp.LocationIDs = append([]string(nil), a.LocationIDs...)
		out = append(out, cp)
	}
	return out, nil
}

func (s *MemoryStore) SetObjectRules(_ context.Context, assignmentID string, rules []ObjectRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[assignmentID]; !ok {
		return ErrNotFound
	}
	s.rules[assignmentID] = append([]ObjectRule(nil), rules...)
	return nil
}

func (s *MemoryStore) ClearObjectRules(_ context.Context, assignmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rules, assignmentID)
	return nil
}

func (s *MemoryStore) RulesForAssignments(_ context.Context, assignmentIDs []string) ([]ObjectRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ObjectRule
	for _, id := range assignmentIDs {
		out = append(out, s.rules[id]...)
	}
	return out, nil
}

func (s *MemoryStore) AddGroupMember(_ context.Context, groupID, personID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.groups[groupID]
	if !ok {
		members = make(map[string]bool)
		s.groups[groupID] = members
	}
	members[personID] = true
	return nil
}

func (s *MemoryStore) RemoveGroupMember(_ context.Context, groupID, personID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if members, ok := s.groups[groupID]; ok {
		delete(members, personID)
	}
	return nil
}

func (s *MemoryStore) GroupsForPerson(_ context.Context, personID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for groupID, members := range s.groups {
		if members[personID] {
			out = append(out, groupID)
		}
	}
	return out, nil
}
