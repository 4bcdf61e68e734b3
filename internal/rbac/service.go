package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"moss.dev/internal/audit"
	"moss.dev/internal/ids"
)

// Service owns all mutations of the role forest, assignments and object
// rules. Every write invalidates the resolver's snapshot cache; role and
// group writes cross person boundaries, so they flush it entirely.
type Service struct {
	store    Store
	resolver *Resolver
}

// NewService constructs the administration service.
func NewService(store Store, resolver *Resolver) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	if resolver == nil {
		return nil, fmt.Errorf("%w: resolver is required", ErrInvalidInput)
	}
	return &Service{store: store, resolver: resolver}, nil
}

// Resolver exposes the resolver backing this service.
func (s *Service) Resolver() *Resolver { return s.resolver }

// Roles --------------------------------------------------------------------

// CreateRole adds a role, optionally inheriting from a parent.
func (s *Service) CreateRole(ctx context.Context, name, description, parentID string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	roles := s.store.Roles(ctx)
	if existing, err := roles.FindRoleByName(ctx, name); err == nil && existing != nil {
		return Role{}, fmt.Errorf("%w: role %q already exists", ErrConflict, name)
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return Role{}, err
	}
	if parentID != "" {
		if _, err := roles.GetRole(ctx, parentID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return Role{}, fmt.Errorf("%w: parent role %s does not exist", ErrInvalidInput, parentID)
			}
			return Role{}, err
		}
	}
	role := Role{
		ID:          ids.New(),
		Name:        name,
		Description: strings.TrimSpace(description),
		ParentID:    parentID,
	}
	if err := roles.CreateRole(ctx, &role); err != nil {
		return Role{}, err
	}
	s.resolver.InvalidateAll()
	_ = audit.LogEvent(ctx, "rbac.role.created", map[string]any{"role_id": role.ID, "name": role.Name})
	return role, nil
}

// GetRole fetches one role.
func (s *Service) GetRole(ctx context.Context, roleID string) (Role, error) {
	role, err := s.store.Roles(ctx).GetRole(ctx, roleID)
	if err != nil {
		return Role{}, err
	}
	return *role, nil
}

// ListRoles lists the whole role forest.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.Roles(ctx).ListRoles(ctx)
}

// RoleUpdate carries the mutable role fields. Nil means unchanged; an empty
// ParentID detaches the role from its parent.
type RoleUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	ParentID    *string `json:"parent_id,omitempty"`
}

// UpdateRole applies an update. System roles are immutable, and re-parenting
// that would close an inheritance loop is refused.
func (s *Service) UpdateRole(ctx context.Context, roleID string, upd RoleUpdate) (Role, error) {
	roles := s.store.Roles(ctx)
	role, err := roles.GetRole(ctx, roleID)
	if err != nil {
		return Role{}, err
	}
	if role.System {
		return Role{}, ErrSystemRole
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		if name != role.Name {
			if existing, err := roles.FindRoleByName(ctx, name); err == nil && existing != nil {
				return Role{}, fmt.Errorf("%w: role %q already exists", ErrConflict, name)
			} else if err != nil && !errors.Is(err, ErrNotFound) {
				return Role{}, err
			}
		}
		role.Name = name
	}
	if upd.Description != nil {
		role.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.ParentID != nil {
		parentID := *upd.ParentID
		if parentID != "" {
			cycles, err := WouldCycle(ctx, s.store, roleID, parentID)
			if err != nil {
				return Role{}, err
			}
			if cycles {
				return Role{}, fmt.Errorf("%w: %w", ErrInvalidInput, ErrRoleCycle)
			}
		}
		role.ParentID = parentID
	}
	if err := roles.UpdateRole(ctx, role); err != nil {
		return Role{}, err
	}
	s.resolver.InvalidateAll()
	_ = audit.LogEvent(ctx, "rbac.role.updated", map[string]any{"role_id": role.ID})
	return *role, nil
}

// DeleteRole removes a role. Roles still referenced by children or
// assignments cannot be deleted.
func (s *Service) DeleteRole(ctx context.Context, roleID string) error {
	roles := s.store.Roles(ctx)
	role, err := roles.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.System {
		return ErrSystemRole
	}
	all, err := roles.ListRoles(ctx)
	if err != nil {
		return err
	}
	for _, other := range all {
		if other.ParentID == roleID {
			return fmt.Errorf("%w: role %q inherits from it", ErrConflict, other.Name)
		}
	}
	assignments, err := s.store.Assignments(ctx).ListAssignments(ctx)
	if err != nil {
		return err
	}
	for _, a := range assignments {
		if a.RoleID == roleID {
			return fmt.Errorf("%w: role is still assigned", ErrConflict)
		}
	}
	if err := roles.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	s.resolver.InvalidateAll()
	_ = audit.LogEvent(ctx, "rbac.role.deleted", map[string]any{"role_id": roleID})
	return nil
}

// SetRolePermissions replaces a role's own permission grid.
func (s *Service) SetRolePermissions(ctx context.Context, roleID string, perms PermissionSet) error {
	role, err := s.store.Roles(ctx).GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.System {
		return ErrSystemRole
	}
	for t := range perms {
		if !t.Valid() {
			return fmt.Errorf("%w: unknown object type %q", ErrInvalidInput, t)
		}
	}
	if err := s.store.Permissions(ctx).SetRolePermissions(ctx, roleID, perms); err != nil {
		return err
	}
	s.resolver.InvalidateAll()
	_ = audit.LogEvent(ctx, "rbac.role.permissions_set", map[string]any{"role_id": roleID})
	return nil
}

// RolePermissions returns a role's fully expanded permission set, parents
// included.
func (s *Service) RolePermissions(ctx context.Context, roleID string) (PermissionSet, error) {
	if _, err := s.store.Roles(ctx).GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return EffectivePermissions(ctx, s.store, roleID)
}

// Assignments --------------------------------------------------------------

// CreateAssignment binds an assignee to a role within a scope.
func (s *Service) CreateAssignment(ctx context.Context, a Assignment) (Assignment, error) {
	if !a.Assignee.Valid() {
		return Assignment{}, fmt.Errorf("%w: assignee is invalid", ErrInvalidInput)
	}
	if !a.Scope.Valid() {
		return Assignment{}, fmt.Errorf("%w: unknown scope %q", ErrInvalidInput, a.Scope)
	}
	if a.Scope == ScopeLocation && len(a.LocationIDs) == 0 {
		return Assignment{}, fmt.Errorf("%w: location scope requires location ids", ErrInvalidInput)
	}
	if a.Scope != ScopeLocation && len(a.LocationIDs) > 0 {
		return Assignment{}, fmt.Errorf("%w: location ids only apply to location scope", ErrInvalidInput)
	}
	if _, err := s.store.Roles(ctx).GetRole(ctx, a.RoleID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Assignment{}, fmt.Errorf("%w: role %s does not exist", ErrInvalidInput, a.RoleID)
		}
		return Assignment{}, err
	}
	a.ID = ids.New()
	if err := s.store.Assignments(ctx).CreateAssignment(ctx, &a); err != nil {
		return Assignment{}, err
	}
	s.invalidateAssignee(a.Assignee)
	_ = audit.LogEvent(ctx, "rbac.assignment.created", map[string]any{
		"assignment_id": a.ID,
		"assignee_kind": string(a.Assignee.Kind),
		"assignee_id":   a.Assignee.ID,
		"role_id":       a.RoleID,
		"scope":         string(a.Scope),
	})
	return a, nil
}

// DeleteAssignment removes an assignment and its object rules.
func (s *Service) DeleteAssignment(ctx context.Context, assignmentID string) error {
	a, err := s.store.Assignments(ctx).GetAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}
	if err := s.store.ObjectRules(ctx).ClearObjectRules(ctx, assignmentID); err != nil {
		return err
	}
	if err := s.store.Assignments(ctx).DeleteAssignment(ctx, assignmentID); err != nil {
		return err
	}
	s.invalidateAssignee(a.Assignee)
	_ = audit.LogEvent(ctx, "rbac.assignment.deleted", map[string]any{"assignment_id": assignmentID})
	return nil
}

// ListAssignments lists every assignment.
func (s *Service) ListAssignments(ctx context.Context) ([]Assignment, error) {
	return s.store.Assignments(ctx).ListAssignments(ctx)
}

// Object rules -------------------------------------------------------------

// SetObjectRules replaces an assignment's object-level overrides.
func (s *Service) SetObjectRules(ctx context.Context, assignmentID string, rules []ObjectRule) error {
	a, err := s.store.Assignments(ctx).GetAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}
	for i := range rules {
		r := &rules[i]
		if !r.ObjectType.Valid() {
			return fmt.Errorf("%w: unknown object type %q", ErrInvalidInput, r.ObjectType)
		}
		if !r.Action.Valid() {
			return fmt.Errorf("%w: unknown action %q", ErrInvalidInput, r.Action)
		}
		if !r.Effect.Valid() {
			return fmt.Errorf("%w: unknown effect %q", ErrInvalidInput, r.Effect)
		}
		if r.ObjectID == "" {
			return fmt.Errorf("%w: object id is required", ErrInvalidInput)
		}
		r.AssignmentID = assignmentID
		if r.ID == "" {
			r.ID = ids.New()
		}
	}
	if err := s.store.ObjectRules(ctx).SetObjectRules(ctx, assignmentID, rules); err != nil {
		return err
	}
	s.invalidateAssignee(a.Assignee)
	_ = audit.LogEvent(ctx, "rbac.object_rules.set", map[string]any{
		"assignment_id": assignmentID,
		"rules":         len(rules),
	})
	return nil
}

// Groups -------------------------------------------------------------------

// AddGroupMember adds a person to a group.
func (s *Service) AddGroupMember(ctx context.Context, groupID, personID string) error {
	if groupID == "" || personID == "" {
		return fmt.Errorf("%w: group and person are required", ErrInvalidInput)
	}
	if err := s.store.Groups(ctx).AddGroupMember(ctx, groupID, personID); err != nil {
		return err
	}
	s.resolver.InvalidatePerson(personID)
	_ = audit.LogEvent(ctx, "rbac.group.member_added", map[string]any{"group_id": groupID, "person_id": personID})
	return nil
}

// RemoveGroupMember removes a person from a group.
func (s *Service) RemoveGroupMember(ctx context.Context, groupID, personID string) error {
	if groupID == "" || personID == "" {
		return fmt.Errorf("%w: group and person are required", ErrInvalidInput)
	}
	if err := s.store.Groups(ctx).RemoveGroupMember(ctx, groupID, personID); err != nil {
		return err
	}
	s.resolver.InvalidatePerson(personID)
	_ = audit.LogEvent(ctx, "rbac.group.member_removed", map[string]any{"group_id": groupID, "person_id": personID})
	return nil
}

// invalidateAssignee flushes the snapshot cache after an assignment-level
// write. A group assignee can affect any number of people, so it flushes
// everything.
func (s *Service) invalidateAssignee(a Assignee) {
	if a.Kind == AssigneePerson {
		s.resolver.InvalidatePerson(a.ID)
		return
	}
	s.resolver.InvalidateAll()
}
