package rbac

import "context"

// Store aggregates the persistence surfaces the resolver and service need.
// Sub-stores are fetched per call so implementations can bind to the
// caller's context.
type Store interface {
	Roles(ctx context.Context) RoleStore
	Permissions(ctx context.Context) PermissionStore
	Assignments(ctx context.Context) AssignmentStore
	ObjectRules(ctx context.Context) ObjectRuleStore
	Groups(ctx context.Context) GroupStore
}

// RoleStore persists the role forest.
type RoleStore interface {
	CreateRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, id string) (*Role, error)
	FindRoleByName(ctx context.Context, name string) (*Role, error)
	UpdateRole(ctx context.Context, role *Role) error
	DeleteRole(ctx context.Context, id string) error
	ListRoles(ctx context.Context) ([]Role, error)
}

// PermissionStore persists each role's own permission grid (pre-inheritance).
type PermissionStore interface {
	SetRolePermissions(ctx context.Context, roleID string, perms PermissionSet) error
	RolePermissions(ctx context.Context, roleID string) (PermissionSet, error)
}

// AssignmentStore persists role assignments.
type AssignmentStore interface {
	CreateAssignment(ctx context.Context, a *Assignment) error
	GetAssignment(ctx context.Context, id string) (*Assignment, error)
	DeleteAssignment(ctx context.Context, id string) error
	// AssignmentsFor returns every assignment whose assignee is in the
	// given set (a person plus the groups they belong to).
	AssignmentsFor(ctx context.Context, assignees []Assignee) ([]Assignment, error)
	ListAssignments(ctx context.Context) ([]Assignment, error)
}

// ObjectRuleStore persists per-assignment object-level overrides.
type ObjectRuleStore interface {
	SetObjectRules(ctx context.Context, assignmentID string, rules []ObjectRule) error
	ClearObjectRules(ctx context.Context, assignmentID string) error
	RulesForAssignments(ctx context.Context, assignmentIDs []string) ([]ObjectRule, error)
}

// GroupStore tracks group membership for group assignees.
type GroupStore interface {
	AddGroupMember(ctx context.Context, groupID, personID string) error
	RemoveGroupMember(ctx context.Context, groupID, personID string) error
	GroupsForPerson(ctx context.Context, personID string) ([]string, error)
}
