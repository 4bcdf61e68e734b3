package rbac

import (
	"context"
	"errors"
	"fmt"
)

// EffectivePermissions expands a role's permission set through its parent
// chain, ORing each ancestor's grid into the result. Inheritance only ever
// widens access. The walk is iterative with a visited set: a cycle or a
// dangling parent pointer is a configuration error and resolves to no
// permissions at all.
func EffectivePermissions(ctx context.Context, store Store, roleID string) (PermissionSet, error) {
	roles := store.Roles(ctx)
	perms := store.Permissions(ctx)

	result := make(PermissionSet)
	visited := make(map[string]bool)
	current := roleID
	for current != "" {
		if visited[current] {
			return nil, fmt.Errorf("%w: %w involving role %s", ErrConfiguration, ErrRoleCycle, current)
		}
		visited[current] = true

		role, err := roles.GetRole(ctx, current)
		if err != nil {
			if errors.Is(err, ErrNotFound) && current != roleID {
				return nil, fmt.Errorf("%w: role %s has dangling parent %s", ErrConfiguration, roleID, current)
			}
			return nil, err
		}
		if role.Name == SuperAdminRoleName {
			return fullPermissionSet(), nil
		}

		own, err := perms.RolePermissions(ctx, current)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		result.Merge(own)
		current = role.ParentID
	}
	return result, nil
}

func fullPermissionSet() PermissionSet {
	set := make(PermissionSet, len(ObjectTypes()))
	for _, t := range ObjectTypes() {
		set[t] = AllActions()
	}
	return set
}

// WouldCycle reports whether re-parenting roleID under parentID would close
// a loop in the role forest.
func WouldCycle(ctx context.Context, store Store, roleID, parentID string) (bool, error) {
	roles := store.Roles(ctx)
	visited := make(map[string]bool)
	current := parentID
	for current != "" {
		if current == roleID {
			return true, nil
		}
		if visited[current] {
			// The chain above is already broken; re-parenting under it
			// would only extend the loop.
			return true, nil
		}
		visited[current] = true
		role, err := roles.GetRole(ctx, current)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return false, fmt.Errorf("%w: parent role %s does not exist", ErrInvalidInput, current)
			}
			return false, err
		}
		current = role.ParentID
	}
	return false, nil
}
