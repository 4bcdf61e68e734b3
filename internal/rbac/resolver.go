package rbac

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"moss.dev/internal/obs"
)

// DefaultCheckTimeout caps how long a permission check may spend in storage.
// A check that cannot complete denies.
const DefaultCheckTimeout = 3 * time.Second

// CheckRequest identifies a single access question: may this person perform
// this action on this object. LocationID is the location the object lives
// in, when known; location-scoped assignments only apply when it matches.
type CheckRequest struct {
	PersonID   string     `json:"person_id"`
	Action     Action     `json:"action"`
	ObjectType ObjectType `json:"object_type"`
	ObjectID   string     `json:"object_id,omitempty"`
	LocationID string     `json:"location_id,omitempty"`
}

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// snapshot is everything needed to answer any permission question for one
// person: their applicable assignments, each role's expanded permission set,
// and the object rules hanging off those assignments.
type snapshot struct {
	superAdmin  bool
	assignments []Assignment
	rolePerms   map[string]PermissionSet // by role id
	rules       map[string][]ObjectRule  // by assignment id
}

// Resolver answers permission checks against the store, with a per-person
// snapshot cache in front.
type Resolver struct {
	store   Store
	cache   *snapshotCache
	timeout time.Duration
	now     func() time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCacheTTL overrides the snapshot cache lifetime.
func WithCacheTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		if ttl > 0 {
			r.cache = newSnapshotCache(ttl, r.now)
		}
	}
}

// WithCheckTimeout overrides the storage deadline for a single check.
func WithCheckTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithResolverClock overrides the time source (useful for tests).
func WithResolverClock(fn func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.now = fn
			r.cache = newSnapshotCache(r.cache.ttl, fn)
		}
	}
}

// NewResolver constructs a Resolver over the store.
func NewResolver(store Store, opts ...ResolverOption) (*Resolver, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	r := &Resolver{
		store:   store,
		timeout: DefaultCheckTimeout,
		now:     time.Now,
	}
	r.cache = newSnapshotCache(DefaultCacheTTL, r.now)
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// InvalidatePerson drops the cached snapshot for one person. Call after any
// write that touches their assignments or rules.
func (r *Resolver) InvalidatePerson(personID string) {
	r.cache.invalidatePerson(personID)
}

// InvalidateAll drops every cached snapshot. Call after role or group
// mutations, whose blast radius crosses person boundaries.
func (r *Resolver) InvalidateAll() {
	r.cache.invalidateAll()
}

// Check answers one access question. Default deny: access requires a grant,
// an explicit deny on a matching object rule beats every allow, and a check
// that cannot reach storage inside the deadline denies.
func (r *Resolver) Check(ctx context.Context, req CheckRequest) (Decision, error) {
	if req.PersonID == "" {
		return deny("person is required"), fmt.Errorf("%w: person is required", ErrInvalidInput)
	}
	if !req.Action.Valid() {
		return deny("unknown action"), fmt.Errorf("%w: unknown action %q", ErrInvalidInput, req.Action)
	}
	if !req.ObjectType.Valid() {
		return deny("unknown object type"), fmt.Errorf("%w: unknown object type %q", ErrInvalidInput, req.ObjectType)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	snap, err := r.cache.get(ctx, req.PersonID, r.loadSnapshot)
	if err != nil {
		if errors.Is(err, ErrConfiguration) {
			obs.PermissionCheck("config_error")
			return deny("role configuration is broken"), err
		}
		obs.PermissionCheck("error")
		return deny("permission data unavailable"), err
	}

	d := r.decide(snap, req)
	if d.Allowed {
		obs.PermissionCheck("allow")
	} else {
		obs.PermissionCheck("deny")
	}
	return d, nil
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

func (r *Resolver) decide(snap *snapshot, req CheckRequest) Decision {
	if snap.superAdmin {
		return Decision{Allowed: true, Reason: "super_admin"}
	}

	explicitAllow := false
	roleGrant := false
	for _, a := range snap.assignments {
		if !assignmentApplies(a, req) {
			continue
		}
		for _, rule := range snap.rules[a.ID] {
			if rule.ObjectType != req.ObjectType || rule.ObjectID != req.ObjectID || rule.Action != req.Action {
				continue
			}
			if rule.Effect == EffectDeny {
				return deny("explicit deny")
			}
			explicitAllow = true
		}
		// specific_objects assignments grant nothing beyond their
		// explicit allow rules.
		if a.Scope == ScopeSpecificObjects {
			continue
		}
		if snap.rolePerms[a.RoleID].Grants(req.ObjectType, req.Action) {
			roleGrant = true
		}
	}

	switch {
	case explicitAllow:
		return Decision{Allowed: true, Reason: "explicit allow"}
	case roleGrant:
		return Decision{Allowed: true, Reason: "role grant"}
	}
	return deny("no matching grant")
}

func assignmentApplies(a Assignment, req CheckRequest) bool {
	switch a.Scope {
	case ScopeGlobal, ScopeSpecificObjects:
		return true
	case ScopeLocation:
		if req.LocationID == "" {
			return false
		}
		for _, id := range a.LocationIDs {
			if id == req.LocationID {
				return true
			}
		}
	}
	return false
}

// loadSnapshot gathers a person's full permission state: assignments for the
// person and every group they belong to, role expansions run concurrently,
// and the object rules for those assignments.
func (r *Resolver) loadSnapshot(ctx context.Context, personID string) (*snapshot, error) {
	groups, err := r.store.Groups(ctx).GroupsForPerson(ctx, personID)
	if err != nil {
		return nil, err
	}
	assignees := make([]Assignee, 0, len(groups)+1)
	assignees = append(assignees, PersonAssignee(personID))
	for _, g := range groups {
		assignees = append(assignees, GroupAssignee(g))
	}

	assignments, err := r.store.Assignments(ctx).AssignmentsFor(ctx, assignees)
	if err != nil {
		return nil, err
	}

	snap := &snapshot{
		assignments: assignments,
		rolePerms:   make(map[string]PermissionSet),
		rules:       make(map[string][]ObjectRule),
	}
	if len(assignments) == 0 {
		return snap, nil
	}

	roleIDs := make([]string, 0, len(assignments))
	seen := make(map[string]bool)
	assignmentIDs := make([]string, 0, len(assignments))
	for _, a := range assignments {
		assignmentIDs = append(assignmentIDs, a.ID)
		if !seen[a.RoleID] {
			seen[a.RoleID] = true
			roleIDs = append(roleIDs, a.RoleID)
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, roleID := range roleIDs {
		roleID := roleID
		g.Go(func() error {
			role, err := r.store.Roles(gctx).GetRole(gctx, roleID)
			if err != nil {
				return err
			}
			perms, err := EffectivePermissions(gctx, r.store, roleID)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			snap.rolePerms[roleID] = perms
			if role.Name == SuperAdminRoleName {
				snap.superAdmin = true
			}
			return nil
		})
	}
	g.Go(func() error {
		rules, err := r.store.ObjectRules(gctx).RulesForAssignments(gctx, assignmentIDs)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		for _, rule := range rules {
			snap.rules[rule.AssignmentID] = append(snap.rules[rule.AssignmentID], rule)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}
