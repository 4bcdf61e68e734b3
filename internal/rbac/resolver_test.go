package rbac

import (
	"context"
	"errors"
	"testing"
	"time"
)

type resolverFixture struct {
	store    *MemoryStore
	resolver *Resolver
}

func newResolverFixture(t *testing.T, opts ...ResolverOption) *resolverFixture {
	t.Helper()
	store := NewMemoryStore()
	resolver, err := NewResolver(store, opts...)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return &resolverFixture{store: store, resolver: resolver}
}

func (f *resolverFixture) assign(t *testing.T, a Assignment) Assignment {
	t.Helper()
	if err := f.store.CreateAssignment(context.Background(), &a); err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}
	return a
}

func (f *resolverFixture) check(t *testing.T, req CheckRequest) Decision {
	t.Helper()
	d, err := f.resolver.Check(context.Background(), req)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	return d
}

func TestCheckDefaultDeny(t *testing.T) {
	f := newResolverFixture(t)
	d := f.check(t, CheckRequest{PersonID: "p1", Action: ActionView, ObjectType: ObjectDevice})
	if d.Allowed {
		t.Fatalf("person with no assignments must be denied")
	}
}

func TestCheckInvalidInput(t *testing.T) {
	f := newResolverFixture(t)
	cases := []CheckRequest{
		{Action: ActionView, ObjectType: ObjectDevice},
		{PersonID: "p1", Action: "fly", ObjectType: ObjectDevice},
		{PersonID: "p1", Action: ActionView, ObjectType: "starship"},
	}
	for _, req := range cases {
		d, err := f.resolver.Check(context.Background(), req)
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("req %+v: got %v, want ErrInvalidInput", req, err)
		}
		if d.Allowed {
			t.Fatalf("invalid request must deny")
		}
	}
}

func TestCheckGlobalRoleGrant(t *testing.T) {
	f := newResolverFixture(t)
	role := mustCreateRole(t, f.store, Role{ID: "viewer", Name: "viewer"})
	mustSetPerms(t, f.store, role.ID, PermissionSet{ObjectDevice: {View: true}})
	f.assign(t, Assignment{Assignee: PersonAssignee("p1"), RoleID: role.ID, Scope: ScopeGlobal})

	if d := f.check(t, CheckRequest{PersonID: "p1", Action: ActionView, ObjectType: ObjectDevice}); !d.Allowed {
		t.Fatalf("global viewer denied: %+v", d)
	}
	if d := f.check(t, CheckRequest{PersonID: "p1", Action: ActionEdit, ObjectType: ObjectDevice}); d.Allowed {
		t.Fatalf("edit granted beyond the role grid")
	}
	if d := f.check(t, CheckRequest{PersonID: "p2", Action: ActionView, ObjectType: ObjectDevice}); d.Allowed {
		t.Fatalf("unassigned person allowed")
	}
}

func TestCheckLocationScope(t *testing.T) {
	f := newResolverFixture(t)
	role := mustCreateRole(t, f.store, Role{ID: "tech", Name: "tech"})
	mustSetPerms(t, f.store, role.ID, PermissionSet{ObjectDevice: {View: true, Edit: true}})
	f.assign(t, Assignment{
		Assignee:    PersonAssignee("p1"),
		RoleID:      role.ID,
		Scope:       ScopeLocation,
		LocationIDs: []string{"loc-1"},
	})

	if d := f.check(t, CheckRequest{PersonID: "p1", Action: ActionEdit, ObjectType: ObjectDevice, LocationID: "loc-1"}); !d.Allowed {
		t.Fatalf("in-scope location denied: %+v", d)
	}
	if d := f.check(t, CheckRequest{PersonID: "p1", Action: ActionEdit, ObjectType: ObjectDevice, LocationID: "loc-2"}); d.Allowed {
		t.Fatalf("out-of-scope location allowed")
	}
	// Without a location the location-scoped assignment does not apply.
	if d := f.check(t, CheckRequest{PersonID: "p1", Action: ActionEdit, ObjectType: ObjectDevice}); d.Allowed {
		t.Fatalf("locationless request allowed by location-scoped assignment")
	}
}

func TestCheckObjectRulePrecedence(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()
	role := mustCreateRole(t, f.store, Role{ID: "editor", Name: "editor"})
	mustSetPerms(t, f.store, role.ID, PermissionSet{ObjectDocument: {View: true, Edit: true}})
	a := f.assign(t, Assignment{Assignee: PersonAssignee("p1"), RoleID: role.ID, Scope: ScopeGlobal})

	if err := f.store.SetObjectRules(ctx, a.ID, []ObjectRule{
		{ID: "r1", AssignmentID: a.ID, ObjectType: ObjectDocument, ObjectID: "doc-secret", Action: ActionEdit, Effect: EffectDeny},
		{ID: "r2", AssignmentID: a.ID, ObjectType: ObjectDocument, ObjectID: "doc-extra", Action: ActionDelete, Effect: EffectAllow},
	}); err != nil {
		t.Fatalf("SetObjectRules: %v", err)
	}

	// Explicit deny beats the role grant.
	if d := f.check(t, CheckRequest{PersonID: "p1", Action: ActionEdit, ObjectType: ObjectDocument, ObjectID: "doc-secret"}); d.Allowed {
		t.Fatalf("explicit deny did not win")
	}
	// The deny is object-scoped; view on the same object still flows.
	if d := f.check(t, CheckRequest{PersonID: "p1", Action: ActionView, ObjectType: ObjectDocument, ObjectID: "doc-secret"}); !d.Allowed {
		t.Fatalf("deny leaked onto a different action")
	}
	// Explicit allow grants beyond the role grid.
	if d := f.check(t, CheckRequest{PersonID: "p1", Action: ActionDelete, ObjectType: ObjectDocument, ObjectID: "doc-extra"}); !d.Allowed {
		t.Fatalf("explicit allow ignored")
	}
	// Other objects keep the role defaults.
	if d := f.check(t, CheckRequest{PersonID: "p1", Action: ActionEdit, ObjectType: ObjectDocument, ObjectID: "doc-other"}); !d.Allowed {
		t.Fatalf("role default lost")
	}
}

func TestCheckSpecificObjectsScope(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()
	role := mustCreateRole(t, f.store, Role{ID: "wide", Name: "wide"})
	mustSetPerms(t, f.store, role.ID, PermissionSet{ObjectContract: AllActions()})
	a := f.assign(t, Assignment{Assignee: PersonAssignee("p1"), RoleID: role.ID, Scope: ScopeSpecificObjects})

	if err := f.store.SetObjectRules(ctx, a.ID, []ObjectRule{
		{ID: "r1", AssignmentID: a.ID, ObjectType: ObjectContract, ObjectID: "c-1", Action: ActionView, Effect: EffectAllow},
	}); err != nil {
		t.Fatalf("SetObjectRules: %v", err)
	}

	if d := f.check(t, CheckRequest{PersonID: "p1", Action: ActionView, ObjectType: ObjectContract, ObjectID: "c-1"}); !d.Allowed {
		t.Fatalf("listed object denied: %+v", d)
	}
	// The role grid does not leak past the listed objects.
	if d := f.check(t, CheckRequest{PersonID: "p1", Action: ActionView, ObjectType: ObjectContract, ObjectID: "c-2"}); d.Allowed {
		t.Fatalf("specific_objects scope granted an unlisted object")
	}
}

func TestCheckGroupAssignment(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()
	role := mustCreateRole(t, f.store, Role{ID: "viewer", Name: "viewer"})
	mustSetPerms(t, f.store, role.ID, PermissionSet{ObjectNetwork: {View: true}})
	f.assign(t, Assignment{Assignee: GroupAssignee("g1"), RoleID: role.ID, Scope: ScopeGlobal})
	if err := f.store.AddGroupMember(ctx, "g1", "p1"); err != nil {
		t.Fatalf("AddGroupMember: %v", err)
	}

	if d := f.check(t, CheckRequest{PersonID: "p1", Action: ActionView, ObjectType: ObjectNetwork}); !d.Allowed {
		t.Fatalf("group member denied: %+v", d)
	}
	if d := f.check(t, CheckRequest{PersonID: "p2", Action: ActionView, ObjectType: ObjectNetwork}); d.Allowed {
		t.Fatalf("non-member allowed")
	}
}

func TestCheckSuperAdminShortCircuit(t *testing.T) {
	f := newResolverFixture(t)
	role := mustCreateRole(t, f.store, Role{ID: "super", Name: SuperAdminRoleName, System: true})
	f.assign(t, Assignment{Assignee: PersonAssignee("root"), RoleID: role.ID, Scope: ScopeGlobal})

	d := f.check(t, CheckRequest{PersonID: "root", Action: ActionManagePermissions, ObjectType: ObjectCompany, ObjectID: "hq"})
	if !d.Allowed || d.Reason != "super_admin" {
		t.Fatalf("super admin not short-circuited: %+v", d)
	}
}

func TestCheckBrokenConfigurationDenies(t *testing.T) {
	f := newResolverFixture(t)
	a := mustCreateRole(t, f.store, Role{ID: "a", Name: "a"})
	b := mustCreateRole(t, f.store, Role{ID: "b", Name: "b", ParentID: a.ID})
	a.ParentID = b.ID
	if err := f.store.UpdateRole(context.Background(), &a); err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	f.assign(t, Assignment{Assignee: PersonAssignee("p1"), RoleID: a.ID, Scope: ScopeGlobal})

	d, err := f.resolver.Check(context.Background(), CheckRequest{PersonID: "p1", Action: ActionView, ObjectType: ObjectDevice})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("got %v, want ErrConfiguration", err)
	}
	if d.Allowed {
		t.Fatalf("broken configuration must deny")
	}
}

func TestCheckCacheInvalidation(t *testing.T) {
	f := newResolverFixture(t)
	role := mustCreateRole(t, f.store, Role{ID: "viewer", Name: "viewer"})
	mustSetPerms(t, f.store, role.ID, PermissionSet{ObjectDevice: {View: true}})
	a := f.assign(t, Assignment{Assignee: PersonAssignee("p1"), RoleID: role.ID, Scope: ScopeGlobal})

	req := CheckRequest{PersonID: "p1", Action: ActionView, ObjectType: ObjectDevice}
	if d := f.check(t, req); !d.Allowed {
		t.Fatalf("initial grant denied")
	}

	if err := f.store.DeleteAssignment(context.Background(), a.ID); err != nil {
		t.Fatalf("DeleteAssignment: %v", err)
	}
	// The snapshot is cached; the stale grant is still served.
	if d := f.check(t, req); !d.Allowed {
		t.Fatalf("cache should still serve the old snapshot")
	}
	f.resolver.InvalidatePerson("p1")
	if d := f.check(t, req); d.Allowed {
		t.Fatalf("invalidation did not take")
	}
}

func TestCheckCacheTTLExpiry(t *testing.T) {
	base := time.Now()
	current := base
	f := newResolverFixture(t, WithResolverClock(func() time.Time { return current }))
	role := mustCreateRole(t, f.store, Role{ID: "viewer", Name: "viewer"})
	mustSetPerms(t, f.store, role.ID, PermissionSet{ObjectDevice: {View: true}})
	a := f.assign(t, Assignment{Assignee: PersonAssignee("p1"), RoleID: role.ID, Scope: ScopeGlobal})

	req := CheckRequest{PersonID: "p1", Action: ActionView, ObjectType: ObjectDevice}
	if d := f.check(t, req); !d.Allowed {
		t.Fatalf("initial grant denied")
	}
	if err := f.store.DeleteAssignment(context.Background(), a.ID); err != nil {
		t.Fatalf("DeleteAssignment: %v", err)
	}
	current = base.Add(DefaultCacheTTL + time.Second)
	if d := f.check(t, req); d.Allowed {
		t.Fatalf("expired snapshot still served")
	}
}
