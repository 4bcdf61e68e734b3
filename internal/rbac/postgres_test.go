package rbac

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newPGFixture(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		_ = db.Close()
	})
	return NewPGStore(db), mock
}

func TestPGGetRole(t *testing.T) {
	ctx := context.Background()
	store, mock := newPGFixture(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "name", "description", "parent_id", "is_system", "created_at", "updated_at"}).
		AddRow("r1", "viewer", "", "", false, now, now)
	mock.ExpectQuery(`select .* from rbac_roles where id`).
		WithArgs("r1").
		WillReturnRows(rows)

	role, err := store.Roles(ctx).GetRole(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRole: %v", err)
	}
	if role.Name != "viewer" || role.System {
		t.Fatalf("role: %+v", role)
	}

	mock.ExpectQuery(`select .* from rbac_roles where id`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	if _, err := store.Roles(ctx).GetRole(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestPGUpdateRoleNotFound(t *testing.T) {
	ctx := context.Background()
	store, mock := newPGFixture(t)
	mock.ExpectExec(regexp.QuoteMeta(`update rbac_roles set`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := store.Roles(ctx).UpdateRole(ctx, &Role{ID: "missing", Name: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestPGRolePermissionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, mock := newPGFixture(t)

	mock.ExpectExec(regexp.QuoteMeta(`insert into rbac_role_permissions`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	perms := PermissionSet{ObjectDevice: {View: true, Edit: true}}
	if err := store.Permissions(ctx).SetRolePermissions(ctx, "r1", perms); err != nil {
		t.Fatalf("SetRolePermissions: %v", err)
	}

	rows := sqlmock.NewRows([]string{"permissions"}).
		AddRow([]byte(`{"device":{"view":true,"edit":true,"delete":false,"manage_permissions":false}}`))
	mock.ExpectQuery(`select permissions from rbac_role_permissions`).
		WithArgs("r1").
		WillReturnRows(rows)
	got, err := store.Permissions(ctx).RolePermissions(ctx, "r1")
	if err != nil {
		t.Fatalf("RolePermissions: %v", err)
	}
	if !got.Grants(ObjectDevice, ActionEdit) || got.Grants(ObjectDevice, ActionDelete) {
		t.Fatalf("permissions: %+v", got)
	}
}

func TestPGRolePermissionsMissingRowIsEmpty(t *testing.T) {
	ctx := context.Background()
	store, mock := newPGFixture(t)
	mock.ExpectQuery(`select permissions from rbac_role_permissions`).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"permissions"}))
	got, err := store.Permissions(ctx).RolePermissions(ctx, "r1")
	if err != nil {
		t.Fatalf("RolePermissions: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty set, got %+v", got)
	}
}

func TestPGAssignmentsFor(t *testing.T) {
	ctx := context.Background()
	store, mock := newPGFixture(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "assignee_kind", "assignee_id", "role_id", "scope", "location_ids", "notes", "created_at"}).
		AddRow("a1", "person", "p1", "r1", "location", []byte(`["loc-1"]`), "", now)
	mock.ExpectQuery(`select .* from rbac_assignments`).
		WillReturnRows(rows)

	out, err := store.Assignments(ctx).AssignmentsFor(ctx, []Assignee{PersonAssignee("p1"), GroupAssignee("g1")})
	if err != nil {
		t.Fatalf("AssignmentsFor: %v", err)
	}
	if len(out) != 1 || out[0].Scope != ScopeLocation || out[0].LocationIDs[0] != "loc-1" {
		t.Fatalf("assignments: %+v", out)
	}

	// Empty assignee list never hits the database.
	if out, err := store.Assignments(ctx).AssignmentsFor(ctx, nil); err != nil || out != nil {
		t.Fatalf("empty assignees: %v %v", out, err)
	}
}

func TestTextArrayQuotesHostileElements(t *testing.T) {
	got := textArray([]string{`plain`, `a,b`, `c"d`, `e\f`, `{g}`})
	want := `{"plain","a,b","c\"d","e\\f","{g}"}`
	if got != want {
		t.Fatalf("textArray = %s, want %s", got, want)
	}
}

func TestPGRulesForAssignmentsQuotesIDs(t *testing.T) {
	ctx := context.Background()
	store, mock := newPGFixture(t)

	rows := sqlmock.NewRows([]string{"id", "assignment_id", "object_type", "object_id", "action", "effect", "created_at"})
	mock.ExpectQuery(`select .* from rbac_object_rules`).
		WithArgs(`{"a1","a,2"}`).
		WillReturnRows(rows)

	if _, err := store.ObjectRules(ctx).RulesForAssignments(ctx, []string{"a1", "a,2"}); err != nil {
		t.Fatalf("RulesForAssignments: %v", err)
	}
}

func TestPGSetObjectRulesTransactional(t *testing.T) {
	ctx := context.Background()
	store, mock := newPGFixture(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`delete from rbac_object_rules where assignment_id=$1`)).
		WithArgs("a1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`insert into rbac_object_rules`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rules := []ObjectRule{{ObjectType: ObjectDevice, ObjectID: "d1", Action: ActionView, Effect: EffectDeny}}
	if err := store.ObjectRules(ctx).SetObjectRules(ctx, "a1", rules); err != nil {
		t.Fatalf("SetObjectRules: %v", err)
	}
}

func TestPGGroupsForPerson(t *testing.T) {
	ctx := context.Background()
	store, mock := newPGFixture(t)
	rows := sqlmock.NewRows([]string{"group_id"}).AddRow("g1").AddRow("g2")
	mock.ExpectQuery(`select group_id from rbac_group_members`).
		WithArgs("p1").
		WillReturnRows(rows)

	groups, err := store.Groups(ctx).GroupsForPerson(ctx, "p1")
	if err != nil {
		t.Fatalf("GroupsForPerson: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("groups: %v", groups)
	}
}
