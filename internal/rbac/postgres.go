package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"moss.dev/internal/ids"
)

// PGStore implements Store on PostgreSQL via database/sql (pgx stdlib
// driver). Expected schema:
//
//	create table rbac_roles (
//	    id          text primary key,
//	    name        text not null unique,
//	    description text not null default '',
//	    parent_id   text not null default '',
//	    is_system   boolean not null default false,
//	    created_at  timestamptz not null default now(),
//	    updated_at  timestamptz not null default now()
//	);
//
//	create table rbac_role_permissions (
//	    role_id     text primary key references rbac_roles(id) on delete cascade,
//	    permissions jsonb not null default '{}'
//	);
//
//	create table rbac_assignments (
//	    id            text primary key,
//	    assignee_kind text not null,
//	    assignee_id   text not null,
//	    role_id       text not null references rbac_roles(id),
//	    scope         text not null,
//	    location_ids  jsonb not null default '[]',
//	    notes         text not null default '',
//	    created_at    timestamptz not null default now()
//	);
//	create index rbac_assignments_assignee on rbac_assignments(assignee_kind, assignee_id);
//
//	create table rbac_object_rules (
//	    id            text primary key,
//	    assignment_id text not null references rbac_assignments(id) on delete cascade,
//	    object_type   text not null,
//	    object_id     text not null,
//	    action        text not null,
//	    effect        text not null,
//	    created_at    timestamptz not null default now()
//	);
//	create index rbac_object_rules_assignment on rbac_object_rules(assignment_id);
//
//	create table rbac_group_members (
//	    group_id  text not null,
//	    person_id text not null,
//	    primary key (group_id, person_id)
//	);
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

var arrayElemEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// textArray renders elems as a Postgres text[] literal. Every element is
// quoted: assignee and assignment ids are external keys, so commas, braces,
// and quotes must survive the round trip.
func textArray(elems []string) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, e := range elems {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(arrayElemEscaper.Replace(e))
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

func (s *PGStore) Roles(context.Context) RoleStore             { return &pgRoleStore{db: s.db} }
func (s *PGStore) Permissions(context.Context) PermissionStore { return &pgPermissionStore{db: s.db} }
func (s *PGStore) Assignments(context.Context) AssignmentStore { return &pgAssignmentStore{db: s.db} }
func (s *PGStore) ObjectRules(context.Context) ObjectRuleStore { return &pgObjectRuleStore{db: s.db} }
func (s *PGStore) Groups(context.Context) GroupStore           { return &pgGroupStore{db: s.db} }

// Roles --------------------------------------------------------------------

type pgRoleStore struct{ db *sql.DB }

const roleColumns = `id, name, description, parent_id, is_system, created_at, updated_at`

func (s *pgRoleStore) CreateRole(ctx context.Context, role *Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into rbac_roles(id, name, description, parent_id, is_system)
		 values($1,$2,$3,$4,$5)`,
		role.ID, role.Name, role.Description, role.ParentID, role.System,
	)
	return err
}

func (s *pgRoleStore) GetRole(ctx context.Context, id string) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+roleColumns+` from rbac_roles where id=$1`, id)
	return scanRole(row)
}

func (s *pgRoleStore) FindRoleByName(ctx context.Context, name string) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+roleColumns+` from rbac_roles where name=$1`, name)
	return scanRole(row)
}

func (s *pgRoleStore) UpdateRole(ctx context.Context, role *Role) error {
	res, err := s.db.ExecContext(ctx,
		`update rbac_roles set name=$2, description=$3, parent_id=$4, updated_at=now() where id=$1`,
		role.ID, role.Name, role.Description, role.ParentID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgRoleStore) DeleteRole(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from rbac_roles where id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgRoleStore) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+roleColumns+` from rbac_roles order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *role)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (*Role, error) {
	var role Role
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.ParentID,
		&role.System, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &role, nil
}

// Permissions --------------------------------------------------------------

type pgPermissionStore struct{ db *sql.DB }

func (s *pgPermissionStore) SetRolePermissions(ctx context.Context, roleID string, perms PermissionSet) error {
	data, err := json.Marshal(perms)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`insert into rbac_role_permissions(role_id, permissions) values($1,$2)
		 on conflict (role_id) do update set permissions = excluded.permissions`,
		roleID, data,
	)
	return err
}

func (s *pgPermissionStore) RolePermissions(ctx context.Context, roleID string) (PermissionSet, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`select permissions from rbac_role_permissions where role_id=$1`, roleID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return make(PermissionSet), nil
		}
		return nil, err
	}
	perms := make(PermissionSet)
	if err := json.Unmarshal(data, &perms); err != nil {
		return nil, err
	}
	return perms, nil
}

// Assignments --------------------------------------------------------------

type pgAssignmentStore struct{ db *sql.DB }

const assignmentColumns = `id, assignee_kind, assignee_id, role_id, scope, location_ids, notes, created_at`

func (s *pgAssignmentStore) CreateAssignment(ctx context.Context, a *Assignment) error {
	if a.ID == "" {
		a.ID = ids.New()
	}
	locations, _ := json.Marshal(a.LocationIDs)
	_, err := s.db.ExecContext(ctx,
		`insert into rbac_assignments(id, assignee_kind, assignee_id, role_id, scope, location_ids, notes)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, string(a.Assignee.Kind), a.Assignee.ID, a.RoleID, string(a.Scope), locations, a.Notes,
	)
	return err
}

func (s *pgAssignmentStore) GetAssignment(ctx context.Context, id string) (*Assignment, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+assignmentColumns+` from rbac_assignments where id=$1`, id)
	return scanAssignment(row)
}

func (s *pgAssignmentStore) DeleteAssignment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from rbac_assignments where id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgAssignmentStore) AssignmentsFor(ctx context.Context, assignees []Assignee) ([]Assignment, error) {
	if len(assignees) == 0 {
		return nil, nil
	}
	// One (kind, id) pair per assignee, matched against unnested arrays.
	kinds := make([]string, 0, len(assignees))
	idList := make([]string, 0, len(assignees))
	for _, a := range assignees {
		kinds = append(kinds, string(a.Kind))
		idList = append(idList, a.ID)
	}
	rows, err := s.db.QueryContext(ctx,
		`select `+assignmentColumns+` from rbac_assignments
		 where (assignee_kind, assignee_id) in
		       (select unnest($1::text[]), unnest($2::text[]))`,
		textArray(kinds), textArray(idList),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssignments(rows)
}

func (s *pgAssignmentStore) ListAssignments(ctx context.Context) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+assignmentColumns+` from rbac_assignments order by created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssignments(rows)
}

func collectAssignments(rows *sql.Rows) ([]Assignment, error) {
	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAssignment(row rowScanner) (*Assignment, error) {
	var (
		a         Assignment
		kind      string
		scope     string
		locations []byte
	)
	if err := row.Scan(&a.ID, &kind, &a.Assignee.ID, &a.RoleID, &scope, &locations, &a.Notes, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.Assignee.Kind = AssigneeKind(kind)
	a.Scope = ScopeKind(scope)
	_ = json.Unmarshal(locations, &a.LocationIDs)
	return &a, nil
}

// Object rules -------------------------------------------------------------

type pgObjectRuleStore struct{ db *sql.DB }

func (s *pgObjectRuleStore) SetObjectRules(ctx context.Context, assignmentID string, rules []ObjectRule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`delete from rbac_object_rules where assignment_id=$1`, assignmentID); err != nil {
		return err
	}
	for _, r := range rules {
		if r.ID == "" {
			r.ID = ids.New()
		}
		if _, err := tx.ExecContext(ctx,
			`insert into rbac_object_rules(id, assignment_id, object_type, object_id, action, effect)
			 values($1,$2,$3,$4,$5,$6)`,
			r.ID, assignmentID, string(r.ObjectType), r.ObjectID, string(r.Action), string(r.Effect),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *pgObjectRuleStore) ClearObjectRules(ctx context.Context, assignmentID string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from rbac_object_rules where assignment_id=$1`, assignmentID)
	return err
}

func (s *pgObjectRuleStore) RulesForAssignments(ctx context.Context, assignmentIDs []string) ([]ObjectRule, error) {
	if len(assignmentIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, assignment_id, object_type, object_id, action, effect, created_at
		 from rbac_object_rules where assignment_id = any($1::text[])`,
		textArray(assignmentIDs),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ObjectRule
	for rows.Next() {
		var (
			r          ObjectRule
			objectType string
			action     string
			effect     string
		)
		if err := rows.Scan(&r.ID, &r.AssignmentID, &objectType, &r.ObjectID, &action, &effect, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.ObjectType = ObjectType(objectType)
		r.Action = Action(action)
		r.Effect = Effect(effect)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Groups -------------------------------------------------------------------

type pgGroupStore struct{ db *sql.DB }

func (s *pgGroupStore) AddGroupMember(ctx context.Context, groupID, personID string) error {
	_, err := s.db.ExecContext(ctx,
		`insert into rbac_group_members(group_id, person_id) values($1,$2)
		 on conflict do nothing`,
		groupID, personID,
	)
	return err
}

func (s *pgGroupStore) RemoveGroupMember(ctx context.Context, groupID, personID string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from rbac_group_members where group_id=$1 and person_id=$2`,
		groupID, personID,
	)
	return err
}

func (s *pgGroupStore) GroupsForPerson(ctx context.Context, personID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select group_id from rbac_group_members where person_id=$1`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
