package rbac

import "time"

// ObjectType enumerates the inventory object kinds permissions apply to.
type ObjectType string

const (
	ObjectCompany              ObjectType = "company"
	ObjectLocation             ObjectType = "location"
	ObjectRoom                 ObjectType = "room"
	ObjectPerson               ObjectType = "person"
	ObjectDevice               ObjectType = "device"
	ObjectIO                   ObjectType = "io"
	ObjectIPAddress            ObjectType = "ip_address"
	ObjectNetwork              ObjectType = "network"
	ObjectSoftware             ObjectType = "software"
	ObjectSaaSService          ObjectType = "saas_service"
	ObjectInstalledApplication ObjectType = "installed_application"
	ObjectSoftwareLicense      ObjectType = "software_license"
	ObjectDocument             ObjectType = "document"
	ObjectExternalDocument     ObjectType = "external_document"
	ObjectContract             ObjectType = "contract"
	ObjectGroup                ObjectType = "group"
)

// ObjectTypes lists every known object type in a stable order.
func ObjectTypes() []ObjectType {
	return []ObjectType{
		ObjectCompany, ObjectLocation, ObjectRoom, ObjectPerson,
		ObjectDevice, ObjectIO, ObjectIPAddress, ObjectNetwork,
		ObjectSoftware, ObjectSaaSService, ObjectInstalledApplication,
		ObjectSoftwareLicense, ObjectDocument, ObjectExternalDocument,
		ObjectContract, ObjectGroup,
	}
}

// Valid reports whether t is a known object type.
func (t ObjectType) Valid() bool {
	for _, known := range ObjectTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Action enumerates the operations a permission can grant.
type Action string

const (
	ActionView              Action = "view"
	ActionEdit              Action = "edit"
	ActionDelete            Action = "delete"
	ActionManagePermissions Action = "manage_permissions"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionEdit, ActionDelete, ActionManagePermissions:
		return true
	}
	return false
}

// Actions is the per-object-type permission bit set.
type Actions struct {
	View              bool `json:"view"`
	Edit              bool `json:"edit"`
	Delete            bool `json:"delete"`
	ManagePermissions bool `json:"manage_permissions"`
}

// AllActions grants every bit.
func AllActions() Actions {
	return Actions{View: true, Edit: true, Delete: true, ManagePermissions: true}
}

// Has reports whether the named action bit is set.
func (a Actions) Has(action Action) bool {
	switch action {
	case ActionView:
		return a.View
	case ActionEdit:
		return a.Edit
	case ActionDelete:
		return a.Delete
	case ActionManagePermissions:
		return a.ManagePermissions
	}
	return false
}

// Union ORs two bit sets. Inheritance only ever widens.
func (a Actions) Union(b Actions) Actions {
	return Actions{
		View:              a.View || b.View,
		Edit:              a.Edit || b.Edit,
		Delete:            a.Delete || b.Delete,
		ManagePermissions: a.ManagePermissions || b.ManagePermissions,
	}
}

// IsZero reports whether no bit is set.
func (a Actions) IsZero() bool {
	return !a.View && !a.Edit && !a.Delete && !a.ManagePermissions
}

// PermissionSet maps object types to their granted action bits. Absent keys
// mean no access.
type PermissionSet map[ObjectType]Actions

// Grants reports whether the set grants the action on the object type.
func (p PermissionSet) Grants(objectType ObjectType, action Action) bool {
	return p[objectType].Has(action)
}

// Merge ORs another set into this one and returns it.
func (p PermissionSet) Merge(other PermissionSet) PermissionSet {
	for t, actions := range other {
		p[t] = p[t].Union(actions)
	}
	return p
}

// Clone returns an independent copy.
func (p PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(p))
	for t, actions := range p {
		out[t] = actions
	}
	return out
}

// SuperAdminRoleName is the system role that bypasses all permission checks.
const SuperAdminRoleName = "super_admin"

// Role is a named permission bundle. ParentID links to the role it inherits
// from; system roles are immutable.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ParentID    string    `json:"parent_id,omitempty"`
	System      bool      `json:"system"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AssigneeKind discriminates the Assignee sum type.
type AssigneeKind string

const (
	AssigneePerson AssigneeKind = "person"
	AssigneeGroup  AssigneeKind = "group"
)

// Assignee is the subject of a role assignment: a person or a group.
type Assignee struct {
	Kind AssigneeKind `json:"kind"`
	ID   string       `json:"id"`
}

// PersonAssignee builds a person assignee.
func PersonAssignee(personID string) Assignee {
	return Assignee{Kind: AssigneePerson, ID: personID}
}

// GroupAssignee builds a group assignee.
func GroupAssignee(groupID string) Assignee {
	return Assignee{Kind: AssigneeGroup, ID: groupID}
}

// Valid reports whether the assignee has a known kind and a non-empty id.
func (a Assignee) Valid() bool {
	if a.ID == "" {
		return false
	}
	return a.Kind == AssigneePerson || a.Kind == AssigneeGroup
}

// ScopeKind bounds where an assignment applies.
type ScopeKind string

const (
	ScopeGlobal          ScopeKind = "global"
	ScopeLocation        ScopeKind = "location"
	ScopeSpecificObjects ScopeKind = "specific_objects"
)

// Valid reports whether k is a known scope kind.
func (k ScopeKind) Valid() bool {
	switch k {
	case ScopeGlobal, ScopeLocation, ScopeSpecificObjects:
		return true
	}
	return false
}

// Assignment binds an assignee to a role within a scope. LocationIDs is only
// meaningful for location scope; specific_objects scope draws its boundary
// from the assignment's object rules.
type Assignment struct {
	ID          string    `json:"id"`
	Assignee    Assignee  `json:"assignee"`
	RoleID      string    `json:"role_id"`
	Scope       ScopeKind `json:"scope"`
	LocationIDs []string  `json:"location_ids,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Effect is the polarity of an object rule.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Valid reports whether e is a known effect.
func (e Effect) Valid() bool {
	return e == EffectAllow || e == EffectDeny
}

// ObjectRule is an object-level override attached to an assignment. An
// explicit deny beats an explicit allow, which beats the role's defaults.
type ObjectRule struct {
	ID           string     `json:"id"`
	AssignmentID string     `json:"assignment_id"`
	ObjectType   ObjectType `json:"object_type"`
	ObjectID     string     `json:"object_id"`
	Action       Action     `json:"action"`
	Effect       Effect     `json:"effect"`
	CreatedAt    time.Time  `json:"created_at"`
}
