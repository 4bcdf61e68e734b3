package rbac

// SystemRole is a person's coarse account level, distinct from the
// fine-grained role forest. It gates the administration UI sections.
type SystemRole string

const (
	SystemRoleUser       SystemRole = "user"
	SystemRoleAdmin      SystemRole = "admin"
	SystemRoleSuperAdmin SystemRole = "super_admin"
)

var systemRoleRank = map[SystemRole]int{
	SystemRoleUser:       0,
	SystemRoleAdmin:      1,
	SystemRoleSuperAdmin: 2,
}

// Valid reports whether s is a known system role.
func (s SystemRole) Valid() bool {
	_, ok := systemRoleRank[s]
	return ok
}

// HasAtLeast reports whether s ranks at or above required. Unknown roles
// rank below everything.
func (s SystemRole) HasAtLeast(required SystemRole) bool {
	rank, ok := systemRoleRank[s]
	if !ok {
		return false
	}
	want, ok := systemRoleRank[required]
	if !ok {
		return false
	}
	return rank >= want
}

// Section names an area of the administration surface.
type Section string

const (
	SectionBranding       Section = "branding"
	SectionStorage        Section = "storage"
	SectionIntegrations   Section = "integrations"
	SectionFields         Section = "fields"
	SectionImportExport   Section = "import_export"
	SectionAuditLogs      Section = "audit_logs"
	SectionAuthentication Section = "authentication"
	SectionRBAC           Section = "rbac"
	SectionNotifications  Section = "notifications"
	SectionBackup         Section = "backup"
)

// CanAccessAdminSection gates admin sections by system role. Authentication
// and permission management are restricted to super admins; every other
// section opens at admin level. Unknown sections are denied for everyone.
func CanAccessAdminSection(role SystemRole, section Section) bool {
	switch section {
	case SectionAuthentication, SectionRBAC:
		return role.HasAtLeast(SystemRoleSuperAdmin)
	case SectionBranding, SectionStorage, SectionIntegrations, SectionFields,
		SectionImportExport, SectionAuditLogs, SectionNotifications, SectionBackup:
		return role.HasAtLeast(SystemRoleAdmin)
	}
	return false
}
