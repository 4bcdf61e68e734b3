package rbac

import "errors"

var (
	ErrNotFound         = errors.New("rbac: not found")
	ErrInvalidInput     = errors.New("rbac: invalid input")
	ErrConflict         = errors.New("rbac: resource conflict")
	ErrSystemRole       = errors.New("rbac: cannot modify system role")
	ErrRoleCycle        = errors.New("rbac: role inheritance cycle")
	ErrConfiguration    = errors.New("rbac: configuration error")
	ErrPermissionDenied = errors.New("rbac: permission denied")
)
