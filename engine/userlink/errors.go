package userlink

import "errors"

var (
	ErrLinkNotFound      = errors.New("identity link not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrWorkspaceNotFound = errors.New("workspace not found")
	// ErrUserExists is returned when a concurrent provisioning call won a
	// unique constraint race. Callers may retry.
	ErrUserExists = errors.New("user already exists")
)
