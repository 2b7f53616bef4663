// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import "slices"

// # Roles

const (
	// RoleUser is attached to every account at registration.
	RoleUser = "user"

	// RoleAdmin grants access to account administration.
	RoleAdmin = "admin"
)

// # Principal

/*
Principal is the authenticated identity attached to a request.

It is rebuilt from storage on every request, so role and permission changes
take effect without waiting for the access token to expire.
*/
type Principal struct {
	UserID      int64
	Username    string
	Email       string
	Roles       []string
	Permissions []string
}

// HasRole reports whether the principal holds at least one of the given roles.
func (p *Principal) HasRole(names ...string) bool {
	if p == nil {
		return false
	}
	for _, name := range names {
		if slices.Contains(p.Roles, name) {
			return true
		}
	}
	return false
}

// HasPermissions reports whether the principal holds every given permission.
func (p *Principal) HasPermissions(names ...string) bool {
	if p == nil {
		return false
	}
	for _, name := range names {
		if !slices.Contains(p.Permissions, name) {
			return false
		}
	}
	return true
}
