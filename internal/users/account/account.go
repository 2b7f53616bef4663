// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package account handles administrative management of user accounts.

It lets administrators inspect an account and switch it between active and
inactive. Deactivation ends every session of the account: its refresh tokens
are revoked, and outstanding access tokens stop resolving because the bearer
validator reloads the account on every request.

# Architecture

  - Domain: This package depends on the auth package for the User entity and Store.
  - Security: Every endpoint is guarded by role or permission middleware.
*/
package account

import (
	"time"

	"github.com/taibuivan/yomira-iam/internal/users/auth"
)

// # Domain Entities

// AccountView is the administrator's view of an account.
type AccountView struct {
	auth.UserSummary
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newAccountView(user *auth.User) *AccountView {
	return &AccountView{
		UserSummary: user.Summary(),
		IsActive:    user.IsActive,
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
	}
}

// StatusChange reports the outcome of an activation toggle.
type StatusChange struct {
	UserID          int64 `json:"user_id"`
	IsActive        bool  `json:"is_active"`
	RevokedSessions int64 `json:"revoked_sessions"`
}

// # Permissions

const (
	// PermissionUsersRead allows inspecting other accounts.
	PermissionUsersRead = "users.read"

	// PermissionUsersManage allows activating and deactivating accounts.
	PermissionUsersManage = "users.manage"
)

// FieldActive is the JSON field of the activation payload.
const FieldActive = "is_active"
