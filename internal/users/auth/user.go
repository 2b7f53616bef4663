// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements the user identity and token lifecycle layer.

It defines the core domain entities (User, Role, Permission, RefreshToken) and the
logic for authentication, refresh-token rotation, revocation, password change and
the password-reset workflow.

# Architecture

Entities defined here carry no storage or transport dependencies. Persistence is
reached through the [Store] contract and HTTP through [Handler].
*/
package auth

import (
	"time"

	"github.com/taibuivan/yomira-iam/internal/platform/sec"
)

// # Domain Entities

// Permission is a named capability on a resource.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
}

// Role groups permissions and is granted to users.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// User represents a registered account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Explicitly omitted from JSON for security.
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	IsActive     bool      `json:"is_active"`
	Roles        []Role    `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// ResetTokenHash and ResetTokenExpiry are either both set or both nil.
	ResetTokenHash   *string    `json:"-"`
	ResetTokenExpiry *time.Time `json:"-"`
}

// RoleNames returns the names of the user's roles in storage order.
func (user *User) RoleNames() []string {
	names := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		names = append(names, role.Name)
	}
	return names
}

// PermissionNames flattens the permissions of every role, without duplicates,
// in order of first appearance.
func (user *User) PermissionNames() []string {
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, role := range user.Roles {
		for _, permission := range role.Permissions {
			if _, ok := seen[permission.Name]; ok {
				continue
			}
			seen[permission.Name] = struct{}{}
			names = append(names, permission.Name)
		}
	}
	return names
}

// Summary projects the user into its client-facing shape.
func (user *User) Summary() UserSummary {
	return UserSummary{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Roles:       user.RoleNames(),
		Permissions: user.PermissionNames(),
	}
}

// Principal builds the request identity from the stored user.
func (user *User) Principal() *sec.Principal {
	return &sec.Principal{
		UserID:      user.ID,
		Username:    user.Username,
		Email:       user.Email,
		Roles:       user.RoleNames(),
		Permissions: user.PermissionNames(),
	}
}

// withoutSecrets returns a shallow copy with credential material cleared.
func (user *User) withoutSecrets() *User {
	clone := *user
	clone.PasswordHash = ""
	clone.ResetTokenHash = nil
	clone.ResetTokenExpiry = nil
	return &clone
}

// RefreshToken is the persisted half of an opaque refresh token.
type RefreshToken struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	TokenHash string    `json:"-"` // SHA-256 of the token handed to the client.
	ExpiresAt time.Time `json:"expires_at"`
	IsRevoked bool      `json:"is_revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// IsValid reports whether the token may still be exchanged at instant now.
func (token *RefreshToken) IsValid(now time.Time) bool {
	return !token.IsRevoked && !now.After(token.ExpiresAt)
}

// # Transport Shapes

// UserSummary is the user as returned by login, refresh, register and profile.
type UserSummary struct {
	ID          int64    `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	FirstName   string   `json:"first_name,omitempty"`
	LastName    string   `json:"last_name,omitempty"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken           string      `json:"access_token"`
	RefreshToken          string      `json:"refresh_token"`
	TokenType             string      `json:"token_type"`
	ExpiresIn             int64       `json:"expires_in"`
	RefreshTokenExpiresAt time.Time   `json:"refresh_token_expires_at"`
	User                  UserSummary `json:"user"`
}

// # Field Identifiers

// Global field names for validation and identity mapping in the authentication domain.
const (
	FieldUsername        = "username"
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldFirstName       = "first_name"
	FieldLastName        = "last_name"
	FieldToken           = "token"
	FieldRefreshToken    = "refresh_token"
	FieldCurrentPassword = "current_password"
	FieldNewPassword     = "new_password"
)
