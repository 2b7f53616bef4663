// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"time"
)

// # User Data Access

// UserRepository defines the data access contract for user accounts.
//
// Lookups that miss return an [apperr.AppError] with code NOT_FOUND. Every
// Find/Lock method returns the user together with its roles and permissions.
type UserRepository interface {

	/*
		FindByID returns the account with the given ID.

		Parameters:
		  - context: context.Context
		  - id: int64

		Returns:
		  - *User: Hydrated entity, roles included
		  - error: NOT_FOUND or database retrieval failures
	*/
	FindByID(context context.Context, id int64) (*User, error)

	// FindByUsername returns the account with the given username.
	FindByUsername(context context.Context, username string) (*User, error)

	// FindByEmail returns the account with the given email.
	FindByEmail(context context.Context, email string) (*User, error)

	// FindByResetTokenHash returns the account holding the given reset-token digest.
	FindByResetTokenHash(context context.Context, tokenHash string) (*User, error)

	/*
		LockByID loads the account and holds a row lock until the surrounding
		transaction ends. Outside a transaction it behaves like FindByID.

		Parameters:
		  - context: context.Context
		  - id: int64

		Returns:
		  - *User: Hydrated entity, roles included
		  - error: NOT_FOUND or database retrieval failures
	*/
	LockByID(context context.Context, id int64) (*User, error)

	// LockByResetTokenHash is the row-locking variant of FindByResetTokenHash.
	LockByResetTokenHash(context context.Context, tokenHash string) (*User, error)

	/*
		Create persists a brand-new user account and fills in ID and timestamps.

		Parameters:
		  - context: context.Context
		  - user: *User

		Returns:
		  - error: CONFLICT on duplicate username/email, or persistence failures
	*/
	Create(context context.Context, user *User) error

	// UpdatePassword replaces only the user's password hash.
	UpdatePassword(context context.Context, userID int64, newHash string) error

	// SetResetToken stores a reset-token digest and its expiry together.
	SetResetToken(context context.Context, userID int64, tokenHash string, expiresAt time.Time) error

	// ClearResetToken nulls both reset-token fields together.
	ClearResetToken(context context.Context, userID int64) error

	// SetActive toggles the account's active flag.
	SetActive(context context.Context, userID int64, active bool) error
}

// # Role Data Access

// RoleRepository defines the data access contract for roles.
type RoleRepository interface {

	/*
		FindOrCreate returns the role with the given name, creating it when absent.

		Parameters:
		  - context: context.Context
		  - name: string
		  - description: string (only used on creation)

		Returns:
		  - *Role: Role with its permissions
		  - error: Persistence failures
	*/
	FindOrCreate(context context.Context, name, description string) (*Role, error)

	// Assign grants a role to a user. Assigning twice is a no-op.
	Assign(context context.Context, userID, roleID int64) error
}

// # Refresh Token Data Access

// RefreshTokenRepository defines the data access contract for refresh tokens.
type RefreshTokenRepository interface {

	// Create persists a new refresh-token digest and fills in ID and CreatedAt.
	Create(context context.Context, token *RefreshToken) error

	/*
		FindActiveByHash returns the non-revoked token with the given digest.
		Expiry is checked by the caller.

		Parameters:
		  - context: context.Context
		  - tokenHash: string

		Returns:
		  - *RefreshToken: Stored token
		  - error: NOT_FOUND or database retrieval failures
	*/
	FindActiveByHash(context context.Context, tokenHash string) (*RefreshToken, error)

	/*
		Consume deletes the non-revoked token with the given digest and returns
		the deleted row. Of two concurrent calls for the same digest, exactly
		one observes the row; the other gets NOT_FOUND.

		Parameters:
		  - context: context.Context
		  - tokenHash: string

		Returns:
		  - *RefreshToken: The consumed row
		  - error: NOT_FOUND or execution errors
	*/
	Consume(context context.Context, tokenHash string) (*RefreshToken, error)

	// DeleteByUser removes every refresh token of the user and reports how many.
	DeleteByUser(context context.Context, userID int64) (int64, error)

	// DeleteExpired removes tokens whose expiry is before now and reports how many.
	DeleteExpired(context context.Context, now time.Time) (int64, error)
}

// # Unit of Work

/*
Store groups the repositories and runs multi-step changes atomically.

Repositories obtained from the Store passed to a WithinTx callback share that
transaction. Callers that lock rows always lock the user row before any of
that user's refresh-token rows.
*/
type Store interface {
	Users() UserRepository
	Roles() RoleRepository
	RefreshTokens() RefreshTokenRepository

	// WithinTx runs fn in a transaction, committing when fn returns nil.
	WithinTx(context context.Context, fn func(tx Store) error) error
}

// # Collaborators

// ReuseTracker remembers refresh-token digests that were already rotated.
//
// It only observes: a hit is logged and counted, the caller's answer is
// unchanged.
type ReuseTracker interface {
	MarkConsumed(context context.Context, tokenHash string, userID int64, ttl time.Duration) error
	ConsumedBy(context context.Context, tokenHash string) (userID int64, found bool, err error)
}

// ResetNotice carries what a user needs to complete a password reset.
type ResetNotice struct {
	UserID    int64
	Username  string
	Email     string
	Token     string
	ExpiresAt time.Time
}

// ResetNotifier delivers reset tokens to users (e.g. by enqueueing an email).
type ResetNotifier interface {
	NotifyPasswordReset(context context.Context, notice ResetNotice) error
}

// EventRecorder counts authentication events.
type EventRecorder interface {
	RecordAuthEvent(event, outcome string)
}
