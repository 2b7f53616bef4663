// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import "time"

// # Authentication Constraints

const (
	// DefaultAccessTokenTTL is the duration a JWT access token remains valid.
	DefaultAccessTokenTTL = 1 * time.Hour

	// DefaultRefreshTokenTTL is the duration a refresh token remains valid.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// RefreshTokenLength is the byte length of the random refresh token.
	RefreshTokenLength = 32

	// ResetTokenTTL is the duration a password reset token remains valid.
	ResetTokenTTL = 1 * time.Hour

	// ResetTokenLength is the byte length of the random password reset token.
	ResetTokenLength = 32

	// TokenTypeBearer is reported in token responses.
	TokenTypeBearer = "Bearer"
)

// # Input Constraints

const (
	UsernameMinLength = 3
	UsernameMaxLength = 64
	PasswordMinLength = 8
	NameMaxLength     = 100
	EmailMaxLength    = 255
)

// # Auth Events
//
// Event names reported to the [EventRecorder].
const (
	EventLogin          = "login"
	EventRegister       = "register"
	EventRefresh        = "refresh"
	EventRefreshReuse   = "refresh_reuse"
	EventLogout         = "logout"
	EventPasswordChange = "password_change"
	EventResetRequest   = "password_reset_request"
	EventReset          = "password_reset"

	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
