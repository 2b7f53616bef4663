// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-iam/internal/platform/apperr"
	"github.com/taibuivan/yomira-iam/internal/platform/sec"
	"github.com/taibuivan/yomira-iam/internal/users/auth"
)

func TestRequestPasswordReset_KnownEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice", "alice@x.com", "secret123")

	require.NoError(t, f.service.RequestPasswordReset(ctx, "alice@x.com"))

	notice := f.notifier.last(t)
	assert.Equal(t, userID, notice.UserID)
	assert.Equal(t, "alice@x.com", notice.Email)
	assert.Len(t, notice.Token, auth.ResetTokenLength*2)
	assert.Equal(t, f.clock.Now().Add(auth.ResetTokenTTL), notice.ExpiresAt)

	stored := f.db.user(userID)
	require.NotNil(t, stored.ResetTokenHash)
	require.NotNil(t, stored.ResetTokenExpiry)
	assert.Equal(t, sec.HashToken(notice.Token), *stored.ResetTokenHash, "only the digest is stored")
}

func TestRequestPasswordReset_MatchesEmailCaseInsensitively(t *testing.T) {
	f := newFixture(t)
	userID := f.register(t, "alice", "alice@x.com", "secret123")

	require.NoError(t, f.service.RequestPasswordReset(context.Background(), "Alice@X.com"))
	assert.Equal(t, userID, f.notifier.last(t).UserID)
}

/*
TestRequestPasswordReset_UnknownEmail checks that an unknown address yields the
same outcome as a known one and sends nothing.
*/
func TestRequestPasswordReset_UnknownEmail(t *testing.T) {
	f := newFixture(t)

	err := f.service.RequestPasswordReset(context.Background(), "ghost@x.com")
	assert.NoError(t, err)
	assert.Empty(t, f.notifier.notices)
}

func TestRequestPasswordReset_NotifierFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	userID := f.register(t, "alice", "alice@x.com", "secret123")
	f.notifier.err = errBoom

	assert.NoError(t, f.service.RequestPasswordReset(context.Background(), "alice@x.com"))
	assert.NotNil(t, f.db.user(userID).ResetTokenHash, "the token is stored regardless")
}

func TestRequestPasswordReset_StorageFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "alice@x.com", "secret123")
	f.db.failOn("SetResetToken", errBoom)

	err := f.service.RequestPasswordReset(context.Background(), "alice@x.com")
	assert.ErrorIs(t, err, errBoom)
}

func TestRequestPasswordReset_ReplacesPreviousToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "alice@x.com", "secret123")

	require.NoError(t, f.service.RequestPasswordReset(ctx, "alice@x.com"))
	first := f.notifier.last(t).Token
	require.NoError(t, f.service.RequestPasswordReset(ctx, "alice@x.com"))
	second := f.notifier.last(t).Token

	valid, err := f.service.VerifyResetToken(ctx, first)
	require.NoError(t, err)
	assert.False(t, valid)

	valid, err = f.service.VerifyResetToken(ctx, second)
	require.NoError(t, err)
	assert.True(t, valid)
}

/*
TestVerifyResetToken_Boundary checks the expiry edge: usable one second before
expiry, rejected one second after.
*/
func TestVerifyResetToken_Boundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "alice@x.com", "secret123")
	require.NoError(t, f.service.RequestPasswordReset(ctx, "alice@x.com"))
	token := f.notifier.last(t).Token

	f.clock.Advance(auth.ResetTokenTTL - time.Second)
	valid, err := f.service.VerifyResetToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, valid)

	f.clock.Advance(2 * time.Second)
	valid, err = f.service.VerifyResetToken(ctx, token)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestVerifyResetToken_Unknown(t *testing.T) {
	f := newFixture(t)

	for _, token := range []string{"", "deadbeef"} {
		valid, err := f.service.VerifyResetToken(context.Background(), token)
		require.NoError(t, err)
		assert.False(t, valid)
	}
}

func TestResetPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice", "alice@x.com", "secret123")
	session, err := f.service.Login(ctx, "alice", "secret123")
	require.NoError(t, err)

	require.NoError(t, f.service.RequestPasswordReset(ctx, "alice@x.com"))
	token := f.notifier.last(t).Token

	require.NoError(t, f.service.ResetPassword(ctx, token, "reset-pass-1"))

	stored := f.db.user(userID)
	assert.Nil(t, stored.ResetTokenHash)
	assert.Nil(t, stored.ResetTokenExpiry)
	assert.True(t, sec.CheckPasswordHash("reset-pass-1", stored.PasswordHash))

	_, err = f.service.Refresh(ctx, session.RefreshToken)
	assert.True(t, apperr.HasCode(err, apperr.CodeUnauthorized), "sessions are revoked")

	err = f.service.ResetPassword(ctx, token, "reset-pass-2")
	assert.True(t, apperr.IsNotFound(err), "a reset token is single use")
}

func TestResetPassword_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice", "alice@x.com", "secret123")
	require.NoError(t, f.service.RequestPasswordReset(ctx, "alice@x.com"))
	token := f.notifier.last(t).Token

	err := f.service.ResetPassword(ctx, "unknown-token", "reset-pass-1")
	assert.True(t, apperr.IsNotFound(err))

	f.clock.Advance(auth.ResetTokenTTL + time.Second)
	err = f.service.ResetPassword(ctx, token, "reset-pass-1")
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperr.CodeUnauthorized, appErr.Code)
	assert.Equal(t, "Reset token has expired", appErr.Message)

	assert.True(t, sec.CheckPasswordHash("secret123", f.db.user(userID).PasswordHash))
}

func TestResetPassword_IsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice", "alice@x.com", "secret123")
	require.NoError(t, f.service.RequestPasswordReset(ctx, "alice@x.com"))
	token := f.notifier.last(t).Token

	f.db.failOn("ClearResetToken", errBoom)
	require.ErrorIs(t, f.service.ResetPassword(ctx, token, "reset-pass-1"), errBoom)

	stored := f.db.user(userID)
	assert.True(t, sec.CheckPasswordHash("secret123", stored.PasswordHash))
	assert.NotNil(t, stored.ResetTokenHash)

	f.db.failOn("ClearResetToken", nil)
	assert.NoError(t, f.service.ResetPassword(ctx, token, "reset-pass-1"))
}
