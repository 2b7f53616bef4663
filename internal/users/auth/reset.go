// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/yomira-iam/internal/platform/apperr"
	"github.com/taibuivan/yomira-iam/internal/platform/ctxutil"
	"github.com/taibuivan/yomira-iam/internal/platform/sec"
	"github.com/taibuivan/yomira-iam/internal/platform/validate"
)

// # Password Reset Workflow

func errResetTokenExpired() error {
	return apperr.Unauthorized("Reset token has expired")
}

// resetTokenLive reports whether the stored expiry admits a reset at instant now.
func resetTokenLive(expiry *time.Time, now time.Time) bool {
	return expiry != nil && !now.After(*expiry)
}

/*
RequestPasswordReset starts the recovery flow for an email address.

Description: Always succeeds from the caller's point of view when the email is
unknown. For a known account a fresh token replaces any previous one and is
handed to the [ResetNotifier]; notifier failures are logged, not returned.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - error: Storage or entropy failures only
*/
func (service *Service) RequestPasswordReset(context context.Context, email string) (err error) {
	defer func() { service.record(EventResetRequest, err) }()

	logger := ctxutil.GetLogger(context)

	user, err := service.store.Users().FindByEmail(context, validate.NormalizeEmail(email))
	if err != nil {
		if apperr.IsNotFound(err) {
			logger.InfoContext(context, "auth_reset_requested_unknown_email")
			return nil
		}
		return fmt.Errorf("auth_service_reset_request_failed: %w", err)
	}

	token, err := sec.GenerateSecureToken(ResetTokenLength)
	if err != nil {
		return fmt.Errorf("auth_service_token_generation_failed: %w", err)
	}

	expiresAt := service.now().Add(ResetTokenTTL)
	if err := service.store.Users().SetResetToken(context, user.ID, sec.HashToken(token), expiresAt); err != nil {
		return fmt.Errorf("auth_service_reset_request_failed: %w", err)
	}

	if service.notifier == nil {
		logger.WarnContext(context, "auth_reset_notifier_missing", slog.Int64("user_id", user.ID))
		return nil
	}

	notice := ResetNotice{
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Token:     token,
		ExpiresAt: expiresAt,
	}
	if err := service.notifier.NotifyPasswordReset(context, notice); err != nil {
		logger.ErrorContext(context, "auth_reset_notification_failed",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

/*
VerifyResetToken reports whether a reset token is currently usable.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - bool: false for unknown or expired tokens
  - error: Storage failures only
*/
func (service *Service) VerifyResetToken(context context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	user, err := service.store.Users().FindByResetTokenHash(context, sec.HashToken(token))
	if err != nil {
		if apperr.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("auth_service_verify_reset_failed: %w", err)
	}

	return resetTokenLive(user.ResetTokenExpiry, service.now()), nil
}

/*
ResetPassword completes the recovery flow.

Description: The token is checked twice, once before hashing the new password
and once under the user row lock. Password update, token clearing and session
revocation commit together.

Parameters:
  - context: context.Context
  - token: string
  - newPassword: string

Returns:
  - error: NotFound (unknown token), Unauthorized (expired) or storage errors
*/
func (service *Service) ResetPassword(context context.Context, token, newPassword string) (err error) {
	defer func() { service.record(EventReset, err) }()

	tokenHash := sec.HashToken(token)

	user, err := service.store.Users().FindByResetTokenHash(context, tokenHash)
	if err != nil {
		if apperr.IsNotFound(err) {
			return apperr.NotFound("Reset token")
		}
		return fmt.Errorf("auth_service_reset_failed: %w", err)
	}

	if !resetTokenLive(user.ResetTokenExpiry, service.now()) {
		return errResetTokenExpired()
	}

	newHash, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	err = service.store.WithinTx(context, func(tx Store) error {
		locked, err := tx.Users().LockByResetTokenHash(context, tokenHash)
		if err != nil {
			if apperr.IsNotFound(err) {
				return apperr.NotFound("Reset token")
			}
			return err
		}

		if !resetTokenLive(locked.ResetTokenExpiry, service.now()) {
			return errResetTokenExpired()
		}

		if err := tx.Users().UpdatePassword(context, locked.ID, newHash); err != nil {
			return err
		}
		if err := tx.Users().ClearResetToken(context, locked.ID); err != nil {
			return err
		}

		_, err = tx.RefreshTokens().DeleteByUser(context, locked.ID)
		return err
	})
	if err != nil {
		return fmt.Errorf("auth_service_reset_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "auth_password_reset", slog.Int64("user_id", user.ID))
	return nil
}
