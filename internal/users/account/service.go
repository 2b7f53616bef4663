// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/taibuivan/yomira-iam/internal/platform/apperr"
	"github.com/taibuivan/yomira-iam/internal/platform/ctxutil"
	"github.com/taibuivan/yomira-iam/internal/users/auth"
)

// # Service Layer

// Service orchestrates administrative changes to user accounts.
type Service struct {
	store auth.Store
}

// NewService constructs a new [Service] over the identity store.
func NewService(store auth.Store) *Service {
	return &Service{store: store}
}

/*
GetAccount retrieves an account for an administrator.

Parameters:
  - context: context.Context
  - userID: int64

Returns:
  - *AccountView: Account with roles and status
  - error: Not found or execution failures
*/
func (service *Service) GetAccount(context context.Context, userID int64) (*AccountView, error) {
	user, err := service.store.Users().FindByID(context, userID)
	if err != nil {
		return nil, fmt.Errorf("account_service_get_failed: %w", err)
	}
	return newAccountView(user), nil
}

/*
SetActive switches an account between active and inactive.

Description: The account row is locked first, then its refresh tokens are
deleted when deactivating, all in one transaction. Administrators cannot
deactivate themselves.

Parameters:
  - context: context.Context
  - actorID: int64 (the administrator performing the change)
  - userID: int64
  - active: bool

Returns:
  - *StatusChange: New status and number of revoked sessions
  - error: Forbidden, NotFound or storage errors
*/
func (service *Service) SetActive(context context.Context, actorID, userID int64, active bool) (*StatusChange, error) {
	if actorID == userID && !active {
		return nil, apperr.Forbidden("You cannot deactivate your own account")
	}

	change := &StatusChange{UserID: userID, IsActive: active}

	err := service.store.WithinTx(context, func(tx auth.Store) error {
		user, err := tx.Users().LockByID(context, userID)
		if err != nil {
			return err
		}

		if user.IsActive != active {
			if err := tx.Users().SetActive(context, userID, active); err != nil {
				return err
			}
		}

		if active {
			return nil
		}

		change.RevokedSessions, err = tx.RefreshTokens().DeleteByUser(context, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("account_service_set_active_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "account_status_changed",
		slog.Int64("target_user_id", userID),
		slog.Bool("active", active),
		slog.Int64("revoked_sessions", change.RevokedSessions),
	)

	return change, nil
}
