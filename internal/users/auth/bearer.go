// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/taibuivan/yomira-iam/internal/platform/apperr"
	"github.com/taibuivan/yomira-iam/internal/platform/sec"
)

/*
Authenticate resolves a raw bearer token into a request principal.

Description: The signature and expiry are checked first, then the account is
reloaded so that roles, permissions and the active flag come from storage
rather than from the token's claims.

Parameters:
  - context: context.Context
  - rawToken: string (without the "Bearer " prefix)

Returns:
  - *sec.Principal: Identity with current roles and permissions
  - error: apperr.Unauthorized with a reason-specific message, or storage errors
*/
func (service *Service) Authenticate(context context.Context, rawToken string) (*sec.Principal, error) {
	claims, err := service.tokens.VerifyToken(rawToken)
	if err != nil {
		if errors.Is(err, sec.ErrTokenExpired) {
			return nil, apperr.Unauthorized("Access token has expired")
		}
		return nil, apperr.Unauthorized("Invalid access token")
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, apperr.Unauthorized("Invalid access token")
	}

	user, err := service.store.Users().FindByID(context, userID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.Unauthorized("User not found")
		}
		return nil, fmt.Errorf("auth_service_authenticate_failed: %w", err)
	}

	if !user.IsActive {
		return nil, apperr.Unauthorized("User is inactive")
	}

	return user.Principal(), nil
}
