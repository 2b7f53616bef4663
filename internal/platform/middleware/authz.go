// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/taibuivan/yomira-iam/internal/platform/apperr"
	"github.com/taibuivan/yomira-iam/internal/platform/constants"
	"github.com/taibuivan/yomira-iam/internal/platform/ctxutil"
	"github.com/taibuivan/yomira-iam/internal/platform/respond"
	"github.com/taibuivan/yomira-iam/internal/platform/sec"
)

// PrincipalResolver turns a raw bearer token into an authenticated principal.
//
// Defining it here decouples the middleware from the auth service, so tests can
// inject a stub.
type PrincipalResolver interface {
	Authenticate(ctx context.Context, rawToken string) (*sec.Principal, error)
}

/*
Authenticate requires a valid 'Authorization: Bearer <token>' header.

Flow:
 1. A missing header is rejected with 401.
 2. A header that is not a Bearer credential, or carries no token, is rejected with 401.
 3. The token is resolved via [PrincipalResolver]; its errors are rendered as-is.
 4. The [*sec.Principal] is injected into the request context and the request
    logger is enriched with the user ID.

All failures share the 401 status but carry distinct messages.
*/
func Authenticate(resolver PrincipalResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			authHeader := strings.TrimSpace(request.Header.Get(constants.HeaderAuthorization))

			// ── 1. Presence ───────────────────────────────────────────────────
			if authHeader == "" {
				respond.Error(writer, request, apperr.Unauthorized("Access token not provided"))
				return
			}

			// ── 2. Format Validation ──────────────────────────────────────────
			scheme, token, _ := strings.Cut(authHeader, " ")
			if !strings.EqualFold(scheme, constants.BearerScheme) {
				respond.Error(writer, request, apperr.Unauthorized("Invalid authorization header format"))
				return
			}

			token = strings.TrimSpace(token)
			if token == "" {
				respond.Error(writer, request, apperr.Unauthorized("Bearer token missing"))
				return
			}

			// ── 3. Resolution ─────────────────────────────────────────────────
			principal, err := resolver.Authenticate(request.Context(), token)
			if err != nil {
				respond.Error(writer, request, err)
				return
			}

			// ── 4. Context Injection ──────────────────────────────────────────
			ctx := ctxutil.WithPrincipal(request.Context(), principal)
			ctx = ctxutil.WithLogger(ctx, ctxutil.GetLogger(ctx).With(slog.Int64("user_id", principal.UserID)))
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// RequireRole blocks requests whose principal holds none of the given roles.
//
// Must be registered in the router AFTER [Authenticate].
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return guard(func(principal *sec.Principal) bool {
		return principal.HasRole(roles...)
	})
}

// RequirePermission blocks requests whose principal lacks any of the given permissions.
//
// Must be registered in the router AFTER [Authenticate].
func RequirePermission(permissions ...string) func(http.Handler) http.Handler {
	return guard(func(principal *sec.Principal) bool {
		return principal.HasPermissions(permissions...)
	})
}

func guard(allowed func(*sec.Principal) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			principal := ctxutil.GetPrincipal(request.Context())

			if principal == nil {
				respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
				return
			}

			if !allowed(principal) {
				respond.Error(writer, request, apperr.Forbidden("Insufficient permissions"))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}
