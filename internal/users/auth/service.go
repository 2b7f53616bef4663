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

// # Contracts & Types

// TokenProvider signs and verifies access tokens.
type TokenProvider interface {
	GenerateAccessToken(subject sec.TokenSubject, timeToLive time.Duration) (string, error)
	VerifyToken(tokenString string) (*sec.AuthClaims, error)
}

// Service implements user authentication use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, rotation,
// or reset logic must be reviewed by the security team.
type Service struct {
	store      Store
	tokens     TokenProvider
	notifier   ResetNotifier
	reuse      ReuseTracker
	recorder   EventRecorder
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option customises a [Service].
type Option func(*Service)

// WithAccessTokenTTL overrides [DefaultAccessTokenTTL].
func WithAccessTokenTTL(ttl time.Duration) Option {
	return func(service *Service) { service.accessTTL = ttl }
}

// WithRefreshTokenTTL overrides [DefaultRefreshTokenTTL].
func WithRefreshTokenTTL(ttl time.Duration) Option {
	return func(service *Service) { service.refreshTTL = ttl }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(service *Service) { service.now = now }
}

// WithNotifier sets the collaborator that delivers password-reset tokens.
func WithNotifier(notifier ResetNotifier) Option {
	return func(service *Service) { service.notifier = notifier }
}

// WithReuseTracker enables observation of replayed refresh tokens.
func WithReuseTracker(tracker ReuseTracker) Option {
	return func(service *Service) { service.reuse = tracker }
}

// WithRecorder sets the sink for authentication event counters.
func WithRecorder(recorder EventRecorder) Option {
	return func(service *Service) { service.recorder = recorder }
}

// NewService constructs a new [Service] with necessary dependencies.
func NewService(store Store, tokens TokenProvider, opts ...Option) *Service {
	service := &Service{
		store:      store,
		tokens:     tokens,
		accessTTL:  DefaultAccessTokenTTL,
		refreshTTL: DefaultRefreshTokenTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (service *Service) record(event string, err error) {
	if service.recorder == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	service.recorder.RecordAuthEvent(event, outcome)
}

func errInvalidCredentials() error {
	return apperr.Unauthorized("Invalid credentials")
}

func errInvalidRefreshToken() error {
	return apperr.Unauthorized("Invalid refresh token")
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new member.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

/*
Register validates, hashes, and persists a brand new user account.

Description: The account is created active and receives the default user role
in the same transaction. No tokens are issued; the client logs in afterwards.

Parameters:
  - context: context.Context
  - input: RegisterInput

Returns:
  - *UserSummary: Created account
  - error: Conflict (if identity exists) or storage errors
*/
func (service *Service) Register(context context.Context, input RegisterInput) (summary *UserSummary, err error) {
	defer func() { service.record(EventRegister, err) }()

	input.Email = validate.NormalizeEmail(input.Email)
	users := service.store.Users()

	if taken, err := identityTaken(context, users, input.Username, input.Email); err != nil {
		return nil, err
	} else if taken {
		return nil, apperr.Conflict("Username or email already exists")
	}

	hashedPassword, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	user := &User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hashedPassword,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		IsActive:     true,
	}

	var created *User
	err = service.store.WithinTx(context, func(tx Store) error {
		if err := tx.Users().Create(context, user); err != nil {
			return err
		}

		role, err := tx.Roles().FindOrCreate(context, sec.RoleUser, "Default role for registered accounts")
		if err != nil {
			return err
		}

		if err := tx.Roles().Assign(context, user.ID, role.ID); err != nil {
			return err
		}

		created, err = tx.Users().FindByID(context, user.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("auth_service_register_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "auth_user_registered", slog.Int64("user_id", created.ID))

	result := created.Summary()
	return &result, nil
}

// identityTaken reports whether the username or email already belongs to an account.
func identityTaken(context context.Context, users UserRepository, username, email string) (bool, error) {
	if _, err := users.FindByUsername(context, username); err == nil {
		return true, nil
	} else if !apperr.IsNotFound(err) {
		return false, fmt.Errorf("auth_service_lookup_failed: %w", err)
	}

	if _, err := users.FindByEmail(context, email); err == nil {
		return true, nil
	} else if !apperr.IsNotFound(err) {
		return false, fmt.Errorf("auth_service_lookup_failed: %w", err)
	}

	return false, nil
}

// # Authentication Flow

/*
VerifyCredentials checks a username/password pair.

Description: Unknown usernames, wrong passwords and inactive accounts all yield
the same error. Unknown usernames still pay for one bcrypt comparison.

Parameters:
  - context: context.Context
  - username: string
  - password: string

Returns:
  - *User: Account with roles, credential fields cleared
  - error: apperr.Unauthorized or storage errors
*/
func (service *Service) VerifyCredentials(context context.Context, username, password string) (*User, error) {
	user, err := service.store.Users().FindByUsername(context, username)
	if err != nil {
		if apperr.IsNotFound(err) {
			sec.EqualizeTiming(password)
			return nil, errInvalidCredentials()
		}
		return nil, fmt.Errorf("auth_service_verify_failed: %w", err)
	}

	if !sec.CheckPasswordHash(password, user.PasswordHash) {
		return nil, errInvalidCredentials()
	}

	if !user.IsActive {
		return nil, errInvalidCredentials()
	}

	return user.withoutSecrets(), nil
}

/*
Login validates user credentials and issues a token pair.

Parameters:
  - context: context.Context
  - username: string
  - password: string

Returns:
  - *TokenPair: Access token, refresh token and user summary
  - error: Unauthorized or internal failures
*/
func (service *Service) Login(context context.Context, username, password string) (pair *TokenPair, err error) {
	defer func() { service.record(EventLogin, err) }()

	user, err := service.VerifyCredentials(context, username, password)
	if err != nil {
		ctxutil.GetLogger(context).InfoContext(context, "auth_login_failed", slog.String("username", username))
		return nil, err
	}

	pair, err = service.issueTokens(context, service.store, user)
	if err != nil {
		return nil, fmt.Errorf("auth_service_login_failed: %w", err)
	}

	return pair, nil
}

/*
issueTokens mints an access token and persists a fresh refresh token.

Parameters:
  - context: context.Context
  - store: Store (the caller's transaction, if any)
  - user: *User (roles loaded)

Returns:
  - *TokenPair: The new pair; only the refresh token's digest is stored
  - error: Signing, entropy or storage failures
*/
func (service *Service) issueTokens(context context.Context, store Store, user *User) (*TokenPair, error) {
	now := service.now()
	summary := user.Summary()

	accessToken, err := service.tokens.GenerateAccessToken(sec.TokenSubject{
		UserID:      user.ID,
		Username:    user.Username,
		Roles:       summary.Roles,
		Permissions: summary.Permissions,
	}, service.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("auth_service_sign_failed: %w", err)
	}

	refreshToken, err := sec.GenerateURLToken(RefreshTokenLength)
	if err != nil {
		return nil, fmt.Errorf("auth_service_token_generation_failed: %w", err)
	}

	stored := &RefreshToken{
		UserID:    user.ID,
		TokenHash: sec.HashToken(refreshToken),
		ExpiresAt: now.Add(service.refreshTTL),
	}
	if err := store.RefreshTokens().Create(context, stored); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		TokenType:             TokenTypeBearer,
		ExpiresIn:             int64(service.accessTTL / time.Second),
		RefreshTokenExpiresAt: stored.ExpiresAt,
		User:                  summary,
	}, nil
}

// # Session Rotation

/*
Refresh exchanges a refresh token for a new pair and consumes the old one.

Description: Lookup, user lock, consumption and issuance share one transaction.
Unknown, revoked, expired and already-consumed tokens are indistinguishable to
the caller. A replayed token that was consumed earlier is logged and counted.

Parameters:
  - context: context.Context
  - rawToken: string

Returns:
  - *TokenPair: The replacement pair
  - error: apperr.Unauthorized or storage errors
*/
func (service *Service) Refresh(context context.Context, rawToken string) (pair *TokenPair, err error) {
	defer func() { service.record(EventRefresh, err) }()

	if rawToken == "" {
		return nil, errInvalidRefreshToken()
	}

	tokenHash := sec.HashToken(rawToken)
	now := service.now()

	var consumed *RefreshToken
	err = service.store.WithinTx(context, func(tx Store) error {
		stored, err := tx.RefreshTokens().FindActiveByHash(context, tokenHash)
		if err != nil {
			return err
		}
		if !stored.IsValid(now) {
			return errInvalidRefreshToken()
		}

		user, err := tx.Users().LockByID(context, stored.UserID)
		if err != nil {
			return err
		}
		if !user.IsActive {
			return errInvalidRefreshToken()
		}

		consumed, err = tx.RefreshTokens().Consume(context, tokenHash)
		if err != nil {
			return err
		}

		pair, err = service.issueTokens(context, tx, user.withoutSecrets())
		return err
	})

	if err != nil {
		if apperr.IsNotFound(err) || apperr.HasCode(err, apperr.CodeUnauthorized) {
			service.observeReuse(context, tokenHash)
			return nil, errInvalidRefreshToken()
		}
		return nil, fmt.Errorf("auth_service_refresh_failed: %w", err)
	}

	if service.reuse != nil {
		if err := service.reuse.MarkConsumed(context, tokenHash, consumed.UserID, consumed.ExpiresAt.Sub(now)); err != nil {
			ctxutil.GetLogger(context).WarnContext(context, "refresh_token_mark_consumed_failed", slog.String("error", err.Error()))
		}
	}

	return pair, nil
}

// observeReuse logs a rejected token that was previously rotated away.
func (service *Service) observeReuse(context context.Context, tokenHash string) {
	if service.reuse == nil {
		return
	}

	logger := ctxutil.GetLogger(context)

	userID, found, err := service.reuse.ConsumedBy(context, tokenHash)
	if err != nil {
		logger.WarnContext(context, "refresh_token_reuse_lookup_failed", slog.String("error", err.Error()))
		return
	}
	if !found {
		return
	}

	logger.WarnContext(context, "refresh_token_reuse_detected", slog.Int64("user_id", userID))
	if service.recorder != nil {
		service.recorder.RecordAuthEvent(EventRefreshReuse, OutcomeFailure)
	}
}

// # Revocation

// RevokeAll deletes every refresh token of the user. It is idempotent.
func (service *Service) RevokeAll(context context.Context, userID int64) (int64, error) {
	revoked, err := service.store.RefreshTokens().DeleteByUser(context, userID)
	if err != nil {
		return 0, fmt.Errorf("auth_service_revoke_failed: %w", err)
	}
	return revoked, nil
}

// Logout ends every session of the user.
func (service *Service) Logout(context context.Context, userID int64) (err error) {
	defer func() { service.record(EventLogout, err) }()

	revoked, err := service.RevokeAll(context, userID)
	if err != nil {
		return err
	}

	ctxutil.GetLogger(context).InfoContext(context, "auth_logout", slog.Int64("revoked_tokens", revoked))
	return nil
}

// # Credential Management

/*
ChangePassword replaces the password after checking the current one.

Description: The new hash is computed before the transaction opens. Inside it
the user row is locked and re-checked, then the hash is written and every
refresh token is revoked.

Parameters:
  - context: context.Context
  - userID: int64
  - currentPassword: string
  - newPassword: string

Returns:
  - error: NotFound, Unauthorized or storage errors
*/
func (service *Service) ChangePassword(context context.Context, userID int64, currentPassword, newPassword string) (err error) {
	defer func() { service.record(EventPasswordChange, err) }()

	user, err := service.store.Users().FindByID(context, userID)
	if err != nil {
		return fmt.Errorf("auth_service_change_password_failed: %w", err)
	}

	if !sec.CheckPasswordHash(currentPassword, user.PasswordHash) {
		return apperr.Unauthorized("Invalid current password")
	}

	newHash, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	err = service.store.WithinTx(context, func(tx Store) error {
		locked, err := tx.Users().LockByID(context, userID)
		if err != nil {
			return err
		}

		// Someone else changed the password between the check and the lock.
		if locked.PasswordHash != user.PasswordHash {
			return apperr.Unauthorized("Invalid current password")
		}

		if err := tx.Users().UpdatePassword(context, userID, newHash); err != nil {
			return err
		}

		_, err = tx.RefreshTokens().DeleteByUser(context, userID)
		return err
	})
	if err != nil {
		return fmt.Errorf("auth_service_change_password_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "auth_password_changed", slog.Int64("user_id", userID))
	return nil
}

// # Profile

// GetProfile returns the current state of the user's account.
func (service *Service) GetProfile(context context.Context, userID int64) (*UserSummary, error) {
	user, err := service.store.Users().FindByID(context, userID)
	if err != nil {
		return nil, fmt.Errorf("auth_service_get_profile_failed: %w", err)
	}

	summary := user.Summary()
	return &summary, nil
}

// # Maintenance

// PurgeExpiredRefreshTokens deletes refresh tokens past their expiry.
func (service *Service) PurgeExpiredRefreshTokens(context context.Context) (int64, error) {
	purged, err := service.store.RefreshTokens().DeleteExpired(context, service.now())
	if err != nil {
		return 0, fmt.Errorf("auth_service_purge_failed: %w", err)
	}
	return purged, nil
}
