// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/taibuivan/yomira-iam/internal/platform/apperr"
	"github.com/taibuivan/yomira-iam/internal/platform/constants"
	"github.com/taibuivan/yomira-iam/internal/platform/middleware"
	requestutil "github.com/taibuivan/yomira-iam/internal/platform/request"
	"github.com/taibuivan/yomira-iam/internal/platform/respond"
	"github.com/taibuivan/yomira-iam/internal/platform/sec"
	"github.com/taibuivan/yomira-iam/internal/platform/validate"
)

// # Definitions & Constructors

// HandlerConfig carries the transport settings of the auth endpoints.
type HandlerConfig struct {
	// RateLimit is the number of requests per IP per [constants.AuthRateLimitWindow]
	// on the credential endpoints. Zero disables the limiter.
	RateLimit int

	// SecureCookies marks the refresh-token cookie Secure.
	SecureCookies bool
}

// Handler implements authentication-related HTTP endpoints.
type Handler struct {
	authService *Service
	config      HandlerConfig
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service, config HandlerConfig) *Handler {
	return &Handler{authService: service, config: config}
}

/*
Routes returns a [chi.Router] configured with authentication-specific routes.

Endpoints:
  - POST /register                 : Creates a new account.
  - POST /login                    : Authenticates and returns a token pair.
  - POST /refresh-token            : Rotates a refresh token.
  - POST /password-reset/request   : Sends a reset token if the email is known.
  - POST /password-reset/verify    : Reports whether a reset token is usable.
  - POST /password-reset/reset     : Sets a new password with a reset token.
  - POST /logout                   : Revokes every session (auth).
  - POST /change-password          : Replaces the password (auth).
  - GET  /profile                  : Current account (auth).
  - GET  /admin                    : Admin check (auth, admin role).
*/
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints, rate limited per IP
	router.Group(func(r chi.Router) {
		if handler.config.RateLimit > 0 {
			r.Use(credentialLimiter(handler.config.RateLimit))
		}

		r.Post("/register", handler.register)
		r.Post("/login", handler.login)
		r.Post("/refresh-token", handler.refresh)
		r.Post("/password-reset/request", handler.requestPasswordReset)
		r.Post("/password-reset/verify", handler.verifyResetToken)
		r.Post("/password-reset/reset", handler.resetPassword)
	})

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(handler.authService))

		r.Post("/logout", handler.logout)
		r.Post("/change-password", handler.changePassword)
		r.Get("/profile", handler.profile)
		r.With(middleware.RequireRole(sec.RoleAdmin)).Get("/admin", handler.admin)
	})

	return router
}

// credentialLimiter throttles brute-force attempts on the public endpoints.
func credentialLimiter(limit int) func(http.Handler) http.Handler {
	retryAfter := int(constants.AuthRateLimitWindow / time.Second)

	return httprate.Limit(limit, constants.AuthRateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(writer http.ResponseWriter, request *http.Request) {
			writer.Header().Set(constants.HeaderRetryAfter, strconv.Itoa(retryAfter))
			respond.Error(writer, request, apperr.RateLimited(retryAfter))
		}),
	)
}

// # Request Payloads

type registerRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type resetRequestRequest struct {
	Email string `json:"email"`
}

type verifyResetRequest struct {
	Token string `json:"token"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// newPasswordRules applies the password policy to a single field.
func newPasswordRules(validator *validate.Validator, field, value string) *validate.Validator {
	return validator.Required(field, value).
		MinLen(field, value, PasswordMinLength).
		MaxBytes(field, value, sec.MaxPasswordBytes)
}

// # Registration & Login

/*
Register handles the creation of a new user account.

POST /api/v1/auth/register

Response:
  - 201: UserSummary
  - 400: Validation failure
  - 409: Username or email already exists
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldUsername, input.Username).
		MinLen(FieldUsername, input.Username, UsernameMinLength).
		MaxLen(FieldUsername, input.Username, UsernameMaxLength).
		Username(FieldUsername, input.Username).
		Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		MaxLen(FieldEmail, input.Email, EmailMaxLength).
		MaxLen(FieldFirstName, input.FirstName, NameMaxLength).
		MaxLen(FieldLastName, input.LastName, NameMaxLength)
	newPasswordRules(validator, FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.authService.Register(request.Context(), RegisterInput{
		Username:  input.Username,
		Email:     input.Email,
		Password:  input.Password,
		FirstName: input.FirstName,
		LastName:  input.LastName,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, user)
}

/*
Login authenticates a user and establishes a session.

POST /api/v1/auth/login

Description: Returns the token pair in the body and also sets the refresh
token as an HttpOnly cookie scoped to the auth routes.

Response:
  - 200: TokenPair
  - 401: Invalid credentials
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldUsername, input.Username).
		Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	pair, err := handler.authService.Login(request.Context(), input.Username, input.Password)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.setRefreshCookie(writer, pair.RefreshToken, pair.RefreshTokenExpiresAt)
	respond.OK(writer, pair)
}

/*
Refresh rotates a refresh token.

POST /api/v1/auth/refresh-token

Request:
  - Body: {"refresh_token": "..."} or the refresh-token cookie

Response:
  - 200: TokenPair
  - 400: No refresh token supplied
  - 401: Invalid refresh token
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	var input refreshRequest

	if request.ContentLength != 0 {
		if err := requestutil.DecodeJSON(request, &input); err != nil {
			respond.Error(writer, request, validate.ErrInvalidJSON)
			return
		}
	}

	token := input.RefreshToken
	if token == "" {
		if cookie, err := request.Cookie(constants.RefreshTokenCookieName); err == nil {
			token = cookie.Value
		}
	}

	if token == "" {
		respond.Error(writer, request, validate.RequiredError(FieldRefreshToken, "is required"))
		return
	}

	pair, err := handler.authService.Refresh(request.Context(), token)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.setRefreshCookie(writer, pair.RefreshToken, pair.RefreshTokenExpiresAt)
	respond.OK(writer, pair)
}

// # Session & Account

/*
Logout terminates every session of the current user.

POST /api/v1/auth/logout
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.Logout(request.Context(), userID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.clearRefreshCookie(writer)
	respond.Message(writer, "Logged out successfully")
}

/*
ChangePassword replaces the current user's password and revokes all sessions.

POST /api/v1/auth/change-password

Response:
  - 200: Message
  - 401: Wrong current password
  - 404: Account no longer exists
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldCurrentPassword, input.CurrentPassword)
	newPasswordRules(validator, FieldNewPassword, input.NewPassword)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ChangePassword(request.Context(), userID, input.CurrentPassword, input.NewPassword); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.clearRefreshCookie(writer)
	respond.Message(writer, "Password changed successfully")
}

// GET /api/v1/auth/profile
func (handler *Handler) profile(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	summary, err := handler.authService.GetProfile(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, summary)
}

// GET /api/v1/auth/admin
func (handler *Handler) admin(writer http.ResponseWriter, request *http.Request) {
	principal := requestutil.Principal(request)

	respond.OK(writer, map[string]any{
		constants.FieldMessage: "Admin access granted",
		FieldUsername:          principal.Username,
	})
}

// # Password Reset

/*
RequestPasswordReset starts the recovery flow.

POST /api/v1/auth/password-reset/request

Description: The answer is identical whether or not the email is registered.
*/
func (handler *Handler) requestPasswordReset(writer http.ResponseWriter, request *http.Request) {
	var input resetRequestRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).Email(FieldEmail, input.Email)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.RequestPasswordReset(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Message(writer, "If this email is registered, a reset link has been sent.")
}

// POST /api/v1/auth/password-reset/verify
func (handler *Handler) verifyResetToken(writer http.ResponseWriter, request *http.Request) {
	var input verifyResetRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if input.Token == "" {
		respond.Error(writer, request, validate.RequiredError(FieldToken, "is required"))
		return
	}

	valid, err := handler.authService.VerifyResetToken(request.Context(), input.Token)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]bool{constants.FieldValid: valid})
}

/*
ResetPassword completes the recovery flow.

POST /api/v1/auth/password-reset/reset

Response:
  - 200: Message
  - 401: Token expired
  - 404: Token unknown or already used
*/
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldToken, input.Token)
	newPasswordRules(validator, FieldNewPassword, input.NewPassword)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ResetPassword(request.Context(), input.Token, input.NewPassword); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Message(writer, "Password has been reset successfully")
}

// # Cookies

func (handler *Handler) setRefreshCookie(writer http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    token,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  expiresAt,
		Secure:   handler.config.SecureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (handler *Handler) clearRefreshCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		Secure:   handler.config.SecureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
