// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/yomira-iam/internal/platform/middleware"
	requestutil "github.com/taibuivan/yomira-iam/internal/platform/request"
	"github.com/taibuivan/yomira-iam/internal/platform/respond"
	"github.com/taibuivan/yomira-iam/internal/platform/sec"
	"github.com/taibuivan/yomira-iam/internal/platform/validate"
)

// Handler implements the HTTP layer for account administration.
type Handler struct {
	accountService *Service
}

// NewHandler constructs a new account [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{accountService: service}
}

/*
Routes returns a [chi.Router] configured with the account domain's endpoints.

It must be mounted behind [middleware.Authenticate].

Endpoints:
  - GET   /{id}        : Inspect an account (users.read).
  - PATCH /{id}/active : Activate or deactivate an account (admin role).
*/
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.With(middleware.RequirePermission(PermissionUsersRead)).Get("/{id}", handler.getAccount)
	router.With(middleware.RequireRole(sec.RoleAdmin), middleware.RequirePermission(PermissionUsersManage)).
		Patch("/{id}/active", handler.setActive)

	return router
}

type setActiveRequest struct {
	IsActive *bool `json:"is_active"`
}

// GET /api/v1/users/{id}
func (handler *Handler) getAccount(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.ParamInt64(request, "id")
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	view, err := handler.accountService.GetAccount(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, view)
}

/*
SetActive toggles the active flag of an account.

PATCH /api/v1/users/{id}/active

Request:
  - Body: {"is_active": bool}

Response:
  - 200: StatusChange
  - 400: Missing flag or malformed ID
  - 403: Caller lacks the admin role, or tried to deactivate themselves
  - 404: Account not found
*/
func (handler *Handler) setActive(writer http.ResponseWriter, request *http.Request) {
	actorID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	userID, err := requestutil.ParamInt64(request, "id")
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input setActiveRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if input.IsActive == nil {
		respond.Error(writer, request, validate.RequiredError(FieldActive, "is required"))
		return
	}

	change, err := handler.accountService.SetActive(request.Context(), actorID, userID, *input.IsActive)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, change)
}
