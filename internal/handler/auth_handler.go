package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"scribex-api/internal/middleware"
	"scribex-api/internal/model"
	"scribex-api/internal/service"
	"scribex-api/pkg/apierror"
)

type AuthHandler struct {
	auth     *service.AuthService
	accounts *service.AccountService
}

func NewAuthHandler(auth *service.AuthService, accounts *service.AccountService) *AuthHandler {
	return &AuthHandler{auth: auth, accounts: accounts}
}

// Login accepts the OAuth2 password form (username, password) or the same
// fields as JSON.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if isFormRequest(r) {
		if err := parseForm(w, r); err != nil {
			writeError(w, err)
			return
		}
		payload.Username = r.PostForm.Get("username")
		payload.Password = r.PostForm.Get("password")
	} else if err := decodeJSON(w, r, &payload, false); err != nil {
		writeError(w, err)
		return
	}

	if err := model.Validate(payload); err != nil {
		writeError(w, err)
		return
	}

	tokens, err := h.auth.Login(r.Context(), payload.Username, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, tokens, nil)
}

// Refresh takes the refresh token from the JSON body or, failing that, the
// bearer header.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var payload model.RefreshRequest
	if err := decodeJSON(w, r, &payload, true); err != nil {
		writeError(w, err)
		return
	}

	token := strings.TrimSpace(payload.RefreshToken)
	if token == "" {
		token, _ = middleware.BearerToken(r)
	}
	if token == "" {
		writeError(w, apierror.Validation("refresh_token is required", "refresh_token"))
		return
	}

	tokens, err := h.auth.Refresh(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, tokens, nil)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	accessToken, ok := middleware.AccessTokenFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthenticated(""))
		return
	}

	var payload model.LogoutRequest
	if err := decodeJSON(w, r, &payload, true); err != nil {
		writeError(w, err)
		return
	}

	if err := h.auth.Logout(r.Context(), accessToken, strings.TrimSpace(payload.RefreshToken)); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"logged_out": true}, nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthenticated(""))
		return
	}

	account, err := h.accounts.GetWithProfile(r.Context(), principal, principal.AccountID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, account, nil)
}

// Register is the unauthenticated sign-up path, gated by configuration.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	role, ok := model.ParseRole(chi.URLParam(r, "role"))
	if !ok {
		writeError(w, apierror.NotFound("unknown role", chi.URLParam(r, "role")))
		return
	}

	var payload model.CreateAccountRequest
	if err := decodeJSON(w, r, &payload, false); err != nil {
		writeError(w, err)
		return
	}

	account, err := h.accounts.Register(r.Context(), nil, role, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, account.Summary(), nil)
}

func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var payload model.PasswordResetRequest
	if err := decodeJSON(w, r, &payload, false); err != nil {
		writeError(w, err)
		return
	}

	if err := h.auth.RequestPasswordReset(r.Context(), payload.Email); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusAccepted, map[string]any{"requested": true}, nil)
}

func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var payload model.PasswordResetConfirmRequest
	if err := decodeJSON(w, r, &payload, false); err != nil {
		writeError(w, err)
		return
	}

	if err := h.auth.ConfirmPasswordReset(r.Context(), payload.Token, payload.NewPassword); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"password_reset": true}, nil)
}
