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

type AccountHandler struct {
	service *service.AccountService
}

func NewAccountHandler(service *service.AccountService) *AccountHandler {
	return &AccountHandler{service: service}
}

// Post serves both POST /users/{role} (create) and POST /users/{id}
// (update). Role names never parse as account ids, so the segment decides.
func (h *AccountHandler) Post(w http.ResponseWriter, r *http.Request) {
	if role, ok := model.ParseRole(chi.URLParam(r, "id")); ok {
		h.create(w, r, role)
		return
	}
	h.Update(w, r)
}

func (h *AccountHandler) create(w http.ResponseWriter, r *http.Request, role model.Role) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	if !principal.IsAdmin() {
		writeError(w, apierror.Forbidden(""))
		return
	}

	var payload model.CreateAccountRequest
	if err := decodeJSON(w, r, &payload, false); err != nil {
		writeError(w, err)
		return
	}

	account, err := h.service.Register(r.Context(), principal, role, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, account.Summary(), nil)
}

func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	query := r.URL.Query()

	filter := model.ListAccountsQuery{
		Page:  parseIntOrDefault(query.Get("page"), 1),
		Limit: parseIntOrDefault(query.Get("limit"), 50),
	}
	if raw := strings.TrimSpace(query.Get("role")); raw != "" {
		role, ok := model.ParseRole(raw)
		if !ok {
			writeError(w, apierror.Validation("unknown role", raw))
			return
		}
		filter.Role = role
	}

	accounts, meta, err := h.service.List(r.Context(), principal, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.AccountList{Accounts: accounts}, &meta)
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())

	account, err := h.service.GetWithProfile(r.Context(), principal, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, account, nil)
}

func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	accountID := chi.URLParam(r, "id")

	// Ownership is checked before the body is read.
	if !principal.CanAccess(accountID) {
		writeError(w, apierror.Forbidden(""))
		return
	}

	var payload model.UpdateAccountRequest
	if err := decodeJSON(w, r, &payload, false); err != nil {
		writeError(w, err)
		return
	}

	account, err := h.service.Update(r.Context(), principal, accountID, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, account, nil)
}

func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())

	if err := h.service.Delete(r.Context(), principal, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) Students(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	guardianID := chi.URLParam(r, "id")

	students, err := h.service.Students(r.Context(), principal, guardianID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.LinkList{AccountID: guardianID, Linked: students}, nil)
}

func (h *AccountHandler) Guardians(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	studentID := chi.URLParam(r, "id")

	guardians, err := h.service.Guardians(r.Context(), principal, studentID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.LinkList{AccountID: studentID, Linked: guardians}, nil)
}

func (h *AccountHandler) LinkStudent(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())

	err := h.service.LinkStudent(r.Context(), principal, chi.URLParam(r, "id"), chi.URLParam(r, "studentID"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"linked": true}, nil)
}

func (h *AccountHandler) UnlinkStudent(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())

	err := h.service.UnlinkStudent(r.Context(), principal, chi.URLParam(r, "id"), chi.URLParam(r, "studentID"))
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
