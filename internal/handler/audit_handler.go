package handler

import (
	"net/http"
	"strings"

	"scribex-api/internal/middleware"
	"scribex-api/internal/model"
	"scribex-api/internal/service"
	"scribex-api/internal/websocket"
	"scribex-api/pkg/apierror"
)

type AuditHandler struct {
	service *service.AuditService
	hub     *websocket.Hub
}

// NewAuditHandler serves the audit trail. hub may be nil, which disables the
// live activity stream.
func NewAuditHandler(service *service.AuditService, hub *websocket.Hub) *AuditHandler {
	return &AuditHandler{service: service, hub: hub}
}

type auditListData struct {
	Items []model.AuditEntry `json:"items"`
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	query := r.URL.Query()

	items, meta, err := h.service.Query(r.Context(), principal, model.AuditQuery{
		Action:    strings.TrimSpace(query.Get("action")),
		ActorID:   strings.TrimSpace(query.Get("actor_id")),
		SubjectID: strings.TrimSpace(query.Get("subject_id")),
		Page:      parseIntOrDefault(query.Get("page"), 1),
		Limit:     parseIntOrDefault(query.Get("limit"), 50),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, auditListData{Items: items}, &meta)
}

// Stream upgrades to a websocket that receives every account and auth event
// as it is published.
func (h *AuditHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, apierror.NotFound("activity stream is disabled", ""))
		return
	}

	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthenticated(""))
		return
	}

	h.hub.Serve(w, r, principal.AccountID)
}
