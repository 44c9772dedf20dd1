package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"scribex-api/internal/model"
	"scribex-api/pkg/apierror"
)

func writeSuccess(w http.ResponseWriter, status int, data any, meta *model.Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

// writeError maps err onto the error envelope. Unclassified errors are
// logged and reported as a bare 500.
func writeError(w http.ResponseWriter, err error) {
	apiErr := classify(err)
	if apiErr.HTTPStatus == http.StatusInternalServerError {
		slog.Error("unhandled error in writeError", "error", err.Error())
	}
	if apiErr.HTTPStatus == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error: &model.APIError{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		},
	})
}

func classify(err error) *apierror.APIError {
	var apiErr *apierror.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, model.ErrInvalidToken),
		errors.Is(err, model.ErrUnauthenticated),
		errors.Is(err, model.ErrAccountInactive):
		return apierror.Unauthenticated("")
	case errors.Is(err, model.ErrAccountNotFound):
		return apierror.NotFound("account not found", "")
	case errors.Is(err, model.ErrUsernameTaken):
		return apierror.Conflict("username already registered", "")
	case errors.Is(err, model.ErrEmailTaken):
		return apierror.Conflict("email already registered", "")
	case errors.Is(err, model.ErrStudentNotFound):
		return apierror.Validation("linked account not found", "")
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, model.ErrInvalidProfile):
		return apierror.Validation(err.Error(), "")
	default:
		return apierror.Internal()
	}
}
