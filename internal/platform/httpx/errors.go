package httpx

import (
	"errors"
	"net/http"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

// RespondError maps the shared error taxonomy to HTTP responses using
// RFC7807. Every error is user-visible; none is silently retried.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrStateConflict):
		Problem(w, http.StatusConflict, "State Conflict", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", shared.UserSafeMessage(err))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
