package httpx

import (
	"errors"
	"net/http"

	"github.com/pressroom-hq/pressroom/internal/shared"
)

// RespondError maps domain errors to the HTTP error taxonomy. Conflicts
// carry the current entity state; everything unrecognised becomes a 500
// without leaking internals.
func RespondError(w http.ResponseWriter, err error) {
	var conflict *shared.ConflictError
	var validation *shared.ValidationError
	switch {
	case errors.As(err, &conflict):
		Conflict(w, "Conflict: the "+conflict.Entity+" was modified by another request", conflict.Current)
	case errors.As(err, &validation):
		Error(w, http.StatusBadRequest, validation.Error())
	case errors.Is(err, shared.ErrAuthenticationRequired):
		Error(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, shared.ErrPermissionDenied):
		Error(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, shared.ErrNotFound):
		Error(w, http.StatusNotFound, "Not found")
	case errors.Is(err, shared.ErrDuplicate):
		Error(w, http.StatusConflict, "Duplicate entry")
	case errors.Is(err, shared.ErrInvalidCredentials):
		Error(w, http.StatusUnauthorized, "Invalid email or password")
	default:
		Error(w, http.StatusInternalServerError, "Internal server error")
	}
}
