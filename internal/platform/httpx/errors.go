package httpx

import (
	"errors"
	"net/http"

	"github.com/veritrail/veritrail/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Authorization denials always carry the same generic detail so
// capability-table contents cannot be enumerated through responses.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
	case errors.Is(err, shared.ErrDuplicateGrant):
		Problem(w, http.StatusConflict, "Duplicate Grant", err.Error())
	case errors.Is(err, shared.ErrGrantNotActive):
		Problem(w, http.StatusConflict, "Grant Not Active", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
