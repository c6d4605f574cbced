package httpx

import (
	"errors"
	"net/http"
	"strings"
)

// Sentinel errors. Domain packages wrap one of these into their own
// sentinels so handlers can delegate status mapping to RespondError.
var (
	ErrNotFound   = errors.New("not found")
	ErrDuplicate  = errors.New("already exists")
	ErrValidation = errors.New("validation failed")
	ErrTooLarge   = errors.New("too large")
)

// Expected reports whether err maps to a client-attributable status.
// Unexpected errors become opaque 500s and should be logged by the caller.
func Expected(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrValidation) || errors.Is(err, ErrTooLarge)
}

// RespondError maps domain errors to HTTP responses using RFC7807. The
// wrapped sentinel suffix is trimmed from the detail.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", detail(err, ErrNotFound))
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", detail(err, ErrDuplicate))
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", detail(err, ErrValidation))
	case errors.Is(err, ErrTooLarge):
		Problem(w, http.StatusRequestEntityTooLarge, "Upload Too Large", detail(err, ErrTooLarge))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func detail(err, sentinel error) string {
	return strings.TrimSuffix(err.Error(), ": "+sentinel.Error())
}
