package api

import (
	"errors"
	"net/http"

	"clipstream/internal/storage"
)

// writeStorageError maps the storage sentinel errors onto the HTTP error
// taxonomy. Anything unrecognized is a 500 with a generic message; the
// underlying error is the caller's to log.
func writeStorageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidInput):
		writeFailure(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeFailure(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrConflict):
		writeFailure(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrInvalidCredentials):
		writeFailure(w, http.StatusUnauthorized, "invalid credentials")
	default:
		writeFailure(w, http.StatusInternalServerError, "internal error")
	}
}
