package dedupe

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

// NotFound reports a participant identifier that does not exist
func NotFound(format string, args ...any) error {
	return httperror.NewHTTPErrorf(http.StatusNotFound, format, args...)
}

// Validation reports input that failed validation. Field messages are attached as meta.
func Validation(message string, fields map[string]string) error {
	err := httperror.NewHTTPError(http.StatusBadRequest, message)
	for field, msg := range fields {
		err = err.AddMetaValue(field, msg)
	}
	return err
}

// Conflict reports a pair that already carries an opposing resolution, or a collision
// with a concurrent merge
func Conflict(format string, args ...any) error {
	return httperror.NewHTTPErrorf(http.StatusConflict, format, args...)
}

// Storage reports a failure of the backing store. The operation is safe to retry.
func Storage(message string) error {
	return httperror.NewHTTPError(http.StatusInternalServerError, message)
}

// IsNotFound reports whether err is a NotFound error
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool {
	return hasStatus(err, http.StatusBadRequest)
}

// IsConflict reports whether err is a Conflict error
func IsConflict(err error) bool {
	return hasStatus(err, http.StatusConflict)
}

// IsStorage reports whether err is a storage failure
func IsStorage(err error) bool {
	if err == nil {
		return false
	}
	if !httperror.IsHTTPError(err) {
		return true
	}
	return httperror.GetStatusCode(err) >= http.StatusInternalServerError
}

func hasStatus(err error, status int) bool {
	if err == nil || !httperror.IsHTTPError(err) {
		return false
	}
	return httperror.GetStatusCode(err) == status
}
