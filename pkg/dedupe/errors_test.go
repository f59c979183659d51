package dedupe

import (
	"errors"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		status     int
		notFound   bool
		validation bool
		conflict   bool
		storage    bool
	}{
		{"not found", NotFound("participant %s not found", "p1"), http.StatusNotFound, true, false, false, false},
		{"validation", Validation("invalid resolved fields", map[string]string{"date_of_birth": "datetime"}), http.StatusBadRequest, false, true, false, false},
		{"conflict", Conflict("pair %s already ignored", "a:b"), http.StatusConflict, false, false, true, false},
		{"storage", Storage("failed to apply merge"), http.StatusInternalServerError, false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, httperror.IsHTTPError(tt.err))
			assert.Equal(t, tt.status, httperror.GetStatusCode(tt.err))
			assert.Equal(t, tt.notFound, IsNotFound(tt.err))
			assert.Equal(t, tt.validation, IsValidation(tt.err))
			assert.Equal(t, tt.conflict, IsConflict(tt.err))
			assert.Equal(t, tt.storage, IsStorage(tt.err))
		})
	}
}

func TestIsStorage_PlainErrors(t *testing.T) {
	assert.True(t, IsStorage(errors.New("connection reset")))
	assert.False(t, IsStorage(nil))
	assert.False(t, IsNotFound(nil))
}
