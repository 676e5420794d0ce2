package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not found", fmt.Errorf("suite x: %w", ErrNotFound), http.StatusNotFound},
		{"invalid target", ErrInvalidTarget, http.StatusBadRequest},
		{"incomplete ordering", fmt.Errorf("reorder: %w", ErrIncompleteOrdering), http.StatusBadRequest},
		{"cyclic", ErrCyclicMove, http.StatusConflict},
		{"permission", ErrPermissionDenied, http.StatusForbidden},
		{"network", ErrNetworkFailure, http.StatusBadGateway},
		{"conflict", ErrPersistenceConflict, http.StatusConflict},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestIsStructural(t *testing.T) {
	assert.True(t, IsStructural(fmt.Errorf("move: %w", ErrCyclicMove)))
	assert.True(t, IsStructural(ErrInvalidTarget))
	assert.True(t, IsStructural(ErrIncompleteOrdering))
	assert.False(t, IsStructural(ErrNetworkFailure))
	assert.False(t, IsStructural(nil))
}
