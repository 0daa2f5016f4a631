package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrInternal, http.StatusTeapot, "brew"), http.StatusTeapot},
		{"wrapped not found", fmt.Errorf("raw: %w", ErrNotFound), http.StatusNotFound},
		{"path traversal hides as not found", ErrPathOutsideRoot, http.StatusNotFound},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"root gone", fmt.Errorf("polling: %w", ErrInvalidRoot), http.StatusServiceUnavailable},
		{"unknown", context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	err := Newf(ErrInvalidInput, http.StatusBadRequest, "limit %d", -1)
	assert.True(t, Is(err, ErrInvalidInput))
	assert.Equal(t, "invalid input: limit -1", err.Error())
}
