package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"mochimo/internal/service"
	"mochimo/pkg/objectstore"
	"mochimo/pkg/outbox"
	"mochimo/pkg/rbac"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("title: %w", service.ErrValidation), http.StatusBadRequest},
		{objectstore.ErrUnsupportedType, http.StatusBadRequest},
		{objectstore.ErrEmpty, http.StatusBadRequest},
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{fmt.Errorf("wrap: %w", service.ErrForbidden), http.StatusForbidden},
		{rbac.CheckPermission("CLIENT", rbac.PermissionCreateProject), http.StatusForbidden},
		{service.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: 3", outbox.ErrEventNotFound), http.StatusNotFound},
		{service.ErrConflict, http.StatusConflict},
		{service.ErrGuard, http.StatusConflict},
		{service.ErrInvalidTransition, http.StatusConflict},
		{objectstore.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{objectstore.ErrUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusOf(tc.err), "%v", tc.err)
	}
}
