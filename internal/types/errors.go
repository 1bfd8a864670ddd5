package types

import (
	"context"
	"errors"
	"net/http"

	"github.com/DoyleJ11/avalon-server/internal/engine"
	"github.com/DoyleJ11/avalon-server/internal/identity"
)

// ErrBadRequest marks malformed input caught before it reaches a service.
var ErrBadRequest = errors.New("bad request")

// StatusOf maps an error from the services to the HTTP status reported to
// the client.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, identity.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrBadRequest), errors.Is(err, engine.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrPhase):
		return http.StatusConflict
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
