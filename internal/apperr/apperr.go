// Package apperr defines the error taxonomy shared by the tree, run and API layers.
//
// Structural errors (InvalidTarget, CyclicMove, IncompleteOrdering) are raised before any
// write. Backend errors (PermissionDenied, NetworkFailure, PersistenceConflict) come from the
// store or the ticket proxy and are never retried automatically.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidTarget is returned when a move references a suite that does not exist.
	ErrInvalidTarget = errors.New("invalid target")
	// ErrCyclicMove is returned when a reparent would make a suite its own ancestor.
	ErrCyclicMove = errors.New("cyclic move rejected")
	// ErrIncompleteOrdering is returned when a reorder list omits or duplicates ids.
	ErrIncompleteOrdering = errors.New("incomplete ordering")
	// ErrPermissionDenied is a backend access policy rejection.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNetworkFailure is a transport level failure.
	ErrNetworkFailure = errors.New("network failure")
	// ErrPersistenceConflict is a concurrent write anomaly reported by the store.
	ErrPersistenceConflict = errors.New("persistence conflict")

	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// IsStructural reports whether err was raised by validation before any write
func IsStructural(err error) bool {
	return errors.Is(err, ErrInvalidTarget) ||
		errors.Is(err, ErrCyclicMove) ||
		errors.Is(err, ErrIncompleteOrdering)
}

// HTTPStatus maps an error to the status code the API answers with
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidTarget),
		errors.Is(err, ErrIncompleteOrdering),
		errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrCyclicMove), errors.Is(err, ErrPersistenceConflict):
		return http.StatusConflict
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrNetworkFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
