package domain

import "errors"

// ErrNotFound is returned by repo and service functions when the requested
// resource does not exist in the database.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned by service functions when input fails business
// rule validation (e.g. departure date in the past, weight below minimum).
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrConflict is returned when an owner already has an active trip or request
// for the same route and date.
var ErrConflict = errors.New("conflict")

// ErrUnauthorized is returned when the acting user is neither the carrier of
// the trip nor the requester of the item request behind a match.
var ErrUnauthorized = errors.New("unauthorized")

// ErrInvalidTransition is returned when a match status change is not defined
// for the current status and the actor's role.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrInsufficientCapacity is returned when a deduction exceeds a trip's
// available capacity.
var ErrInsufficientCapacity = errors.New("insufficient capacity")

// ErrVersionConflict is returned when a match row changed between read and write.
var ErrVersionConflict = errors.New("version conflict")
