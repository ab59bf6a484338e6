// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// reaction manager and the handlers to distinguish between different
// failure scenarios.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write cannot be applied because the row
// changed since it was read, e.g. a reaction set saved with a stale movie
// version. Callers may reload and try again; the store never retries.
var ErrConflict = errors.New("conflict")

// ErrMovieNotFound indicates that a movie was not located in the store.
var ErrMovieNotFound = errors.New("movie not found")

// ErrMovieExists is returned by Create when the title is already taken.
var ErrMovieExists = errors.New("movie already exists")

// ErrInvalidCounter is returned when a counter operation names an unknown
// reaction kind.
var ErrInvalidCounter = errors.New("invalid counter")
