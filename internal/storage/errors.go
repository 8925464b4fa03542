package storage

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrDuplicate is returned when an insert violates the external_id
// uniqueness constraint.
var ErrDuplicate = errors.New("storage: duplicate external_id")

// ErrConflict is returned when a compare-and-set transition observes a
// state other than the expected one.
var ErrConflict = errors.New("storage: state conflict")
