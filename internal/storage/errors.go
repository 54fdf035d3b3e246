package storage

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrConflict is returned when an insert violates a uniqueness constraint
// the caller can act on (duplicate VIN, account ID, invoice number).
var ErrConflict = errors.New("storage: conflict")
