package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned when a row fails a CHECK or required column.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrForeignKeyViolation is returned when a referenced row is missing or still referenced.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrCapacityReached is returned when an event has no free seats left.
	ErrCapacityReached = errors.New("persistence: capacity reached")
	// ErrStateConflict is returned when a conditional update matched no row.
	ErrStateConflict = errors.New("persistence: state conflict")
)
