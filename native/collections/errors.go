package collections

import "errors"

var (
	// ErrNumberNotFound is returned when a strict removal targets a key the
	// caller's inner map does not hold, or the caller has no inner map.
	ErrNumberNotFound = errors.New("collections: didn't find number to remove")
	// ErrOwnerNotFound is returned when the caller has no inner map to detach.
	ErrOwnerNotFound = errors.New("collections: didn't find user to remove")

	ErrNotInitialized     = errors.New("collections: initialize before usage")
	ErrAlreadyInitialized = errors.New("collections: already initialized")

	errNoOwnedMap = errors.New("collections: owner has no map")
)
