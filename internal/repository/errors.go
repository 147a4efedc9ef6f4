package repository

import "errors"

// ErrNotFound signals that the asked-for entity has no row.
var ErrNotFound = errors.New("not found")

// ErrUnableToLoad wraps database failures while reading an entity.
var ErrUnableToLoad = errors.New("unable to load object")

// ErrUnableToSave wraps database failures while writing an entity, including
// updates that did not affect exactly one row.
var ErrUnableToSave = errors.New("unable to save object")

// ErrUnableToDelete wraps database failures while deleting an entity.
var ErrUnableToDelete = errors.New("unable to delete object")

// ErrLinkExists reports a duplicate edge in either direction. Link creation
// races surface as this error, never as a generic persistence failure.
var ErrLinkExists = errors.New("link already exists")
