// Package repository holds the storage-level errors shared by the project
// file store and the history database. The project service translates them
// into its own API errors.
package repository

import "errors"

var (
	// ErrNotFound means the project directory or artifact file is missing.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists means a project directory with that id is present.
	ErrAlreadyExists = errors.New("already exists")

	// ErrConflict means the on-disk metadata version moved since the load.
	ErrConflict = errors.New("project was saved by another writer")

	// ErrInvalidInput rejects ids and iteration numbers that cannot map to a path.
	ErrInvalidInput = errors.New("invalid storage key")
)
