// Package repository contains data access layer abstractions.
// Implementations live in subpackages (postgres, memory) inside this directory
// and contain no business logic beyond the transactional guarantees documented here.
package repository

import "errors"

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrUsernameTaken is returned when a user with the same username already exists.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrDuplicateVersion is returned when a (document, version) pair is recorded twice.
	ErrDuplicateVersion = errors.New("document version already exists")
)
