package repository

import (
	"context"

	"docvault/internal/model"
)

// CreateGuard runs inside the user-creation critical section with the number of users that
// existed before the insert. It may adjust u (e.g. force its role) or return an error to abort.
type CreateGuard func(existingUsers int, u *model.User) error

// UserRepository defines data access for users.
type UserRepository interface {
	// Create inserts u. Creations are serialized store-wide: the user count handed to guard
	// cannot change before the insert commits, so two concurrent first registrations cannot
	// both observe an empty store. Returns ErrUsernameTaken on a duplicate username.
	Create(ctx context.Context, u *model.User, guard CreateGuard) (*model.User, error)

	// FindByUsername returns the user with the exact username or ErrNotFound.
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// FindByID returns a user by ID or ErrNotFound.
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// Count returns the number of users.
	Count(ctx context.Context) (int, error)
}
