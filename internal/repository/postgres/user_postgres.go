package postgres

import (
	"context"
	"database/sql"
	"errors"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// UserPostgres is a PostgreSQL implementation of repository.UserRepository.
type UserPostgres struct {
	db *sql.DB
}

// NewUserPostgres creates a new UserPostgres repository.
func NewUserPostgres(db *sql.DB) *UserPostgres {
	return &UserPostgres{db: db}
}

var _ repository.UserRepository = (*UserPostgres)(nil)

// Create inserts a user while holding a transaction-scoped advisory lock, so the count
// passed to guard and the insert happen atomically with respect to other creations.
func (r *UserPostgres) Create(ctx context.Context, u *model.User, guard repository.CreateGuard) (*model.User, error) {
	out := *u
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, usersLockKey); err != nil {
			return err
		}

		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
			return err
		}
		if guard != nil {
			if err := guard(count, &out); err != nil {
				return err
			}
		}

		var taken bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, out.Username).Scan(&taken); err != nil {
			return err
		}
		if taken {
			return repository.ErrUsernameTaken
		}

		const q = `
			INSERT INTO users (username, password_hash, role)
			VALUES ($1, $2, $3)
			RETURNING id, created_at
		`
		return tx.QueryRowContext(ctx, q, out.Username, out.PasswordHash, string(out.Role)).
			Scan(&out.ID, &out.CreatedAt)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrUsernameTaken
		}
		return nil, err
	}
	return &out, nil
}

// FindByUsername fetches a user by exact username.
func (r *UserPostgres) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	const q = `
		SELECT id, username, password_hash, role, created_at
		FROM users
		WHERE username = $1
	`
	return scanUser(r.db.QueryRowContext(ctx, q, username))
}

// FindByID fetches a user by ID.
func (r *UserPostgres) FindByID(ctx context.Context, id int64) (*model.User, error) {
	const q = `
		SELECT id, username, password_hash, role, created_at
		FROM users
		WHERE id = $1
	`
	return scanUser(r.db.QueryRowContext(ctx, q, id))
}

// Count returns the number of users.
func (r *UserPostgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	var (
		u    model.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	u.Role = model.Role(role)
	return &u, nil
}
