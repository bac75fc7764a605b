package memory

import (
	"context"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// UserRepository implements repository.UserRepository on a Store.
type UserRepository struct {
	s *Store
}

var _ repository.UserRepository = (*UserRepository)(nil)

// Create holds the write lock for the whole check-and-insert, so the count seen by guard
// is the count the insert is applied against.
func (r *UserRepository) Create(ctx context.Context, u *model.User, guard repository.CreateGuard) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := *u
	if guard != nil {
		if err := guard(len(r.s.users), &out); err != nil {
			return nil, err
		}
	}
	if _, taken := r.s.byUsername[out.Username]; taken {
		return nil, repository.ErrUsernameTaken
	}

	r.s.lastUserID++
	out.ID = r.s.lastUserID
	out.CreatedAt = r.s.now()
	r.s.users[out.ID] = out
	r.s.byUsername[out.Username] = out.ID

	res := out
	return &res, nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.byUsername[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u := r.s.users[id]
	return &u, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.users), nil
}
