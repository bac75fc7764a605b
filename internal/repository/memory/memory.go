// Package memory is an in-process implementation of the repository interfaces.
// It backs DATABASE_DRIVER=memory and the concurrency tests of the service layer.
package memory

import (
	"context"
	"sync"
	"time"

	"docvault/internal/model"
)

// Store holds users, documents and versions in maps.
//
// Registry transactions and deletes are serialized by txMu; mu guards the maps themselves
// so readers never observe a half-applied transaction.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	users      map[int64]model.User
	byUsername map[string]int64
	docs       map[int64]model.Document
	versions   map[int64][]model.DocumentVersion

	lastUserID    int64
	lastDocID     int64
	lastVersionID int64

	now func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:      make(map[int64]model.User),
		byUsername: make(map[string]int64),
		docs:       make(map[int64]model.Document),
		versions:   make(map[int64][]model.DocumentVersion),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Users returns a UserRepository backed by s.
func (s *Store) Users() *UserRepository {
	return &UserRepository{s: s}
}

// Documents returns a DocumentRepository backed by s.
func (s *Store) Documents() *DocumentRepository {
	return &DocumentRepository{s: s}
}

// PingContext satisfies the readiness check used by the health endpoint.
func (s *Store) PingContext(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) nextDocID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDocID++
	return s.lastDocID
}

func (s *Store) nextVersionID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastVersionID++
	return s.lastVersionID
}
