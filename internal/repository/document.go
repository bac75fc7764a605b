package repository

import (
	"context"

	"docvault/internal/model"
)

// NewDocument carries the fields used when an upload creates a document.
type NewDocument struct {
	Title       string
	Description *string
	Tags        *string
	OwnerID     int64
}

// ListFilter narrows a document listing. Empty fields do not filter.
type ListFilter struct {
	// Query matches title or description, substring and case-insensitive.
	Query string
	// Tag matches the comma-joined tags, substring and case-insensitive.
	Tag string
}

// RegistryTx is the transactional view of the document registry used by uploads.
type RegistryTx interface {
	// FindOrCreate returns the document with exactly this title, creating it with
	// LatestVersion 0 when none exists. It enters the per-title critical section that
	// lasts until the transaction ends.
	FindOrCreate(ctx context.Context, in NewDocument) (*model.Document, error)

	// AllocateNextVersion increments the document's LatestVersion, touches UpdatedAt and
	// returns the new value.
	AllocateNextVersion(ctx context.Context, documentID int64) (int, error)

	// RecordVersion inserts a version row. The (document_id, version) pair is unique.
	RecordVersion(ctx context.Context, v *model.DocumentVersion) (*model.DocumentVersion, error)
}

// DocumentRepository is the document registry: documents, their version rows and the
// ownership between them.
type DocumentRepository interface {
	// WithinTx runs fn in one atomic transaction. If fn returns an error nothing it did is kept.
	WithinTx(ctx context.Context, fn func(tx RegistryTx) error) error

	// FindByID returns a document (without versions) or ErrNotFound.
	FindByID(ctx context.Context, id int64) (*model.Document, error)

	// List returns documents matching f, most recently updated first, each with its versions.
	List(ctx context.Context, f ListFilter) ([]model.Document, error)

	// ListVersions returns the versions of a document, highest version first.
	ListVersions(ctx context.Context, documentID int64) ([]model.DocumentVersion, error)

	// GetVersion returns one version of a document. A version <= 0 resolves to the
	// document's current LatestVersion. Returns ErrNotFound when absent.
	GetVersion(ctx context.Context, documentID int64, version int) (*model.DocumentVersion, error)

	// Delete removes a document together with every version it owns, in one transaction,
	// and returns the storage keys of the removed versions. Returns ErrNotFound when absent.
	Delete(ctx context.Context, id int64) ([]string, error)
}
