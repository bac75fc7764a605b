package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

const documentColumns = `id, title, description, tags, latest_version, owner_id, created_at, updated_at`

const versionColumns = `id, document_id, version, filename, original_name, mime_type, size, uploader_id, created_at`

// WithinTx runs fn in a single transaction.
func (r *DocumentPostgres) WithinTx(ctx context.Context, fn func(tx repository.RegistryTx) error) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&registryTx{q: tx})
	})
}

// registryTx implements repository.RegistryTx on top of an open transaction.
type registryTx struct {
	q querier
}

// FindOrCreate takes a transaction-scoped advisory lock on the title hash, then looks the
// title up and inserts it if missing. Concurrent uploads of one title queue on the lock.
func (t *registryTx) FindOrCreate(ctx context.Context, in repository.NewDocument) (*model.Document, error) {
	if _, err := t.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, in.Title); err != nil {
		return nil, fmt.Errorf("lock title: %w", err)
	}

	const qFind = `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE title = $1
		ORDER BY id
		LIMIT 1
		FOR UPDATE
	`
	doc, err := scanDocument(t.q.QueryRowContext(ctx, qFind, in.Title))
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	const qInsert = `
		INSERT INTO documents (title, description, tags, latest_version, owner_id)
		VALUES ($1, $2, $3, 0, $4)
		RETURNING ` + documentColumns
	return scanDocument(t.q.QueryRowContext(ctx, qInsert, in.Title, in.Description, in.Tags, in.OwnerID))
}

// AllocateNextVersion increments latest_version in a single UPDATE, which holds the row lock
// until the transaction ends.
func (t *registryTx) AllocateNextVersion(ctx context.Context, documentID int64) (int, error) {
	const q = `
		UPDATE documents
		SET latest_version = latest_version + 1, updated_at = now()
		WHERE id = $1
		RETURNING latest_version
	`
	var v int
	if err := t.q.QueryRowContext(ctx, q, documentID).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, err
	}
	return v, nil
}

// RecordVersion inserts a document version row.
func (t *registryTx) RecordVersion(ctx context.Context, v *model.DocumentVersion) (*model.DocumentVersion, error) {
	const q = `
		INSERT INTO document_versions (document_id, version, filename, original_name, mime_type, size, uploader_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + versionColumns
	rows, err := t.q.QueryContext(ctx, q,
		v.DocumentID,
		v.Version,
		v.Filename,
		v.OriginalName,
		v.MimeType,
		v.Size,
		v.UploaderID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrDuplicateVersion
		}
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			if isUniqueViolation(err) {
				return nil, repository.ErrDuplicateVersion
			}
			return nil, err
		}
		return nil, sql.ErrNoRows
	}
	out, err := scanVersion(rows)
	if err != nil {
		return nil, err
	}
	return out, rows.Err()
}

// FindByID fetches a single document by its ID.
func (r *DocumentPostgres) FindByID(ctx context.Context, id int64) (*model.Document, error) {
	const q = `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE id = $1
	`
	return scanDocument(r.db.QueryRowContext(ctx, q, id))
}

// List returns documents filtered by ILIKE substring matches, newest-updated first,
// with their versions attached.
func (r *DocumentPostgres) List(ctx context.Context, f repository.ListFilter) ([]model.Document, error) {
	var (
		where []string
		args  []any
	)
	if f.Query != "" {
		args = append(args, likePattern(f.Query))
		n := len(args)
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", n, n))
	}
	if f.Tag != "" {
		args = append(args, likePattern(f.Tag))
		where = append(where, fmt.Sprintf("tags ILIKE $%d", len(args)))
	}

	q := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY updated_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachVersions(ctx, docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// attachVersions loads the versions of every listed document with one query.
func (r *DocumentPostgres) attachVersions(ctx context.Context, docs []model.Document) error {
	if len(docs) == 0 {
		return nil
	}
	placeholders := make([]string, len(docs))
	args := make([]any, len(docs))
	index := make(map[int64]int, len(docs))
	for i, d := range docs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = d.ID
		index[d.ID] = i
		docs[i].Versions = []model.DocumentVersion{}
	}

	q := `SELECT ` + versionColumns + ` FROM document_versions WHERE document_id IN (` +
		strings.Join(placeholders, ", ") + `) ORDER BY document_id, version DESC`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return err
		}
		if i, ok := index[v.DocumentID]; ok {
			docs[i].Versions = append(docs[i].Versions, *v)
		}
	}
	return rows.Err()
}

// ListVersions returns a document's versions, highest first.
func (r *DocumentPostgres) ListVersions(ctx context.Context, documentID int64) ([]model.DocumentVersion, error) {
	const q = `
		SELECT ` + versionColumns + `
		FROM document_versions
		WHERE document_id = $1
		ORDER BY version DESC
	`
	rows, err := r.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.DocumentVersion, 0)
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// GetVersion resolves one version; version <= 0 means the document's latest_version.
func (r *DocumentPostgres) GetVersion(ctx context.Context, documentID int64, version int) (*model.DocumentVersion, error) {
	const q = `
		SELECT v.id, v.document_id, v.version, v.filename, v.original_name, v.mime_type, v.size, v.uploader_id, v.created_at
		FROM document_versions v
		JOIN documents d ON d.id = v.document_id
		WHERE v.document_id = $1
		  AND v.version = CASE WHEN $2 > 0 THEN $2 ELSE d.latest_version END
	`
	rows, err := r.db.QueryContext(ctx, q, documentID, version)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, repository.ErrNotFound
	}
	v, err := scanVersion(rows)
	if err != nil {
		return nil, err
	}
	return v, rows.Err()
}

// Delete removes the version rows and then the document row in one transaction.
func (r *DocumentPostgres) Delete(ctx context.Context, id int64) ([]string, error) {
	var keys []string
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var locked int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM documents WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		if err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, `DELETE FROM document_versions WHERE document_id = $1 RETURNING filename`, id)
		if err != nil {
			return err
		}
		for rows.Next() {
			var k string
			if err := rows.Scan(&k); err != nil {
				rows.Close()
				return err
			}
			keys = append(keys, k)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		_, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*model.Document, error) {
	var d model.Document
	if err := s.Scan(
		&d.ID,
		&d.Title,
		&d.Description,
		&d.Tags,
		&d.LatestVersion,
		&d.OwnerID,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanVersion(s scanner) (*model.DocumentVersion, error) {
	var v model.DocumentVersion
	if err := s.Scan(
		&v.ID,
		&v.DocumentID,
		&v.Version,
		&v.Filename,
		&v.OriginalName,
		&v.MimeType,
		&v.Size,
		&v.UploaderID,
		&v.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &v, nil
}

// likePattern wraps s in % after escaping ILIKE metacharacters.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
