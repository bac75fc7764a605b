package memory

import (
	"context"
	"sort"
	"strings"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// DocumentRepository implements repository.DocumentRepository on a Store.
type DocumentRepository struct {
	s *Store
}

var _ repository.DocumentRepository = (*DocumentRepository)(nil)

// WithinTx runs fn with exclusive write access to the registry. Writes are staged and
// applied to the store only when fn returns nil.
func (r *DocumentRepository) WithinTx(ctx context.Context, fn func(tx repository.RegistryTx) error) error {
	r.s.txMu.Lock()
	defer r.s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &registryTx{
		s:    r.s,
		docs: make(map[int64]model.Document),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type registryTx struct {
	s        *Store
	docs     map[int64]model.Document
	versions []model.DocumentVersion
}

// lookup returns the staged document if any, else the committed one.
func (t *registryTx) lookup(id int64) (model.Document, bool) {
	if d, ok := t.docs[id]; ok {
		return d, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	d, ok := t.s.docs[id]
	return d, ok
}

func (t *registryTx) FindOrCreate(ctx context.Context, in repository.NewDocument) (*model.Document, error) {
	var (
		found model.Document
		ok    bool
	)
	for _, d := range t.docs {
		if d.Title == in.Title && (!ok || d.ID < found.ID) {
			found, ok = d, true
		}
	}
	if !ok {
		t.s.mu.RLock()
		for _, d := range t.s.docs {
			if d.Title == in.Title && (!ok || d.ID < found.ID) {
				found, ok = d, true
			}
		}
		t.s.mu.RUnlock()
	}
	if ok {
		return &found, nil
	}

	now := t.s.now()
	doc := model.Document{
		ID:          t.s.nextDocID(),
		Title:       in.Title,
		Description: in.Description,
		Tags:        in.Tags,
		OwnerID:     in.OwnerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.docs[doc.ID] = doc
	return &doc, nil
}

func (t *registryTx) AllocateNextVersion(ctx context.Context, documentID int64) (int, error) {
	doc, ok := t.lookup(documentID)
	if !ok {
		return 0, repository.ErrNotFound
	}
	doc.LatestVersion++
	doc.UpdatedAt = t.s.now()
	t.docs[doc.ID] = doc
	return doc.LatestVersion, nil
}

func (t *registryTx) RecordVersion(ctx context.Context, v *model.DocumentVersion) (*model.DocumentVersion, error) {
	if _, ok := t.lookup(v.DocumentID); !ok {
		return nil, repository.ErrNotFound
	}
	for _, sv := range t.versions {
		if sv.DocumentID == v.DocumentID && sv.Version == v.Version {
			return nil, repository.ErrDuplicateVersion
		}
	}
	t.s.mu.RLock()
	for _, cv := range t.s.versions[v.DocumentID] {
		if cv.Version == v.Version {
			t.s.mu.RUnlock()
			return nil, repository.ErrDuplicateVersion
		}
	}
	t.s.mu.RUnlock()

	out := *v
	out.ID = t.s.nextVersionID()
	out.CreatedAt = t.s.now()
	t.versions = append(t.versions, out)
	res := out
	return &res, nil
}

func (t *registryTx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id, d := range t.docs {
		t.s.docs[id] = d
	}
	for _, v := range t.versions {
		t.s.versions[v.DocumentID] = append(t.s.versions[v.DocumentID], v)
	}
}

func (r *DocumentRepository) FindByID(ctx context.Context, id int64) (*model.Document, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (r *DocumentRepository) List(ctx context.Context, f repository.ListFilter) ([]model.Document, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	q := strings.ToLower(f.Query)
	tag := strings.ToLower(f.Tag)
	out := make([]model.Document, 0, len(r.s.docs))
	for _, d := range r.s.docs {
		if q != "" && !containsFold(&d.Title, q) && !containsFold(d.Description, q) {
			continue
		}
		if tag != "" && !containsFold(d.Tags, tag) {
			continue
		}
		d.Versions = r.versionsDesc(d.ID)
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *DocumentRepository) ListVersions(ctx context.Context, documentID int64) ([]model.DocumentVersion, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.versionsDesc(documentID), nil
}

func (r *DocumentRepository) GetVersion(ctx context.Context, documentID int64, version int) (*model.DocumentVersion, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.docs[documentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if version <= 0 {
		version = d.LatestVersion
	}
	for _, v := range r.s.versions[documentID] {
		if v.Version == version {
			return &v, nil
		}
	}
	return nil, repository.ErrNotFound
}

// Delete removes the document and its versions atomically.
func (r *DocumentRepository) Delete(ctx context.Context, id int64) ([]string, error) {
	r.s.txMu.Lock()
	defer r.s.txMu.Unlock()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.docs[id]; !ok {
		return nil, repository.ErrNotFound
	}
	keys := make([]string, 0, len(r.s.versions[id]))
	for _, v := range r.s.versions[id] {
		keys = append(keys, v.Filename)
	}
	delete(r.s.versions, id)
	delete(r.s.docs, id)
	return keys, nil
}

// versionsDesc copies a document's versions, highest first. Callers hold mu.
func (r *DocumentRepository) versionsDesc(documentID int64) []model.DocumentVersion {
	src := r.s.versions[documentID]
	out := make([]model.DocumentVersion, len(src))
	copy(out, src)
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out
}

func containsFold(s *string, lowerNeedle string) bool {
	return s != nil && strings.Contains(strings.ToLower(*s), lowerNeedle)
}
