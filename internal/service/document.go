package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"docvault/internal/apperr"
	"docvault/internal/model"
	"docvault/internal/repository"
	"docvault/internal/storage"
	"docvault/internal/validation"
)

var tracer = otel.Tracer("docvault/internal/service")

// UploadInput describes one uploaded file. Content is read exactly once.
type UploadInput struct {
	Title       string  `form:"title" validate:"required,max=255"`
	Description *string `form:"description"`
	Tags        *string `form:"tags"`
	Filename    string  `form:"file" validate:"required,max=255"`
	ContentType string
	Size        int64
	Content     io.Reader `validate:"-"`
}

// ListQuery filters a document listing.
type ListQuery struct {
	Q   string `query:"q"`
	Tag string `query:"tag"`
}

// Download is an open version blob. The caller must close Content.
type Download struct {
	Content      io.ReadCloser
	OriginalName string
	MimeType     string
	Size         int64
	Version      int
}

// DocumentService defines the document use cases and enforces their authorization.
type DocumentService interface {
	// Upload stores the bytes first, then records a new version of the document with the
	// given title in one transaction, creating the document on first upload. Admin only.
	Upload(ctx context.Context, caller *model.User, in UploadInput) (*model.Document, error)

	// List returns documents matching q, most recently updated first.
	List(ctx context.Context, caller *model.User, q ListQuery) ([]model.Document, error)

	// Get returns a document with its versions, newest first.
	Get(ctx context.Context, caller *model.User, id int64) (*model.Document, error)

	// ListVersions returns a document's versions, newest first.
	ListVersions(ctx context.Context, caller *model.User, id int64) ([]model.DocumentVersion, error)

	// Download opens one version of a document; version <= 0 selects the latest.
	Download(ctx context.Context, caller *model.User, id int64, version int) (*Download, error)

	// Delete removes a document with all of its versions and their blobs. Admin only.
	Delete(ctx context.Context, caller *model.User, id int64) error
}

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	store   storage.Storage
	repo    repository.DocumentRepository
	v       *validation.Validator
	metrics *Metrics
	log     *slog.Logger
}

// NewDocumentService constructs a new DocumentService. metrics may be nil.
func NewDocumentService(store storage.Storage, repo repository.DocumentRepository, v *validation.Validator, metrics *Metrics, log *slog.Logger) DocumentService {
	if log == nil {
		log = slog.Default()
	}
	return &documentService{
		store:   store,
		repo:    repo,
		v:       v,
		metrics: metrics,
		log:     log.With("component", "documents"),
	}
}

func (s *documentService) Upload(ctx context.Context, caller *model.User, in UploadInput) (doc *model.Document, err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.Upload")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if _, err := RequireRole(caller, model.RoleAdmin); err != nil {
		s.metrics.upload(resultRejected)
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := s.v.Validate(in); err != nil {
		s.metrics.upload(resultRejected)
		return nil, err
	}
	if in.Content == nil {
		s.metrics.upload(resultRejected)
		return nil, apperr.Validation("validation failed", map[string]string{"file": "is required"})
	}
	span.SetAttributes(attribute.String("document.title", in.Title))

	info, err := storage.Save(ctx, s.store, in.Filename, in.Content, storage.PutObjectOptions{
		Size:        in.Size,
		ContentType: in.ContentType,
		Metadata:    map[string]string{"original-filename": in.Filename},
	})
	if err != nil {
		s.metrics.upload(resultFailed)
		s.log.ErrorContext(ctx, "blob write failed", "event", "upload_storage_failed", "error", err)
		return nil, apperr.StorageFailure(fmt.Errorf("upload to storage: %w", err))
	}

	var mime *string
	if in.ContentType != "" {
		ct := in.ContentType
		mime = &ct
	}

	var recorded *model.DocumentVersion
	err = s.repo.WithinTx(ctx, func(tx repository.RegistryTx) error {
		d, err := tx.FindOrCreate(ctx, repository.NewDocument{
			Title:       in.Title,
			Description: in.Description,
			Tags:        in.Tags,
			OwnerID:     caller.ID,
		})
		if err != nil {
			return fmt.Errorf("find or create document: %w", err)
		}
		next, err := tx.AllocateNextVersion(ctx, d.ID)
		if err != nil {
			return fmt.Errorf("allocate version: %w", err)
		}
		recorded, err = tx.RecordVersion(ctx, &model.DocumentVersion{
			DocumentID:   d.ID,
			Version:      next,
			Filename:     info.Key,
			OriginalName: in.Filename,
			MimeType:     mime,
			Size:         info.Size,
			UploaderID:   caller.ID,
		})
		if err != nil {
			return fmt.Errorf("record version: %w", err)
		}
		return nil
	})
	if err != nil {
		s.metrics.upload(resultFailed)
		// The blob is unreferenced; remove it even if the request was cancelled.
		if delErr := s.store.Delete(context.WithoutCancel(ctx), info.Key); delErr != nil {
			s.log.WarnContext(ctx, "orphan blob cleanup failed", "event", "upload_rollback_failed", "key", info.Key, "error", delErr)
		}
		return nil, err
	}

	s.metrics.upload(resultSuccess)
	span.SetAttributes(
		attribute.Int64("document.id", recorded.DocumentID),
		attribute.Int("document.version", recorded.Version),
	)
	s.log.InfoContext(ctx, "document version uploaded",
		"event", "document_uploaded",
		"document_id", recorded.DocumentID,
		"version", recorded.Version,
		"size", recorded.Size,
		"uploader_id", caller.ID,
	)

	return s.withVersions(ctx, recorded.DocumentID)
}

func (s *documentService) List(ctx context.Context, caller *model.User, q ListQuery) ([]model.Document, error) {
	if caller == nil {
		return nil, apperr.ErrUnauthorized
	}
	docs, err := s.repo.List(ctx, repository.ListFilter{
		Query: strings.TrimSpace(q.Q),
		Tag:   strings.TrimSpace(q.Tag),
	})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func (s *documentService) Get(ctx context.Context, caller *model.User, id int64) (*model.Document, error) {
	if caller == nil {
		return nil, apperr.ErrUnauthorized
	}
	return s.withVersions(ctx, id)
}

func (s *documentService) ListVersions(ctx context.Context, caller *model.User, id int64) ([]model.DocumentVersion, error) {
	if caller == nil {
		return nil, apperr.ErrUnauthorized
	}
	if _, err := s.findDocument(ctx, id); err != nil {
		return nil, err
	}
	versions, err := s.repo.ListVersions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return versions, nil
}

func (s *documentService) Download(ctx context.Context, caller *model.User, id int64, version int) (dl *Download, err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.Download")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(attribute.Int64("document.id", id), attribute.Int("document.version", version))

	if caller == nil {
		return nil, apperr.ErrUnauthorized
	}
	if _, err := s.findDocument(ctx, id); err != nil {
		return nil, err
	}
	v, err := s.repo.GetVersion(ctx, id, version)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("version not found")
		}
		return nil, fmt.Errorf("get version: %w", err)
	}

	rc, info, err := s.store.Get(ctx, v.Filename)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			s.log.WarnContext(ctx, "version blob missing", "event", "blob_missing", "document_id", id, "version", v.Version, "key", v.Filename)
			return nil, apperr.NotFound("file missing on server")
		}
		return nil, apperr.StorageFailure(fmt.Errorf("open blob: %w", err))
	}

	mime := "application/octet-stream"
	if v.MimeType != nil && *v.MimeType != "" {
		mime = *v.MimeType
	}
	return &Download{
		Content:      rc,
		OriginalName: v.OriginalName,
		MimeType:     mime,
		Size:         info.Size,
		Version:      v.Version,
	}, nil
}

func (s *documentService) Delete(ctx context.Context, caller *model.User, id int64) error {
	if _, err := RequireRole(caller, model.RoleAdmin); err != nil {
		return err
	}
	keys, err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("document not found")
		}
		return fmt.Errorf("delete document: %w", err)
	}
	// Metadata is gone; blob removal is best-effort.
	for _, k := range keys {
		if err := s.store.Delete(ctx, k); err != nil {
			s.log.WarnContext(ctx, "blob delete failed", "event", "blob_delete_failed", "key", k, "error", err)
		}
	}
	s.log.InfoContext(ctx, "document deleted", "event", "document_deleted", "document_id", id, "versions", len(keys))
	return nil
}

func (s *documentService) findDocument(ctx context.Context, id int64) (*model.Document, error) {
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("document not found")
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return doc, nil
}

func (s *documentService) withVersions(ctx context.Context, id int64) (*model.Document, error) {
	doc, err := s.findDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	versions, err := s.repo.ListVersions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	doc.Versions = versions
	return doc, nil
}
