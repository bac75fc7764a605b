package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"docvault/internal/apperr"
	"docvault/internal/logger"
	"docvault/internal/model"
	"docvault/internal/repository"
	repoMocks "docvault/internal/repository/mocks"
	"docvault/internal/storage"
	storeMocks "docvault/internal/storage/mocks"
	"docvault/internal/validation"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	admin  = &model.User{ID: 1, Username: "root", Role: model.RoleAdmin}
	reader = &model.User{ID: 2, Username: "reader", Role: model.RoleUser}
)

func newTestDocumentService(t *testing.T, st storage.Storage, repo repository.DocumentRepository) (DocumentService, *Metrics) {
	t.Helper()
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return NewDocumentService(st, repo, validation.New(), m, logger.Discard()), m
}

func TestDocumentService_Upload(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		caller     *model.User
		input      func() UploadInput
		setupMocks func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository, mTx *repoMocks.MockRegistryTx)
		wantErr    error
		wantErrMsg string
		wantResult string
	}{
		{
			name:   "happy path",
			caller: admin,
			input: func() UploadInput {
				return UploadInput{
					Title:       "  Report ",
					Filename:    "report.pdf",
					ContentType: "application/pdf",
					Size:        11,
					Content:     strings.NewReader("hello world"),
				}
			},
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository, mTx *repoMocks.MockRegistryTx) {
				mStore.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
					return len(key) == 32+len("_report.pdf") && strings.HasSuffix(key, "_report.pdf")
				}), mock.Anything, storage.PutObjectOptions{
					Size:        11,
					ContentType: "application/pdf",
					Metadata:    map[string]string{"original-filename": "report.pdf"},
				}).Return(func(_ context.Context, key string, r io.Reader, _ storage.PutObjectOptions) storage.ObjectInfo {
					n, _ := io.Copy(io.Discard, r)
					return storage.ObjectInfo{Key: key, Size: n}
				}, nil)

				mRepo.On("WithinTx", mock.Anything, mock.Anything).Return(mTx, nil)
				mTx.On("FindOrCreate", mock.Anything, repository.NewDocument{Title: "Report", OwnerID: 1}).
					Return(&model.Document{ID: 5, Title: "Report", LatestVersion: 2}, nil)
				mTx.On("AllocateNextVersion", mock.Anything, int64(5)).Return(3, nil)
				mTx.On("RecordVersion", mock.Anything, mock.MatchedBy(func(v *model.DocumentVersion) bool {
					return v.DocumentID == 5 && v.Version == 3 && v.Size == 11 &&
						v.OriginalName == "report.pdf" && v.MimeType != nil && *v.MimeType == "application/pdf" &&
						strings.HasSuffix(v.Filename, "_report.pdf") && v.UploaderID == 1
				})).Return(func(v *model.DocumentVersion) *model.DocumentVersion {
					out := *v
					out.ID = 30
					return &out
				}, nil)

				mRepo.On("FindByID", mock.Anything, int64(5)).
					Return(&model.Document{ID: 5, Title: "Report", LatestVersion: 3}, nil)
				mRepo.On("ListVersions", mock.Anything, int64(5)).
					Return([]model.DocumentVersion{{ID: 30, Version: 3}, {ID: 20, Version: 2}, {ID: 10, Version: 1}}, nil)
			},
			wantResult: resultSuccess,
		},
		{
			name:   "anonymous caller",
			caller: nil,
			input: func() UploadInput {
				return UploadInput{Title: "Report", Filename: "a.txt", Content: strings.NewReader("x")}
			},
			setupMocks: func(*storeMocks.MockStorage, *repoMocks.MockDocumentRepository, *repoMocks.MockRegistryTx) {},
			wantErr:    apperr.ErrUnauthorized,
			wantResult: resultRejected,
		},
		{
			name:   "non-admin caller",
			caller: reader,
			input: func() UploadInput {
				return UploadInput{Title: "Report", Filename: "a.txt", Content: strings.NewReader("x")}
			},
			setupMocks: func(*storeMocks.MockStorage, *repoMocks.MockDocumentRepository, *repoMocks.MockRegistryTx) {},
			wantErr:    apperr.ErrForbidden,
			wantResult: resultRejected,
		},
		{
			name:   "blank title",
			caller: admin,
			input: func() UploadInput {
				return UploadInput{Title: "   ", Filename: "a.txt", Content: strings.NewReader("x")}
			},
			setupMocks: func(*storeMocks.MockStorage, *repoMocks.MockDocumentRepository, *repoMocks.MockRegistryTx) {},
			wantErr:    apperr.ErrValidation,
			wantResult: resultRejected,
		},
		{
			name:   "missing file",
			caller: admin,
			input: func() UploadInput {
				return UploadInput{Title: "Report", Filename: "a.txt"}
			},
			setupMocks: func(*storeMocks.MockStorage, *repoMocks.MockDocumentRepository, *repoMocks.MockRegistryTx) {},
			wantErr:    apperr.ErrValidation,
			wantResult: resultRejected,
		},
		{
			name:   "storage error leaves no metadata",
			caller: admin,
			input: func() UploadInput {
				return UploadInput{Title: "Report", Filename: "a.txt", Content: strings.NewReader("hello")}
			},
			setupMocks: func(mStore *storeMocks.MockStorage, _ *repoMocks.MockDocumentRepository, _ *repoMocks.MockRegistryTx) {
				mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{}, errors.New("disk full"))
			},
			wantErr:    apperr.ErrStorageFailure,
			wantErrMsg: "disk full",
			wantResult: resultFailed,
		},
		{
			name:   "registry error removes blob",
			caller: admin,
			input: func() UploadInput {
				return UploadInput{Title: "Report", Filename: "a.txt", Content: strings.NewReader("hello")}
			},
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository, mTx *repoMocks.MockRegistryTx) {
				mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{Key: "blob-key", Size: 5}, nil)
				mRepo.On("WithinTx", mock.Anything, mock.Anything).Return(mTx, nil)
				mTx.On("FindOrCreate", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))
				mStore.On("Delete", mock.Anything, "blob-key").Return(nil)
			},
			wantErrMsg: "db down",
			wantResult: resultFailed,
		},
		{
			name:   "commit error removes blob even if cleanup fails",
			caller: admin,
			input: func() UploadInput {
				return UploadInput{Title: "Report", Filename: "a.txt", Content: strings.NewReader("hello")}
			},
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository, _ *repoMocks.MockRegistryTx) {
				mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{Key: "blob-key", Size: 5}, nil)
				mRepo.On("WithinTx", mock.Anything, mock.Anything).Return(nil, errors.New("commit tx: conn closed"))
				mStore.On("Delete", mock.Anything, "blob-key").Return(errors.New("permission denied"))
			},
			wantErrMsg: "conn closed",
			wantResult: resultFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			mRepo := new(repoMocks.MockDocumentRepository)
			mTx := new(repoMocks.MockRegistryTx)
			tt.setupMocks(mStore, mRepo, mTx)

			svc, metrics := newTestDocumentService(t, mStore, mRepo)
			doc, err := svc.Upload(ctx, tt.caller, tt.input())

			if tt.wantErr != nil || tt.wantErrMsg != "" {
				assert.Error(t, err)
				assert.Nil(t, doc)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
				if tt.wantErrMsg != "" {
					assert.ErrorContains(t, err, tt.wantErrMsg)
				}
			} else {
				require.NoError(t, err)
				require.NotNil(t, doc)
				assert.Equal(t, 3, doc.LatestVersion)
				require.Len(t, doc.Versions, 3)
				assert.Equal(t, 3, doc.Versions[0].Version)
			}

			assert.Equal(t, float64(1), testutil.ToFloat64(metrics.uploads.WithLabelValues(tt.wantResult)))
			mStore.AssertExpectations(t)
			mRepo.AssertExpectations(t)
			mTx.AssertExpectations(t)
		})
	}
}

func TestDocumentService_ReadAccess(t *testing.T) {
	ctx := context.Background()
	mStore := new(storeMocks.MockStorage)
	mRepo := new(repoMocks.MockDocumentRepository)
	svc, _ := newTestDocumentService(t, mStore, mRepo)

	t.Run("list requires identity", func(t *testing.T) {
		_, err := svc.List(ctx, nil, ListQuery{})
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})

	t.Run("list trims filters", func(t *testing.T) {
		mRepo.On("List", ctx, repository.ListFilter{Query: "quality", Tag: "root"}).
			Return([]model.Document{{ID: 1, Title: "Quality Policy"}}, nil).Once()

		docs, err := svc.List(ctx, reader, ListQuery{Q: " quality ", Tag: "root "})

		require.NoError(t, err)
		assert.Len(t, docs, 1)
	})

	t.Run("versions of missing document", func(t *testing.T) {
		mRepo.On("FindByID", ctx, int64(404)).Return(nil, repository.ErrNotFound).Once()

		_, err := svc.ListVersions(ctx, reader, 404)

		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("get with versions", func(t *testing.T) {
		mRepo.On("FindByID", ctx, int64(7)).Return(&model.Document{ID: 7, LatestVersion: 1}, nil).Once()
		mRepo.On("ListVersions", ctx, int64(7)).Return([]model.DocumentVersion{{Version: 1}}, nil).Once()

		doc, err := svc.Get(ctx, reader, 7)

		require.NoError(t, err)
		assert.Len(t, doc.Versions, 1)
	})

	t.Run("repository failure is internal", func(t *testing.T) {
		mRepo.On("FindByID", ctx, int64(8)).Return(nil, errors.New("db error")).Once()

		_, err := svc.Get(ctx, reader, 8)

		var ae *apperr.Error
		assert.False(t, errors.As(err, &ae))
		assert.ErrorContains(t, err, "db error")
	})

	mRepo.AssertExpectations(t)
}

func TestDocumentService_Download(t *testing.T) {
	ctx := context.Background()
	mime := "text/plain"

	tests := []struct {
		name       string
		version    int
		setupMocks func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository)
		wantErr    error
		wantMsg    string
		wantMime   string
	}{
		{
			name:    "latest",
			version: 0,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, int64(1)).Return(&model.Document{ID: 1, LatestVersion: 2}, nil)
				mRepo.On("GetVersion", mock.Anything, int64(1), 0).
					Return(&model.DocumentVersion{Version: 2, Filename: "k2", OriginalName: "a.txt", MimeType: &mime}, nil)
				mStore.On("Get", mock.Anything, "k2").
					Return(io.NopCloser(strings.NewReader("v2")), storage.ObjectInfo{Key: "k2", Size: 2}, nil)
			},
			wantMime: "text/plain",
		},
		{
			name:    "mime fallback",
			version: 1,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, int64(1)).Return(&model.Document{ID: 1, LatestVersion: 2}, nil)
				mRepo.On("GetVersion", mock.Anything, int64(1), 1).
					Return(&model.DocumentVersion{Version: 1, Filename: "k1", OriginalName: "a.bin"}, nil)
				mStore.On("Get", mock.Anything, "k1").
					Return(io.NopCloser(strings.NewReader("v1")), storage.ObjectInfo{Key: "k1", Size: 2}, nil)
			},
			wantMime: "application/octet-stream",
		},
		{
			name:    "missing document",
			version: 0,
			setupMocks: func(_ *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, int64(1)).Return(nil, repository.ErrNotFound)
			},
			wantErr: apperr.ErrNotFound,
			wantMsg: "document not found",
		},
		{
			name:    "missing version",
			version: 9,
			setupMocks: func(_ *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, int64(1)).Return(&model.Document{ID: 1, LatestVersion: 2}, nil)
				mRepo.On("GetVersion", mock.Anything, int64(1), 9).Return(nil, repository.ErrNotFound)
			},
			wantErr: apperr.ErrNotFound,
			wantMsg: "version not found",
		},
		{
			name:    "missing blob",
			version: 0,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, int64(1)).Return(&model.Document{ID: 1, LatestVersion: 2}, nil)
				mRepo.On("GetVersion", mock.Anything, int64(1), 0).
					Return(&model.DocumentVersion{Version: 2, Filename: "gone"}, nil)
				mStore.On("Get", mock.Anything, "gone").Return(nil, storage.ObjectInfo{}, storage.ErrObjectNotFound)
			},
			wantErr: apperr.ErrNotFound,
			wantMsg: "file missing on server",
		},
		{
			name:    "storage failure",
			version: 0,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, int64(1)).Return(&model.Document{ID: 1, LatestVersion: 2}, nil)
				mRepo.On("GetVersion", mock.Anything, int64(1), 0).
					Return(&model.DocumentVersion{Version: 2, Filename: "k2"}, nil)
				mStore.On("Get", mock.Anything, "k2").Return(nil, storage.ObjectInfo{}, errors.New("io error"))
			},
			wantErr: apperr.ErrStorageFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			mRepo := new(repoMocks.MockDocumentRepository)
			tt.setupMocks(mStore, mRepo)
			svc, _ := newTestDocumentService(t, mStore, mRepo)

			dl, err := svc.Download(ctx, reader, 1, tt.version)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				if tt.wantMsg != "" {
					var ae *apperr.Error
					require.True(t, errors.As(err, &ae))
					assert.Equal(t, tt.wantMsg, ae.Message)
				}
				assert.Nil(t, dl)
			} else {
				require.NoError(t, err)
				defer dl.Content.Close()
				assert.Equal(t, tt.wantMime, dl.MimeType)
				assert.Equal(t, int64(2), dl.Size)
			}
			mStore.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}

	t.Run("anonymous", func(t *testing.T) {
		svc, _ := newTestDocumentService(t, new(storeMocks.MockStorage), new(repoMocks.MockDocumentRepository))
		_, err := svc.Download(ctx, nil, 1, 0)
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})
}

func TestDocumentService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("removes blobs best effort", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockDocumentRepository)
		mRepo.On("Delete", ctx, int64(3)).Return([]string{"k1", "k2"}, nil)
		mStore.On("Delete", ctx, "k1").Return(errors.New("permission denied"))
		mStore.On("Delete", ctx, "k2").Return(nil)
		svc, _ := newTestDocumentService(t, mStore, mRepo)

		assert.NoError(t, svc.Delete(ctx, admin, 3))
		mStore.AssertExpectations(t)
		mRepo.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		mRepo.On("Delete", ctx, int64(3)).Return(nil, repository.ErrNotFound)
		svc, _ := newTestDocumentService(t, new(storeMocks.MockStorage), mRepo)

		assert.ErrorIs(t, svc.Delete(ctx, admin, 3), apperr.ErrNotFound)
	})

	t.Run("admin only", func(t *testing.T) {
		svc, _ := newTestDocumentService(t, new(storeMocks.MockStorage), new(repoMocks.MockDocumentRepository))
		assert.ErrorIs(t, svc.Delete(ctx, reader, 3), apperr.ErrForbidden)
		assert.ErrorIs(t, svc.Delete(ctx, nil, 3), apperr.ErrUnauthorized)
	})
}
