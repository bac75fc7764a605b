package handler

import (
	"mime"
	"mime/multipart"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"docvault/internal/apperr"
	"docvault/internal/http/middleware"
	"docvault/internal/service"
)

// ListDocuments godoc
// @Summary List documents
// @Tags documents
// @Produce json
// @Param q query string false "title substring (case-insensitive)"
// @Param tag query string false "tag substring (case-insensitive)"
// @Success 200 {array} model.Document
// @Failure 401 {object} errorPayload
// @Security BearerAuth
// @Router /documents [get]
func ListDocuments(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var q service.ListQuery
		if err := c.QueryParser(&q); err != nil {
			return apperr.BadRequest("invalid query")
		}
		docs, err := svc.List(c.UserContext(), middleware.CurrentUser(c), q)
		if err != nil {
			return err
		}
		return c.JSON(docs)
	}
}

// UploadDocument godoc
// @Summary Upload a document version
// @Description Creates the document on first upload of a title, otherwise appends the next version.
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param title formData string true "document title"
// @Param description formData string false "description"
// @Param tags formData string false "comma separated tags"
// @Param file formData file true "file content"
// @Success 201 {object} model.Document
// @Failure 400 {object} errorPayload
// @Failure 403 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Security BearerAuth
// @Router /documents [post]
func UploadDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		form, err := c.MultipartForm()
		if err != nil {
			return apperr.Validation("validation failed", map[string]string{"file": "is required"})
		}
		files := form.File["file"]
		if len(files) == 0 {
			return apperr.Validation("validation failed", map[string]string{"file": "is required"})
		}
		fh := files[0]

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		doc, err := svc.Upload(c.UserContext(), middleware.CurrentUser(c), service.UploadInput{
			Title:       formValue(form, "title"),
			Description: optionalFormValue(form, "description"),
			Tags:        optionalFormValue(form, "tags"),
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(fiber.HeaderContentType),
			Size:        fh.Size,
			Content:     f,
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(doc)
	}
}

// GetDocument godoc
// @Summary Get a document with its versions
// @Tags documents
// @Produce json
// @Param id path int true "document id"
// @Success 200 {object} model.Document
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Security BearerAuth
// @Router /documents/{id} [get]
func GetDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		doc, err := svc.Get(c.UserContext(), middleware.CurrentUser(c), id)
		if err != nil {
			return err
		}
		return c.JSON(doc)
	}
}

// ListVersions godoc
// @Summary List versions of a document, newest first
// @Tags documents
// @Produce json
// @Param id path int true "document id"
// @Success 200 {array} model.DocumentVersion
// @Failure 404 {object} errorPayload
// @Security BearerAuth
// @Router /documents/{id}/versions [get]
func ListVersions(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		versions, err := svc.ListVersions(c.UserContext(), middleware.CurrentUser(c), id)
		if err != nil {
			return err
		}
		return c.JSON(versions)
	}
}

// DownloadDocument godoc
// @Summary Download a document version
// @Description Without version the latest one is returned.
// @Tags documents
// @Produce octet-stream
// @Param id path int true "document id"
// @Param version query int false "version number"
// @Success 200 {file} file
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Security BearerAuth
// @Router /documents/{id}/download [get]
func DownloadDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		version := 0
		if raw := c.Query("version"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 1 {
				return writeError(c, fiber.StatusBadRequest, "INVALID_VERSION", "invalid version")
			}
			version = v
		}

		dl, err := svc.Download(c.UserContext(), middleware.CurrentUser(c), id, version)
		if err != nil {
			return err
		}

		c.Set(fiber.HeaderContentType, dl.MimeType)
		c.Set(fiber.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": dl.OriginalName}))
		c.Set("X-Document-Version", strconv.Itoa(dl.Version))
		// fasthttp closes the stream once the body is written.
		return c.SendStream(dl.Content, int(dl.Size))
	}
}

// DeleteDocument godoc
// @Summary Delete a document and all of its versions
// @Tags documents
// @Param id path int true "document id"
// @Success 204
// @Failure 403 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Security BearerAuth
// @Router /documents/{id} [delete]
func DeleteDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := svc.Delete(c.UserContext(), middleware.CurrentUser(c), id); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func documentID(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	return id, err == nil && id > 0
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// optionalFormValue distinguishes an absent field from an empty one.
func optionalFormValue(form *multipart.Form, key string) *string {
	v, ok := form.Value[key]
	if !ok || len(v) == 0 {
		return nil
	}
	s := v[0]
	return &s
}
