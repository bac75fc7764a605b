package model

import "time"

// Document is a logical, title-keyed artifact with a history of uploaded versions.
// LatestVersion always equals the highest Version among its DocumentVersions, and
// versions form the contiguous sequence 1..LatestVersion.
//
// A Document owns its versions: deleting the document deletes every version row with it.
type Document struct {
	ID            int64             `json:"id"`
	Title         string            `json:"title"`
	Description   *string           `json:"description"`
	Tags          *string           `json:"tags"`
	LatestVersion int               `json:"latest_version"`
	OwnerID       int64             `json:"owner_id"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	Versions      []DocumentVersion `json:"versions"`
}

// DocumentVersion is one immutable upload bound to a document and a sequence number.
// Filename is the storage key; OriginalName is what the uploader called the file.
type DocumentVersion struct {
	ID           int64     `json:"id"`
	DocumentID   int64     `json:"document_id"`
	Version      int       `json:"version"`
	Filename     string    `json:"-"`
	OriginalName string    `json:"original_name"`
	MimeType     *string   `json:"mime_type"`
	Size         int64     `json:"size"`
	UploaderID   int64     `json:"uploader_id"`
	CreatedAt    time.Time `json:"created_at"`
}
