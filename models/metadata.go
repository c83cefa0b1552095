package models

import (
	"fmt"
	"strconv"
)

// Modality identifies the content type of a stored record.
const (
	ModalityText  = "text"
	ModalityImage = "image"
)

// TextMetadata describes one persisted text chunk. It is validated at
// construction and serialized to a flat map only at the store boundary.
type TextMetadata struct {
	Subject    string
	Semester   string
	BookTitle  string
	Page       int // 0-based page index
	ChunkIndex int // 0-based position within the page's split sequence
	SourcePath string
	SourceHash string
	CreatedAt  string // RFC 3339 UTC
}

// Validate checks required fields before a record is built.
func (m TextMetadata) Validate() error {
	if m.Subject == "" || m.Semester == "" || m.BookTitle == "" {
		return fmt.Errorf("text metadata missing subject/semester/book_title")
	}
	if m.SourcePath == "" {
		return fmt.Errorf("text metadata missing source_path")
	}
	if m.Page < 0 {
		return fmt.Errorf("text metadata page must be >= 0, got %d", m.Page)
	}
	if m.ChunkIndex < 0 {
		return fmt.Errorf("text metadata chunk_index must be >= 0, got %d", m.ChunkIndex)
	}
	return nil
}

// ToMap flattens the metadata for storage. Values are strings, ints and
// bools only; the store rejects nested structures.
func (m TextMetadata) ToMap() map[string]any {
	return map[string]any{
		"modality":    ModalityText,
		"subject":     m.Subject,
		"semester":    m.Semester,
		"book_title":  m.BookTitle,
		"page":        m.Page,
		"chunk_index": m.ChunkIndex,
		"source_path": m.SourcePath,
		"source_hash": m.SourceHash,
		"created_at":  m.CreatedAt,
	}
}

// IdentityFields returns the metadata fields that participate in chunk ID
// derivation. Volatile fields (created_at, source_hash) are excluded so that
// re-ingesting the same file produces the same IDs and upserts overwrite
// instead of accumulating duplicates.
func (m TextMetadata) IdentityFields() map[string]string {
	return map[string]string{
		"modality":    ModalityText,
		"subject":     m.Subject,
		"semester":    m.Semester,
		"book_title":  m.BookTitle,
		"page":        strconv.Itoa(m.Page),
		"chunk_index": strconv.Itoa(m.ChunkIndex),
		"source_path": m.SourcePath,
	}
}

// ImageMetadata describes one persisted image record.
type ImageMetadata struct {
	Subject    string
	Semester   string
	BookTitle  string
	Page       int // 0-based; -1 for standalone image files
	ImageIndex int // 0-based within the page
	SourcePath string
	SourceHash string
	CreatedAt  string
	ImageExt   string
	ImagePath  string // path of the persisted copy; empty when the disk write failed
}

// Validate checks required fields before a record is built.
func (m ImageMetadata) Validate() error {
	if m.Subject == "" || m.Semester == "" || m.BookTitle == "" {
		return fmt.Errorf("image metadata missing subject/semester/book_title")
	}
	if m.SourcePath == "" {
		return fmt.Errorf("image metadata missing source_path")
	}
	if m.Page < -1 {
		return fmt.Errorf("image metadata page must be >= -1, got %d", m.Page)
	}
	if m.ImageIndex < 0 {
		return fmt.Errorf("image metadata image_index must be >= 0, got %d", m.ImageIndex)
	}
	return nil
}

// ToMap flattens the metadata for storage. ImagePath is omitted when empty
// so retrieval can distinguish viewable copies from metadata-only records.
func (m ImageMetadata) ToMap() map[string]any {
	out := map[string]any{
		"modality":    ModalityImage,
		"subject":     m.Subject,
		"semester":    m.Semester,
		"book_title":  m.BookTitle,
		"page":        m.Page,
		"image_index": m.ImageIndex,
		"source_path": m.SourcePath,
		"source_hash": m.SourceHash,
		"created_at":  m.CreatedAt,
		"image_ext":   m.ImageExt,
	}
	if m.ImagePath != "" {
		out["image_path"] = m.ImagePath
	}
	return out
}

// IdentityFields returns the ID-relevant fields. image_path is excluded on
// top of the volatile fields: whether the disk copy succeeded must not change
// a record's identity.
func (m ImageMetadata) IdentityFields() map[string]string {
	return map[string]string{
		"modality":    ModalityImage,
		"subject":     m.Subject,
		"semester":    m.Semester,
		"book_title":  m.BookTitle,
		"page":        strconv.Itoa(m.Page),
		"image_index": strconv.Itoa(m.ImageIndex),
		"source_path": m.SourcePath,
	}
}
