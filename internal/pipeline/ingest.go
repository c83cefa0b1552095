// Package pipeline orchestrates ingestion: extract a source file, chunk and
// embed its content, and persist the records. Items in a batch are processed
// strictly sequentially; a failed item is journaled and the batch moves on.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"textbook-rag-platform/internal/chunking"
	"textbook-rag-platform/internal/config"
	"textbook-rag-platform/internal/extract"
	"textbook-rag-platform/internal/logger"
	"textbook-rag-platform/internal/store"
	"textbook-rag-platform/models"
	"textbook-rag-platform/utils"
)

// Extractor produces per-page text and embedded images from a source file.
type Extractor interface {
	Text(path string) (*extract.TextResult, error)
	Images(path string) (*extract.ImageResult, error)
}

// TextEmbedder embeds text chunks, one vector per input in input order.
type TextEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ImageEmbedder embeds raw image bytes. The index slice maps each returned
// vector back to its input position; undecodable inputs are dropped.
type ImageEmbedder interface {
	EmbedImages(ctx context.Context, images [][]byte) ([][]float32, []int, error)
}

// Store receives the finished records.
type Store interface {
	UpsertText(ctx context.Context, records []store.Record) error
	UpsertImages(ctx context.Context, records []store.Record) error
}

// ItemResult reports the outcome of one SourceItem.
type ItemResult struct {
	Item       models.SourceItem
	Status     string
	TextChunks int
	Images     int
	Err        error
}

// Ingestor runs the ingestion state machine. Construct with NewIngestor.
type Ingestor struct {
	extractor    Extractor
	textEmbedder TextEmbedder
	imgEmbedder  ImageEmbedder
	store        Store
	journal      *FailureJournal

	maxChunkChars int
	chunkOverlap  int
	processedDir  string
}

// NewIngestor wires the orchestrator. Chunking parameters are validated here
// so a bad configuration fails before any batch starts.
func NewIngestor(ext Extractor, te TextEmbedder, ie ImageEmbedder, st Store, journal *FailureJournal, cfg *config.Config) (*Ingestor, error) {
	if err := chunking.ValidateParams(cfg.MaxChunkChars, cfg.ChunkOverlap); err != nil {
		return nil, err
	}
	return &Ingestor{
		extractor:     ext,
		textEmbedder:  te,
		imgEmbedder:   ie,
		store:         st,
		journal:       journal,
		maxChunkChars: cfg.MaxChunkChars,
		chunkOverlap:  cfg.ChunkOverlap,
		processedDir:  cfg.ProcessedDataDir,
	}, nil
}

// IngestBatch processes items one at a time. A failed item is appended to the
// failure journal and never aborts the batch; the caller inspects the
// returned results for per-item outcomes.
func (g *Ingestor) IngestBatch(ctx context.Context, items []models.SourceItem) []ItemResult {
	runID := uuid.New().String()
	logger.Info("ingestion batch started", "run_id", runID, "items", len(items))

	results := make([]ItemResult, 0, len(items))
	for _, item := range items {
		result := g.IngestItem(ctx, item)
		if result.Status == models.StatusFailed {
			payload := map[string]any{
				"subject":     item.Subject,
				"semester":    item.Semester,
				"book_title":  item.BookTitle,
				"source_path": item.SourcePath,
				"error":       result.Err.Error(),
			}
			if err := g.journal.Append("ingest_item_failed", payload); err != nil {
				logger.Error("failed to journal item failure", "error", err, "source_path", item.SourcePath)
			}
		}
		results = append(results, result)
	}

	logger.Info("ingestion batch finished", "run_id", runID, "items", len(items))
	return results
}

// IngestItem runs one source item through extraction, embedding and
// persistence. The text and image paths are independent: a failure on one
// side does not block the other, and the item fails only when a whole path
// fails.
func (g *Ingestor) IngestItem(ctx context.Context, item models.SourceItem) ItemResult {
	tracer := otel.Tracer("ingest-pipeline")
	ctx, span := tracer.Start(ctx, "ingest.item")
	defer span.End()
	span.SetAttributes(
		attribute.String("ingest.subject", item.Subject),
		attribute.String("ingest.book", item.BookTitle),
	)

	result := ItemResult{Item: item, Status: models.StatusPending}

	if _, err := os.Stat(item.SourcePath); err != nil {
		result.Status = models.StatusFailed
		result.Err = fmt.Errorf("source file missing: %w", err)
		return result
	}

	sourceHash, err := utils.FileSHA1(item.SourcePath)
	if err != nil {
		result.Status = models.StatusFailed
		result.Err = fmt.Errorf("failed to hash source file: %w", err)
		return result
	}
	createdAt := time.Now().UTC().Format(time.RFC3339)

	result.Status = models.StatusExtracting
	var pathErrs []error

	textCount, err := g.ingestText(ctx, item, sourceHash, createdAt)
	if err != nil {
		logger.Error("text path failed", "source_path", item.SourcePath, "error", err)
		pathErrs = append(pathErrs, fmt.Errorf("text: %w", err))
	}
	result.TextChunks = textCount

	imageCount, err := g.ingestImages(ctx, item, sourceHash, createdAt)
	if err != nil {
		logger.Error("image path failed", "source_path", item.SourcePath, "error", err)
		pathErrs = append(pathErrs, fmt.Errorf("images: %w", err))
	}
	result.Images = imageCount

	if len(pathErrs) > 0 {
		result.Status = models.StatusFailed
		result.Err = errors.Join(pathErrs...)
		return result
	}

	result.Status = models.StatusDone
	logger.Info("item ingested", "source_path", item.SourcePath,
		"text_chunks", textCount, "images", imageCount)
	return result
}

func (g *Ingestor) ingestText(ctx context.Context, item models.SourceItem, sourceHash, createdAt string) (int, error) {
	extracted, err := g.extractor.Text(item.SourcePath)
	if err != nil {
		return 0, err
	}
	for _, skip := range extracted.Skipped {
		logger.Warn("skipping page", "source_path", item.SourcePath, "page", skip.PageIndex, "error", skip.Err)
	}

	var texts []string
	var metas []models.TextMetadata
	for _, page := range extracted.Pages {
		chunks := chunking.Split(page.Text, g.maxChunkChars, g.chunkOverlap)
		for ci, chunk := range chunks {
			meta := models.TextMetadata{
				Subject:    item.Subject,
				Semester:   item.Semester,
				BookTitle:  item.BookTitle,
				Page:       page.PageIndex,
				ChunkIndex: ci,
				SourcePath: item.SourcePath,
				SourceHash: sourceHash,
				CreatedAt:  createdAt,
			}
			if err := meta.Validate(); err != nil {
				return 0, err
			}
			texts = append(texts, chunk)
			metas = append(metas, meta)
		}
	}
	if len(texts) == 0 {
		return 0, nil
	}

	vectors, err := g.textEmbedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding failed: %w", err)
	}
	if len(vectors) != len(texts) {
		return 0, fmt.Errorf("embedding count mismatch: %d texts, %d vectors", len(texts), len(vectors))
	}

	records := make([]store.Record, len(texts))
	for i := range texts {
		records[i] = store.Record{
			ID:        utils.ChunkID(metas[i].IdentityFields()),
			Embedding: vectors[i],
			Document:  texts[i],
			Metadata:  metas[i].ToMap(),
		}
	}
	if err := g.store.UpsertText(ctx, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

func (g *Ingestor) ingestImages(ctx context.Context, item models.SourceItem, sourceHash, createdAt string) (int, error) {
	extracted, err := g.extractor.Images(item.SourcePath)
	if err != nil {
		return 0, err
	}
	for _, skip := range extracted.Skipped {
		logger.Warn("skipping image page", "source_path", item.SourcePath, "page", skip.PageIndex, "error", skip.Err)
	}
	if len(extracted.Images) == 0 {
		return 0, nil
	}

	data := make([][]byte, len(extracted.Images))
	for i, img := range extracted.Images {
		data[i] = img.Data
	}

	vectors, indices, err := g.imgEmbedder.EmbedImages(ctx, data)
	if err != nil {
		return 0, fmt.Errorf("embedding failed: %w", err)
	}
	if len(vectors) == 0 {
		return 0, nil
	}

	records := make([]store.Record, 0, len(vectors))
	for vi, origIdx := range indices {
		img := extracted.Images[origIdx]
		meta := models.ImageMetadata{
			Subject:    item.Subject,
			Semester:   item.Semester,
			BookTitle:  item.BookTitle,
			Page:       img.PageIndex,
			ImageIndex: img.ImageIndex,
			SourcePath: item.SourcePath,
			SourceHash: sourceHash,
			CreatedAt:  createdAt,
			ImageExt:   img.Ext,
		}
		if err := meta.Validate(); err != nil {
			return 0, err
		}

		// The disk copy happens before the vector write. A failed copy is
		// not fatal: the record is stored without image_path and the image
		// stays retrievable by metadata, just not viewable.
		copied, err := g.copyProcessedImage(item, img)
		if err != nil {
			logger.Warn("failed to persist image copy", "source_path", item.SourcePath,
				"page", img.PageIndex, "image", img.ImageIndex, "error", err)
		} else {
			meta.ImagePath = copied
		}

		records = append(records, store.Record{
			ID:        utils.ChunkID(meta.IdentityFields()),
			Embedding: vectors[vi],
			Metadata:  meta.ToMap(),
		})
	}

	if err := g.store.UpsertImages(ctx, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// copyProcessedImage writes an extracted page image under the processed tree
// and returns the destination path.
func (g *Ingestor) copyProcessedImage(item models.SourceItem, img extract.PageImage) (string, error) {
	name := fmt.Sprintf("page_%d_img_%d.%s", img.PageIndex, img.ImageIndex, img.Ext)
	return g.writeProcessedFile(item, name, img.Data)
}

func (g *Ingestor) writeProcessedFile(item models.SourceItem, name string, data []byte) (string, error) {
	dir := filepath.Join(g.processedDir, item.Semester, item.Subject, item.BookTitle, "images")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(dir, name)
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", err
	}
	return dest, nil
}

// IngestImageFile ingests a standalone image file as a single image record
// with page set to -1.
func (g *Ingestor) IngestImageFile(ctx context.Context, item models.SourceItem) ItemResult {
	result := ItemResult{Item: item, Status: models.StatusExtracting}

	data, err := os.ReadFile(item.SourcePath)
	if err != nil {
		result.Status = models.StatusFailed
		result.Err = fmt.Errorf("failed to read image file: %w", err)
		return result
	}
	sourceHash := utils.SHA1Hex(data)

	result.Status = models.StatusEmbedding
	vectors, indices, err := g.imgEmbedder.EmbedImages(ctx, [][]byte{data})
	if err != nil {
		result.Status = models.StatusFailed
		result.Err = fmt.Errorf("embedding failed: %w", err)
		return result
	}
	if len(indices) == 0 {
		result.Status = models.StatusFailed
		result.Err = fmt.Errorf("image %s rejected: undecodable or too small", item.SourcePath)
		return result
	}

	ext := filepath.Ext(item.SourcePath)
	if ext != "" {
		ext = ext[1:]
	}
	meta := models.ImageMetadata{
		Subject:    item.Subject,
		Semester:   item.Semester,
		BookTitle:  item.BookTitle,
		Page:       -1,
		ImageIndex: 0,
		SourcePath: item.SourcePath,
		SourceHash: sourceHash,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		ImageExt:   utils.NormalizeImageExt(ext),
	}
	if err := meta.Validate(); err != nil {
		result.Status = models.StatusFailed
		result.Err = err
		return result
	}

	// Standalone copies keep the source file name; two standalone images in
	// the same book directory would otherwise collide on page_-1_img_0.
	copied, err := g.writeProcessedFile(item, filepath.Base(item.SourcePath), data)
	if err != nil {
		logger.Warn("failed to persist image copy", "source_path", item.SourcePath, "error", err)
	} else {
		meta.ImagePath = copied
	}

	result.Status = models.StatusPersisting
	record := store.Record{
		ID:        utils.ChunkID(meta.IdentityFields()),
		Embedding: vectors[0],
		Metadata:  meta.ToMap(),
	}
	if err := g.store.UpsertImages(ctx, []store.Record{record}); err != nil {
		result.Status = models.StatusFailed
		result.Err = err
		return result
	}

	result.Status = models.StatusDone
	result.Images = 1
	return result
}
