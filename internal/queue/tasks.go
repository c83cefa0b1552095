// Package queue defines the asynq tasks for background ingestion.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"textbook-rag-platform/internal/logger"
	"textbook-rag-platform/internal/pipeline"
	"textbook-rag-platform/models"
)

const (
	TaskIngestPDF = "ingest:pdf"
	TaskReingest  = "ingest:rescan"
)

type IngestPDFPayload struct {
	Item models.SourceItem `json:"item"`
	// AsImage marks a standalone image file; it goes through the image
	// ingestion path instead of the PDF extractors.
	AsImage bool `json:"as_image,omitempty"`
}

type ReingestPayload struct {
	RawDir string `json:"raw_dir"`
}

// NewIngestPDFTask enqueues ingestion of one source item.
func NewIngestPDFTask(item models.SourceItem, asImage bool) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestPDFPayload{Item: item, AsImage: asImage})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskIngestPDF,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
	), nil
}

// NewReingestTask enqueues a full rescan of a data root.
func NewReingestTask(rawDir string) (*asynq.Task, error) {
	payload, err := json.Marshal(ReingestPayload{RawDir: rawDir})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskReingest,
		payload,
		asynq.MaxRetry(1),
		asynq.Timeout(2*time.Hour),
	), nil
}

// Ingestor is the slice of the pipeline the task handlers drive.
type Ingestor interface {
	IngestBatch(ctx context.Context, items []models.SourceItem) []pipeline.ItemResult
	IngestImageFile(ctx context.Context, item models.SourceItem) pipeline.ItemResult
}

// TaskProcessor handles ingestion tasks. Run it with server concurrency 1;
// the pipeline is sequential by design and the failure journal relies on it.
type TaskProcessor struct {
	ingestor Ingestor
}

func NewTaskProcessor(ingestor Ingestor) *TaskProcessor {
	return &TaskProcessor{ingestor: ingestor}
}

// HandleIngestPDF ingests one item, routing standalone images to the image
// path. A whole-item failure is already journaled by the pipeline; it is
// returned here too so asynq retries transient causes.
func (p *TaskProcessor) HandleIngestPDF(ctx context.Context, t *asynq.Task) error {
	var payload IngestPDFPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	logger.Info("ingest task started", "source_path", payload.Item.SourcePath, "as_image", payload.AsImage)

	var result pipeline.ItemResult
	if payload.AsImage {
		result = p.ingestor.IngestImageFile(ctx, payload.Item)
	} else {
		result = p.ingestor.IngestBatch(ctx, []models.SourceItem{payload.Item})[0]
	}
	if result.Status == models.StatusFailed {
		return fmt.Errorf("ingest of %s failed: %w", payload.Item.SourcePath, result.Err)
	}
	return nil
}

// HandleReingest rediscovers every PDF under the data root and ingests the
// batch. Per-item failures land in the journal, not in the task error.
func (p *TaskProcessor) HandleReingest(ctx context.Context, t *asynq.Task) error {
	var payload ReingestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	items, err := pipeline.DiscoverItems(payload.RawDir)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}
	logger.Info("reingest task discovered items", "raw_dir", payload.RawDir, "count", len(items))

	results := p.ingestor.IngestBatch(ctx, items)
	failed := 0
	for _, r := range results {
		if r.Status == models.StatusFailed {
			failed++
		}
	}
	logger.Info("reingest task finished", "items", len(items), "failed", failed)
	return nil
}

// Register binds the handlers onto an asynq mux.
func (p *TaskProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskIngestPDF, p.HandleIngestPDF)
	mux.HandleFunc(TaskReingest, p.HandleReingest)
}
