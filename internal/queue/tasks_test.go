package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"

	"textbook-rag-platform/internal/pipeline"
	"textbook-rag-platform/models"
)

type fakeIngestor struct {
	batchItems  []models.SourceItem
	imageItems  []models.SourceItem
	batchStatus string
	imageStatus string
}

func (f *fakeIngestor) IngestBatch(ctx context.Context, items []models.SourceItem) []pipeline.ItemResult {
	f.batchItems = append(f.batchItems, items...)
	results := make([]pipeline.ItemResult, len(items))
	for i, item := range items {
		results[i] = pipeline.ItemResult{Item: item, Status: f.batchStatus}
		if f.batchStatus == models.StatusFailed {
			results[i].Err = errors.New("batch failure")
		}
	}
	return results
}

func (f *fakeIngestor) IngestImageFile(ctx context.Context, item models.SourceItem) pipeline.ItemResult {
	f.imageItems = append(f.imageItems, item)
	result := pipeline.ItemResult{Item: item, Status: f.imageStatus}
	if f.imageStatus == models.StatusFailed {
		result.Err = errors.New("image failure")
	}
	return result
}

func testSourceItem() models.SourceItem {
	return models.SourceItem{Subject: "ml", Semester: "5", BookTitle: "prml", SourcePath: "/data/diagram.png"}
}

func TestHandleIngestPDFRoutesPDF(t *testing.T) {
	ing := &fakeIngestor{batchStatus: models.StatusDone, imageStatus: models.StatusDone}
	p := NewTaskProcessor(ing)

	task, err := NewIngestPDFTask(testSourceItem(), false)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.HandleIngestPDF(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	if len(ing.batchItems) != 1 {
		t.Errorf("batch path got %d items, want 1", len(ing.batchItems))
	}
	if len(ing.imageItems) != 0 {
		t.Errorf("image path got %d items, want 0", len(ing.imageItems))
	}
}

func TestHandleIngestPDFRoutesStandaloneImage(t *testing.T) {
	// A standalone image must take the image path; the PDF extractors would
	// reject it and journal a spurious failure.
	ing := &fakeIngestor{batchStatus: models.StatusDone, imageStatus: models.StatusDone}
	p := NewTaskProcessor(ing)

	task, err := NewIngestPDFTask(testSourceItem(), true)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.HandleIngestPDF(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	if len(ing.imageItems) != 1 {
		t.Errorf("image path got %d items, want 1", len(ing.imageItems))
	}
	if len(ing.batchItems) != 0 {
		t.Errorf("batch path got %d items, want 0", len(ing.batchItems))
	}
}

func TestHandleIngestPDFReportsFailure(t *testing.T) {
	ing := &fakeIngestor{batchStatus: models.StatusFailed, imageStatus: models.StatusFailed}
	p := NewTaskProcessor(ing)

	for _, asImage := range []bool{false, true} {
		task, err := NewIngestPDFTask(testSourceItem(), asImage)
		if err != nil {
			t.Fatal(err)
		}
		if err := p.HandleIngestPDF(context.Background(), task); err == nil {
			t.Errorf("asImage=%v: expected error so asynq retries", asImage)
		}
	}
}

func TestHandleIngestPDFBadPayload(t *testing.T) {
	p := NewTaskProcessor(&fakeIngestor{})
	task := asynq.NewTask(TaskIngestPDF, []byte("{not json"))

	err := p.HandleIngestPDF(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("malformed payload must not be retried, got %v", err)
	}
}
