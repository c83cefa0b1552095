package models

// SourceItem identifies one ingestible file. It is created per ingestion
// request and never persisted.
type SourceItem struct {
	Subject    string `json:"subject"`
	Semester   string `json:"semester"`
	BookTitle  string `json:"book_title"`
	SourcePath string `json:"source_path"`
}

// Ingestion status constants. FAILED is reachable from any state; a failed
// item is journaled and never aborts the batch.
const (
	StatusPending    = "pending"
	StatusExtracting = "extracting"
	StatusEmbedding  = "embedding"
	StatusPersisting = "persisting"
	StatusDone       = "done"
	StatusFailed     = "failed"
)
