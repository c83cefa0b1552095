package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FailureJournal appends whole-item ingestion failures to an NDJSON file so
// failed items can be re-ingested manually. Page-level skips are not
// journaled; only failures that lose an entire SourceItem are.
type FailureJournal struct {
	mu   sync.Mutex
	path string
}

type failureRecord struct {
	Time    string `json:"time"`
	Reason  string `json:"reason"`
	Payload any    `json:"payload"`
}

// NewFailureJournal creates the logs directory if needed and returns a
// journal writing to failed_items.jsonl inside it.
func NewFailureJournal(logsDir string) (*FailureJournal, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	return &FailureJournal{path: filepath.Join(logsDir, "failed_items.jsonl")}, nil
}

// Path returns the journal file location.
func (j *FailureJournal) Path() string {
	return j.path
}

// Append writes one failure record. The file is opened append-only per call
// so concurrent processes interleave whole lines rather than corrupt them.
func (j *FailureJournal) Append(reason string, payload any) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open failure journal: %w", err)
	}
	defer f.Close()

	record := failureRecord{
		Time:    time.Now().UTC().Format(time.RFC3339),
		Reason:  reason,
		Payload: payload,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal failure record: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write failure record: %w", err)
	}
	return nil
}
