// Package chunking splits page text into bounded, overlapping segments for
// embedding. Splitting is deterministic for identical input, which the
// identity scheme relies on for idempotent re-ingestion.
package chunking

import (
	"fmt"
	"strings"
)

// ValidateParams rejects chunking parameters that would keep the sliding
// window from advancing. Called at configuration load, not mid-batch.
func ValidateParams(maxChars, overlap int) error {
	if maxChars <= 0 {
		return fmt.Errorf("max chars must be positive, got %d", maxChars)
	}
	if overlap < 0 {
		return fmt.Errorf("overlap must be non-negative, got %d", overlap)
	}
	if overlap >= maxChars {
		return fmt.Errorf("overlap (%d) must be smaller than max chars (%d)", overlap, maxChars)
	}
	return nil
}

// Split breaks text on blank-line paragraph boundaries, emits paragraphs at
// or under maxChars verbatim, and slices longer paragraphs into windows of
// maxChars runes advancing by maxChars-overlap. Empty input yields an empty
// slice.
func Split(text string, maxChars, overlap int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		runes := []rune(para)
		if len(runes) <= maxChars {
			chunks = append(chunks, para)
			continue
		}

		start := 0
		for start < len(runes) {
			end := start + maxChars
			if end > len(runes) {
				end = len(runes)
			}
			chunks = append(chunks, string(runes[start:end]))
			if end == len(runes) {
				break
			}
			start = end - overlap
			if start < 0 {
				start = 0
			}
		}
	}
	return chunks
}
