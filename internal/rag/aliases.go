// Package rag provides filtered retrieval over the vector store and answer
// composition on top of the retrieved context.
package rag

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// AliasTable maps canonical subject names to their equivalent stored
// spellings. Different ingestion runs have written inconsistent subject
// values over time; expanding a query subject through the table keeps those
// records reachable.
type AliasTable map[string][]string

// DefaultAliases covers the known spelling variants, including the
// "crytography" misspelling present in older stored metadata.
func DefaultAliases() AliasTable {
	return AliasTable{
		"machine learning": {"ml", "machine_learning", "machinelearning"},
		"deep learning":    {"dl", "deep_learning", "deeplearning"},
		"cryptography":     {"crypto", "crytography", "information security", "information_security"},
	}
}

// LoadAliases reads an alias table from a JSON file of the form
// {"canonical": ["alias", ...]}. An empty path returns the defaults.
func LoadAliases(path string) (AliasTable, error) {
	if path == "" {
		return DefaultAliases(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read alias table: %w", err)
	}
	var table AliasTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse alias table: %w", err)
	}
	return table, nil
}

// Expand returns every stored spelling a query subject should match, sorted
// and deduplicated. The input itself, its underscore form and its
// space-stripped form are always included; table entries are matched
// case-insensitively against both canonical names and aliases.
func (t AliasTable) Expand(subject string) []string {
	subject = strings.ToLower(strings.TrimSpace(subject))
	if subject == "" {
		return nil
	}

	seen := map[string]bool{
		subject: true,
		strings.ReplaceAll(subject, " ", "_"): true,
		strings.ReplaceAll(subject, " ", ""):  true,
	}

	for canonical, aliases := range t {
		group := append([]string{canonical}, aliases...)
		matched := false
		for _, name := range group {
			if strings.EqualFold(name, subject) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		for _, name := range group {
			seen[strings.ToLower(name)] = true
		}
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
