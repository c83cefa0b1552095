package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"textbook-rag-platform/models"
)

// DiscoverItems walks a data root and builds one SourceItem per PDF. The
// preferred layout is <root>/<semester>/<subject>/<book>/*.pdf; when that
// yields no files the same tree is re-read as the legacy
// <root>/<subject>/<semester>/<book>/*.pdf layout. Items come back sorted by
// path so batch runs are deterministic.
func DiscoverItems(rawDir string) ([]models.SourceItem, error) {
	if _, err := os.Stat(rawDir); err != nil {
		return nil, fmt.Errorf("data root %s not accessible: %w", rawDir, err)
	}

	items, err := walkLayout(rawDir, false)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		items, err = walkLayout(rawDir, true)
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].SourcePath < items[j].SourcePath })
	return items, nil
}

// walkLayout reads the fixed three-level tree. With legacy set, the first two
// levels are interpreted as subject/semester instead of semester/subject.
// Whichever level holds the semester must look like one; that is what tells
// the two layouts apart when probing.
func walkLayout(rawDir string, legacy bool) ([]models.SourceItem, error) {
	var items []models.SourceItem

	level1, err := readDirNames(rawDir)
	if err != nil {
		return nil, err
	}
	for _, first := range level1 {
		if !legacy && !looksLikeSemester(first) {
			continue
		}
		level2, err := readDirNames(filepath.Join(rawDir, first))
		if err != nil {
			continue
		}
		for _, second := range level2 {
			if legacy && !looksLikeSemester(second) {
				continue
			}
			books, err := readDirNames(filepath.Join(rawDir, first, second))
			if err != nil {
				continue
			}
			for _, book := range books {
				bookDir := filepath.Join(rawDir, first, second, book)
				entries, err := os.ReadDir(bookDir)
				if err != nil {
					continue
				}
				for _, entry := range entries {
					if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
						continue
					}
					item := models.SourceItem{
						Semester:   first,
						Subject:    second,
						BookTitle:  book,
						SourcePath: filepath.Join(bookDir, entry.Name()),
					}
					if legacy {
						item.Subject, item.Semester = first, second
					}
					items = append(items, item)
				}
			}
		}
	}
	return items, nil
}

// looksLikeSemester accepts plain numbers and sem/semester prefixed names,
// e.g. "5", "sem5", "semester_5".
func looksLikeSemester(name string) bool {
	name = strings.ToLower(name)
	name = strings.TrimPrefix(name, "semester")
	name = strings.TrimPrefix(name, "sem")
	name = strings.Trim(name, "_- ")
	if name == "" {
		return false
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func readDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
