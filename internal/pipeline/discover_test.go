package pipeline

import (
	"os"
	"path/filepath"
	"testing"
)

func touchPDF(t *testing.T, parts ...string) {
	t.Helper()
	path := filepath.Join(parts...)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverItemsPreferredLayout(t *testing.T) {
	root := t.TempDir()
	touchPDF(t, root, "5", "ml", "prml", "book.pdf")
	touchPDF(t, root, "5", "ml", "prml", "solutions.pdf")
	touchPDF(t, root, "3", "physics", "feynman", "vol1.pdf")

	items, err := DiscoverItems(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}

	// Sorted by path, so semester 3 comes first.
	first := items[0]
	if first.Semester != "3" || first.Subject != "physics" || first.BookTitle != "feynman" {
		t.Errorf("first item = %+v", first)
	}
	last := items[2]
	if last.Semester != "5" || last.Subject != "ml" || last.BookTitle != "prml" {
		t.Errorf("last item = %+v", last)
	}
}

func TestDiscoverItemsLegacyFallback(t *testing.T) {
	// Legacy trees put subject above semester; the preferred probe finds
	// nothing because "ml" does not look like a semester, and the fallback
	// engages with the levels swapped.
	root := t.TempDir()
	touchPDF(t, root, "ml", "semester_5", "prml", "book.pdf")

	items, err := DiscoverItems(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Subject != "ml" || items[0].Semester != "semester_5" || items[0].BookTitle != "prml" {
		t.Errorf("legacy item = %+v", items[0])
	}
}

func TestDiscoverItemsEmptyRoot(t *testing.T) {
	items, err := DiscoverItems(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Fatalf("empty root yielded %d items", len(items))
	}
}

func TestLooksLikeSemester(t *testing.T) {
	valid := []string{"5", "12", "sem5", "sem_5", "semester_5", "Semester 2"}
	for _, name := range valid {
		if !looksLikeSemester(name) {
			t.Errorf("looksLikeSemester(%q) = false, want true", name)
		}
	}
	invalid := []string{"ml", "physics", "", "sem", "semester_x"}
	for _, name := range invalid {
		if looksLikeSemester(name) {
			t.Errorf("looksLikeSemester(%q) = true, want false", name)
		}
	}
}

func TestDiscoverItemsIgnoresNonPDF(t *testing.T) {
	root := t.TempDir()
	touchPDF(t, root, "5", "ml", "prml", "book.pdf")

	notes := filepath.Join(root, "5", "ml", "prml", "notes.txt")
	if err := os.WriteFile(notes, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	items, err := DiscoverItems(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Errorf("got %d items, want 1", len(items))
	}
}

func TestDiscoverItemsCaseInsensitiveExtension(t *testing.T) {
	root := t.TempDir()
	touchPDF(t, root, "5", "ml", "prml", "BOOK.PDF")

	items, err := DiscoverItems(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Errorf("got %d items, want 1", len(items))
	}
}

func TestDiscoverItemsMissingRoot(t *testing.T) {
	if _, err := DiscoverItems(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestWalkLayoutLegacySwapsSubjectAndSemester(t *testing.T) {
	root := t.TempDir()
	touchPDF(t, root, "ml", "5", "prml", "book.pdf")

	items, err := walkLayout(root, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Subject != "ml" || items[0].Semester != "5" {
		t.Errorf("legacy item = %+v, want subject=ml semester=5", items[0])
	}
}
